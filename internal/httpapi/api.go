package httpapi

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bbureau12/echonet/internal/domain"
	"github.com/bbureau12/echonet/internal/repository"
	"github.com/bbureau12/echonet/internal/service"
)

// API wires the routing, directory, session, and state services to the
// HTTP surface.
type API struct {
	router   *service.Router
	targets  *repository.TargetRepository
	sessions *service.SessionManager
	state    *service.StateService
	logger   *slog.Logger

	cancelPhrases []string
}

func NewAPI(router *service.Router, targets *repository.TargetRepository, sessions *service.SessionManager, state *service.StateService, cancelPhrases []string, logger *slog.Logger) *API {
	return &API{
		router:        router,
		targets:       targets,
		sessions:      sessions,
		state:         state,
		cancelPhrases: cancelPhrases,
		logger:        logger,
	}
}

func (api *API) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "service": "echonet", "version": "0.2.0"})
}

func (api *API) handshake(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok": true,
		"capabilities": gin.H{
			"asr":                true,
			"target_routing":     true,
			"session_management": true,
			"state_tracking":     true,
		},
		"config": gin.H{
			"session_timeout_s": int64(api.sessions.Timeout().Seconds()),
			"cancel_phrases":    api.cancelPhrases,
		},
		"version": "0.2.0",
	})
}

func (api *API) ingestText(c *gin.Context) {
	var ev domain.TextEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid JSON payload"})
		return
	}
	if err := ev.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}

	decision, err := api.router.Route(c.Request.Context(), ev)
	if err != nil {
		api.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

func (api *API) registerTarget(c *gin.Context) {
	var t domain.Target
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid JSON payload"})
		return
	}
	t.Name = strings.TrimSpace(t.Name)
	t.BaseURL = strings.TrimSpace(t.BaseURL)
	if err := t.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}

	if err := api.targets.Upsert(c.Request.Context(), t); err != nil {
		api.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"registered": strings.ToLower(t.Name),
		"listen_url": t.ListenURL(),
		"phrases":    t.Phrases,
	})
}

func (api *API) listTargets(c *gin.Context) {
	targets, err := api.targets.All(c.Request.Context())
	if err != nil {
		api.handleError(c, err)
		return
	}
	out := make([]gin.H, 0, len(targets))
	for _, t := range targets {
		out = append(out, gin.H{
			"name":       t.Name,
			"base_url":   t.BaseURL,
			"listen_url": t.ListenURL(),
			"phrases":    t.Phrases,
		})
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "targets": out})
}

func (api *API) deleteTarget(c *gin.Context) {
	name := c.Param("name")
	deleted, err := api.targets.Delete(c.Request.Context(), name)
	if err != nil {
		api.handleError(c, err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "target '" + name + "' not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "deleted": name})
}

func (api *API) listSessions(c *gin.Context) {
	sessions := api.sessions.All()
	out := make([]domain.SessionSnapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, domain.SessionSnapshot{
			ID:         s.ID,
			Target:     s.Target,
			SourceID:   s.SourceID,
			Room:       s.Room,
			LastTS:     s.LastTS,
			ExpiresInS: api.sessions.ExpiresIn(s),
		})
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "sessions": out})
}

func (api *API) endSession(c *gin.Context) {
	sourceID := c.Param("source_id")
	api.sessions.End(sourceID)
	c.JSON(http.StatusOK, gin.H{"ok": true, "ended": sourceID})
}

func (api *API) getState(c *gin.Context) {
	settings, err := api.state.All(c.Request.Context())
	if err != nil {
		api.handleError(c, err)
		return
	}
	mode, err := api.state.ListenMode(c.Request.Context())
	if err != nil {
		api.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "settings": settings, "listen_mode": mode})
}

type stateUpdate struct {
	Target string `json:"target" binding:"required"`
	Source string `json:"source" binding:"required"`
	State  string `json:"state" binding:"required"`
	Reason string `json:"reason"`
}

func (api *API) updateState(c *gin.Context) {
	var update stateUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "target, source and state are required"})
		return
	}

	// The named target must be registered before it may change state.
	if _, err := api.targets.Get(c.Request.Context(), update.Target); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{
				"ok":    false,
				"error": "target '" + update.Target + "' not found. Register the target first.",
			})
			return
		}
		api.handleError(c, err)
		return
	}

	reason := update.Reason
	if reason == "" {
		reason = "State change requested by " + update.Target
	}
	if err := api.state.SetListenMode(c.Request.Context(), update.State, update.Source+":"+update.Target, reason); err != nil {
		api.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":          true,
		"listen_mode": update.State,
		"target":      update.Target,
		"source":      update.Source,
	})
}

func (api *API) stateHistory(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	changes, err := api.state.History(c.Request.Context(), c.Query("name"), limit)
	if err != nil {
		api.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "count": len(changes), "changes": changes})
}

func (api *API) getAllConfig(c *gin.Context) {
	configs, err := api.state.AllConfig(c.Request.Context())
	if err != nil {
		api.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "config": configs})
}

func (api *API) getConfigKey(c *gin.Context) {
	cfg, err := api.state.GetConfig(c.Request.Context(), c.Param("key"))
	if err != nil {
		api.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "config": cfg})
}

type configUpdate struct {
	Value string `json:"value" binding:"required"`
}

func (api *API) updateConfigKey(c *gin.Context) {
	var update configUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "value is required"})
		return
	}
	key := c.Param("key")
	if err := api.state.SetConfig(c.Request.Context(), key, update.Value); err != nil {
		api.handleError(c, err)
		return
	}
	cfg, err := api.state.GetConfig(c.Request.Context(), key)
	if err != nil {
		api.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "config": cfg})
}

func (api *API) updateConfigBatch(c *gin.Context) {
	var updates map[string]string
	if err := c.ShouldBindJSON(&updates); err != nil || len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "expected a key -> value object"})
		return
	}
	// Validate everything before writing anything.
	for key, value := range updates {
		if err := api.state.ValidateConfig(key, value); err != nil {
			api.handleError(c, err)
			return
		}
	}
	for key, value := range updates {
		if err := api.state.SetConfig(c.Request.Context(), key, value); err != nil {
			api.handleError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "updated": len(updates)})
}

func (api *API) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownConfigKey):
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": err.Error()})
	case errors.Is(err, service.ErrInvalidConfigValue), errors.Is(err, service.ErrInvalidListenMode):
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
	default:
		api.logger.Error("request failed", slog.String("path", c.FullPath()), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "internal error"})
	}
}
