package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/bbureau12/echonet/internal/domain"
	"github.com/bbureau12/echonet/internal/repository"
)

// configRegistry is the closed set of configuration keys and their types.
// Writes to anything else are rejected before touching storage.
var configRegistry = map[string]string{
	"enable_preroll_buffer":  domain.ConfigBool,
	"preroll_buffer_seconds": domain.ConfigFloat,
	"record_window_seconds":  domain.ConfigFloat,
	"sample_rate":            domain.ConfigInt,
	"whisper_language":       domain.ConfigStr,
}

// StateService is the single source of truth for operational settings
// such as listen_mode. Reads come from an in-memory cache; every write
// goes through one critical section that compares, persists (value plus
// audit row, one transaction), and only then updates the cache.
type StateService struct {
	repo *repository.SettingRepository

	mu     sync.Mutex
	cache  map[string]string
	loaded bool
}

func NewStateService(repo *repository.SettingRepository) *StateService {
	return &StateService{repo: repo}
}

func (s *StateService) ensureCacheLocked(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	values, err := s.repo.Values(ctx)
	if err != nil {
		return fmt.Errorf("load settings cache: %w", err)
	}
	s.cache = values
	s.loaded = true
	return nil
}

// GetValue returns the cached value for name, or def when unset.
func (s *StateService) GetValue(ctx context.Context, name, def string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureCacheLocked(ctx); err != nil {
		return "", err
	}
	if v, ok := s.cache[name]; ok {
		return v, nil
	}
	return def, nil
}

// Set writes a setting. Identical values are a no-op and append no audit
// row. The compare, durable write, and cache update form one critical
// section so concurrent writers cannot lose updates or log a stale
// old_value.
func (s *StateService) Set(ctx context.Context, name, value, source, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureCacheLocked(ctx); err != nil {
		return err
	}

	var oldValue *string
	if current, ok := s.cache[name]; ok {
		if current == value {
			return nil
		}
		oldValue = &current
	}

	if err := s.repo.UpsertAndLog(ctx, name, value, oldValue, source, reason); err != nil {
		return err
	}
	s.cache[name] = value
	return nil
}

// All returns every setting from durable storage.
func (s *StateService) All(ctx context.Context) ([]domain.Setting, error) {
	return s.repo.All(ctx)
}

// History returns the audit trail, newest first. Limit is capped at 500.
func (s *StateService) History(ctx context.Context, name string, limit int) ([]domain.SettingChange, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	return s.repo.History(ctx, name, limit)
}

// ListenMode returns the current listen mode, defaulting to trigger.
func (s *StateService) ListenMode(ctx context.Context) (string, error) {
	return s.GetValue(ctx, "listen_mode", domain.ListenTrigger)
}

// SetListenMode validates and writes the listen mode.
func (s *StateService) SetListenMode(ctx context.Context, mode, source, reason string) error {
	if err := domain.ValidateListenMode(mode); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidListenMode, err)
	}
	return s.Set(ctx, "listen_mode", mode, source, reason)
}

// AudioDeviceIndex returns the selected capture device, defaulting to 0.
func (s *StateService) AudioDeviceIndex(ctx context.Context) (int, error) {
	raw, err := s.GetValue(ctx, "audio_device_index", "0")
	if err != nil {
		return 0, err
	}
	idx, err := strconv.Atoi(raw)
	if err != nil {
		return 0, nil
	}
	return idx, nil
}

// SetAudioDeviceIndex selects the capture device.
func (s *StateService) SetAudioDeviceIndex(ctx context.Context, idx int, source, reason string) error {
	return s.Set(ctx, "audio_device_index", strconv.Itoa(idx), source, reason)
}

// GetConfig returns a typed config value.
func (s *StateService) GetConfig(ctx context.Context, key string) (domain.ConfigSetting, error) {
	c, err := s.repo.GetConfig(ctx, key)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ConfigSetting{}, fmt.Errorf("%w: %q", ErrUnknownConfigKey, key)
	}
	return c, err
}

// AllConfig returns every config row.
func (s *StateService) AllConfig(ctx context.Context) ([]domain.ConfigSetting, error) {
	return s.repo.AllConfig(ctx)
}

// ValidateConfig checks a key/value pair against the registry without
// writing anything.
func (s *StateService) ValidateConfig(key, value string) error {
	typ, ok := configRegistry[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownConfigKey, key)
	}
	return validateConfigValue(typ, value)
}

// SetConfig validates value against the key's declared type and writes
// it. Unknown keys and values that fail the type parser are rejected
// without writing.
func (s *StateService) SetConfig(ctx context.Context, key, value string) error {
	if err := s.ValidateConfig(key, value); err != nil {
		return err
	}
	updated, err := s.repo.UpdateConfig(ctx, key, value)
	if err != nil {
		return err
	}
	if !updated {
		return fmt.Errorf("%w: %q", ErrUnknownConfigKey, key)
	}
	return nil
}

func validateConfigValue(typ, value string) error {
	switch typ {
	case domain.ConfigBool:
		if value != "true" && value != "false" {
			return fmt.Errorf("%w: bool values must be \"true\" or \"false\", got %q", ErrInvalidConfigValue, value)
		}
	case domain.ConfigInt:
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			return fmt.Errorf("%w: %q is not an integer", ErrInvalidConfigValue, value)
		}
	case domain.ConfigFloat:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Errorf("%w: %q is not a number", ErrInvalidConfigValue, value)
		}
	case domain.ConfigStr:
		// any string is acceptable
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidConfigValue, typ)
	}
	return nil
}
