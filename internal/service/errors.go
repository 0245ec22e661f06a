package service

import "errors"

var (
	ErrUnknownConfigKey   = errors.New("unknown configuration key")
	ErrInvalidConfigValue = errors.New("invalid configuration value")
	ErrInvalidListenMode  = errors.New("invalid listen mode")
)
