package config

import "errors"

var (
	// ErrInvalidConfig indicates a configuration that failed validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConfigNotFound indicates an explicitly named config file is missing.
	ErrConfigNotFound = errors.New("config file not found")
)
