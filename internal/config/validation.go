package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

func (e ValidationErrors) Unwrap() error {
	return ErrInvalidConfig
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if c.DocumentID == "" {
		errs = append(errs, ValidationError{Field: "document_id", Message: "must not be empty"})
	} else if strings.ContainsAny(c.DocumentID, `/\`) || c.DocumentID == "." || c.DocumentID == ".." {
		errs = append(errs, ValidationError{Field: "document_id", Message: fmt.Sprintf("%q is not a valid file name", c.DocumentID)})
	}
	if c.Collection == "" {
		errs = append(errs, ValidationError{Field: "collection", Message: "must not be empty"})
	}
	if c.Host == "" {
		errs = append(errs, ValidationError{Field: "host", Message: "must not be empty"})
	}
	if c.MountDir == "" {
		errs = append(errs, ValidationError{Field: "mount_dir", Message: "must not be empty"})
	}
	if c.Remote.ReconnectDelayMs <= 0 {
		errs = append(errs, ValidationError{Field: "remote.reconnect_delay_ms", Message: "must be positive"})
	}
	if c.Remote.MaxReconnects < 0 {
		errs = append(errs, ValidationError{Field: "remote.max_reconnects", Message: "must not be negative"})
	}
	if c.Remote.MaxFrameSize <= 0 {
		errs = append(errs, ValidationError{Field: "remote.max_frame_size", Message: "must be positive"})
	}
	if c.Watch.DebounceMs < 0 {
		errs = append(errs, ValidationError{Field: "watch.debounce_ms", Message: "must not be negative"})
	}
	if (c.Markup.KeyPlaceholder == "") != (c.Markup.KeyLiteral == "") {
		errs = append(errs, ValidationError{Field: "markup", Message: "key_placeholder and key_literal must be set together"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
