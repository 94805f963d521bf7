package models

import "github.com/aukilabs/go-tooling/pkg/errors"

const (
	// A provider rejected a command. The node is left Failed.
	ErrTypeLoadFailed = "load_failed"

	// A command was dropped because it became stale. Never surfaced.
	ErrTypeCancelled = "cancelled"

	// A layer was built with invalid options.
	ErrTypeConfiguration = "configuration_error"

	// No provider is registered for the command protocol.
	ErrTypeProviderNotFound = "provider_not_found"
)

// ErrCancelled returns the outcome of a dropped command.
func ErrCancelled(cmd *Command) error {
	return errors.New("command cancelled").
		WithType(ErrTypeCancelled).
		WithTag("url", cmd.URL)
}

// IsCancelled reports whether err is a cancellation outcome.
func IsCancelled(err error) bool {
	return errors.IsType(err, ErrTypeCancelled)
}
