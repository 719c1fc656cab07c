package taskstore

import "errors"

var (
	// ErrNoTaskFolders is returned when a user's storage directory holds
	// no store directory.
	ErrNoTaskFolders = errors.New("taskstore: no task folders found")

	// ErrMultipleTaskFolders is returned when a user's storage directory
	// holds more than one store directory and none is registered.
	ErrMultipleTaskFolders = errors.New("taskstore: multiple task folders found")

	// ErrInvalidUsername is returned for names that cannot be used as a
	// single path component.
	ErrInvalidUsername = errors.New("taskstore: invalid username")

	// ErrRunnerClosed is returned when a sync cannot be queued because the
	// job runner has shut down.
	ErrRunnerClosed = errors.New("taskstore: job runner closed")

	// ErrNoCredentials is returned when the store has not been provisioned
	// with sync server credentials.
	ErrNoCredentials = errors.New("taskstore: no generated credentials")
)
