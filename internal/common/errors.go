// Package common defines the sentinel errors shared by the client and
// server layers of GarageSync. Callers match them with errors.Is.
package common

import "errors"

var (
	// ErrOffline is returned when a remote-requiring operation is
	// attempted while disconnected.
	ErrOffline = errors.New("offline")

	// ErrStorage marks local persistence failures. These are treated as
	// fatal to the calling operation.
	ErrStorage = errors.New("local storage failure")

	// ErrRemote marks a rejected or unreachable remote backend during a
	// sync attempt. Recoverable: the operation stays queued.
	ErrRemote = errors.New("remote backend failure")

	// ErrInvalidKind marks an unknown entity kind at a store or API
	// boundary.
	ErrInvalidKind = errors.New("invalid entity kind")

	// ErrSyncInProgress is reported when a synchronizer pass is requested
	// while another pass is already running.
	ErrSyncInProgress = errors.New("synchronization already in progress")
)
