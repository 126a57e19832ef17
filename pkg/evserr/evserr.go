// Package evserr defines the sentinel error kinds shared across the
// multiplexer. Callers compare with errors.Is rather than type-switching,
// matching the %w-wrapping convention used throughout this module.
package evserr

import "errors"

var (
	// InvalidArg signals a malformed or out-of-protocol request, including
	// master-protocol violations by a non-master caller.
	InvalidArg = errors.New("invalid argument")

	// OwnershipLost is returned by setMaster when another client already
	// holds the master role.
	OwnershipLost = errors.New("ownership lost")

	// BufferUnavailable names the buffer-cannot-be-produced-or-imported
	// kind. No operation in this module returns it: HalCamera.ImportBuffers
	// reports a failed import as (0, false).
	BufferUnavailable = errors.New("buffer unavailable")

	// Underlying wraps a hardware-layer rejection (stream start/stop,
	// buffer-count change, parameter get/set).
	Underlying = errors.New("underlying hardware rejected request")

	// SyncUnsupported is returned by requestNextFrame when fence-based
	// delivery could not be enabled for the caller.
	SyncUnsupported = errors.New("fence-based sync not supported for this client")

	// StreamAlreadyRunning names the aggregate-stream-already-running kind.
	// No operation in this module returns it: HalCamera.StartStream treats a
	// start while RUNNING as success.
	StreamAlreadyRunning = errors.New("stream already running")

	// AlreadyStreaming is returned by VirtualCamera.StartStream when that
	// specific client already has an active stream.
	AlreadyStreaming = errors.New("client already streaming")

	// NotStreaming names the operation-requires-an-active-stream kind. No
	// operation in this module returns it.
	NotStreaming = errors.New("not streaming")

	// UnknownBuffer is returned by doneWithFrame for a buffer id the client
	// does not currently hold. Per spec this is logged, not surfaced as a
	// fatal condition, but callers that want the detail can check it.
	UnknownBuffer = errors.New("unknown buffer id")

	// CreateFailed is returned by timeline creation when the underlying
	// synchronization primitive is unavailable.
	CreateFailed = errors.New("fence primitive unavailable")

	// ClientDead names the weak-reference-failed-to-promote kind. No
	// operation in this module returns it: pkg/hal skips dead clients
	// silently.
	ClientDead = errors.New("client reference no longer live")
)
