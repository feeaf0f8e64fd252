package store

import "errors"

var (
	// ErrDuplicateEvent names an event whose dedupe marker already exists.
	// WriteEvent does not return it: it reports a duplicate as a false
	// return with a nil error, per spec.md §4.1.
	ErrDuplicateEvent = errors.New("duplicate event")

	// ErrUnitNotFound indicates no unit exists with the given id.
	ErrUnitNotFound = errors.New("unit not found")

	// ErrRunNotFound indicates no run exists with the given id.
	ErrRunNotFound = errors.New("run not found")

	// ErrConnectionNotFound indicates no connection exists with the given id.
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrRerunPayloadMissing indicates a run has no preserved original
	// event payload, so it cannot be rerun (spec.md §4.6).
	ErrRerunPayloadMissing = errors.New("original event payload missing, cannot rerun")

	// ErrWaitQueueWrite indicates the ephemeral store's wait-queue mutation
	// failed after the single in-process retry spec.md §4.1 calls for.
	ErrWaitQueueWrite = errors.New("failed to write wait queue entry")
)
