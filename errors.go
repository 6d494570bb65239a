package sherlock

import "errors"

var (
	// ErrEmptyQuery is returned when ProcessQuery receives a blank query.
	ErrEmptyQuery = errors.New("sherlock: empty query")

	// ErrIndexBuildFailed is returned when rebuilding the retrieval indices fails.
	ErrIndexBuildFailed = errors.New("sherlock: index build failed")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("sherlock: invalid configuration")

	// ErrInvalidFeedback is returned for an unrecognized feedback verdict.
	ErrInvalidFeedback = errors.New("sherlock: invalid feedback verdict")
)
