package domain

import "errors"

var (
	// ErrInvalidCriteria reports malformed targeting or scoring configuration.
	ErrInvalidCriteria = errors.New("invalid criteria")
	// ErrInvalidTransition reports a lifecycle violation or a lost status race.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrNotFound reports an unknown campaign, criteria set or opportunity.
	ErrNotFound = errors.New("not found")
	// ErrRepositoryUnavailable reports a storage collaborator failure.
	ErrRepositoryUnavailable = errors.New("repository unavailable")
	// ErrPartialBatchFailure marks batch results where some items failed.
	ErrPartialBatchFailure = errors.New("partial batch failure")
	// ErrStaleGeneration rejects writes issued under superseded criteria.
	ErrStaleGeneration = errors.New("stale criteria generation")
)
