package display

import (
	"errors"

	"github.com/mattjoyce/hwcd/internal/pipeline"
	"github.com/mattjoyce/hwcd/internal/refresh"
)

var (
	// ErrAllocation and ErrValidation reject the contents of a frame.
	ErrAllocation = pipeline.ErrAllocation
	ErrValidation = pipeline.ErrValidation
	// ErrApply is returned when a forced refresh rate could not be applied.
	ErrApply = refresh.ErrApply

	// ErrParameters means no invalidate channel is registered.
	ErrParameters = errors.New("no invalidate channel registered")
	// ErrNotSupported means a refresh was requested without a pending invalidate.
	ErrNotSupported = errors.New("refresh not requested by last prepare")
	// ErrInvalidArgument rejects an unknown operation.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDestroyed is returned by every call after Destroy.
	ErrDestroyed = errors.New("display session destroyed")
)
