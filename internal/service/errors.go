package service

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument marks a caller-supplied parameter outside its range.
var ErrInvalidArgument = errors.New("invalid argument")

// AggregationError reports a failed statistics view. Other views are
// unaffected.
type AggregationError struct {
	View string
	Err  error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("statistics view %s failed: %v", e.View, e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }
