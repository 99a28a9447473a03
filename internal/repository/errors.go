package repository

import "errors"

var (
	ErrNotFound         = errors.New("record not found")
	ErrDuplicate        = errors.New("record already exists")
	ErrUnsupportedGroup = errors.New("unsupported group field")
)

const (
	// DayLayout formats DailyCounts.Day.
	DayLayout = "2006-01-02"

	// UnknownKey groups records whose grouping column is empty.
	UnknownKey = "Unknown"
)
