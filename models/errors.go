package models

import (
	"errors"
	"fmt"
)

var (
	ErrFormat           = errors.New("unsupported source format")
	ErrSchema           = errors.New("missing key column")
	ErrConfiguration    = errors.New("invalid grouping configuration")
	ErrInsufficientData = errors.New("insufficient data")
)

// FormatError reports a trade source that parses neither as delimited text
// nor as a columnar table.
type FormatError struct {
	Source     string
	TextErr    error
	ColumnsErr error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: neither csv (%v) nor parquet (%v)", e.Source, e.TextErr, e.ColumnsErr)
}

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

func (e *FormatError) Unwrap() []error {
	return []error{e.TextErr, e.ColumnsErr}
}

// SchemaError reports a table lacking a column required for a join.
type SchemaError struct {
	Table  string
	Column string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s must contain a '%s' column", e.Table, e.Column)
}

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// ConfigurationError reports an aggregation that cannot be grouped.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Reason
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// InsufficientDataError reports a computation given fewer rows than it needs.
type InsufficientDataError struct {
	Operation string
	Have      int
	Need      int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("not enough data for %s: have %d rows, need %d", e.Operation, e.Have, e.Need)
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }
