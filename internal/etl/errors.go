package etl

import "errors"

var (
	// ErrEmptyResult is returned by a destination asked to write zero records.
	// A header cannot be derived without at least one merged record.
	ErrEmptyResult = errors.New("no merged records to write")

	// ErrSchemaDrift is returned when a record carries a field the header does not.
	ErrSchemaDrift = errors.New("record field not in output header")

	// ErrMissingJoinKey is returned when a document lacks the join key field.
	ErrMissingJoinKey = errors.New("document has no join key field")

	// ErrColumnMismatch is returned when a row's width differs from its column list.
	ErrColumnMismatch = errors.New("row width does not match column list")

	// ErrUnknownColumn is returned when the configured row key column does not exist.
	ErrUnknownColumn = errors.New("unknown row key column")
)
