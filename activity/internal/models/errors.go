package models

import "errors"

// Per-record failure kinds.
var (
	ErrMissingIdentifier  = errors.New("missing identifier")
	ErrMalformedTimestamp = errors.New("malformed timestamp")
	ErrValidation         = errors.New("validation failure")
	ErrTruncatedField     = errors.New("truncated field")
)

// Kind names recorded in FailedRecord.Kind.
const (
	KindMissingIdentifier  = "MissingIdentifier"
	KindMalformedTimestamp = "MalformedTimestamp"
	KindValidation         = "ValidationFailure"
	KindTruncatedField     = "TruncatedField"
)

// KindOf maps a record error to its kind name.
func KindOf(err error) string {
	switch {
	case errors.Is(err, ErrMissingIdentifier):
		return KindMissingIdentifier
	case errors.Is(err, ErrMalformedTimestamp):
		return KindMalformedTimestamp
	case errors.Is(err, ErrTruncatedField):
		return KindTruncatedField
	default:
		return KindValidation
	}
}
