package domain

import "errors"

var (
	// ErrInvalidProfileName is returned when a weight profile is not one of the fixed set.
	ErrInvalidProfileName = errors.New("invalid weight profile")

	// ErrInvalidContractLabel is returned for a contract label outside the enumeration.
	ErrInvalidContractLabel = errors.New("invalid contract type")

	// ErrMissingAttribute means an attribute has no normalization ceiling.
	ErrMissingAttribute = errors.New("attribute has no normalization ceiling")

	// ErrZeroCeiling means a ceiling of zero would divide by zero.
	ErrZeroCeiling = errors.New("normalization ceiling is zero")
)
