package repository

import "errors"

// Sentinel errors for record handling. These are configuration errors: the
// caller asked for something the model cannot do.
var (
	// ErrNoIdentifier is returned for natural-key lookups on a model without an identifier column
	ErrNoIdentifier = errors.New("model has no identifier column")

	// ErrUnknownModel is returned when a model name is not registered
	ErrUnknownModel = errors.New("unknown model")

	// ErrUnknownColumn is returned when a projection, filter or ordering names a column the model lacks
	ErrUnknownColumn = errors.New("unknown column")

	// ErrShapeMismatch is returned when records cannot be laid out in the model's column order
	ErrShapeMismatch = errors.New("record does not match model columns")
)

// IsNoIdentifier checks if an error is ErrNoIdentifier
func IsNoIdentifier(err error) bool {
	return errors.Is(err, ErrNoIdentifier)
}

// IsUnknownModel checks if an error is ErrUnknownModel
func IsUnknownModel(err error) bool {
	return errors.Is(err, ErrUnknownModel)
}

// IsShapeMismatch checks if an error is ErrShapeMismatch
func IsShapeMismatch(err error) bool {
	return errors.Is(err, ErrShapeMismatch)
}
