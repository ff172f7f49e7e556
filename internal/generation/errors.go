package generation

import "errors"

// Common errors returned by the generation package
var (
	// ErrEmptyInput is returned when there is no text to work with.
	ErrEmptyInput = errors.New("input text cannot be empty")

	// ErrInvalidResponse is returned when the LLM response cannot be parsed or is malformed
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the LLM blocks the content due to safety filters
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrInvalidConfig is returned when the text service configuration is invalid
	ErrInvalidConfig = errors.New("invalid text service configuration")
)
