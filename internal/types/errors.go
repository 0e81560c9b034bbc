package types

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexUnavailable means the similarity store is not initialized or
	// reachable. The process should report itself unhealthy.
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrGenerationUnavailable means no language model is configured.
	ErrGenerationUnavailable = errors.New("generation unavailable")

	// ErrNoRelevantContent means retrieval returned nothing. Not a fault.
	ErrNoRelevantContent = errors.New("no relevant content found")

	// ErrGeneration means the generation call failed or timed out.
	ErrGeneration = errors.New("generation failed")

	// ErrAcquisition means a single video's transcript could not be fetched.
	ErrAcquisition = errors.New("transcript acquisition failed")

	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidMetadata = errors.New("invalid chunk metadata")

	// ErrEmbedderMismatch means the index was built with another embedding function.
	ErrEmbedderMismatch = errors.New("embedding function does not match index")
)

type NoContextError struct {
	Question string
}

func (e *NoContextError) Error() string {
	return fmt.Sprintf("%s for question %q", ErrNoRelevantContent, e.Question)
}

func (e *NoContextError) Unwrap() error { return ErrNoRelevantContent }

type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("error generating answer: %v", e.Err)
}

// Unwrap exposes both the sentinel and the provider error.
func (e *GenerationError) Unwrap() []error { return []error{ErrGeneration, e.Err} }

type AcquisitionError struct {
	VideoID string
	Err     error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("%s for video %s: %v", ErrAcquisition, e.VideoID, e.Err)
}

func (e *AcquisitionError) Unwrap() []error { return []error{ErrAcquisition, e.Err} }
