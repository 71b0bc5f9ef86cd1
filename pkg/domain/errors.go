package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every layer.
var (
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
	ErrValidation             = errors.New("validation error")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrDeviceAccessDenied     = errors.New("capture device access denied")
	ErrStorageFailure         = errors.New("storage failure")
	ErrServiceFailure         = errors.New("external service failure")
	ErrIndexOutOfRange        = errors.New("index out of range")
)

// Pipeline stage names used in StageError and logs.
const (
	StageUpload     = "upload"
	StageAttach     = "attach"
	StageTranscript = "transcript"
	StageTranscribe = "transcribe"
	StageTopics     = "topics"
	StageSummarize  = "summarize"
	StageDetach     = "detach"
	StageAdvance    = "advance"
)

// StageError identifies which pipeline stage failed and for which records.
type StageError struct {
	Stage           string
	ArtifactID      string
	DocumentationID string
	Err             error
}

func (e *StageError) Error() string {
	switch {
	case e.ArtifactID != "" && e.DocumentationID != "":
		return fmt.Sprintf("%s failed for artifact %s (documentation %s): %v", e.Stage, e.ArtifactID, e.DocumentationID, e.Err)
	case e.ArtifactID != "":
		return fmt.Sprintf("%s failed for artifact %s: %v", e.Stage, e.ArtifactID, e.Err)
	case e.DocumentationID != "":
		return fmt.Sprintf("%s failed for documentation %s: %v", e.Stage, e.DocumentationID, e.Err)
	default:
		return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
	}
}

func (e *StageError) Unwrap() error { return e.Err }

// NewValidationError wraps ErrValidation with a field message.
func NewValidationError(field, message string) error {
	return fmt.Errorf("%w: %s %s", ErrValidation, field, message)
}
