package queue

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// Job states.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// Job kinds.
const (
	KindTranscription = "transcription"
)

// JobStatus tracks one queued unit of work on a subject (an artifact id for
// transcription jobs).
type JobStatus struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	SubjectID    string    `json:"subjectId"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	Attempts     int       `json:"attempts"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Handler processes one job. Returning an error wrapped with Permanent fails
// the job without further retries.
type Handler func(context.Context, JobStatus) error

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// Hash field names of a job record.
const (
	fieldKind      = "kind"
	fieldSubject   = "subject"
	fieldStatus    = "status"
	fieldError     = "error"
	fieldAttempts  = "attempts"
	fieldCreatedAt = "created_at"
	fieldUpdatedAt = "updated_at"
)

func (j JobStatus) fields() map[string]any {
	return map[string]any{
		fieldKind:      j.Kind,
		fieldSubject:   j.SubjectID,
		fieldStatus:    j.Status,
		fieldError:     j.ErrorMessage,
		fieldAttempts:  j.Attempts,
		fieldCreatedAt: j.CreatedAt.UnixMilli(),
		fieldUpdatedAt: j.UpdatedAt.UnixMilli(),
	}
}

// parseJob rebuilds a job from its hash. Unparseable numbers read as zero.
func parseJob(id string, h map[string]string) JobStatus {
	attempts, _ := strconv.Atoi(h[fieldAttempts])
	return JobStatus{
		ID:           id,
		Kind:         h[fieldKind],
		SubjectID:    h[fieldSubject],
		Status:       h[fieldStatus],
		ErrorMessage: h[fieldError],
		Attempts:     attempts,
		CreatedAt:    parseMillis(h[fieldCreatedAt]),
		UpdatedAt:    parseMillis(h[fieldUpdatedAt]),
	}
}

func parseMillis(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
