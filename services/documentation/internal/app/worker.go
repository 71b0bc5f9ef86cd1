package app

import (
	"context"
	"errors"
	"fmt"

	"casedoc/pkg/ai"
	"casedoc/pkg/domain"
	"casedoc/pkg/queue"
)

// EnqueueTranscription schedules RequestTranscription on the job queue.
func (a *App) EnqueueTranscription(ctx context.Context, artifactID string) (queue.JobStatus, error) {
	if a.jobs == nil {
		return queue.JobStatus{}, ErrAsyncUnavailable
	}
	if _, err := a.artifacts.Get(ctx, artifactID); err != nil {
		return queue.JobStatus{}, err
	}
	job, err := a.jobs.Enqueue(ctx, queue.KindTranscription, artifactID)
	if err != nil {
		return queue.JobStatus{}, fmt.Errorf("enqueue transcription: %w", err)
	}
	a.metrics.JobEnqueued(job.Kind)
	a.log.Info("transcription enqueued", "artifact_id", artifactID, "job_id", job.ID)
	return job, nil
}

// GetJob returns a queued job's status.
func (a *App) GetJob(ctx context.Context, jobID string) (queue.JobStatus, error) {
	if a.jobs == nil {
		return queue.JobStatus{}, ErrAsyncUnavailable
	}
	job, ok, err := a.jobs.GetJob(ctx, jobID)
	if err != nil {
		return queue.JobStatus{}, fmt.Errorf("get job %s: %w", jobID, err)
	}
	if !ok {
		return queue.JobStatus{}, fmt.Errorf("%w: job %s", domain.ErrNotFound, jobID)
	}
	return job, nil
}

// HandleJob is the queue handler. Failures that a retry cannot fix are
// marked permanent; transient service failures are retried by the queue.
func (a *App) HandleJob(ctx context.Context, job queue.JobStatus) error {
	switch job.Kind {
	case queue.KindTranscription:
	default:
		return queue.Permanent(fmt.Errorf("unknown job kind %q", job.Kind))
	}
	log := a.log.With("job_id", job.ID, "artifact_id", job.SubjectID, "attempt", job.Attempts)
	if _, err := a.RequestTranscription(ctx, job.SubjectID); err != nil {
		if retryable(err) {
			log.Warn("transcription job failed, will retry", "err", err)
			return err
		}
		log.Error("transcription job failed", "err", err)
		return queue.Permanent(err)
	}
	return nil
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, ai.ErrQuotaExhausted):
		return false
	}
	var stageErr *domain.StageError
	if errors.As(err, &stageErr) && stageErr.Stage == domain.StageAdvance {
		// transcript is already stored
		return false
	}
	return true
}
