package app

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"casedoc/pkg/ai"
	"casedoc/pkg/curation"
	"casedoc/pkg/domain"
)

// ArtifactInput is one artifact to attach to a new documentation. Exactly one
// of ArtifactID (a persisted standalone artifact) or Raw (a fresh recording)
// is set. Transcript, when set, is stored on the artifact after attaching.
type ArtifactInput struct {
	ArtifactID string
	Raw        *domain.RawArtifact
	Transcript *string
}

// CreateInput describes a documentation to create. Topics is the curated
// snapshot stored together with Summary and is rejected without one.
type CreateInput struct {
	CaseID    string
	Title     string
	Date      time.Time
	Todos     string
	Summary   *string
	Topics    []string
	Artifacts []ArtifactInput
}

// AttachFailure reports one step that failed while creating a documentation.
// Index is the position in CreateInput.Artifacts, or -1 for the summary.
type AttachFailure struct {
	Index         int    `json:"index"`
	ArtifactID    string `json:"artifactId,omitempty"`
	ProvisionalID string `json:"provisionalId,omitempty"`
	Stage         string `json:"stage"`
	Message       string `json:"error"`
	Err           error  `json:"-"`
}

// AttachReport lists what was attached and what failed. Failures never undo
// the documentation or the other attachments.
type AttachReport struct {
	Attached []domain.AudioArtifact `json:"attached"`
	Failures []AttachFailure        `json:"failures"`
}

// Partial reports whether any step failed.
func (r AttachReport) Partial() bool {
	return len(r.Failures) > 0
}

// DocumentationView is a documentation together with its derived artifacts and attachments.
type DocumentationView struct {
	domain.Documentation
	Artifacts   []domain.AudioArtifact `json:"artifacts"`
	Attachments []domain.Attachment    `json:"attachments"`
}

type attachResult struct {
	artifact domain.AudioArtifact
	attached bool
	failures []AttachFailure
}

// CreateDocumentation inserts an OPEN documentation and attaches the given
// artifacts concurrently, best effort.
func (a *App) CreateDocumentation(ctx context.Context, in CreateInput) (domain.Documentation, AttachReport, error) {
	in.CaseID = strings.TrimSpace(in.CaseID)
	in.Title = strings.TrimSpace(in.Title)
	if in.CaseID == "" {
		return domain.Documentation{}, AttachReport{}, domain.NewValidationError("caseId", "is required")
	}
	if in.Title == "" {
		return domain.Documentation{}, AttachReport{}, domain.NewValidationError("title", "is required")
	}
	if in.Summary == nil && len(in.Topics) > 0 {
		return domain.Documentation{}, AttachReport{}, domain.NewValidationError("topics", "require a summary")
	}
	for i, item := range in.Artifacts {
		hasID := strings.TrimSpace(item.ArtifactID) != ""
		if hasID == (item.Raw != nil) {
			return domain.Documentation{}, AttachReport{}, domain.NewValidationError(fmt.Sprintf("artifacts[%d]", i), "needs exactly one of artifact id or recording")
		}
	}
	if _, ok, err := a.store.GetCase(ctx, in.CaseID); err != nil {
		return domain.Documentation{}, AttachReport{}, fmt.Errorf("load case: %w", err)
	} else if !ok {
		return domain.Documentation{}, AttachReport{}, fmt.Errorf("%w: case %s", domain.ErrNotFound, in.CaseID)
	}

	now := a.now()
	date := in.Date
	if date.IsZero() {
		date = now
	}
	doc := domain.Documentation{
		ID:        a.newID(),
		CaseID:    in.CaseID,
		Title:     in.Title,
		Date:      date.UTC(),
		Todos:     in.Todos,
		Status:    domain.StatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.CreateDocumentation(ctx, doc); err != nil {
		return domain.Documentation{}, AttachReport{}, fmt.Errorf("create documentation: %w", err)
	}
	log := a.log.With("documentation_id", doc.ID)
	log.Info("documentation created", "case_id", doc.CaseID, "artifacts", len(in.Artifacts))

	results := make([]attachResult, len(in.Artifacts))
	var g errgroup.Group
	g.SetLimit(a.attachConcurrency)
	for i, item := range in.Artifacts {
		g.Go(func() error {
			results[i] = a.attachOne(ctx, doc.ID, i, item)
			return nil
		})
	}
	_ = g.Wait()

	report := AttachReport{Attached: []domain.AudioArtifact{}, Failures: []AttachFailure{}}
	for _, res := range results {
		if res.attached {
			report.Attached = append(report.Attached, res.artifact)
		}
		for _, f := range res.failures {
			log.Warn("attach step failed", "index", f.Index, "artifact_id", f.ArtifactID, "provisional_id", f.ProvisionalID, "stage", f.Stage, "err", f.Err)
			report.Failures = append(report.Failures, f)
		}
	}

	if in.Summary != nil {
		started := time.Now()
		err := a.store.SetDocumentationSummary(ctx, doc.ID, *in.Summary, in.Topics)
		a.observe(domain.StageSummarize, started, err)
		if err != nil {
			stageErr := &domain.StageError{Stage: domain.StageSummarize, DocumentationID: doc.ID, Err: err}
			log.Warn("persist summary failed", "stage", domain.StageSummarize, "err", err)
			report.Failures = append(report.Failures, AttachFailure{Index: -1, Stage: domain.StageSummarize, Message: stageErr.Error(), Err: stageErr})
		}
	}

	stored, ok, err := a.store.GetDocumentation(ctx, doc.ID)
	if err == nil && ok {
		doc = stored
	}
	return doc, report, nil
}

func (a *App) attachOne(ctx context.Context, docID string, index int, item ArtifactInput) attachResult {
	var res attachResult
	fail := func(stage, artifactID string, err error) {
		stageErr := &domain.StageError{Stage: stage, ArtifactID: artifactID, DocumentationID: docID, Err: err}
		f := AttachFailure{Index: index, ArtifactID: artifactID, Stage: stage, Message: stageErr.Error(), Err: stageErr}
		if item.Raw != nil {
			f.ProvisionalID = item.Raw.ID
		}
		res.failures = append(res.failures, f)
	}

	started := time.Now()
	if item.Raw != nil {
		saved, err := a.artifacts.Save(ctx, *item.Raw, &docID)
		a.observe(domain.StageUpload, started, err)
		if err != nil {
			fail(domain.StageUpload, "", err)
			return res
		}
		res.artifact = saved
	} else {
		// Only standalone artifacts are picked up here; moving one away from
		// another documentation goes through ReassignArtifact.
		id := strings.TrimSpace(item.ArtifactID)
		got, err := a.artifacts.Get(ctx, id)
		if err == nil && got.DocumentationID != nil && *got.DocumentationID != docID {
			err = fmt.Errorf("%w: artifact %s belongs to documentation %s", domain.ErrConflict, id, *got.DocumentationID)
		}
		if err == nil {
			err = a.artifacts.SetOwner(ctx, id, &docID)
		}
		a.observe(domain.StageAttach, started, err)
		if err != nil {
			fail(domain.StageAttach, id, err)
			return res
		}
		got.DocumentationID = &docID
		res.artifact = got
	}
	res.attached = true

	if item.Transcript != nil {
		started := time.Now()
		err := a.artifacts.SetTranscript(ctx, res.artifact.ID, *item.Transcript)
		a.observe(domain.StageTranscript, started, err)
		if err != nil {
			fail(domain.StageTranscript, res.artifact.ID, err)
			return res
		}
		text := *item.Transcript
		res.artifact.TranscriptText = &text
	}
	return res
}

// SaveArtifact persists a fresh recording as a standalone artifact.
func (a *App) SaveArtifact(ctx context.Context, raw domain.RawArtifact) (domain.AudioArtifact, error) {
	started := time.Now()
	saved, err := a.artifacts.Save(ctx, raw, nil)
	a.observe(domain.StageUpload, started, err)
	if err != nil {
		return domain.AudioArtifact{}, &domain.StageError{Stage: domain.StageUpload, ArtifactID: raw.ID, Err: err}
	}
	return saved, nil
}

// RequestTranscription transcribes one artifact and stores the text. The
// owning documentation advances OPEN -> IN_REVIEW; any other status is kept.
func (a *App) RequestTranscription(ctx context.Context, artifactID string) (domain.AudioArtifact, error) {
	log := a.log.With("artifact_id", artifactID, "stage", domain.StageTranscribe)
	art, data, err := a.artifacts.Open(ctx, artifactID)
	if err != nil {
		return domain.AudioArtifact{}, &domain.StageError{Stage: domain.StageTranscribe, ArtifactID: artifactID, Err: err}
	}

	started := time.Now()
	callCtx, cancel := a.withServiceTimeout(ctx)
	text, err := a.transcriber.Transcribe(callCtx, data, art.FileName, a.languageHint)
	cancel()
	if err == nil && strings.TrimSpace(text) == "" {
		err = fmt.Errorf("%w: empty transcript", domain.ErrServiceFailure)
	}
	a.observe(domain.StageTranscribe, started, err)
	if err != nil {
		log.Warn("transcription failed", "err", err)
		return domain.AudioArtifact{}, &domain.StageError{Stage: domain.StageTranscribe, ArtifactID: artifactID, Err: err}
	}

	text = strings.TrimSpace(text)
	if err := a.artifacts.SetTranscript(ctx, artifactID, text); err != nil {
		log.Error("store transcript failed", "err", err)
		return domain.AudioArtifact{}, &domain.StageError{Stage: domain.StageTranscript, ArtifactID: artifactID, Err: err}
	}

	// Ownership may have changed while the service call was running.
	current, err := a.artifacts.Get(ctx, artifactID)
	if err != nil {
		return domain.AudioArtifact{}, &domain.StageError{Stage: domain.StageTranscript, ArtifactID: artifactID, Err: err}
	}
	if current.DocumentationID != nil {
		docID := *current.DocumentationID
		next, _ := domain.AutoAdvance(domain.StatusOpen)
		advanced, err := a.store.AdvanceDocumentationStatus(ctx, docID, domain.StatusOpen, next)
		if err != nil {
			log.Error("advance documentation status failed", "documentation_id", docID, "err", err)
			return current, &domain.StageError{Stage: domain.StageAdvance, ArtifactID: artifactID, DocumentationID: docID, Err: err}
		}
		if advanced {
			log.Info("documentation advanced", "documentation_id", docID, "status", next)
		}
	}
	log.Info("transcription stored", "chars", len(text))
	return current, nil
}

// EditTranscript replaces the transcript text by hand. Status is untouched.
func (a *App) EditTranscript(ctx context.Context, artifactID, text string) (domain.AudioArtifact, error) {
	if err := a.artifacts.SetTranscript(ctx, artifactID, text); err != nil {
		return domain.AudioArtifact{}, err
	}
	return a.artifacts.Get(ctx, artifactID)
}

// ProposeTopics extracts topics from the documentation's transcripts and opens
// a curation session seeded with them.
func (a *App) ProposeTopics(ctx context.Context, docID string) (*curation.Session, error) {
	if _, err := a.requireDocumentation(ctx, docID); err != nil {
		return nil, err
	}
	owned, err := a.artifacts.ListByOwner(ctx, docID)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(owned, func(x, y domain.AudioArtifact) int {
		return x.CreatedAt.Compare(y.CreatedAt)
	})
	var transcripts []string
	for _, art := range owned {
		if art.TranscriptText != nil && strings.TrimSpace(*art.TranscriptText) != "" {
			transcripts = append(transcripts, *art.TranscriptText)
		}
	}
	if len(transcripts) == 0 {
		return nil, domain.NewValidationError("transcripts", "none available for documentation "+docID)
	}

	started := time.Now()
	callCtx, cancel := a.withServiceTimeout(ctx)
	proposed, err := a.topics.ExtractTopics(callCtx, ai.JoinTranscripts(transcripts))
	cancel()
	a.observe(domain.StageTopics, started, err)
	if err != nil {
		a.log.Warn("topic extraction failed", "documentation_id", docID, "stage", domain.StageTopics, "err", err)
		return nil, &domain.StageError{Stage: domain.StageTopics, DocumentationID: docID, Err: err}
	}
	session := a.sessions.Open(docID, proposed)
	a.syncSessionGauge()
	a.log.Info("curation session opened", "documentation_id", docID, "session_id", session.ID, "topics", len(proposed))
	return session, nil
}

// FinalizeSummary summarizes the curated topics and stores the summary and
// the topic snapshot in one update. Nothing is written on failure.
func (a *App) FinalizeSummary(ctx context.Context, docID string, topics []string) (domain.Documentation, error) {
	if _, err := a.requireDocumentation(ctx, docID); err != nil {
		return domain.Documentation{}, err
	}
	cleaned := make([]string, 0, len(topics))
	for _, t := range topics {
		if t = strings.TrimSpace(t); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	if len(cleaned) == 0 {
		return domain.Documentation{}, domain.NewValidationError("topics", "must not be empty")
	}

	started := time.Now()
	callCtx, cancel := a.withServiceTimeout(ctx)
	summary, err := a.summarizer.Summarize(callCtx, cleaned)
	cancel()
	if err == nil && strings.TrimSpace(summary) == "" {
		err = fmt.Errorf("%w: empty summary", domain.ErrServiceFailure)
	}
	a.observe(domain.StageSummarize, started, err)
	if err != nil {
		a.log.Warn("summarization failed", "documentation_id", docID, "stage", domain.StageSummarize, "err", err)
		return domain.Documentation{}, &domain.StageError{Stage: domain.StageSummarize, DocumentationID: docID, Err: err}
	}
	if err := a.store.SetDocumentationSummary(ctx, docID, strings.TrimSpace(summary), cleaned); err != nil {
		return domain.Documentation{}, &domain.StageError{Stage: domain.StageSummarize, DocumentationID: docID, Err: err}
	}
	return a.requireDocumentation(ctx, docID)
}

// FinalizeSession finalizes a curation session. The session is closed only
// when the summary was stored, so a failed attempt can be retried.
func (a *App) FinalizeSession(ctx context.Context, sessionID string) (domain.Documentation, error) {
	session, err := a.sessions.Get(sessionID)
	if err != nil {
		return domain.Documentation{}, err
	}
	doc, err := a.FinalizeSummary(ctx, session.DocumentationID, session.Finalize())
	if err != nil {
		return domain.Documentation{}, err
	}
	a.sessions.Close(sessionID)
	a.syncSessionGauge()
	return doc, nil
}

// DiscardSession drops a draft without touching the documentation.
func (a *App) DiscardSession(sessionID string) {
	a.sessions.Close(sessionID)
	a.syncSessionGauge()
}

// ReassignArtifact moves an artifact to another documentation, or detaches it
// when docID is nil. The transcript stays with the artifact.
func (a *App) ReassignArtifact(ctx context.Context, artifactID string, docID *string) (domain.AudioArtifact, error) {
	started := time.Now()
	stage := domain.StageAttach
	if docID == nil || *docID == "" {
		stage = domain.StageDetach
	}
	err := a.artifacts.SetOwner(ctx, artifactID, docID)
	a.observe(stage, started, err)
	if err != nil {
		return domain.AudioArtifact{}, err
	}
	return a.artifacts.Get(ctx, artifactID)
}

// UpdateDocumentation edits title, date and todos only.
func (a *App) UpdateDocumentation(ctx context.Context, docID string, patch domain.DocumentationPatch) (domain.Documentation, error) {
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return domain.Documentation{}, domain.NewValidationError("title", "must not be empty")
		}
		patch.Title = &title
	}
	if patch.Date != nil {
		d := patch.Date.UTC()
		patch.Date = &d
	}
	doc, err := a.store.UpdateDocumentationFields(ctx, docID, patch)
	if err != nil {
		return domain.Documentation{}, fmt.Errorf("update documentation %s: %w", docID, err)
	}
	return doc, nil
}

// GetDocumentation returns the documentation with its artifacts and attachments.
func (a *App) GetDocumentation(ctx context.Context, docID string) (DocumentationView, error) {
	doc, err := a.requireDocumentation(ctx, docID)
	if err != nil {
		return DocumentationView{}, err
	}
	owned, err := a.artifacts.ListByOwner(ctx, docID)
	if err != nil {
		return DocumentationView{}, err
	}
	attachments, err := a.store.ListAttachments(ctx, docID)
	if err != nil {
		return DocumentationView{}, fmt.Errorf("list attachments: %w", err)
	}
	if attachments == nil {
		attachments = []domain.Attachment{}
	}
	return DocumentationView{Documentation: doc, Artifacts: owned, Attachments: attachments}, nil
}

// ListDocumentations returns the documentations of a case.
func (a *App) ListDocumentations(ctx context.Context, caseID string) ([]domain.Documentation, error) {
	if _, ok, err := a.store.GetCase(ctx, caseID); err != nil {
		return nil, fmt.Errorf("load case: %w", err)
	} else if !ok {
		return nil, fmt.Errorf("%w: case %s", domain.ErrNotFound, caseID)
	}
	docs, err := a.store.ListDocumentationsByCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("list documentations: %w", err)
	}
	return docs, nil
}

func (a *App) requireDocumentation(ctx context.Context, docID string) (domain.Documentation, error) {
	doc, ok, err := a.store.GetDocumentation(ctx, docID)
	if err != nil {
		return domain.Documentation{}, fmt.Errorf("load documentation %s: %w", docID, err)
	}
	if !ok {
		return domain.Documentation{}, fmt.Errorf("%w: documentation %s", domain.ErrNotFound, docID)
	}
	return doc, nil
}
