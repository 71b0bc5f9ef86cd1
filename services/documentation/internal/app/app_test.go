package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"casedoc/pkg/ai"
	"casedoc/pkg/domain"
	"casedoc/pkg/metrics"
	"casedoc/pkg/storage"
	"casedoc/pkg/store"
)

const testCaseID = "case-1"

// rejectingObjects fails uploads whose payload equals reject.
type rejectingObjects struct {
	*storage.MemoryStore
	reject []byte
}

func (r *rejectingObjects) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if r.reject != nil && bytes.Equal(data, r.reject) {
		return errors.New("bucket unavailable")
	}
	return r.MemoryStore.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
}

// detachFailingStore refuses to clear the owner of one artifact.
type detachFailingStore struct {
	*store.MemoryStore
	artifactID string
}

func (d *detachFailingStore) SetArtifactOwner(ctx context.Context, id string, docID *string) error {
	if docID == nil && id == d.artifactID {
		return errors.New("connection reset")
	}
	return d.MemoryStore.SetArtifactOwner(ctx, id, docID)
}

type scriptedTranscriber struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
}

func (s *scriptedTranscriber) Transcribe(ctx context.Context, audio []byte, fileName, languageHint string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.text, nil
}

type scriptedSummarizer struct {
	summary string
	err     error
	topics  []string
}

func (s *scriptedSummarizer) Summarize(ctx context.Context, topics []string) (string, error) {
	s.topics = append([]string(nil), topics...)
	if s.err != nil {
		return "", s.err
	}
	return s.summary, nil
}

type fixture struct {
	app         *App
	records     store.Store
	memory      *store.MemoryStore
	objects     *rejectingObjects
	transcriber *scriptedTranscriber
	summarizer  *scriptedSummarizer
}

func newFixture(t *testing.T, wrap func(*store.MemoryStore) store.Store) *fixture {
	t.Helper()
	mem := store.NewMemoryStore()
	var records store.Store = mem
	if wrap != nil {
		records = wrap(mem)
	}
	ctx := context.Background()
	now := time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)
	if err := mem.SaveClient(ctx, domain.Client{ID: "client-1", Name: "Familie Weber", CreatedAt: now}); err != nil {
		t.Fatalf("save client: %v", err)
	}
	if err := mem.SaveCase(ctx, domain.Case{ID: testCaseID, Reference: "CASE-2025-001", ClientID: "client-1", Title: "Hilfeplan", Status: domain.CaseOpen, CreatedAt: now}); err != nil {
		t.Fatalf("save case: %v", err)
	}
	m, err := metrics.NewPipelineMetrics(nil)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	f := &fixture{
		records:     records,
		memory:      mem,
		objects:     &rejectingObjects{MemoryStore: storage.NewMemoryStore("")},
		transcriber: &scriptedTranscriber{text: "Schulbesuch besprochen. Termin beim Jugendamt vereinbart."},
		summarizer:  &scriptedSummarizer{summary: "Zusammenfassung"},
	}
	seq := 0
	f.app, err = New(Config{
		Store:          records,
		Objects:        f.objects,
		Metrics:        m,
		Transcriber:    f.transcriber,
		Summarizer:     f.summarizer,
		TopicExtractor: ai.StaticTopicExtractor{},
		NewID: func() string {
			seq++
			return fmt.Sprintf("doc-%d", seq)
		},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return f
}

func recording(id, payload string) *domain.RawArtifact {
	return &domain.RawArtifact{ID: id, FileName: id + ".wav", Data: []byte(payload), DurationMs: 10_000}
}

func (f *fixture) createDoc(t *testing.T, items ...ArtifactInput) (domain.Documentation, AttachReport) {
	t.Helper()
	doc, report, err := f.app.CreateDocumentation(context.Background(), CreateInput{
		CaseID:    testCaseID,
		Title:     "Hausbesuch",
		Todos:     "Schule anrufen\nTermin bestätigen",
		Artifacts: items,
	})
	if err != nil {
		t.Fatalf("create documentation: %v", err)
	}
	return doc, report
}

func (f *fixture) status(t *testing.T, docID string) domain.DocumentationStatus {
	t.Helper()
	doc, ok, err := f.records.GetDocumentation(context.Background(), docID)
	if err != nil || !ok {
		t.Fatalf("get documentation %s: ok=%v err=%v", docID, ok, err)
	}
	return doc.Status
}

func TestCreateDocumentationIsolatesPartialFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.objects.reject = []byte("second")

	doc, report := f.createDoc(t,
		ArtifactInput{Raw: recording("tmp-1", "first")},
		ArtifactInput{Raw: recording("tmp-2", "second")},
		ArtifactInput{Raw: recording("tmp-3", "third")},
	)

	if doc.Status != domain.StatusOpen {
		t.Fatalf("expected OPEN documentation, got %s", doc.Status)
	}
	if len(report.Attached) != 2 {
		t.Fatalf("expected 2 attached artifacts, got %d", len(report.Attached))
	}
	if len(report.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %+v", report.Failures)
	}
	failure := report.Failures[0]
	if failure.Index != 1 || failure.ProvisionalID != "tmp-2" || failure.Stage != domain.StageUpload {
		t.Fatalf("unexpected failure entry: %+v", failure)
	}
	if !errors.Is(failure.Err, domain.ErrStorageFailure) {
		t.Fatalf("expected storage failure, got %v", failure.Err)
	}
	owned, err := f.app.Artifacts().ListByOwner(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("list owned: %v", err)
	}
	if len(owned) != 2 {
		t.Fatalf("expected 2 owned artifacts, got %d", len(owned))
	}
	all, err := f.records.ListArtifacts(context.Background(), domain.ArtifactFilter{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 || f.objects.Len() != 2 {
		t.Fatalf("failed artifact left traces: rows=%d objects=%d", len(all), f.objects.Len())
	}
}

func TestCreateDocumentationAttachesStandaloneArtifactWithTranscript(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	standalone, err := f.app.SaveArtifact(ctx, *recording("tmp-1", "audio"))
	if err != nil {
		t.Fatalf("save standalone: %v", err)
	}
	if !standalone.Standalone() {
		t.Fatalf("expected standalone artifact")
	}

	transcript := "Vorab transkribiert"
	summary := "Kurzfassung"
	doc, report, err := f.app.CreateDocumentation(ctx, CreateInput{
		CaseID:    testCaseID,
		Title:     "Gespräch",
		Summary:   &summary,
		Topics:    []string{"Schule"},
		Artifacts: []ArtifactInput{{ArtifactID: standalone.ID, Transcript: &transcript}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if report.Partial() {
		t.Fatalf("unexpected failures: %+v", report.Failures)
	}
	got, err := f.app.Artifacts().Get(ctx, standalone.ID)
	if err != nil {
		t.Fatalf("get artifact: %v", err)
	}
	if !got.OwnedBy(doc.ID) {
		t.Fatalf("artifact not attached to %s", doc.ID)
	}
	if got.TranscriptText == nil || *got.TranscriptText != transcript {
		t.Fatalf("transcript not stored: %v", got.TranscriptText)
	}
	if doc.SummaryText == nil || *doc.SummaryText != summary || len(doc.Topics) != 1 {
		t.Fatalf("summary not stored: %+v", doc)
	}
	if doc.Status != domain.StatusOpen {
		t.Fatalf("pre-computed transcript must not advance status, got %s", doc.Status)
	}
}

func TestCreateDocumentationRejectsUnknownCaseAndBadInput(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if _, _, err := f.app.CreateDocumentation(ctx, CreateInput{CaseID: "missing", Title: "x"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	bad := CreateInput{CaseID: testCaseID, Title: "x", Artifacts: []ArtifactInput{{}}}
	if _, _, err := f.app.CreateDocumentation(ctx, bad); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	docs, err := f.app.ListDocumentations(ctx, testCaseID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("rejected input created %d documentations", len(docs))
	}
}

func TestCreateDocumentationReportsUnknownArtifact(t *testing.T) {
	f := newFixture(t, nil)
	doc, report := f.createDoc(t, ArtifactInput{ArtifactID: "nope"}, ArtifactInput{Raw: recording("tmp-1", "ok")})
	if len(report.Attached) != 1 || len(report.Failures) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Failures[0].Stage != domain.StageAttach || report.Failures[0].ArtifactID != "nope" {
		t.Fatalf("unexpected failure: %+v", report.Failures[0])
	}
	if f.status(t, doc.ID) != domain.StatusOpen {
		t.Fatalf("documentation should exist and stay OPEN")
	}
}

func TestCreateDocumentationRefusesArtifactOwnedElsewhere(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	first, report := f.createDoc(t, ArtifactInput{Raw: recording("a", "one")})
	owned := report.Attached[0]

	second, report := f.createDoc(t, ArtifactInput{ArtifactID: owned.ID})
	if len(report.Attached) != 0 || len(report.Failures) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	failure := report.Failures[0]
	if failure.Stage != domain.StageAttach || failure.ArtifactID != owned.ID || !errors.Is(failure.Err, domain.ErrConflict) {
		t.Fatalf("expected attach conflict, got %+v", failure)
	}
	got, err := f.app.Artifacts().Get(ctx, owned.ID)
	if err != nil {
		t.Fatalf("get artifact: %v", err)
	}
	if !got.OwnedBy(first.ID) || got.OwnedBy(second.ID) {
		t.Fatalf("artifact moved to %v", got.DocumentationID)
	}
}

func TestCreateDocumentationRejectsTopicsWithoutSummary(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, _, err := f.app.CreateDocumentation(ctx, CreateInput{CaseID: testCaseID, Title: "x", Topics: []string{"Schule"}})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if docs, _ := f.app.ListDocumentations(ctx, testCaseID); len(docs) != 0 {
		t.Fatalf("rejected input created %d documentations", len(docs))
	}
}

func TestTranscriptionAdvancesOnlyFromOpen(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	doc, report := f.createDoc(t, ArtifactInput{Raw: recording("a", "one")}, ArtifactInput{Raw: recording("b", "two")})
	first, second := report.Attached[0], report.Attached[1]

	got, err := f.app.RequestTranscription(ctx, first.ID)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if got.TranscriptText == nil || *got.TranscriptText == "" {
		t.Fatalf("expected transcript")
	}
	if s := f.status(t, doc.ID); s != domain.StatusInReview {
		t.Fatalf("expected IN_REVIEW after first transcription, got %s", s)
	}

	if _, err := f.app.MarkVerified(ctx, doc.ID); err != nil {
		t.Fatalf("mark verified: %v", err)
	}
	if _, err := f.app.RequestTranscription(ctx, second.ID); err != nil {
		t.Fatalf("transcribe second: %v", err)
	}
	if s := f.status(t, doc.ID); s != domain.StatusVerified {
		t.Fatalf("transcription regressed status to %s", s)
	}
}

func TestTranscriptionFailureLeavesTranscriptUntouched(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	doc, report := f.createDoc(t, ArtifactInput{Raw: recording("a", "one")})
	id := report.Attached[0].ID
	f.transcriber.err = fmt.Errorf("transcribe: %w", domain.ErrServiceFailure)

	_, err := f.app.RequestTranscription(ctx, id)
	var stageErr *domain.StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != domain.StageTranscribe || stageErr.ArtifactID != id {
		t.Fatalf("expected transcribe stage error, got %v", err)
	}
	if !errors.Is(err, domain.ErrServiceFailure) {
		t.Fatalf("expected service failure, got %v", err)
	}
	got, _ := f.app.Artifacts().Get(ctx, id)
	if got.TranscriptText != nil {
		t.Fatalf("transcript written on failure: %q", *got.TranscriptText)
	}
	if s := f.status(t, doc.ID); s != domain.StatusOpen {
		t.Fatalf("status changed on failure: %s", s)
	}
}

func TestEmptyTranscriptIsAFailure(t *testing.T) {
	f := newFixture(t, nil)
	_, report := f.createDoc(t, ArtifactInput{Raw: recording("a", "one")})
	f.transcriber.text = "   "
	if _, err := f.app.RequestTranscription(context.Background(), report.Attached[0].ID); !errors.Is(err, domain.ErrServiceFailure) {
		t.Fatalf("expected service failure for empty transcript, got %v", err)
	}
}

func TestFinalizeSessionFailureKeepsSessionOpen(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	doc, report := f.createDoc(t, ArtifactInput{Raw: recording("a", "one")})
	if _, err := f.app.RequestTranscription(ctx, report.Attached[0].ID); err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	session, err := f.app.ProposeTopics(ctx, doc.ID)
	if err != nil {
		t.Fatalf("propose topics: %v", err)
	}
	if len(session.Topics()) != 2 {
		t.Fatalf("expected two proposed topics, got %v", session.Topics())
	}

	f.summarizer.err = fmt.Errorf("summarize: %w", domain.ErrServiceFailure)
	if _, err := f.app.FinalizeSession(ctx, session.ID); !errors.Is(err, domain.ErrServiceFailure) {
		t.Fatalf("expected service failure, got %v", err)
	}
	stored, _, _ := f.records.GetDocumentation(ctx, doc.ID)
	if stored.SummaryText != nil || len(stored.Topics) != 0 {
		t.Fatalf("partial summary persisted: %+v", stored)
	}
	if _, err := f.app.Sessions().Get(session.ID); err != nil {
		t.Fatalf("session closed after failure: %v", err)
	}

	f.summarizer.err = nil
	if _, err := f.app.FinalizeSession(ctx, session.ID); err != nil {
		t.Fatalf("retry finalize: %v", err)
	}
	if _, err := f.app.Sessions().Get(session.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("session should be closed after success, got %v", err)
	}
}

func TestProposeTopicsRequiresTranscripts(t *testing.T) {
	f := newFixture(t, nil)
	doc, _ := f.createDoc(t, ArtifactInput{Raw: recording("a", "one")})
	if _, err := f.app.ProposeTopics(context.Background(), doc.ID); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDeleteDetachesOwnedArtifacts(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	doc, report := f.createDoc(t, ArtifactInput{Raw: recording("a", "one")}, ArtifactInput{Raw: recording("b", "two")})
	if _, err := f.app.AddAttachment(ctx, doc.ID, "bericht.pdf", "application/pdf", []byte("%PDF")); err != nil {
		t.Fatalf("add attachment: %v", err)
	}

	if err := f.app.DeleteDocumentation(ctx, doc.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := f.records.GetDocumentation(ctx, doc.ID); ok {
		t.Fatalf("documentation still present")
	}
	for _, art := range report.Attached {
		got, err := f.app.Artifacts().Get(ctx, art.ID)
		if err != nil {
			t.Fatalf("artifact %s destroyed: %v", art.ID, err)
		}
		if !got.Standalone() {
			t.Fatalf("artifact %s still owned by %v", art.ID, *got.DocumentationID)
		}
	}
	if f.objects.Len() != 2 {
		t.Fatalf("expected only the two audio objects to remain, got %d", f.objects.Len())
	}
}

func TestDeleteKeepsDocumentationWhenDetachFails(t *testing.T) {
	var failing *detachFailingStore
	f := newFixture(t, func(m *store.MemoryStore) store.Store {
		failing = &detachFailingStore{MemoryStore: m}
		return failing
	})
	ctx := context.Background()
	doc, report := f.createDoc(t, ArtifactInput{Raw: recording("a", "one")})
	failing.artifactID = report.Attached[0].ID

	err := f.app.DeleteDocumentation(ctx, doc.ID)
	var stageErr *domain.StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != domain.StageDetach || stageErr.ArtifactID != failing.artifactID {
		t.Fatalf("expected detach error naming the artifact, got %v", err)
	}
	if _, ok, _ := f.records.GetDocumentation(ctx, doc.ID); !ok {
		t.Fatalf("documentation deleted despite detach failure")
	}
}

func TestReassignArtifactKeepsTranscript(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	first, report := f.createDoc(t, ArtifactInput{Raw: recording("a", "one")})
	second, _ := f.createDoc(t)
	id := report.Attached[0].ID
	if _, err := f.app.RequestTranscription(ctx, id); err != nil {
		t.Fatalf("transcribe: %v", err)
	}

	moved, err := f.app.ReassignArtifact(ctx, id, &second.ID)
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if !moved.OwnedBy(second.ID) || moved.TranscriptText == nil {
		t.Fatalf("unexpected artifact after reassign: %+v", moved)
	}
	owned, _ := f.app.Artifacts().ListByOwner(ctx, first.ID)
	if len(owned) != 0 {
		t.Fatalf("artifact still listed under old owner")
	}
	detached, err := f.app.ReassignArtifact(ctx, id, nil)
	if err != nil || !detached.Standalone() {
		t.Fatalf("detach: %+v %v", detached, err)
	}
	if _, err := f.app.ReassignArtifact(ctx, id, domain.StringPtr("missing")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for unknown documentation, got %v", err)
	}
}

func TestSetStatusManualActions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	doc, _ := f.createDoc(t)

	if _, err := f.app.SetStatus(ctx, doc.ID, "done"); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	verified, err := f.app.MarkVerified(ctx, doc.ID)
	if err != nil || verified.Status != domain.StatusVerified {
		t.Fatalf("OPEN -> VERIFIED directly: %+v %v", verified, err)
	}
	back, err := f.app.SendBackToReview(ctx, doc.ID)
	if err != nil || back.Status != domain.StatusInReview {
		t.Fatalf("VERIFIED -> IN_REVIEW: %+v %v", back, err)
	}
	if _, err := f.app.SetStatus(ctx, "missing", "OPEN"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSetStatusNeverReturnsToOpen(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	doc, report := f.createDoc(t, ArtifactInput{Raw: recording("a", "one")})

	if _, err := f.app.MarkVerified(ctx, doc.ID); err != nil {
		t.Fatalf("mark verified: %v", err)
	}
	if _, err := f.app.SetStatus(ctx, doc.ID, "OPEN"); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("VERIFIED -> OPEN must be rejected, got %v", err)
	}
	if _, err := f.app.SendBackToReview(ctx, doc.ID); err != nil {
		t.Fatalf("send back: %v", err)
	}
	if _, err := f.app.SetStatus(ctx, doc.ID, "open"); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("IN_REVIEW -> OPEN must be rejected, got %v", err)
	}
	if s := f.status(t, doc.ID); s != domain.StatusInReview {
		t.Fatalf("status changed by rejected action: %s", s)
	}

	if _, err := f.app.MarkVerified(ctx, doc.ID); err != nil {
		t.Fatalf("mark verified: %v", err)
	}
	if _, err := f.app.RequestTranscription(ctx, report.Attached[0].ID); err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if s := f.status(t, doc.ID); s != domain.StatusVerified {
		t.Fatalf("transcription must not move a VERIFIED documentation, got %s", s)
	}
}

func TestUpdateDocumentationEditsOwnFieldsOnly(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	doc, report := f.createDoc(t, ArtifactInput{Raw: recording("a", "one")})
	if _, err := f.app.RequestTranscription(ctx, report.Attached[0].ID); err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	title := "Neuer Titel"
	updated, err := f.app.UpdateDocumentation(ctx, doc.ID, domain.DocumentationPatch{Title: &title})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != title || updated.Status != domain.StatusInReview || updated.Todos != doc.Todos {
		t.Fatalf("unexpected documentation after update: %+v", updated)
	}
	blank := "  "
	if _, err := f.app.UpdateDocumentation(ctx, doc.ID, domain.DocumentationPatch{Title: &blank}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEndToEndPipeline(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	standalone, err := f.app.SaveArtifact(ctx, *recording("tmp-1", "ten seconds of audio"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !standalone.Standalone() || standalone.DurationMs != 10_000 {
		t.Fatalf("unexpected standalone artifact: %+v", standalone)
	}

	doc, report := f.createDoc(t, ArtifactInput{ArtifactID: standalone.ID})
	if report.Partial() || doc.Status != domain.StatusOpen {
		t.Fatalf("create: %+v %+v", doc, report)
	}

	transcribed, err := f.app.RequestTranscription(ctx, standalone.ID)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if transcribed.TranscriptText == nil || f.status(t, doc.ID) != domain.StatusInReview {
		t.Fatalf("transcription did not complete")
	}

	session, err := f.app.ProposeTopics(ctx, doc.ID)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if err := session.Update(0, "Schulbesuch"); err != nil {
		t.Fatalf("edit topic: %v", err)
	}
	finalized, err := f.app.FinalizeSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if finalized.SummaryText == nil || *finalized.SummaryText != "Zusammenfassung" {
		t.Fatalf("summary not persisted: %+v", finalized)
	}
	if len(finalized.Topics) == 0 || finalized.Topics[0] != "Schulbesuch" {
		t.Fatalf("curated topics not persisted: %v", finalized.Topics)
	}
	if finalized.Status != domain.StatusInReview {
		t.Fatalf("finalize changed status to %s", finalized.Status)
	}

	verified, err := f.app.MarkVerified(ctx, doc.ID)
	if err != nil || verified.Status != domain.StatusVerified {
		t.Fatalf("verify: %+v %v", verified, err)
	}

	if err := f.app.DeleteDocumentation(ctx, doc.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	after, err := f.app.Artifacts().Get(ctx, standalone.ID)
	if err != nil || !after.Standalone() {
		t.Fatalf("artifact should be standalone after delete: %+v %v", after, err)
	}
	if _, err := f.app.GetDocumentation(ctx, doc.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("documentation still readable: %v", err)
	}
}
