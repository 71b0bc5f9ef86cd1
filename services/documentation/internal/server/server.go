package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"casedoc/internal/util"
	"casedoc/pkg/ai"
	"casedoc/pkg/curation"
	"casedoc/pkg/domain"
	"casedoc/pkg/metrics"
	"casedoc/services/documentation/internal/app"
)

const (
	defaultMaxUploadBytes = 100 * 1024 * 1024
	maxJSONBody           = 1 << 20
)

// Limiter guards the endpoints that call external AI services.
type Limiter interface {
	Allow(key string) bool
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Metrics        *metrics.PipelineMetrics
	Limiter        Limiter
	TrustedProxies *util.TrustedProxies
	MaxUploadBytes int64
}

// Server exposes HTTP endpoints for the documentation service.
type Server struct {
	app            *app.App
	metrics        *metrics.PipelineMetrics
	limiter        Limiter
	trusted        *util.TrustedProxies
	mux            *http.ServeMux
	maxUploadBytes int64
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app is required")
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	s := &Server{
		app:            cfg.App,
		metrics:        cfg.Metrics,
		limiter:        cfg.Limiter,
		trusted:        cfg.TrustedProxies,
		mux:            http.NewServeMux(),
		maxUploadBytes: maxUploadBytes,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	observe := func(r *http.Request, status int) {
		s.metrics.RequestServed(routeLabel(r.URL.Path), status)
	}
	return util.WithRequestID(util.WithRequestLog("documentation", observe, util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("/metrics", s.metrics.Handler())
	}

	s.mux.HandleFunc("/artifacts", s.handleArtifacts)
	s.mux.HandleFunc("/artifacts/", s.handleArtifactByID)
	s.mux.HandleFunc("/jobs/", s.handleJob)

	s.mux.HandleFunc("/cases/", s.handleCaseDocumentations)
	s.mux.HandleFunc("/documentations", s.handleDocumentations)
	s.mux.HandleFunc("/documentations/", s.handleDocumentationByID)

	s.mux.HandleFunc("/curation/", s.handleCuration)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// /artifacts
func (s *Server) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleUploadArtifact(w, r)
	case http.MethodGet:
		s.handleListArtifacts(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleUploadArtifact(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return
	}
	defer file.Close()
	duration, err := parseDuration(r.FormValue("durationMs"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid durationMs")
		return
	}
	raw, err := readRecording(file, header, duration)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	raw.ID = strings.TrimSpace(r.FormValue("provisionalId"))
	saved, err := s.app.SaveArtifact(r.Context(), raw)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	owner := strings.TrimSpace(r.URL.Query().Get("owner"))
	var (
		items []domain.AudioArtifact
		err   error
	)
	if owner == "" || owner == "none" {
		items, err = s.app.Artifacts().ListUnowned(r.Context())
	} else {
		items, err = s.app.Artifacts().ListByOwner(r.Context(), owner)
	}
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

// /artifacts/{id}, /artifacts/{id}/owner, /artifacts/{id}/transcript, /artifacts/{id}/transcription
func (s *Server) handleArtifactByID(w http.ResponseWriter, r *http.Request) {
	id, action, ok := splitResource(r.URL.Path, "/artifacts/")
	if !ok {
		notFound(w, "not found")
		return
	}
	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			art, err := s.app.Artifacts().Get(r.Context(), id)
			if err != nil {
				writeAppError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, art)
		case http.MethodDelete:
			if err := s.app.Artifacts().Delete(r.Context(), id); err != nil {
				writeAppError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
		default:
			methodNotAllowed(w)
		}
	case "owner":
		if r.Method != http.MethodPut {
			methodNotAllowed(w)
			return
		}
		var req ownerRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		art, err := s.app.ReassignArtifact(r.Context(), id, req.DocumentationID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, art)
	case "transcript":
		if r.Method != http.MethodPut {
			methodNotAllowed(w)
			return
		}
		var req textRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		art, err := s.app.EditTranscript(r.Context(), id, req.Text)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, art)
	case "transcription":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		if !s.allowRate(w, r, "too many transcription requests") {
			return
		}
		if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
			job, err := s.app.EnqueueTranscription(r.Context(), id)
			if err != nil {
				writeAppError(w, err)
				return
			}
			writeJSON(w, http.StatusAccepted, job)
			return
		}
		art, err := s.app.RequestTranscription(r.Context(), id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, art)
	default:
		notFound(w, "not found")
	}
}

// /jobs/{id}
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	id, action, ok := splitResource(r.URL.Path, "/jobs/")
	if !ok || action != "" {
		notFound(w, "not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	job, err := s.app.GetJob(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// /cases/{caseId}/documentations
func (s *Server) handleCaseDocumentations(w http.ResponseWriter, r *http.Request) {
	caseID, action, ok := splitResource(r.URL.Path, "/cases/")
	if !ok || action != "documentations" {
		notFound(w, "not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	docs, err := s.app.ListDocumentations(r.Context(), caseID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": docs,
		"count": len(docs),
	})
}

// /documentations
func (s *Server) handleDocumentations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var (
		input app.CreateInput
		err   error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		input, err = s.readMultipartCreate(w, r)
	} else {
		var req createDocumentationRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		input = req.toInput()
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	doc, report, err := s.app.CreateDocumentation(r.Context(), input)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"documentation": doc,
		"report":        report,
	})
}

func (s *Server) readMultipartCreate(w http.ResponseWriter, r *http.Request) (app.CreateInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return app.CreateInput{}, errors.New("invalid form data")
	}
	var req createDocumentationRequest
	if meta := r.FormValue("meta"); meta != "" {
		if err := json.Unmarshal([]byte(meta), &req); err != nil {
			return app.CreateInput{}, errors.New("invalid meta JSON")
		}
	}
	input := req.toInput()
	for i, header := range r.MultipartForm.File["files"] {
		var duration int64
		if i < len(req.DurationsMs) {
			duration = req.DurationsMs[i]
		}
		file, err := header.Open()
		if err != nil {
			return app.CreateInput{}, fmt.Errorf("read file %s", header.Filename)
		}
		raw, err := readRecording(file, header, duration)
		file.Close()
		if err != nil {
			return app.CreateInput{}, err
		}
		raw.ID = header.Filename
		item := app.ArtifactInput{Raw: &raw}
		if text, ok := req.Transcripts[header.Filename]; ok {
			item.Transcript = &text
		}
		input.Artifacts = append(input.Artifacts, item)
	}
	return input, nil
}

// /documentations/{id}, /documentations/{id}/status, /documentations/{id}/topics,
// /documentations/{id}/attachments[/{attachmentId}]
func (s *Server) handleDocumentationByID(w http.ResponseWriter, r *http.Request) {
	id, action, ok := splitResource(r.URL.Path, "/documentations/")
	if !ok {
		notFound(w, "not found")
		return
	}
	switch {
	case action == "":
		s.handleDocumentation(w, r, id)
	case action == "status":
		if r.Method != http.MethodPut {
			methodNotAllowed(w)
			return
		}
		var req statusRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		doc, err := s.app.SetStatus(r.Context(), id, req.Status)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	case action == "topics":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		if !s.allowRate(w, r, "too many topic requests") {
			return
		}
		session, err := s.app.ProposeTopics(r.Context(), id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, viewSession(session))
	case action == "attachments":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		s.handleUploadAttachment(w, r, id)
	case strings.HasPrefix(action, "attachments/"):
		if r.Method != http.MethodDelete {
			methodNotAllowed(w)
			return
		}
		attachmentID := strings.TrimPrefix(action, "attachments/")
		if err := s.app.DeleteAttachment(r.Context(), id, attachmentID); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		notFound(w, "not found")
	}
}

func (s *Server) handleDocumentation(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		view, err := s.app.GetDocumentation(r.Context(), id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case http.MethodPatch:
		var patch domain.DocumentationPatch
		if !decodeJSON(w, r, &patch) {
			return
		}
		doc, err := s.app.UpdateDocumentation(r.Context(), id, patch)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	case http.MethodDelete:
		if err := s.app.DeleteDocumentation(r.Context(), id); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleUploadAttachment(w http.ResponseWriter, r *http.Request, docID string) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	att, err := s.app.AddAttachment(r.Context(), docID, header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, att)
}

// /curation/{sid}, /curation/{sid}/topics[/{index}], /curation/{sid}/finalize
func (s *Server) handleCuration(w http.ResponseWriter, r *http.Request) {
	sid, action, ok := splitResource(r.URL.Path, "/curation/")
	if !ok {
		notFound(w, "not found")
		return
	}
	if action == "finalize" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		if !s.allowRate(w, r, "too many summary requests") {
			return
		}
		doc, err := s.app.FinalizeSession(r.Context(), sid)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
		return
	}

	session, err := s.app.Sessions().Get(sid)
	if err != nil {
		writeAppError(w, err)
		return
	}
	switch {
	case action == "":
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, viewSession(session))
		case http.MethodDelete:
			s.app.DiscardSession(sid)
			writeJSON(w, http.StatusOK, map[string]string{"status": "discarded"})
		default:
			methodNotAllowed(w)
		}
	case action == "topics":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		var req textRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := session.Add(req.Text); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, viewSession(session))
	case strings.HasPrefix(action, "topics/"):
		index, err := strconv.Atoi(strings.TrimPrefix(action, "topics/"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid topic index")
			return
		}
		switch r.Method {
		case http.MethodPut:
			var req textRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			err = session.Update(index, req.Text)
		case http.MethodDelete:
			err = session.Remove(index)
		default:
			methodNotAllowed(w)
			return
		}
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, viewSession(session))
	default:
		notFound(w, "not found")
	}
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, msg string) bool {
	if s.limiter == nil {
		return true
	}
	if s.limiter.Allow("ai|" + util.ClientIP(r, s.trusted)) {
		return true
	}
	retryAfter := 60
	if ra, ok := s.limiter.(interface{ RetryAfter() time.Duration }); ok {
		retryAfter = int(math.Ceil(ra.RetryAfter().Seconds()))
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

type ownerRequest struct {
	DocumentationID *string `json:"documentationId"`
}

type textRequest struct {
	Text string `json:"text"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type createDocumentationRequest struct {
	CaseID      string            `json:"caseId"`
	Title       string            `json:"title"`
	Date        *time.Time        `json:"date"`
	Todos       string            `json:"todos"`
	Summary     *string           `json:"summary"`
	Topics      []string          `json:"topics"`
	ArtifactIDs []string          `json:"artifactIds"`
	Transcripts map[string]string `json:"transcripts"`
	DurationsMs []int64           `json:"durationsMs"`
}

func (req createDocumentationRequest) toInput() app.CreateInput {
	in := app.CreateInput{
		CaseID:  req.CaseID,
		Title:   req.Title,
		Todos:   req.Todos,
		Summary: req.Summary,
		Topics:  req.Topics,
	}
	if req.Date != nil {
		in.Date = *req.Date
	}
	for _, id := range req.ArtifactIDs {
		item := app.ArtifactInput{ArtifactID: id}
		if text, ok := req.Transcripts[id]; ok {
			item.Transcript = &text
		}
		in.Artifacts = append(in.Artifacts, item)
	}
	return in
}

type sessionView struct {
	ID              string    `json:"id"`
	DocumentationID string    `json:"documentationId"`
	Topics          []string  `json:"topics"`
	CreatedAt       time.Time `json:"createdAt"`
}

func viewSession(s *curation.Session) sessionView {
	return sessionView{ID: s.ID, DocumentationID: s.DocumentationID, Topics: s.Topics(), CreatedAt: s.CreatedAt}
}

func readRecording(file multipart.File, header *multipart.FileHeader, durationMs int64) (domain.RawArtifact, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return domain.RawArtifact{}, fmt.Errorf("read file %s", header.Filename)
	}
	return domain.RawArtifact{
		FileName:    header.Filename,
		ContentType: domain.ArtifactContentType,
		Data:        data,
		DurationMs:  durationMs,
	}, nil
}

func parseDuration(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

// splitResource splits "/prefix/{id}/{rest}" into id and rest.
func splitResource(path, prefix string) (string, string, bool) {
	rest := strings.TrimPrefix(path, prefix)
	parts := strings.SplitN(rest, "/", 2)
	id := strings.TrimSpace(parts[0])
	if id == "" {
		return "", "", false
	}
	action := ""
	if len(parts) == 2 {
		action = strings.Trim(parts[1], "/")
	}
	return id, action, true
}

func routeLabel(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	first, _, _ := strings.Cut(trimmed, "/")
	switch first {
	case "healthz", "metrics", "artifacts", "jobs", "cases", "documentations", "curation":
		return "/" + first
	default:
		return "other"
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Stage     string `json:"stage,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCodeForStatus(status),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

// writeAppError maps domain errors to HTTP status and a stable code.
func writeAppError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	resp := errorResponse{
		Error:     err.Error(),
		Code:      code,
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	}
	var stageErr *domain.StageError
	if errors.As(err, &stageErr) {
		resp.Stage = stageErr.Stage
	}
	if status == http.StatusInternalServerError {
		resp.Error = "internal error"
	}
	writeJSON(w, status, resp)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, domain.ErrIndexOutOfRange):
		return http.StatusBadRequest, "TOPIC_INDEX_OUT_OF_RANGE"
	case errors.Is(err, domain.ErrInvalidStateTransition):
		return http.StatusConflict, "INVALID_STATE_TRANSITION"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, ai.ErrRateLimited):
		return http.StatusBadGateway, "AI_RATE_LIMITED"
	case errors.Is(err, ai.ErrQuotaExhausted):
		return http.StatusBadGateway, "AI_QUOTA_EXHAUSTED"
	case errors.Is(err, domain.ErrServiceFailure):
		return http.StatusBadGateway, "SERVICE_FAILURE"
	case errors.Is(err, domain.ErrStorageFailure):
		return http.StatusServiceUnavailable, "STORAGE_FAILURE"
	case errors.Is(err, app.ErrAsyncUnavailable):
		return http.StatusNotImplemented, "ASYNC_UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "SYSTEM_INTERNAL_ERROR"
	}
}

func errorCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "INVALID_REQUEST"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	case http.StatusServiceUnavailable:
		return "SYSTEM_UNAVAILABLE"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}
