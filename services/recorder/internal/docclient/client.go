package docclient

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"casedoc/pkg/domain"
)

// Client calls the documentation service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError represents a documentation service error response.
type APIError struct {
	Status    int
	Message   string
	Code      string
	RequestID string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewClient constructs a documentation service client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// UploadArtifact stores a finished recording as a standalone artifact.
func (c *Client) UploadArtifact(ctx context.Context, raw domain.RawArtifact) (domain.AudioArtifact, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("durationMs", strconv.FormatInt(raw.DurationMs, 10)); err != nil {
		return domain.AudioArtifact{}, err
	}
	if raw.ID != "" {
		if err := writer.WriteField("provisionalId", raw.ID); err != nil {
			return domain.AudioArtifact{}, err
		}
	}
	part, err := writer.CreateFormFile("file", raw.FileName)
	if err != nil {
		return domain.AudioArtifact{}, err
	}
	if _, err := part.Write(raw.Data); err != nil {
		return domain.AudioArtifact{}, err
	}
	if err := writer.Close(); err != nil {
		return domain.AudioArtifact{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/artifacts", body)
	if err != nil {
		return domain.AudioArtifact{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var art domain.AudioArtifact
	if err := c.do(req, &art); err != nil {
		return domain.AudioArtifact{}, err
	}
	return art, nil
}

// ListStandalone returns artifacts that belong to no documentation.
func (c *Client) ListStandalone(ctx context.Context) ([]domain.AudioArtifact, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/artifacts?owner=none", nil)
	if err != nil {
		return nil, err
	}
	var resp listArtifactsResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error     string `json:"error"`
			Code      string `json:"code"`
			RequestID string `json:"requestId"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp.Error
		if msg == "" {
			msg = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Message: msg, Code: strings.TrimSpace(errResp.Code), RequestID: errResp.RequestID}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type listArtifactsResponse struct {
	Items []domain.AudioArtifact `json:"items"`
	Count int                    `json:"count"`
}
