package docclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"casedoc/pkg/domain"
)

func newMockedClient(t *testing.T) *Client {
	t.Helper()
	c := NewClient("http://docs.local/", time.Second)
	httpmock.ActivateNonDefault(c.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	return c
}

func TestUploadArtifactSendsRecording(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder(http.MethodPost, "http://docs.local/artifacts",
		func(req *http.Request) (*http.Response, error) {
			if err := req.ParseMultipartForm(1 << 20); err != nil {
				return httpmock.NewStringResponse(http.StatusBadRequest, `{"error":"bad form"}`), nil
			}
			if req.FormValue("durationMs") != "12500" || req.FormValue("provisionalId") != "p-1" {
				return httpmock.NewStringResponse(http.StatusBadRequest, `{"error":"missing fields"}`), nil
			}
			file, header, err := req.FormFile("file")
			if err != nil {
				return httpmock.NewStringResponse(http.StatusBadRequest, `{"error":"missing file"}`), nil
			}
			defer file.Close()
			data, _ := io.ReadAll(file)
			return httpmock.NewJsonResponse(http.StatusCreated, domain.AudioArtifact{
				ID:          "a-1",
				FileName:    header.Filename,
				DurationMs:  12500,
				ContentType: domain.ArtifactContentType,
				SizeBytes:   int64(len(data)),
			})
		})

	art, err := c.UploadArtifact(context.Background(), domain.RawArtifact{
		ID:         "p-1",
		FileName:   "recording.wav",
		Data:       []byte("RIFF...."),
		DurationMs: 12500,
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if art.ID != "a-1" || art.FileName != "recording.wav" || art.SizeBytes != 8 {
		t.Fatalf("unexpected artifact: %+v", art)
	}
	if n := httpmock.GetTotalCallCount(); n != 1 {
		t.Fatalf("expected one call, got %d", n)
	}
}

func TestListStandalone(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder(http.MethodGet, "http://docs.local/artifacts?owner=none",
		httpmock.NewStringResponder(http.StatusOK, `{"items":[{"id":"a-1","fileName":"one.wav","documentationId":null},{"id":"a-2","fileName":"two.wav","documentationId":null}],"count":2}`))

	items, err := c.ListStandalone(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 || items[1].ID != "a-2" || !items[0].Standalone() {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestServiceErrorsBecomeAPIError(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder(http.MethodPost, "http://docs.local/artifacts",
		httpmock.NewStringResponder(http.StatusServiceUnavailable, `{"error":"storage failure","code":"STORAGE_FAILURE","requestId":"req-1"}`))

	_, err := c.UploadArtifact(context.Background(), domain.RawArtifact{FileName: "r.wav", Data: []byte("x")})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusServiceUnavailable || apiErr.Code != "STORAGE_FAILURE" || apiErr.RequestID != "req-1" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}
