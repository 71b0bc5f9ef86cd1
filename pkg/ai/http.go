package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody caps how much of a failed response is read for its message.
const maxErrorBody = 64 << 10

// postJSON sends payload as JSON to url and decodes a successful response
// into out. Non-2xx answers become *APIError.
func postJSON(ctx context.Context, client *http.Client, provider, url string, header http.Header, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s encode: %w", provider, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	return do(client, req, provider, out)
}

func do(client *http.Client, req *http.Request, provider string, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", provider, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return &APIError{Provider: provider, StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s decode: %w", provider, err)
	}
	return nil
}

// errorMessage extracts the provider message from either
// {"error":{"message":...}} or {"error":"..."}.
func errorMessage(r io.Reader) string {
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(r, maxErrorBody)).Decode(&env); err != nil || len(env.Error) == 0 {
		return ""
	}
	var text string
	if json.Unmarshal(env.Error, &text) == nil {
		return strings.TrimSpace(text)
	}
	var obj struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(env.Error, &obj)
	return strings.TrimSpace(obj.Message)
}

func bearer(apiKey string) http.Header {
	h := http.Header{}
	if apiKey != "" {
		h.Set("Authorization", "Bearer "+apiKey)
	}
	return h
}

// chatMessage is the role/content pair shared by the OpenAI and Ollama chat APIs.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func chatMessages(systemPrompt, userPrompt string) []chatMessage {
	msgs := make([]chatMessage, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: systemPrompt})
	}
	return append(msgs, chatMessage{Role: "user", Content: userPrompt})
}

func nonEmpty(provider, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty response from %s", provider)
	}
	return text, nil
}
