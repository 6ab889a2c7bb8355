package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"factreel/internal/services"
)

// FileRef is a provider-side handle for an uploaded attachment.
type FileRef struct {
	ID   string `json:"id"`
	Name string `json:"filename"`
}

// UploadFile pushes a payload to the provider's file endpoint and returns
// the handle to attach to completion requests. Callers own cleanup via
// DeleteFile.
func (c *Client) UploadFile(ctx context.Context, name string, data []byte) (FileRef, error) {
	var empty FileRef
	if c.cfg.FilesURL == "" {
		return empty, services.Wrap(services.ErrConfiguration, "llm", "upload", "files url not configured", nil)
	}
	if c.cfg.APIKey == "" {
		return empty, services.Wrap(services.ErrConfiguration, "llm", "upload", "api key required", nil)
	}
	if len(data) == 0 {
		return empty, services.Wrap(services.ErrInput, "llm", "upload", "empty payload", nil)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return empty, fmt.Errorf("llm upload: build form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return empty, fmt.Errorf("llm upload: write form: %w", err)
	}
	if err := writer.WriteField("purpose", "user_data"); err != nil {
		return empty, fmt.Errorf("llm upload: write purpose: %w", err)
	}
	if err := writer.Close(); err != nil {
		return empty, fmt.Errorf("llm upload: close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.FilesURL, &body)
	if err != nil {
		return empty, fmt.Errorf("llm upload: new request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return empty, markFailure("upload", fmt.Errorf("llm upload: http error: %w", err))
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, fmt.Errorf("llm upload: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return empty, markFailure("upload", &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(payload)),
			RetryAfter: retryAfter,
		})
	}

	var ref FileRef
	if err := json.Unmarshal(payload, &ref); err != nil {
		return empty, fmt.Errorf("llm upload: decode response: %w", err)
	}
	if strings.TrimSpace(ref.ID) == "" {
		return empty, fmt.Errorf("llm upload: response missing file id")
	}
	return ref, nil
}

// DeleteFile removes an uploaded attachment. Missing files are treated as
// already deleted.
func (c *Client) DeleteFile(ctx context.Context, ref FileRef) error {
	if c.cfg.FilesURL == "" || strings.TrimSpace(ref.ID) == "" {
		return nil
	}
	endpoint := strings.TrimRight(c.cfg.FilesURL, "/") + "/" + ref.ID
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("llm delete: new request: %w", err)
	}
	c.setHeaders(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return markFailure("delete", fmt.Errorf("llm delete: http error: %w", err))
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusMultipleChoices && resp.StatusCode != http.StatusNotFound {
		return markFailure("delete", &httpStatusError{StatusCode: resp.StatusCode})
	}
	return nil
}
