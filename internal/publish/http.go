package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
)

// uploadForm posts a multipart form with one file field plus text fields.
// The pack of platform APIs this layer talks to are all multipart upload
// endpoints, so the wire mechanics live here once.
func uploadForm(ctx context.Context, client *http.Client, url string, headers map[string]string, fields map[string]string, fileField string, asset Asset) (int, []byte, error) {
	f, err := os.Open(asset.Path)
	if err != nil {
		return 0, nil, fmt.Errorf("open asset: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return 0, nil, err
		}
	}
	name := asset.Name
	if name == "" {
		name = filepath.Base(asset.Path)
	}
	part, err := mw.CreateFormFile(fileField, name)
	if err != nil {
		return 0, nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return 0, nil, err
	}
	if err := mw.Close(); err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload any) (int, []byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// statusError converts well-known HTTP statuses into classified errors and
// everything else into a rejection carrying the raw response detail.
func statusError(target string, status int, body []byte) *Error {
	detail := fmt.Sprintf("HTTP %d: %s", status, truncateDetail(string(body), 300))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Error{Target: target, Kind: KindInvalidCredentials, Detail: detail}
	case status == http.StatusTooManyRequests:
		return &Error{Target: target, Kind: KindQuotaExceeded, Detail: detail}
	default:
		return Rejected(target, detail)
	}
}

func truncateDetail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
