// Package drive implements remote.API over the Google Drive v3 REST API.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/shelf/internal/domain"
	"github.com/mmcdole/shelf/internal/storage/remote"
)

const (
	defaultTimeout = 60 * time.Second
	pageSize       = 1000
	maxRetries     = 3
	baseRetryDelay = 500 * time.Millisecond
)

// Client talks to Drive with a bearer token obtained elsewhere
type Client struct {
	baseURL    string
	uploadURL  string
	httpClient *http.Client
	logger     *slog.Logger

	mu    sync.RWMutex
	token string
}

// NewClient creates a Drive API client
func NewClient(baseURL, uploadURL, token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		uploadURL: strings.TrimRight(uploadURL, "/"),
		token:     token,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: logger,
	}
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// doRequest performs an authenticated request and maps failures onto domain errors.
// 5xx responses are retried with exponential backoff.
func (c *Client) doRequest(ctx context.Context, method, reqURL, contentType string, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if attempt > 0 {
			delay := baseRetryDelay * time.Duration(1<<(attempt-1)) // 500ms, 1s, 2s
			c.logger.Debug("retrying request", "attempt", attempt, "delay", delay, "url", reqURL)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.bearer())
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		c.logger.Debug("drive request", "method", method, "url", reqURL, "attempt", attempt)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Error("drive request failed", "error", err)
			return nil, fmt.Errorf("%w: %v", domain.ErrOffline, err)
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: %d - %s", resp.StatusCode, errorMessage(respBody))
			c.logger.Warn("drive server error, will retry",
				"status", resp.StatusCode,
				"attempt", attempt,
				"maxRetries", maxRetries,
			)
			continue
		}

		if resp.StatusCode >= 300 {
			return nil, statusError(resp.StatusCode, respBody)
		}
		return respBody, nil
	}

	c.logger.Error("drive request failed after retries", "error", lastErr, "url", reqURL)
	return nil, lastErr
}

// statusError maps a non-2xx Drive response onto a domain error
func statusError(status int, body []byte) error {
	msg := errorMessage(body)
	switch status {
	case http.StatusUnauthorized:
		return domain.ErrAuthFailed
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	case http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case http.StatusForbidden:
		if isRateLimit(body) {
			return domain.ErrRateLimited
		}
		return fmt.Errorf("%w: %s", domain.ErrPermission, msg)
	default:
		return fmt.Errorf("unexpected status code: %d - %s", status, msg)
	}
}

func isRateLimit(body []byte) bool {
	var resp ErrorResponse
	if json.Unmarshal(body, &resp) != nil {
		return false
	}
	for _, e := range resp.Error.Errors {
		switch e.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded":
			return true
		}
	}
	return false
}

func errorMessage(body []byte) string {
	var resp ErrorResponse
	if json.Unmarshal(body, &resp) == nil && resp.Error.Message != "" {
		return resp.Error.Message
	}
	return strings.TrimSpace(string(body))
}

// buildQuery renders a Query in Drive's search syntax
func buildQuery(q remote.Query) string {
	var parts []string
	if q.ParentID != "" {
		parts = append(parts, fmt.Sprintf("'%s' in parents", escape(q.ParentID)))
	}
	if q.Name != "" {
		parts = append(parts, fmt.Sprintf("name = '%s'", escape(q.Name)))
	}
	switch {
	case q.FoldersOnly:
		parts = append(parts, fmt.Sprintf("mimeType = '%s'", remote.FolderMimeType))
	case q.MimeType != "":
		parts = append(parts, fmt.Sprintf("mimeType = '%s'", escape(q.MimeType)))
	case q.FilesOnly:
		parts = append(parts, fmt.Sprintf("mimeType != '%s'", remote.FolderMimeType))
	}
	parts = append(parts, fmt.Sprintf("trashed = %t", q.Trashed))
	return strings.Join(parts, " and ")
}

func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

// ListFiles returns all files matching q across every page
func (c *Client) ListFiles(ctx context.Context, q remote.Query) ([]remote.File, error) {
	query := url.Values{}
	query.Set("q", buildQuery(q))
	query.Set("fields", "nextPageToken,files("+fileFields+")")
	query.Set("pageSize", fmt.Sprintf("%d", pageSize))
	query.Set("spaces", "drive")

	var files []remote.File
	for {
		body, err := c.doRequest(ctx, http.MethodGet, c.baseURL+"/files?"+query.Encode(), "", nil)
		if err != nil {
			return nil, err
		}

		var page FileList
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("failed to parse file list: %w", err)
		}
		for _, f := range page.Files {
			files = append(files, mapFile(f))
		}

		if page.NextPageToken == "" {
			return files, nil
		}
		query.Set("pageToken", page.NextPageToken)
	}
}

func (c *Client) GetFile(ctx context.Context, id string) (remote.File, error) {
	reqURL := fmt.Sprintf("%s/files/%s?fields=%s", c.baseURL, url.PathEscape(id), url.QueryEscape(fileFields))
	body, err := c.doRequest(ctx, http.MethodGet, reqURL, "", nil)
	if err != nil {
		return remote.File{}, err
	}
	return parseFile(body)
}

func (c *Client) Download(ctx context.Context, id string) ([]byte, error) {
	reqURL := fmt.Sprintf("%s/files/%s?alt=media", c.baseURL, url.PathEscape(id))
	return c.doRequest(ctx, http.MethodGet, reqURL, "", nil)
}

// CreateFile uploads a new file with a multipart request, or creates a folder when content is nil
func (c *Client) CreateFile(ctx context.Context, meta remote.File, content []byte) (remote.File, error) {
	res := FileResource{Name: meta.Name, MimeType: meta.MimeType, Parents: meta.Parents}

	if content == nil {
		payload, err := json.Marshal(res)
		if err != nil {
			return remote.File{}, err
		}
		reqURL := fmt.Sprintf("%s/files?fields=%s", c.baseURL, url.QueryEscape(fileFields))
		body, err := c.doRequest(ctx, http.MethodPost, reqURL, "application/json", payload)
		if err != nil {
			return remote.File{}, err
		}
		return parseFile(body)
	}

	payload, contentType, err := multipartBody(res, meta.MimeType, content)
	if err != nil {
		return remote.File{}, err
	}
	reqURL := fmt.Sprintf("%s/files?uploadType=multipart&fields=%s", c.uploadURL, url.QueryEscape(fileFields))
	body, err := c.doRequest(ctx, http.MethodPost, reqURL, contentType, payload)
	if err != nil {
		return remote.File{}, err
	}
	return parseFile(body)
}

// UpdateFile replaces a file's content, renaming it when name is set
func (c *Client) UpdateFile(ctx context.Context, id, name string, content []byte) (remote.File, error) {
	payload, contentType, err := multipartBody(FileResource{Name: name}, remote.RecordMimeType, content)
	if err != nil {
		return remote.File{}, err
	}
	reqURL := fmt.Sprintf("%s/files/%s?uploadType=multipart&fields=%s",
		c.uploadURL, url.PathEscape(id), url.QueryEscape(fileFields))
	body, err := c.doRequest(ctx, http.MethodPatch, reqURL, contentType, payload)
	if err != nil {
		return remote.File{}, err
	}
	return parseFile(body)
}

// MoveFile changes parents and optionally the name with a metadata-only patch
func (c *Client) MoveFile(ctx context.Context, id, newName string, addParents, removeParents []string) (remote.File, error) {
	query := url.Values{}
	query.Set("fields", fileFields)
	if len(addParents) > 0 {
		query.Set("addParents", strings.Join(addParents, ","))
	}
	if len(removeParents) > 0 {
		query.Set("removeParents", strings.Join(removeParents, ","))
	}

	payload, err := json.Marshal(FileResource{Name: newName})
	if err != nil {
		return remote.File{}, err
	}
	reqURL := fmt.Sprintf("%s/files/%s?%s", c.baseURL, url.PathEscape(id), query.Encode())
	body, err := c.doRequest(ctx, http.MethodPatch, reqURL, "application/json", payload)
	if err != nil {
		return remote.File{}, err
	}
	return parseFile(body)
}

// multipartBody builds a multipart/related upload body: JSON metadata then media
func multipartBody(meta FileResource, mediaType string, content []byte) ([]byte, string, error) {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json; charset=UTF-8"}})
	if err != nil {
		return nil, "", err
	}
	part.Write(metaJSON)

	if mediaType == "" {
		mediaType = remote.RecordMimeType
	}
	part, err = w.CreatePart(textproto.MIMEHeader{"Content-Type": {mediaType}})
	if err != nil {
		return nil, "", err
	}
	part.Write(content)

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "multipart/related; boundary=" + w.Boundary(), nil
}

func parseFile(body []byte) (remote.File, error) {
	var res FileResource
	if err := json.Unmarshal(body, &res); err != nil {
		return remote.File{}, fmt.Errorf("failed to parse file: %w", err)
	}
	return mapFile(res), nil
}
