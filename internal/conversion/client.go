package conversion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/kknaks/study-timelapse/internal/config"
	"github.com/kknaks/study-timelapse/internal/services"
)

// Status is the server-side state of a conversion task.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether polling should stop.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// TaskStatus is one poll response.
type TaskStatus struct {
	TaskID      string  `json:"taskId"`
	Status      Status  `json:"status"`
	Progress    float64 `json:"progress"`
	DownloadURL string  `json:"downloadUrl,omitempty"`
}

// Request asks the server to convert an uploaded file.
type Request struct {
	FileID           string        `json:"fileId"`
	OutputSeconds    float64       `json:"outputSeconds"`
	RecordingSeconds float64       `json:"recordingSeconds"`
	Overlay          *OverlayHints `json:"overlay,omitempty"`
}

// OverlayHints records the overlay choice alongside the task. The server
// does not render it.
type OverlayHints struct {
	Theme    string `json:"theme"`
	Position string `json:"position"`
	Color    string `json:"color"`
	Size     string `json:"size"`
}

// Service is the upload/convert/poll collaborator used by the workflow.
type Service interface {
	Upload(ctx context.Context, path string) (string, error)
	RequestConversion(ctx context.Context, req Request) (string, error)
	PollStatus(ctx context.Context, taskID string) (TaskStatus, error)
}

// HTTPDoer describes the HTTP client used by Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the conversion API over HTTP.
type Client struct {
	baseURL string
	token   string
	client  HTTPDoer
}

// NewConfiguredClient returns a client for cfg, or nil when remote
// conversion is disabled.
func NewConfiguredClient(cfg *config.Config) *Client {
	if cfg == nil || !cfg.Conversion.Enabled || strings.TrimSpace(cfg.Conversion.BaseURL) == "" {
		return nil
	}
	return NewClient(cfg.Conversion.BaseURL, cfg.Conversion.APIToken, &http.Client{Timeout: cfg.RequestTimeout()})
}

// NewClient constructs a Client. A nil doer uses http.DefaultClient.
func NewClient(baseURL, token string, doer HTTPDoer) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		client:  doer,
	}
}

type uploadResponse struct {
	FileID   string `json:"fileId"`
	Filename string `json:"filename"`
}

type createResponse struct {
	TaskID string `json:"taskId"`
}

// Upload streams the file at path as multipart field "file" and returns the
// server's file id.
func (c *Client) Upload(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", services.Wrap(services.ErrUploadFailed, "conversion", "upload", "open artifact", err)
	}
	defer file.Close()

	body, writer := io.Pipe()
	form := multipart.NewWriter(writer)
	go func() {
		part, err := form.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, file)
		}
		if err == nil {
			err = form.Close()
		}
		writer.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", body)
	if err != nil {
		_ = body.Close()
		return "", services.Wrap(services.ErrUploadFailed, "conversion", "upload", "build request", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var resp uploadResponse
	if err := c.do(req, services.ErrUploadFailed, "upload", &resp); err != nil {
		_ = body.Close()
		return "", err
	}
	if strings.TrimSpace(resp.FileID) == "" {
		return "", services.Wrap(services.ErrUploadFailed, "conversion", "upload", "response missing fileId", nil)
	}
	return resp.FileID, nil
}

// RequestConversion starts a conversion task and returns its id.
func (c *Client) RequestConversion(ctx context.Context, request Request) (string, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return "", services.Wrap(services.ErrConversionFailed, "conversion", "request", "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/timelapse", bytes.NewReader(payload))
	if err != nil {
		return "", services.Wrap(services.ErrConversionFailed, "conversion", "request", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp createResponse
	if err := c.do(req, services.ErrConversionFailed, "request", &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.TaskID) == "" {
		return "", services.Wrap(services.ErrConversionFailed, "conversion", "request", "response missing taskId", nil)
	}
	return resp.TaskID, nil
}

// PollStatus fetches the current state of a task.
func (c *Client) PollStatus(ctx context.Context, taskID string) (TaskStatus, error) {
	endpoint := fmt.Sprintf("%s/api/timelapse/%s", c.baseURL, url.PathEscape(taskID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return TaskStatus{}, services.Wrap(services.ErrConversionFailed, "conversion", "poll", "build request", err)
	}
	var status TaskStatus
	if err := c.do(req, services.ErrConversionFailed, "poll", &status); err != nil {
		return TaskStatus{}, err
	}
	switch status.Status {
	case StatusProcessing, StatusCompleted, StatusFailed:
	default:
		return TaskStatus{}, services.Wrap(services.ErrConversionFailed, "conversion", "poll", fmt.Sprintf("unknown status %q", status.Status), nil)
	}
	if status.TaskID == "" {
		status.TaskID = taskID
	}
	return status, nil
}

// do sends req and decodes a JSON body into out. Transport failures are
// tagged ErrUploadFailed; non-2xx responses are tagged marker, except 401 and
// 403 which are ErrPermissionDenied.
func (c *Client) do(req *http.Request, marker error, op string, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return services.Wrap(services.ErrCancelled, "conversion", op, "", err)
		}
		return services.Wrap(services.ErrUploadFailed, "conversion", op, "send request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return services.Wrap(services.ErrPermissionDenied, "conversion", op, fmt.Sprintf("server returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return services.Wrap(marker, "conversion", op,
			fmt.Sprintf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))), nil)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return services.Wrap(marker, "conversion", op, "decode response", err)
	}
	return nil
}
