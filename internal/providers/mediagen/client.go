package mediagen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"promoforge/internal/domain"
	"promoforge/internal/infra"
)

// Provider-enforced request bounds. Requests outside these limits are
// rejected locally before any network call.
const (
	MinDurationSeconds = 1.2
	MaxDurationSeconds = 12.0
	minPromptLength    = 3
	maxPromptLength    = 1800
)

// supportedResolutions is the fixed whitelist the synthesis service accepts.
var supportedResolutions = map[[2]int]struct{}{
	{1280, 720}:  {},
	{720, 1280}:  {},
	{1920, 1080}: {},
	{1080, 1920}: {},
	{1024, 1024}: {},
}

// Options controls how the media-generation client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client is a thin facade over the video/music synthesis HTTP API. It keeps
// no local state; every call is one outbound request.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     infra.Logger
}

// NewClient validates the options and constructs a Client.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("mediagen: base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("mediagen: invalid base url: %w", err)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

type submitVideoPayload struct {
	ImageURL string  `json:"image_url"`
	Prompt   string  `json:"prompt"`
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
}

type submitMusicPayload struct {
	Prompt   string  `json:"prompt"`
	Duration float64 `json:"duration"`
}

type submitResponse struct {
	TaskID string `json:"task_id"`
}

type statusResponse struct {
	TaskID string  `json:"task_id"`
	Status string  `json:"status"`
	URL    string  `json:"url,omitempty"`
	Cost   float64 `json:"cost,omitempty"`
	Error  string  `json:"error,omitempty"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// SubmitVideoTask submits one image-to-video animation and returns the
// provider task id.
func (c *Client) SubmitVideoTask(ctx context.Context, req VideoTaskRequest) (string, error) {
	if err := validateVideoRequest(req); err != nil {
		return "", err
	}
	var resp submitResponse
	if err := c.post(ctx, "/v1/tasks/video", submitVideoPayload{
		ImageURL: req.ImageURL,
		Prompt:   req.Prompt,
		Duration: req.DurationSeconds,
		Width:    req.Width,
		Height:   req.Height,
	}, &resp); err != nil {
		return "", fmt.Errorf("submit video task: %w", err)
	}
	if resp.TaskID == "" {
		return "", fmt.Errorf("submit video task: provider returned no task id")
	}
	c.logger.Debug().
		Str("task_id", resp.TaskID).
		Float64("duration", req.DurationSeconds).
		Int("width", req.Width).
		Int("height", req.Height).
		Msg("mediagen: video task submitted")
	return resp.TaskID, nil
}

// SubmitMusicTask submits a background-music generation request.
func (c *Client) SubmitMusicTask(ctx context.Context, req MusicTaskRequest) (string, error) {
	if err := validatePrompt(req.Prompt); err != nil {
		return "", err
	}
	if req.DurationSeconds <= 0 {
		return "", fmt.Errorf("%w: music duration must be positive", domain.ErrInvalidRequest)
	}
	var resp submitResponse
	if err := c.post(ctx, "/v1/tasks/music", submitMusicPayload{
		Prompt:   req.Prompt,
		Duration: req.DurationSeconds,
	}, &resp); err != nil {
		return "", fmt.Errorf("submit music task: %w", err)
	}
	if resp.TaskID == "" {
		return "", fmt.Errorf("submit music task: provider returned no task id")
	}
	c.logger.Debug().
		Str("task_id", resp.TaskID).
		Float64("duration", req.DurationSeconds).
		Msg("mediagen: music task submitted")
	return resp.TaskID, nil
}

// TaskStatus issues one status check for the given task id.
func (c *Client) TaskStatus(ctx context.Context, taskID string) (TaskResult, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return TaskResult{}, fmt.Errorf("%w: task id is required", domain.ErrInvalidRequest)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/tasks/"+url.PathEscape(taskID), nil)
	if err != nil {
		return TaskResult{}, fmt.Errorf("task status: %w", err)
	}
	c.setHeaders(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return TaskResult{}, fmt.Errorf("task status: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return TaskResult{}, fmt.Errorf("task status: read body: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return TaskResult{}, c.apiError(httpResp.StatusCode, body)
	}

	var resp statusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return TaskResult{}, fmt.Errorf("task status: decode: %w", err)
	}
	result, err := normalizeResult(resp)
	if err == nil {
		c.logger.Debug().
			Str("task_id", taskID).
			Str("state", string(result.State)).
			Msg("mediagen: task status")
	}
	return result, err
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusCreated && httpResp.StatusCode != http.StatusAccepted {
		return c.apiError(httpResp.StatusCode, respBody)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
}

// apiError maps HTTP failures onto the domain taxonomy: 401 is a credential
// failure and 400 a bad request, neither of which may be retried; every
// other status is transient and left to the caller's polling budget.
func (c *Client) apiError(status int, body []byte) error {
	message := providerMessage(body)
	switch status {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", domain.ErrProviderAuth, message)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", domain.ErrInvalidRequest, message)
	default:
		return fmt.Errorf("provider returned %d: %s", status, message)
	}
}

func providerMessage(body []byte) string {
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Error.Message != "" {
		return resp.Error.Message
	}
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "no detail"
	}
	if len(trimmed) > 200 {
		trimmed = trimmed[:200]
	}
	return trimmed
}

func normalizeResult(resp statusResponse) (TaskResult, error) {
	result := TaskResult{ResultURL: resp.URL, Cost: resp.Cost, Error: resp.Error}
	switch strings.ToLower(resp.Status) {
	case "success", "succeeded", "completed":
		result.State = TaskStateSuccess
	case "failed", "error":
		result.State = TaskStateFailed
		if result.Error == "" {
			result.Error = "provider reported failure"
		}
	case "processing", "pending", "queued", "running":
		result.State = TaskStateProcessing
	default:
		return TaskResult{}, fmt.Errorf("task status: unknown state %q", resp.Status)
	}
	return result, nil
}

// SupportedResolution reports whether the synthesis service accepts the
// output dimensions.
func SupportedResolution(width, height int) bool {
	_, ok := supportedResolutions[[2]int{width, height}]
	return ok
}

func validateVideoRequest(req VideoTaskRequest) error {
	if strings.TrimSpace(req.ImageURL) == "" {
		return fmt.Errorf("%w: image url is required", domain.ErrInvalidRequest)
	}
	if err := validatePrompt(req.Prompt); err != nil {
		return err
	}
	if req.DurationSeconds < MinDurationSeconds || req.DurationSeconds > MaxDurationSeconds {
		return fmt.Errorf("%w: duration %.2fs outside [%.1f, %.1f]",
			domain.ErrInvalidRequest, req.DurationSeconds, MinDurationSeconds, MaxDurationSeconds)
	}
	if _, ok := supportedResolutions[[2]int{req.Width, req.Height}]; !ok {
		return fmt.Errorf("%w: unsupported resolution %dx%d", domain.ErrInvalidRequest, req.Width, req.Height)
	}
	return nil
}

func validatePrompt(prompt string) error {
	n := len(strings.TrimSpace(prompt))
	if n < minPromptLength || n > maxPromptLength {
		return fmt.Errorf("%w: prompt length %d outside [%d, %d]",
			domain.ErrInvalidRequest, n, minPromptLength, maxPromptLength)
	}
	return nil
}

var _ TaskService = (*Client)(nil)
