package kie

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("kie: api key is required")

// Options configures the KIE generation client.
type Options struct {
	APIKey         string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls to the KIE task API. Generation is
// asynchronous: CreateTask submits work and QueryTask reads its state.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

// TaskSpec captures the inputs of a generation task.
type TaskSpec struct {
	Model     string
	Prompt    string
	ImageURLs []string
}

// Task state reported by the provider. Anything above Succeeded is a
// terminal failure variant.
const (
	FlagGenerating = 0
	FlagSucceeded  = 1
	FlagFailed     = 2
)

// TaskRecord is the normalized state of a submitted task.
type TaskRecord struct {
	TaskID       string
	Flag         int
	ResultURLs   []string
	ErrorMessage string
}

type createTaskRequest struct {
	Model string          `json:"model"`
	Input createTaskInput `json:"input"`
}

type createTaskInput struct {
	Prompt    string   `json:"prompt"`
	ImageURLs []string `json:"image_urls,omitempty"`
}

type createTaskResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		TaskID string `json:"taskId"`
	} `json:"data"`
}

type recordInfoResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		TaskID       string          `json:"taskId"`
		SuccessFlag  int             `json:"successFlag"`
		ErrorMessage string          `json:"errorMessage"`
		ResultJSON   string          `json:"resultJson"`
		Response     json.RawMessage `json:"response"`
	} `json:"data"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.kie.ai"
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// CreateTask submits a generation task and returns the provider task id.
func (c *Client) CreateTask(ctx context.Context, spec TaskSpec) (string, error) {
	if !c.HasCredentials() {
		return "", ErrMissingAPIKey
	}
	prompt := strings.TrimSpace(spec.Prompt)
	if prompt == "" {
		return "", errors.New("kie: prompt is required")
	}
	if strings.TrimSpace(spec.Model) == "" {
		return "", errors.New("kie: model is required")
	}
	payload := createTaskRequest{
		Model: spec.Model,
		Input: createTaskInput{Prompt: prompt, ImageURLs: spec.ImageURLs},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("kie: encode request: %w", err)
	}
	endpoint := c.baseURL + "/api/v1/jobs/createTask"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("kie: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("kie: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("kie: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("kie: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded createTaskResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("kie: decode response: %w", err)
	}
	if decoded.Code != 0 && decoded.Code != 200 {
		return "", fmt.Errorf("kie: %s (code %d)", decoded.Msg, decoded.Code)
	}
	taskID := strings.TrimSpace(decoded.Data.TaskID)
	if taskID == "" {
		return "", errors.New("kie: empty task id")
	}
	c.logger.Debug().
		Str("model", spec.Model).
		Str("task_id", taskID).
		Msg("kie: task created")
	return taskID, nil
}

// QueryTask fetches the current state of a task.
func (c *Client) QueryTask(ctx context.Context, taskID string) (*TaskRecord, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	if strings.TrimSpace(taskID) == "" {
		return nil, errors.New("kie: task id is required")
	}
	endpoint := c.baseURL + "/api/v1/jobs/recordInfo?taskId=" + url.QueryEscape(taskID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("kie: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("kie: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("kie: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("kie: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded recordInfoResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("kie: decode response: %w", err)
	}
	if decoded.Code != 0 && decoded.Code != 200 {
		return nil, fmt.Errorf("kie: %s (code %d)", decoded.Msg, decoded.Code)
	}

	record := &TaskRecord{
		TaskID:       decoded.Data.TaskID,
		Flag:         decoded.Data.SuccessFlag,
		ErrorMessage: strings.TrimSpace(decoded.Data.ErrorMessage),
	}
	record.ResultURLs = extractResultURLs(decoded.Data.ResultJSON, decoded.Data.Response)
	return record, nil
}
