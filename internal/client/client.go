// Package client is a REST client for the import API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	fiber "github.com/gofiber/fiber/v2"

	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/importer"
)

const (
	// DefaultBaseURL is where importctl looks for the server.
	DefaultBaseURL = "http://localhost:8080"

	// DefaultTimeout is the default timeout for API requests.
	DefaultTimeout = 60 * time.Second

	apiPrefix = "/api/imports"
)

// Options contains configuration options for the API client.
type Options struct {
	// BaseURL is the scheme and host of the server.
	BaseURL string

	// Timeout is the request timeout used when ctx has no deadline.
	Timeout time.Duration
}

// DefaultOptions returns the default client options.
func DefaultOptions() *Options {
	return &Options{
		BaseURL: DefaultBaseURL,
		Timeout: DefaultTimeout,
	}
}

// APIClient calls the import API.
type APIClient struct {
	baseURL string
	timeout time.Duration
}

// NewClient creates a new API client with the given options.
func NewClient(opts *Options) (*APIClient, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	u, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host are required", opts.BaseURL)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &APIClient{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		timeout: timeout,
	}, nil
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Action     string
	Errors     []core.RowValidationError
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s (Code: %s)", e.Message, e.Code)
}

// codeErrors maps response codes back to the sentinels that produced them.
var codeErrors = map[string]error{
	"FILE001": core.ErrFileTooLarge,
	"FILE002": core.ErrFileFormat,
	"FILE003": core.ErrTooManyRows,
	"FILE005": core.ErrEmptyFile,
	"IMP001":  core.ErrUnknownModule,
	"IMP002":  core.ErrEmptyBatch,
	"IMP003":  core.ErrJobNotFound,
	"IMP004":  core.ErrJobTerminal,
	"IMP007":  core.ErrBusy,
}

// Unwrap lets callers test API errors with errors.Is against core sentinels.
func (e *APIError) Unwrap() error {
	return codeErrors[e.Code]
}

// errorBody mirrors the server's JSON error response.
type errorBody struct {
	Error   string                    `json:"error"`
	Message string                    `json:"message"`
	Action  string                    `json:"action"`
	Code    string                    `json:"code"`
	Errors  []core.RowValidationError `json:"errors"`
}

// Modules lists the importable modules.
func (c *APIClient) Modules(ctx context.Context) ([]importer.ModuleInfo, error) {
	var resp struct {
		Modules []importer.ModuleInfo `json:"modules"`
	}
	if err := c.executeRequest(ctx, http.MethodGet, apiPrefix+"/modules", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Modules, nil
}

// Fields returns the field schema of a module.
func (c *APIClient) Fields(ctx context.Context, moduleKey string) (importer.FieldsResponse, error) {
	var resp importer.FieldsResponse
	err := c.executeRequest(ctx, http.MethodGet, modulePath(moduleKey, "fields"), nil, &resp)
	return resp, err
}

// Template downloads the blank template of a module.
func (c *APIClient) Template(ctx context.Context, moduleKey string) (importer.TemplateFile, error) {
	var resp importer.TemplateFile
	err := c.executeRequest(ctx, http.MethodGet, modulePath(moduleKey, "template"), nil, &resp)
	return resp, err
}

// Preview uploads a workbook for validation. Nothing is written server-side.
func (c *APIClient) Preview(ctx context.Context, moduleKey, fileName string, data []byte) (core.PreviewResult, error) {
	agent := c.createAgent(ctx, http.MethodPost, modulePath(moduleKey, "preview"))
	agent.FileData(&fiber.FormFile{Fieldname: "file", Name: fileName, Content: data})
	agent.MultipartForm(nil)

	var resp core.PreviewResult
	err := c.doRequest(ctx, agent, &resp)
	return resp, err
}

// Confirm queues rows for import and returns the job id.
func (c *APIClient) Confirm(ctx context.Context, moduleKey string, rows []core.TypedRow) (string, error) {
	body := struct {
		ValidRows []core.TypedRow `json:"validRows"`
	}{ValidRows: rows}

	var resp struct {
		JobID string `json:"jobId"`
	}
	if err := c.executeRequest(ctx, http.MethodPost, modulePath(moduleKey, "confirm"), body, &resp); err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", errors.New("confirm response has no job id")
	}
	return resp.JobID, nil
}

// Status returns the polling view of a job.
func (c *APIClient) Status(ctx context.Context, jobID string) (core.JobStatusView, error) {
	var resp core.JobStatusView
	err := c.executeRequest(ctx, http.MethodGet, jobPath(jobID, ""), nil, &resp)
	return resp, err
}

// Cancel asks the server to stop a job.
func (c *APIClient) Cancel(ctx context.Context, jobID string) (core.JobStatusView, error) {
	var resp core.JobStatusView
	err := c.executeRequest(ctx, http.MethodPost, jobPath(jobID, "cancel"), nil, &resp)
	return resp, err
}

// HealthCheck reports whether the server answers /healthz with 200.
func (c *APIClient) HealthCheck(ctx context.Context) error {
	return c.executeRequest(ctx, http.MethodGet, "/healthz", nil, nil)
}

func modulePath(moduleKey, action string) string {
	return apiPrefix + "/" + url.PathEscape(moduleKey) + "/" + action
}

func jobPath(jobID, action string) string {
	p := apiPrefix + "/jobs/" + url.PathEscape(jobID)
	if action != "" {
		p += "/" + action
	}
	return p
}

// createAgent creates a Fiber Agent for the given method and endpoint.
func (c *APIClient) createAgent(ctx context.Context, method, endpoint string) *fiber.Agent {
	fullURL := c.baseURL + endpoint

	var agent *fiber.Agent
	switch method {
	case http.MethodPost:
		agent = fiber.Post(fullURL)
	default:
		agent = fiber.Get(fullURL)
	}

	if deadline, ok := ctx.Deadline(); ok {
		agent.Timeout(time.Until(deadline))
	} else {
		agent.Timeout(c.timeout)
	}
	agent.Set("Accept", "application/json")
	return agent
}

// executeRequest sends a JSON request and decodes the JSON response into v.
func (c *APIClient) executeRequest(ctx context.Context, method, endpoint string, body, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	agent := c.createAgent(ctx, method, endpoint)
	if body != nil {
		agent.JSON(body)
	}
	return c.doRequest(ctx, agent, v)
}

type agentResult struct {
	statusCode int
	body       []byte
	errs       []error
}

// doRequest sends the request and processes the response. It returns
// ctx.Err() as soon as ctx is done; the abandoned request ends at the
// agent timeout.
func (c *APIClient) doRequest(ctx context.Context, agent *fiber.Agent, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan agentResult, 1)
	go func() {
		statusCode, body, errs := agent.Bytes()
		done <- agentResult{statusCode: statusCode, body: body, errs: errs}
	}()

	var res agentResult
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res = <-done:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	statusCode, body := res.statusCode, res.body
	if len(res.errs) > 0 {
		return fmt.Errorf("error sending request: %w", res.errs[0])
	}

	if statusCode < 200 || statusCode >= 300 {
		return decodeError(statusCode, body)
	}

	if v != nil && len(body) > 0 {
		if err := json.Unmarshal(body, v); err != nil {
			return fmt.Errorf("error decoding response: %w", err)
		}
	}
	return nil
}

func decodeError(statusCode int, body []byte) error {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil || (eb.Code == "" && eb.Message == "") {
		return &APIError{StatusCode: statusCode, Message: strings.TrimSpace(string(body))}
	}
	msg := eb.Message
	if msg == "" {
		msg = eb.Error
	}
	return &APIError{
		StatusCode: statusCode,
		Code:       eb.Code,
		Message:    msg,
		Action:     eb.Action,
		Errors:     eb.Errors,
	}
}
