package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"go-events-query/internal/config"
	"go-events-query/internal/interfaces"
	"go-events-query/internal/metrics"
	"go-events-query/internal/models"
)

// Ensure Client implements interfaces.EventsGateway
var _ interfaces.EventsGateway = (*Client)(nil)

// Operation names, used for metrics labels and generic error messages
const (
	OpList   = "list"
	OpGet    = "get"
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

var genericMessages = map[string]string{
	OpList:   "An error occurred while fetching the events",
	OpGet:    "An error occurred while fetching the event",
	OpCreate: "An error occurred while creating the event",
	OpUpdate: "An error occurred while updating the event",
	OpDelete: "An error occurred while deleting the event",
}

// Client talks to the events REST backend
type Client struct {
	baseURL      string
	imageBaseURL string
	httpClient   *http.Client
	logger       *zap.Logger
}

// NewClient creates a new gateway client for the configured backend
func NewClient(cfg *config.BackendConfig, logger *zap.Logger) *Client {
	return NewClientWithHTTP(cfg, &http.Client{Timeout: cfg.Timeout}, logger)
}

// NewClientWithHTTP creates a gateway client using the provided http.Client
func NewClientWithHTTP(cfg *config.BackendConfig, httpClient *http.Client, logger *zap.Logger) *Client {
	imageBaseURL := cfg.ImageBaseURL
	if imageBaseURL == "" {
		imageBaseURL = cfg.BaseURL
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		imageBaseURL: strings.TrimRight(imageBaseURL, "/"),
		httpClient:   httpClient,
		logger:       logger,
	}
}

// ListEvents fetches GET /events, optionally narrowed by search and max
func (c *Client) ListEvents(ctx context.Context, params models.ListParams) ([]models.Event, error) {
	query := url.Values{}
	if params.Search != "" {
		query.Set("search", params.Search)
	}
	if params.Max > 0 {
		query.Set("max", strconv.Itoa(params.Max))
	}

	body, err := c.do(ctx, OpList, http.MethodGet, "/events", query, nil)
	if err != nil {
		return nil, err
	}

	var response struct {
		Events []models.Event `json:"events"`
	}
	if err := c.decode(OpList, body, &response); err != nil {
		return nil, err
	}
	if response.Events == nil {
		response.Events = []models.Event{}
	}
	return response.Events, nil
}

// GetEvent fetches GET /events/{id}
func (c *Client) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	body, err := c.do(ctx, OpGet, http.MethodGet, eventPath(id), nil, nil)
	if err != nil {
		return nil, err
	}

	var response struct {
		Event *models.Event `json:"event"`
	}
	if err := c.decode(OpGet, body, &response); err != nil {
		return nil, err
	}
	if response.Event == nil {
		return nil, parseError(OpGet, errors.New("response has no event"))
	}
	return response.Event, nil
}

// CreateEvent sends POST /events
func (c *Client) CreateEvent(ctx context.Context, input models.EventInput) (*models.Event, error) {
	body, err := c.do(ctx, OpCreate, http.MethodPost, "/events", nil, map[string]any{"event": input})
	if err != nil {
		return nil, err
	}

	var response struct {
		Event *models.Event `json:"event"`
	}
	if err := c.decode(OpCreate, body, &response); err != nil {
		return nil, err
	}
	if response.Event == nil {
		return nil, parseError(OpCreate, errors.New("response has no event"))
	}
	return response.Event, nil
}

// UpdateEvent sends PUT /events/{id}. When the backend acknowledges without
// echoing the event, the submitted input is returned stamped with id.
func (c *Client) UpdateEvent(ctx context.Context, id string, input models.EventInput) (*models.Event, error) {
	body, err := c.do(ctx, OpUpdate, http.MethodPut, eventPath(id), nil, map[string]any{"event": input})
	if err != nil {
		return nil, err
	}

	var response struct {
		Event *models.Event `json:"event"`
	}
	if err := c.decode(OpUpdate, body, &response); err != nil {
		return nil, err
	}
	if response.Event == nil {
		event := input.ToEvent(id)
		return &event, nil
	}
	return response.Event, nil
}

// DeleteEvent sends DELETE /events/{id}
func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	_, err := c.do(ctx, OpDelete, http.MethodDelete, eventPath(id), nil, nil)
	return err
}

// ImageURL resolves an event image path against the image host
func (c *Client) ImageURL(image string) string {
	if image == "" {
		return ""
	}
	if strings.HasPrefix(image, "http://") || strings.HasPrefix(image, "https://") {
		return image
	}
	return c.imageBaseURL + "/" + strings.TrimLeft(image, "/")
}

func eventPath(id string) string {
	return "/events/" + url.PathEscape(id)
}

// do issues one request and returns the raw JSON body of a 2xx response.
// Every failure is returned as *models.ErrorInfo.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, payload any) (json.RawMessage, error) {
	startTime := time.Now()
	var statusCode int
	var requestErr *models.ErrorInfo

	defer func() {
		kind := ""
		if requestErr != nil {
			kind = string(requestErr.Kind)
		}
		metrics.RecordGatewayRequest(op, statusCode, kind, time.Since(startTime))
	}()

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			requestErr = &models.ErrorInfo{
				Kind:    models.ParseError,
				Message: genericMessages[op],
				Err:     fmt.Errorf("failed to marshal request body: %w", err),
			}
			return nil, requestErr
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		requestErr = networkError(op, fmt.Errorf("failed to create request: %w", err))
		return nil, requestErr
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("Sending backend request", zap.String("method", method), zap.String("url", target))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			requestErr = &models.ErrorInfo{
				Kind:    models.CanceledError,
				Message: "The request was canceled",
				Err:     ctx.Err(),
			}
			return nil, requestErr
		}
		requestErr = networkError(op, fmt.Errorf("request failed: %w", err))
		c.logger.Warn("Backend request failed", zap.String("operation", op), zap.Error(err))
		return nil, requestErr
	}
	defer resp.Body.Close()

	statusCode = resp.StatusCode

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		requestErr = networkError(op, fmt.Errorf("failed to read response: %w", err))
		return nil, requestErr
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		requestErr = httpError(op, resp.StatusCode, body)
		c.logger.Warn("Backend returned an error status",
			zap.String("operation", op),
			zap.Int("status", resp.StatusCode),
			zap.String("message", requestErr.Message))
		return nil, requestErr
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	if !json.Valid(body) {
		requestErr = parseError(op, errors.New("response body is not valid JSON"))
		return nil, requestErr
	}
	return body, nil
}

// decode unmarshals a successful body, tolerating an empty body
func (c *Client) decode(op string, body json.RawMessage, v any) error {
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return parseError(op, fmt.Errorf("failed to parse response: %w", err))
	}
	return nil
}

func networkError(op string, err error) *models.ErrorInfo {
	return &models.ErrorInfo{
		Kind:    models.NetworkError,
		Message: genericMessages[op],
		Err:     err,
	}
}

func parseError(op string, err error) *models.ErrorInfo {
	return &models.ErrorInfo{
		Kind:    models.ParseError,
		Message: genericMessages[op],
		Err:     err,
	}
}

// httpError builds the error for a non-2xx response. The parsed body becomes
// Info and its message, when present, becomes the error message.
func httpError(op string, statusCode int, body []byte) *models.ErrorInfo {
	errInfo := &models.ErrorInfo{
		Kind:       models.HTTPError,
		Message:    genericMessages[op],
		StatusCode: statusCode,
		Err:        fmt.Errorf("unexpected status code: %d", statusCode),
	}

	var info map[string]any
	if err := json.Unmarshal(body, &info); err == nil && info != nil {
		errInfo.Info = info
		if msg, ok := info["message"].(string); ok && msg != "" {
			errInfo.Message = msg
		}
	}
	return errInfo
}
