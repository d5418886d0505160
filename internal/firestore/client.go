package firestore

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

	"github.com/sony/gobreaker"
)

const (
	// DefaultBaseURL is the public Firestore REST endpoint.
	DefaultBaseURL = "https://firestore.googleapis.com"
	// DefaultDatabase is the database every project starts with.
	DefaultDatabase = "(default)"

	defaultBreakerMaxFailures = 5
	defaultBreakerOpenTimeout = 30 * time.Second
)

// ErrUnavailable is returned when the circuit breaker refuses a request without sending it.
var ErrUnavailable = errors.New("document store unavailable")

// TokenSource supplies bearer tokens for document store requests.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// APIError is a non-success response from the document store.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("firestore %s %s: %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	ProjectID  string
	Database   string
	HTTPClient *http.Client

	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
}

// Client issues document writes against the Firestore REST API.
type Client struct {
	baseURL    string
	projectID  string
	database   string
	httpClient *http.Client
	tokens     TokenSource
	breaker    *gobreaker.CircuitBreaker
}

// NewClient creates a new document store client.
func NewClient(cfg Config, tokens TokenSource) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	database := cfg.Database
	if database == "" {
		database = DefaultDatabase
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerMaxFailures
	}

	openTimeout := cfg.BreakerOpenTimeout
	if openTimeout == 0 {
		openTimeout = defaultBreakerOpenTimeout
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "firestore",
		Timeout: openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	})

	return &Client{
		baseURL:    baseURL,
		projectID:  cfg.ProjectID,
		database:   database,
		httpClient: httpClient,
		tokens:     tokens,
		breaker:    breaker,
	}
}

// DocumentURL returns the REST URL of the document at path, e.g. "bookings/B1".
func (c *Client) DocumentURL(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}

	return fmt.Sprintf("%s/v1/projects/%s/databases/%s/documents/%s",
		c.baseURL, url.PathEscape(c.projectID), c.database, strings.Join(segments, "/"))
}

// Patch creates or replaces the document at path with fields.
func (c *Client) Patch(ctx context.Context, path string, fields map[string]Value) error {
	body, err := json.Marshal(map[string]map[string]Value{"fields": fields})
	if err != nil {
		return fmt.Errorf("failed to marshal document %s: %w", path, err)
	}

	status, respBody, err := c.send(ctx, http.MethodPatch, path, body)
	if err != nil {
		return err
	}

	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return &APIError{Method: http.MethodPatch, Path: path, StatusCode: status, Body: respBody}
	}

	return nil
}

// Delete removes the document at path. A document that does not exist counts as deleted.
func (c *Client) Delete(ctx context.Context, path string) error {
	status, respBody, err := c.send(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}

	if status == http.StatusNotFound {
		return nil
	}

	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return &APIError{Method: http.MethodDelete, Path: path, StatusCode: status, Body: respBody}
	}

	return nil
}

type response struct {
	status int
	body   string
}

func (c *Client) send(ctx context.Context, method, path string, body []byte) (int, string, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return 0, "", err
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, method, path, token, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return 0, "", fmt.Errorf("%w: %s %s: %w", ErrUnavailable, method, path, err)
	}

	if err != nil {
		return 0, "", err
	}

	res, ok := result.(response)
	if !ok {
		return 0, "", errors.New("unexpected breaker result")
	}

	return res.status, res.body, nil
}

// do performs one request. Server-side failures are returned as errors so the
// breaker counts them; client errors are handed back as a response.
func (c *Client) do(ctx context.Context, method, path, token string, body []byte) (response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.DocumentURL(path), reader)
	if err != nil {
		return response{}, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return response{}, fmt.Errorf("firestore %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return response{}, &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(data)}
	}

	return response{status: resp.StatusCode, body: string(data)}, nil
}
