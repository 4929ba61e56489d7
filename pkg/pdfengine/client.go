// Package pdfengine provides a client for the PDF processing service that
// extracts fillable form fields from templates and renders filled documents.
package pdfengine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/lotworks/dealdocs/internal/model"
	"github.com/lotworks/dealdocs/internal/resilience"
)

// ErrExtractionPending is returned by GetExtraction while the job is
// still running.
var ErrExtractionPending = errors.New("extraction pending")

// Client defines the PDF engine operations.
type Client interface {
	// SubmitExtraction uploads a PDF and starts a field extraction job.
	SubmitExtraction(ctx context.Context, pdf []byte) (string, error)
	// GetExtraction fetches the result of an extraction job. It returns
	// ErrExtractionPending while the job is running.
	GetExtraction(ctx context.Context, jobID string) ([]model.PdfField, error)
	// ExtractFields submits a PDF and polls until the field list is
	// available or ctx expires.
	ExtractFields(ctx context.Context, pdf []byte) ([]model.PdfField, error)
	// Fill renders a filled copy of the template PDF with the given
	// field values.
	Fill(ctx context.Context, pdf []byte, values map[string]string) ([]byte, error)
}

type extractionJob struct {
	ID     string           `json:"id"`
	Status string           `json:"status"`
	Fields []model.PdfField `json:"fields,omitempty"`
	Error  string           `json:"error,omitempty"`
}

type fillRequest struct {
	PDF    string            `json:"pdf"`
	Values map[string]string `json:"values"`
}

type fillResponse struct {
	PDF string `json:"pdf"`
}

// Option configures the PDF engine client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithPollRate caps how often ExtractFields polls the job endpoint.
func WithPollRate(r rate.Limit) Option {
	return func(c *httpClient) {
		c.poll = rate.NewLimiter(r, 1)
	}
}

// WithFailureThreshold sets how many consecutive transport failures open
// the engine circuit breaker.
func WithFailureThreshold(n int) Option {
	return func(c *httpClient) {
		c.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: n,
		})
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	poll    *rate.Limiter
	breaker *resilience.CircuitBreaker
}

// NewClient creates a PDF engine client.
func NewClient(baseURL, apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		// One poll per second by default.
		poll:    rate.NewLimiter(rate.Every(time.Second), 1),
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) SubmitExtraction(ctx context.Context, pdf []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/extractions", bytes.NewReader(pdf))
	if err != nil {
		return "", eris.Wrap(err, "pdfengine: create request")
	}
	req.Header.Set("Content-Type", "application/pdf")
	c.auth(req)

	body, status, err := c.do(req)
	if err != nil {
		return "", eris.Wrap(err, "pdfengine: submit extraction")
	}
	if status != http.StatusOK && status != http.StatusAccepted {
		return "", eris.Errorf("pdfengine: submit extraction status %d: %s", status, string(body))
	}

	var job extractionJob
	if err := json.Unmarshal(body, &job); err != nil {
		return "", eris.Wrap(err, "pdfengine: unmarshal job")
	}
	if job.ID == "" {
		return "", eris.New("pdfengine: job id missing from response")
	}
	return job.ID, nil
}

func (c *httpClient) GetExtraction(ctx context.Context, jobID string) ([]model.PdfField, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/v1/extractions/%s", c.baseURL, jobID), nil)
	if err != nil {
		return nil, eris.Wrap(err, "pdfengine: create request")
	}
	c.auth(req)

	body, status, err := c.do(req)
	if err != nil {
		return nil, eris.Wrap(err, "pdfengine: get extraction")
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("pdfengine: get extraction status %d: %s", status, string(body))
	}

	var job extractionJob
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, eris.Wrap(err, "pdfengine: unmarshal job")
	}

	switch job.Status {
	case "done":
		return job.Fields, nil
	case "failed":
		return nil, eris.Errorf("pdfengine: extraction %s failed: %s", jobID, job.Error)
	default:
		return nil, eris.Wrapf(ErrExtractionPending, "job %s", jobID)
	}
}

func (c *httpClient) ExtractFields(ctx context.Context, pdf []byte) ([]model.PdfField, error) {
	jobID, err := c.SubmitExtraction(ctx, pdf)
	if err != nil {
		return nil, err
	}

	for {
		if err := c.poll.Wait(ctx); err != nil {
			return nil, eris.Wrapf(err, "pdfengine: waiting on extraction %s", jobID)
		}

		fields, err := c.GetExtraction(ctx, jobID)
		if err == nil {
			return fields, nil
		}
		if !errors.Is(err, ErrExtractionPending) {
			return nil, err
		}
	}
}

func (c *httpClient) Fill(ctx context.Context, pdf []byte, values map[string]string) ([]byte, error) {
	payload, err := json.Marshal(fillRequest{
		PDF:    base64.StdEncoding.EncodeToString(pdf),
		Values: values,
	})
	if err != nil {
		return nil, eris.Wrap(err, "pdfengine: marshal fill request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/fill", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "pdfengine: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)

	body, status, err := c.do(req)
	if err != nil {
		return nil, eris.Wrap(err, "pdfengine: fill")
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("pdfengine: fill status %d: %s", status, string(body))
	}

	var resp fillResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "pdfengine: unmarshal fill response")
	}
	out, err := base64.StdEncoding.DecodeString(resp.PDF)
	if err != nil {
		return nil, eris.Wrap(err, "pdfengine: decode filled pdf")
	}
	return out, nil
}

func (c *httpClient) auth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// retryableStatusCode returns true if the HTTP status code should trigger
// a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// do runs the request through the engine circuit breaker. A request that
// still fails or returns a transient status after all send retries counts
// as one breaker failure; once the breaker opens, calls are rejected with
// ErrCircuitOpen until the engine recovers.
func (c *httpClient) do(req *http.Request) ([]byte, int, error) {
	var (
		body   []byte
		status int
	)
	err := c.breaker.Execute(req.Context(), func(context.Context) error {
		var err error
		body, status, err = c.send(req)
		if err != nil {
			return err
		}
		if retryableStatusCode(status) {
			return resilience.NewTransientError(eris.Errorf("pdfengine: status %d", status), status)
		}
		return nil
	})
	if err != nil {
		var te *resilience.TransientError
		if errors.As(err, &te) {
			// Retries were exhausted upstream; hand the final response to
			// the caller for its own status handling.
			return body, status, nil
		}
		return nil, 0, err
	}
	return body, status, nil
}

// send executes an HTTP request with exponential backoff retries on
// transient failures. Request bodies are replayed via Clone with GetBody.
func (c *httpClient) send(req *http.Request) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 500 * time.Millisecond
	ctx := req.Context()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		retryReq := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, 0, eris.Wrap(err, "pdfengine: rewind request body")
			}
			retryReq.Body = body
		}

		resp, err := c.http.Do(retryReq)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "pdfengine: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("pdfengine: status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}
