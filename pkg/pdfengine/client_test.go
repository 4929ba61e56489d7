package pdfengine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/lotworks/dealdocs/internal/model"
	"github.com/lotworks/dealdocs/internal/resilience"
)

var sampleFields = []model.PdfField{
	{Name: "Buyer Name", Type: "text", Page: 1},
	{Name: "VIN", Type: "text", Page: 1},
}

func TestSubmitExtraction(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/extractions", r.URL.Path)
		assert.Equal(t, "application/pdf", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(extractionJob{ID: "job-1", Status: "running"})
	}))
	defer server.Close()

	c := NewClient(server.URL, "test-key")
	jobID, err := c.SubmitExtraction(context.Background(), []byte("%PDF-1.7"))
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)
}

func TestSubmitExtractionMissingJobID(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(extractionJob{Status: "running"})
	}))
	defer server.Close()

	c := NewClient(server.URL, "test-key")
	_, err := c.SubmitExtraction(context.Background(), []byte("%PDF-1.7"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job id missing")
}

func TestGetExtraction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		job     extractionJob
		wantErr error
		errText string
	}{
		{
			name: "done returns fields",
			job:  extractionJob{ID: "job-1", Status: "done", Fields: sampleFields},
		},
		{
			name:    "running is pending",
			job:     extractionJob{ID: "job-1", Status: "running"},
			wantErr: ErrExtractionPending,
		},
		{
			name:    "failed surfaces the engine error",
			job:     extractionJob{ID: "job-1", Status: "failed", Error: "encrypted document"},
			errText: "encrypted document",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/extractions/job-1", r.URL.Path)
				_ = json.NewEncoder(w).Encode(tt.job)
			}))
			defer server.Close()

			c := NewClient(server.URL, "test-key")
			fields, err := c.GetExtraction(context.Background(), "job-1")

			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.errText != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errText)
			default:
				require.NoError(t, err)
				assert.Equal(t, sampleFields, fields)
			}
		})
	}
}

func TestExtractFieldsPolls(t *testing.T) {
	t.Parallel()

	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_ = json.NewEncoder(w).Encode(extractionJob{ID: "job-1", Status: "running"})
			return
		}
		if polls.Add(1) < 3 {
			_ = json.NewEncoder(w).Encode(extractionJob{ID: "job-1", Status: "running"})
			return
		}
		_ = json.NewEncoder(w).Encode(extractionJob{ID: "job-1", Status: "done", Fields: sampleFields})
	}))
	defer server.Close()

	c := NewClient(server.URL, "test-key", WithPollRate(rate.Every(time.Millisecond)))
	fields, err := c.ExtractFields(context.Background(), []byte("%PDF-1.7"))
	require.NoError(t, err)
	assert.Equal(t, sampleFields, fields)
	assert.EqualValues(t, 3, polls.Load())
}

func TestExtractFieldsContextCancel(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_ = json.NewEncoder(w).Encode(extractionJob{ID: "job-1", Status: "running"})
			return
		}
		_ = json.NewEncoder(w).Encode(extractionJob{ID: "job-1", Status: "running"})
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := NewClient(server.URL, "test-key", WithPollRate(rate.Every(5*time.Millisecond)))
	_, err := c.ExtractFields(ctx, []byte("%PDF-1.7"))
	require.Error(t, err)
}

func TestFill(t *testing.T) {
	t.Parallel()

	filled := []byte("%PDF-1.7 filled")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/fill", r.URL.Path)

		var req fillRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		pdf, err := base64.StdEncoding.DecodeString(req.PDF)
		require.NoError(t, err)
		assert.Equal(t, []byte("%PDF-1.7"), pdf)
		assert.Equal(t, "Ann", req.Values["Buyer Name"])

		_ = json.NewEncoder(w).Encode(fillResponse{PDF: base64.StdEncoding.EncodeToString(filled)})
	}))
	defer server.Close()

	c := NewClient(server.URL, "test-key")
	out, err := c.Fill(context.Background(), []byte("%PDF-1.7"), map[string]string{"Buyer Name": "Ann"})
	require.NoError(t, err)
	assert.Equal(t, filled, out)
}

func TestDoRetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(extractionJob{ID: "job-1", Status: "running"})
	}))
	defer server.Close()

	c := NewClient(server.URL, "test-key")
	jobID, err := c.SubmitExtraction(context.Background(), []byte("%PDF-1.7"))
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)
	assert.EqualValues(t, 2, calls.Load())
}

func TestDoGivesUpOnPersistentFailure(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewClient(server.URL, "test-key")
	_, err := c.SubmitExtraction(context.Background(), []byte("%PDF-1.7"))
	require.Error(t, err)
	assert.EqualValues(t, 3, calls.Load())
}

func TestCircuitBreakerOpensAfterPersistentFailure(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewClient(server.URL, "test-key", WithFailureThreshold(1))

	_, err := c.SubmitExtraction(context.Background(), []byte("%PDF-1.7"))
	require.Error(t, err)
	assert.EqualValues(t, 3, calls.Load())

	// The breaker is now open; the next call is rejected without touching
	// the server.
	_, err = c.SubmitExtraction(context.Background(), []byte("%PDF-1.7"))
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.EqualValues(t, 3, calls.Load())
}

func TestRetryableStatusCode(t *testing.T) {
	t.Parallel()

	assert.True(t, retryableStatusCode(http.StatusTooManyRequests))
	assert.True(t, retryableStatusCode(http.StatusServiceUnavailable))
	assert.False(t, retryableStatusCode(http.StatusBadRequest))
	assert.False(t, retryableStatusCode(http.StatusNotFound))
	assert.False(t, retryableStatusCode(http.StatusOK))
}
