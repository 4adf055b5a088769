package external

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnv-acmg-classifier/internal/domain"
)

var testLocus = domain.Locus{Chromosome: "chr22", Start: 18660000, End: 21520000, VariantKind: domain.VariantKindLoss}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *BackendClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewBackendClient(domain.BackendConfig{
		BaseURL:     server.URL + "/",
		CallTimeout: 5 * time.Second,
		RateLimit:   1000,
		RateBurst:   100,
		Breaker:     domain.BreakerConfig{MinRequests: 1000},
	}, quietLogger())
}

func TestBackendClient_Endpoints(t *testing.T) {
	client := NewBackendClient(domain.BackendConfig{BaseURL: "http://backend:8000/"}, quietLogger())

	assert.Equal(t, "http://backend:8000/api/acmg/section3/chr22/18660000/21520000/loss", client.SectionEndpoint(3, testLocus))
	assert.Equal(t, "http://backend:8000/api/cnv/chr22:18660000-21520000/risk/loss", client.RiskEndpoint(testLocus))
	assert.Equal(t, "http://backend:8000/api/global/acmg_text/gain", client.CatalogEndpoint(domain.VariantKindGain))
	assert.Equal(t, DefaultCallTimeout, client.CallTimeout())
}

func TestBackendClient_EvaluateSection(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		want       *domain.SectionResult
		wantKind   domain.CallErrorKind
		wantMsg    string
		wantStatus int
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body:   `{"section":"3","option":"3C","score":0.9,"reason":"35+ genes"}`,
			want:   &domain.SectionResult{Section: 3, Option: "3C", Score: 0.9, Reason: "35+ genes"},
		},
		{
			name:   "missing reason",
			status: http.StatusOK,
			body:   `{"option":"3A","score":"0"}`,
			want:   &domain.SectionResult{Section: 3, Option: "3A", Score: 0, Reason: domain.NoReason},
		},
		{
			name:     "missing score",
			status:   http.StatusOK,
			body:     `{"option":"3A"}`,
			wantKind: domain.CallMalformed,
		},
		{
			name:     "not json",
			status:   http.StatusOK,
			body:     `<html>`,
			wantKind: domain.CallMalformed,
		},
		{
			name:       "string detail",
			status:     http.StatusNotFound,
			body:       `{"detail":"Region not found"}`,
			wantKind:   domain.CallStatus,
			wantMsg:    "Region not found",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "validation detail",
			status:     http.StatusUnprocessableEntity,
			body:       `{"detail":[{"loc":["path","end"],"msg":"value is not a valid integer","type":"type_error.integer"}]}`,
			wantKind:   domain.CallStatus,
			wantMsg:    "value is not a valid integer",
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "server error with plain text",
			status:     http.StatusInternalServerError,
			body:       `Internal Server Error`,
			wantKind:   domain.CallStatus,
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/acmg/section3/chr22/18660000/21520000/loss", r.URL.Path)
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})

			result, err := client.EvaluateSection(context.Background(), 3, testLocus)

			if tt.wantKind == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.want, result)
				return
			}

			var callErr *domain.CallError
			require.True(t, errors.As(err, &callErr), "expected CallError, got %v", err)
			assert.Equal(t, tt.wantKind, callErr.Kind)
			assert.NotEmpty(t, callErr.Message)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, callErr.Message)
			}
			if tt.wantStatus != 0 {
				assert.Equal(t, tt.wantStatus, callErr.StatusCode)
			}
		})
	}
}

func TestBackendClient_EvaluateSection_InvalidSection(t *testing.T) {
	client := NewBackendClient(domain.BackendConfig{BaseURL: "http://unused"}, quietLogger())

	_, err := client.EvaluateSection(context.Background(), 6, testLocus)

	var vErr *domain.ValidationError
	assert.True(t, errors.As(err, &vErr))
}

func TestBackendClient_EvaluateRisk(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		want     *domain.RiskEstimate
		wantKind domain.CallErrorKind
	}{
		{"success", `{"overall_risk":0.97,"severity":"Pathogenic"}`, &domain.RiskEstimate{OverallRisk: 0.97, Severity: domain.RiskPathogenic}, ""},
		{"snake case severity", `{"overall_risk":0.2,"severity":"likely_benign"}`, &domain.RiskEstimate{OverallRisk: 0.2, Severity: domain.RiskLikelyBenign}, ""},
		{"risk out of range", `{"overall_risk":1.7,"severity":"Pathogenic"}`, nil, domain.CallMalformed},
		{"unknown severity", `{"overall_risk":0.5,"severity":"mild"}`, nil, domain.CallMalformed},
		{"missing severity", `{"overall_risk":0.5}`, nil, domain.CallMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/cnv/chr22:18660000-21520000/risk/loss", r.URL.Path)
				fmt.Fprint(w, tt.body)
			})

			result, err := client.EvaluateRisk(context.Background(), testLocus)

			if tt.wantKind == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.want, result)
				return
			}
			var callErr *domain.CallError
			require.True(t, errors.As(err, &callErr))
			assert.Equal(t, tt.wantKind, callErr.Kind)
		})
	}
}

func TestBackendClient_Headers(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.NotEmpty(t, r.Header.Get("timestamp"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		assert.Equal(t, "https://cnv.example.org", r.Header.Get("Origin"))
		fmt.Fprint(w, `{"overall_risk":0.5,"severity":"Uncertain"}`)
	})
	client.origin = "https://cnv.example.org"

	_, err := client.EvaluateRisk(context.Background(), testLocus)
	require.NoError(t, err)
}

func TestBackendClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.EvaluateSection(ctx, 1, testLocus)

	var callErr *domain.CallError
	require.True(t, errors.As(err, &callErr))
	assert.Equal(t, domain.CallTimeout, callErr.Kind)
	assert.Equal(t, "Request GET "+client.SectionEndpoint(1, testLocus)+" took too long. Aborting Request", callErr.Message)
}

func TestBackendClient_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewBackendClient(domain.BackendConfig{BaseURL: url, Breaker: domain.BreakerConfig{MinRequests: 1000}}, quietLogger())

	_, err := client.EvaluateRisk(context.Background(), testLocus)

	var callErr *domain.CallError
	require.True(t, errors.As(err, &callErr))
	assert.Equal(t, domain.CallTransport, callErr.Kind)
	assert.NotEmpty(t, callErr.Message)
}

func TestBackendClient_CircuitBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"detail":{"message":"model warming up"}}`)
	}))
	defer server.Close()

	client := NewBackendClient(domain.BackendConfig{
		BaseURL:   server.URL,
		RateLimit: 1000,
		RateBurst: 100,
		Breaker:   domain.BreakerConfig{MinRequests: 2, FailureRatio: 0.5, Timeout: time.Minute},
	}, quietLogger())

	for i := 0; i < 2; i++ {
		_, err := client.EvaluateRisk(context.Background(), testLocus)
		var callErr *domain.CallError
		require.True(t, errors.As(err, &callErr))
		assert.Equal(t, domain.CallStatus, callErr.Kind)
		assert.Equal(t, "model warming up", callErr.Message)
	}

	_, err := client.EvaluateRisk(context.Background(), testLocus)
	var callErr *domain.CallError
	require.True(t, errors.As(err, &callErr))
	assert.Equal(t, domain.CallTransport, callErr.Kind)
	assert.Contains(t, callErr.Message, "circuit breaker")
	assert.Equal(t, int32(2), calls.Load())
}

func TestBackendClient_CancelledCallsDoNotTripBreaker(t *testing.T) {
	var healthy atomic.Bool
	var arrived atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			fmt.Fprint(w, `{"overall_risk": 0.2, "severity": "Benign"}`)
			return
		}
		arrived.Add(1)
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewBackendClient(domain.BackendConfig{
		BaseURL:   server.URL,
		RateLimit: 1000,
		RateBurst: 100,
	}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, domain.SectionCount+1)
	for i := 0; i < domain.SectionCount+1; i++ {
		go func() {
			_, err := client.EvaluateRisk(ctx, testLocus)
			errs <- err
		}()
	}
	require.Eventually(t, func() bool {
		return arrived.Load() == int32(domain.SectionCount+1)
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	for i := 0; i < domain.SectionCount+1; i++ {
		err := <-errs
		var callErr *domain.CallError
		require.True(t, errors.As(err, &callErr))
		assert.Contains(t, callErr.Message, "was cancelled")
	}

	healthy.Store(true)
	assert.Equal(t, gobreaker.StateClosed, client.breaker.State())
	_, err := client.EvaluateRisk(context.Background(), testLocus)
	require.NoError(t, err)
}

func TestBackendClient_HalfOpenAdmitsFullFanOut(t *testing.T) {
	var healthy atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"overall_risk": 0.2, "severity": "Benign"}`)
	}))
	defer server.Close()

	client := NewBackendClient(domain.BackendConfig{
		BaseURL:   server.URL,
		RateLimit: 1000,
		RateBurst: 100,
		Breaker:   domain.BreakerConfig{MinRequests: 2, FailureRatio: 0.5, Timeout: 50 * time.Millisecond},
	}, quietLogger())

	for i := 0; i < 2; i++ {
		_, err := client.EvaluateRisk(context.Background(), testLocus)
		require.Error(t, err)
	}
	require.Equal(t, gobreaker.StateOpen, client.breaker.State())

	healthy.Store(true)
	require.Eventually(t, func() bool {
		return client.breaker.State() == gobreaker.StateHalfOpen
	}, 5*time.Second, 10*time.Millisecond)

	// one catalog fetch plus a whole submission
	calls := domain.SectionCount + 2
	errs := make(chan error, calls)
	for i := 0; i < calls; i++ {
		go func() {
			_, err := client.EvaluateRisk(context.Background(), testLocus)
			errs <- err
		}()
	}
	for i := 0; i < calls; i++ {
		assert.NoError(t, <-errs)
	}
}

func TestBackendClient_FetchCatalog(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/global/acmg_text/gain", r.URL.Path)
		fmt.Fprint(w, sampleCatalog)
	})

	catalog, err := client.FetchCatalog(context.Background(), domain.VariantKindGain)

	require.NoError(t, err)
	require.Len(t, catalog[1], 2)
	assert.Equal(t, "1A", catalog[1][0].Label)
}

func TestRequestTimestamp(t *testing.T) {
	ts := time.Date(2024, time.March, 7, 9, 5, 2, 41*int(time.Millisecond), time.Local)
	assert.Equal(t, "2024-3-7T9:5:2.41", requestTimestamp(ts))
}
