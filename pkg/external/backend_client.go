package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/cnv-acmg-classifier/internal/domain"
)

// DefaultCallTimeout is how long a single backend call may take.
const DefaultCallTimeout = 3 * time.Minute

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 8 << 20

// BackendClient talks to the CNV evaluation backend: the five ACMG section
// endpoints, the risk model and the evidence catalog.
type BackendClient struct {
	baseURL     string
	origin      string
	callTimeout time.Duration
	httpClient  *http.Client
	rateLimit   *rate.Limiter
	breaker     *gobreaker.CircuitBreaker
	logger      *logrus.Logger
	now         func() time.Time
}

// NewBackendClient creates a new backend client
func NewBackendClient(config domain.BackendConfig, logger *logrus.Logger) *BackendClient {
	if logger == nil {
		logger = logrus.New()
	}
	if config.CallTimeout == 0 {
		config.CallTimeout = DefaultCallTimeout
	}
	if config.RateLimit == 0 {
		config.RateLimit = 20
	}
	if config.RateBurst == 0 {
		// one full submission fans out to six calls at once
		config.RateBurst = 2 * (domain.SectionCount + 1)
	}

	return &BackendClient{
		baseURL:     strings.TrimSuffix(config.BaseURL, "/"),
		origin:      config.Origin,
		callTimeout: config.CallTimeout,
		// Deadlines come from the caller's context so each call can be
		// cancelled on its own.
		httpClient: &http.Client{},
		rateLimit:  rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst),
		breaker:    newCircuitBreaker("cnv-backend", config.Breaker, logger),
		logger:     logger,
		now:        time.Now,
	}
}

// CallTimeout returns the per-call timeout the client was configured with.
func (c *BackendClient) CallTimeout() time.Duration {
	return c.callTimeout
}

// SectionEndpoint returns the URL of an ACMG section evaluation.
func (c *BackendClient) SectionEndpoint(section int, locus domain.Locus) string {
	return fmt.Sprintf("%s/api/acmg/section%d/%s/%d/%d/%s",
		c.baseURL, section, locus.Chromosome, locus.Start, locus.End, locus.VariantKind)
}

// RiskEndpoint returns the URL of the risk model evaluation.
func (c *BackendClient) RiskEndpoint(locus domain.Locus) string {
	return fmt.Sprintf("%s/api/cnv/%s/risk/%s", c.baseURL, locus.Region(), locus.VariantKind)
}

// CatalogEndpoint returns the URL of the evidence catalog for a variant kind.
func (c *BackendClient) CatalogEndpoint(kind domain.VariantKind) string {
	return fmt.Sprintf("%s/api/global/acmg_text/%s", c.baseURL, kind)
}

// sectionPayload is the wire form of a section evaluation
type sectionPayload struct {
	Section json.RawMessage `json:"section"`
	Option  *string         `json:"option"`
	Score   *wireNumber     `json:"score"`
	Reason  *string         `json:"reason"`
}

// riskPayload is the wire form of a risk evaluation
type riskPayload struct {
	OverallRisk *wireNumber `json:"overall_risk"`
	Severity    *string     `json:"severity"`
}

// EvaluateSection fetches the backend's evaluation of one ACMG section.
func (c *BackendClient) EvaluateSection(ctx context.Context, section int, locus domain.Locus) (*domain.SectionResult, error) {
	if !domain.IsValidSection(section) {
		return nil, domain.NewValidationError("section", "must be between 1 and 5", section)
	}

	endpoint := c.SectionEndpoint(section, locus)
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var payload sectionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, c.malformed(endpoint, err)
	}
	if payload.Option == nil {
		return nil, c.malformed(endpoint, errors.New("missing field 'option'"))
	}
	if payload.Score == nil || !payload.Score.Set {
		return nil, c.malformed(endpoint, errors.New("missing field 'score'"))
	}

	result := &domain.SectionResult{
		Section: section,
		Option:  *payload.Option,
		Score:   payload.Score.Value,
		Reason:  domain.NoReason,
	}
	if payload.Reason != nil {
		result.Reason = *payload.Reason
	}
	return result, nil
}

// EvaluateRisk fetches the risk model's estimate for the locus.
func (c *BackendClient) EvaluateRisk(ctx context.Context, locus domain.Locus) (*domain.RiskEstimate, error) {
	endpoint := c.RiskEndpoint(locus)
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var payload riskPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, c.malformed(endpoint, err)
	}
	if payload.OverallRisk == nil || !payload.OverallRisk.Set {
		return nil, c.malformed(endpoint, errors.New("missing field 'overall_risk'"))
	}
	if payload.Severity == nil {
		return nil, c.malformed(endpoint, errors.New("missing field 'severity'"))
	}

	severity, err := domain.ParseRiskSeverity(*payload.Severity)
	if err != nil {
		return nil, c.malformed(endpoint, err)
	}
	estimate := &domain.RiskEstimate{OverallRisk: payload.OverallRisk.Value, Severity: severity}
	if err := estimate.Validate(); err != nil {
		return nil, c.malformed(endpoint, err)
	}
	return estimate, nil
}

// FetchCatalog downloads and decodes the evidence catalog for a variant kind.
// Without a deadline on ctx the configured call timeout applies.
func (c *BackendClient) FetchCatalog(ctx context.Context, kind domain.VariantKind) (domain.EvidenceCatalog, error) {
	if !kind.IsValid() {
		return nil, domain.NewValidationError("variant_kind", "must be gain or loss", kind)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	endpoint := c.CatalogEndpoint(kind)
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	catalog, err := DecodeCatalog(body)
	if err != nil {
		return nil, c.malformed(endpoint, err)
	}
	return catalog, nil
}

// rawResponse is what the breaker-guarded round trip hands back.
type rawResponse struct {
	status int
	body   []byte
}

// get performs one GET and returns the body of a 200 response. Every failure
// is returned as a *domain.CallError.
func (c *BackendClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	const method = http.MethodGet
	start := time.Now()

	if err := c.rateLimit.Wait(ctx); err != nil {
		return nil, c.transportError(ctx, method, endpoint, fmt.Errorf("rate limit wait failed: %w", err))
	}

	var resp *rawResponse
	_, err := c.breaker.Execute(func() (interface{}, error) {
		r, err := c.roundTrip(ctx, method, endpoint)
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil, fmt.Errorf("%w: %w", context.Canceled, err)
			}
			return nil, err
		}
		resp = r
		if r.status >= http.StatusInternalServerError {
			return r, errServerStatus
		}
		return r, nil
	})

	logger := c.logger.WithFields(logrus.Fields{
		"method":   method,
		"endpoint": endpoint,
		"duration": time.Since(start).String(),
	})

	if err != nil && !errors.Is(err, errServerStatus) {
		callErr := c.transportError(ctx, method, endpoint, err)
		logger.WithField("kind", callErr.Kind).Warn(callErr.Message)
		return nil, callErr
	}

	if resp.status != http.StatusOK {
		callErr := domain.NewCallError(domain.CallStatus, method, endpoint, resp.status, statusMessage(resp.status, resp.body), nil)
		logger.WithFields(logrus.Fields{"kind": callErr.Kind, "status": resp.status}).Warn(callErr.Message)
		return nil, callErr
	}

	logger.WithField("status", resp.status).Debug("Backend call succeeded")
	return resp.body, nil
}

// roundTrip sends the request and reads the whole body.
func (c *BackendClient) roundTrip(ctx context.Context, method, endpoint string) (*rawResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("timestamp", requestTimestamp(c.now()))
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())
	if c.origin != "" {
		req.Header.Set("Origin", c.origin)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &rawResponse{status: resp.StatusCode, body: body}, nil
}

// transportError converts a failed round trip into a timeout or transport error.
func (c *BackendClient) transportError(ctx context.Context, method, endpoint string, err error) *domain.CallError {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return domain.NewCallError(domain.CallTimeout, method, endpoint, 0,
			fmt.Sprintf("Request %s %s took too long. Aborting Request", method, endpoint), err)
	case errors.Is(ctx.Err(), context.Canceled):
		return domain.NewCallError(domain.CallTransport, method, endpoint, 0,
			fmt.Sprintf("Request %s %s was cancelled", method, endpoint), err)
	case isBreakerRejection(err):
		return domain.NewCallError(domain.CallTransport, method, endpoint, 0,
			fmt.Sprintf("CNV backend unavailable (circuit breaker %s)", c.breaker.State()), err)
	}
	return domain.NewCallError(domain.CallTransport, method, endpoint, 0, err.Error(), err)
}

func (c *BackendClient) malformed(endpoint string, err error) *domain.CallError {
	callErr := domain.NewCallError(domain.CallMalformed, http.MethodGet, endpoint, http.StatusOK,
		fmt.Sprintf("Malformed response from %s %s: %v", http.MethodGet, endpoint, err), err)
	c.logger.WithFields(logrus.Fields{
		"endpoint": endpoint,
		"kind":     callErr.Kind,
	}).Warn(callErr.Message)
	return callErr
}

// requestTimestamp renders local time the way the backend logs expect it:
// unpadded fields, e.g. 2024-3-7T9:5:2.41
func requestTimestamp(t time.Time) string {
	return fmt.Sprintf("%d-%d-%dT%d:%d:%d.%d",
		t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/int(time.Millisecond))
}
