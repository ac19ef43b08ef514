// Package rewards is the HTTP client for the remote rewards backend that
// validates sessions and grants claimed rewards.
package rewards

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

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/game-session-service/internal/core/domain"
	"github.com/duynhne/game-session-service/middleware"
)

// ErrUnexpectedStatus is wrapped by StatusError for any non-2xx answer.
var ErrUnexpectedStatus = domain.ErrUnexpectedStatus

// maxBodyBytes bounds how much of a response is read.
const maxBodyBytes = 1 << 20

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Op     string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed: %d", e.Op, e.Status)
}

func (e *StatusError) Unwrap() error { return ErrUnexpectedStatus }

// Client implements domain.RewardsClient over JSON/HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client for baseURL with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type validateResponse struct {
	IsValid bool `json:"isValid"`
}

// ValidateSession posts to /api/session/{id}/validate.
func (c *Client) ValidateSession(ctx context.Context, req domain.ValidateRequest) (bool, error) {
	ctx, span := middleware.StartSpan(ctx, "rewards.validate_session", trace.WithAttributes(
		attribute.String("layer", "client"),
		attribute.String("session.id", req.SessionID),
	), trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	endpoint := c.baseURL + "/api/session/" + url.PathEscape(req.SessionID) + "/validate"
	body, err := c.post(ctx, "validate", endpoint, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	var resp validateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("decode validate response: %w", err)
	}

	span.SetAttributes(attribute.Bool("session.valid", resp.IsValid))
	return resp.IsValid, nil
}

// ClaimRewards posts to /api/claim-rewards. The raw receipt is kept in the result.
func (c *Client) ClaimRewards(ctx context.Context, req domain.ClaimRequest) (*domain.ClaimResult, error) {
	ctx, span := middleware.StartSpan(ctx, "rewards.claim", trace.WithAttributes(
		attribute.String("layer", "client"),
		attribute.String("session.id", req.SessionID),
		attribute.Float64("claim.coins", req.Coins),
		attribute.Float64("claim.xp", req.XP),
	), trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	body, err := c.post(ctx, "claim", c.baseURL+"/api/claim-rewards", req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var result domain.ClaimResult
	if err := json.Unmarshal(body, &result); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("decode claim response: %w", err)
	}
	result.Raw = json.RawMessage(body)

	return &result, nil
}

func (c *Client) post(ctx context.Context, op, endpoint string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	middleware.InjectTraceContext(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &StatusError{Op: op, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", op, err)
	}
	return body, nil
}
