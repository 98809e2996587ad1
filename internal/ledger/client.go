package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/signalsfoundry/flightplan-simulator/internal/logging"
	"github.com/signalsfoundry/flightplan-simulator/model"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultBaseURL = "http://localhost:3000/api"
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 8 << 20
)

// Config controls how the ledger client connects.
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	ZoneCacheTTL time.Duration
}

// ConfigFromEnv reads LEDGER_URL, LEDGER_TIMEOUT and LEDGER_ZONE_CACHE_TTL,
// falling back to defaults for unset or unparsable values.
func ConfigFromEnv() Config {
	cfg := Config{
		BaseURL:      os.Getenv("LEDGER_URL"),
		Timeout:      defaultTimeout,
		ZoneCacheTTL: 30 * time.Second,
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if raw := os.Getenv("LEDGER_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cfg.Timeout = d
		}
	}
	if raw := os.Getenv("LEDGER_ZONE_CACHE_TTL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d >= 0 {
			cfg.ZoneCacheTTL = d
		}
	}
	return cfg
}

// Client talks to the ledger service that owns zones, route permissions,
// drone and operator records, and telemetry intake. Every request is bounded
// by the configured timeout.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        logging.Logger
}

// NewClient builds a Client for cfg.BaseURL.
func NewClient(cfg Config, log logging.Logger) (*Client, error) {
	if log == nil {
		log = logging.Noop()
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid ledger URL %q", base)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		log: log,
	}, nil
}

// Zones returns every zone known to the ledger.
func (c *Client) Zones(ctx context.Context) ([]model.Zone, error) {
	var zones []model.Zone
	if err := c.do(ctx, "list zones", http.MethodGet, "/zones", nil, &zones); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrZoneLimits, err)
	}
	return zones, nil
}

// CheckRoutePermission submits rc to the route-permission authority and
// normalises its answer. Transport failures and non-success responses are
// returned as errors for the caller to convert.
func (c *Client) CheckRoutePermission(ctx context.Context, rc model.RouteCharacteristics) (model.Decision, error) {
	var out decisionPayload
	if err := c.do(ctx, "route permission check", http.MethodPost, "/routes/permission", rc, &out); err != nil {
		return model.Decision{}, err
	}
	droneID := out.DroneID
	if droneID == "" {
		droneID = rc.DroneID
	}
	switch model.DecisionStatus(strings.ToUpper(out.Status)) {
	case model.DecisionApproved:
		return model.Approve(droneID, out.Reason), nil
	case model.DecisionFailed:
		return model.Fail(droneID, out.Reason), nil
	default:
		reason := out.Reason
		if reason == "" {
			reason = fmt.Sprintf("unrecognised decision status %q", out.Status)
		}
		return model.Fail(droneID, reason), nil
	}
}

// MintDrone registers a drone on the ledger. Validation errors are returned
// without any network call.
func (c *Client) MintDrone(ctx context.Context, reg DroneRegistration) (MintResult, error) {
	if err := reg.Validate(); err != nil {
		return MintResult{}, err
	}
	var out MintResult
	if err := c.do(ctx, "mint drone", http.MethodPost, "/drones/mint", reg, &out); err != nil {
		return MintResult{}, fmt.Errorf("%w: %w", ErrDroneMint, err)
	}
	if out.DroneID == "" {
		return MintResult{}, fmt.Errorf("%w: ledger returned no drone id", ErrDroneMint)
	}
	return out, nil
}

// RegisterOperator records op on the ledger.
func (c *Client) RegisterOperator(ctx context.Context, op model.Operator) error {
	if op.ID == "" || op.Name == "" {
		return fmt.Errorf("%w: operator id and name are required", ErrInvalidRequest)
	}
	return c.do(ctx, "register operator", http.MethodPost, "/operators", op, nil)
}

// OperatorInfo fetches the ledger's record of operator id.
func (c *Client) OperatorInfo(ctx context.Context, id string) (model.Operator, error) {
	var op model.Operator
	err := c.do(ctx, "operator info", http.MethodGet, "/operators/"+url.PathEscape(id), nil, &op)
	var upErr *UpstreamError
	if errors.As(err, &upErr) && upErr.StatusCode == http.StatusNotFound {
		return model.Operator{}, fmt.Errorf("%w: %q", ErrOperatorNotFound, id)
	}
	return op, err
}

// OperatorReputation fetches the reputation score of operator id.
func (c *Client) OperatorReputation(ctx context.Context, id string) (Reputation, error) {
	var rep Reputation
	err := c.do(ctx, "operator reputation", http.MethodGet, "/operators/"+url.PathEscape(id)+"/reputation", nil, &rep)
	return rep, err
}

// ReportLocation sends a per-step position report.
func (c *Client) ReportLocation(ctx context.Context, u model.LocationUpdate) error {
	return c.do(ctx, "location update", http.MethodPost, "/drones/"+url.PathEscape(u.DroneID)+"/location", u, nil)
}

// ReportViolation records an off-route observation.
func (c *Client) ReportViolation(ctx context.Context, v model.Violation) error {
	return c.do(ctx, "violation report", http.MethodPost, "/violations", v, nil)
}

// LogRoute records a completed flight.
func (c *Client) LogRoute(ctx context.Context, r model.RouteLog) error {
	return c.do(ctx, "route log", http.MethodPost, "/routes/log", r, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encoding request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: creating request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := logging.RequestIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-Id", id)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	c.log.Debug(ctx, "ledger request",
		logging.String("op", op),
		logging.String("method", method),
		logging.String("path", path),
		logging.Int("status", resp.StatusCode),
		logging.Duration("elapsed", time.Since(start)),
	)

	limited := io.LimitReader(resp.Body, maxBodyBytes)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(limited, 512))
		return &UpstreamError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, limited)
		return nil
	}
	if err := json.NewDecoder(limited).Decode(out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", op, err)
	}
	return nil
}
