package pipeline

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pulsebot/pulse/internal/metrics"
)

type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeParseFailure     Outcome = "parse_failure"
	OutcomeTransportFailure Outcome = "transport_failure"
	OutcomeTimeout          Outcome = "timeout"
)

// LookupResult is the normalized outcome of one endpoint call. Exactly
// one of Payload, RawBody, and Message is populated, selected by
// Outcome; every path through the lookup client produces one.
type LookupResult struct {
	Action    Action  `json:"action"`
	Parameter string  `json:"parameter"`
	Outcome   Outcome `json:"outcome"`
	Payload   any     `json:"payload,omitempty"`
	RawBody   string  `json:"raw_body,omitempty"`
	Message   string  `json:"message,omitempty"`
}

type LookupConfig struct {
	Timeout       time.Duration
	TLSSkipVerify bool
	UserAgent     string
}

type LookupClient struct {
	registry   *Registry
	httpClient *http.Client
	timeout    time.Duration
	userAgent  string
	metrics    *metrics.Registry
	logger     *slog.Logger
}

func NewLookupClient(registry *Registry, cfg LookupConfig, reg *metrics.Registry, logger *slog.Logger) *LookupClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = "pulse-agent/0.1"
	}
	if logger == nil {
		logger = slog.Default()
	}

	transport := http.DefaultTransport
	if cfg.TLSSkipVerify {
		// Opt-in only. The upstream endpoints sit behind a proxy with
		// certificates some deployments cannot validate.
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
		logger.Warn("lookup tls verification disabled")
	}

	return &LookupClient{
		registry:   registry,
		httpClient: &http.Client{Transport: transport},
		timeout:    cfg.Timeout,
		userAgent:  cfg.UserAgent,
		metrics:    reg,
		logger:     logger,
	}
}

// Lookup calls the endpoint for the given action and parameter. It
// never returns an error; failures are folded into the result.
func (c *LookupClient) Lookup(ctx context.Context, action Action, parameter string) LookupResult {
	action, endpoint := c.registry.Resolve(action, parameter)
	result := LookupResult{Action: action, Parameter: parameter}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		result.Outcome = OutcomeTransportFailure
		result.Message = err.Error()
		c.record(result)
		return result
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	res, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(reqCtx, err) {
			result.Outcome = OutcomeTimeout
			result.Message = "no response within " + c.timeout.String()
		} else {
			result.Outcome = OutcomeTransportFailure
			result.Message = err.Error()
		}
		c.record(result)
		return result
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		if isTimeout(reqCtx, err) {
			result.Outcome = OutcomeTimeout
			result.Message = "no response within " + c.timeout.String()
		} else {
			result.Outcome = OutcomeTransportFailure
			result.Message = err.Error()
		}
		c.record(result)
		return result
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		result.Outcome = OutcomeParseFailure
		result.RawBody = string(body)
		c.record(result)
		return result
	}

	result.Outcome = OutcomeSuccess
	result.Payload = payload
	c.record(result)
	return result
}

func (c *LookupClient) record(result LookupResult) {
	if c.metrics != nil {
		switch result.Outcome {
		case OutcomeSuccess:
			c.metrics.LookupSuccess()
		case OutcomeParseFailure:
			c.metrics.LookupParseFailure()
		case OutcomeTransportFailure:
			c.metrics.LookupTransportFailure()
		case OutcomeTimeout:
			c.metrics.LookupTimeout()
		}
	}
	if result.Outcome == OutcomeSuccess {
		c.logger.Debug("lookup completed", "action", string(result.Action), "parameter", result.Parameter)
		return
	}
	c.logger.Warn("lookup failed", "action", string(result.Action), "parameter", result.Parameter, "outcome", string(result.Outcome), "message", result.Message)
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
