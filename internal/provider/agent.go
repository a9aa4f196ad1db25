package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/kasuwa/accbot/core/logger"
	"github.com/kasuwa/accbot/core/netutil"
	"github.com/kasuwa/accbot/internal/domain"

	"log/slog"
)

const (
	defaultDialTimeout     = 5 * time.Second
	defaultClientTimeout   = 45 * time.Second
	defaultIdleConnTimeout = 30 * time.Second
	defaultRetryAttempts   = 2
	defaultRetryBackoff    = 2 * time.Second
)

// AgentConfig configures the HTTP client for the login agent daemon.
type AgentConfig struct {
	BaseURL   string
	AuthToken string
	Timeout   time.Duration
}

// AgentClient implements Client over the login agent's JSON API. The agent
// holds the actual provider connections; each handle maps to one agent-side
// session.
type AgentClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewAgentClient builds an AgentClient with a transport tuned the same way
// as the Telegram API client: short dial timeout, transient-error retries.
func NewAgentClient(cfg AgentConfig) *AgentClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     defaultIdleConnTimeout,
	}
	return &AgentClient{
		baseURL: cfg.BaseURL,
		token:   cfg.AuthToken,
		http: &http.Client{
			Timeout: timeout,
			Transport: &retryTransport{
				base:       transport,
				maxRetries: defaultRetryAttempts,
				backoff:    defaultRetryBackoff,
			},
		},
	}
}

type agentHandle struct {
	id string
}

func (h *agentHandle) ID() string { return h.id }

type agentError struct {
	Error             string `json:"error"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}

type signInResponse struct {
	Result string `json:"result"`
}

// Open creates a fresh agent-side provider session.
func (c *AgentClient) Open(ctx context.Context) (Handle, error) {
	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/sessions", nil, &out); err != nil {
		return nil, &domain.ProviderFaultError{Op: "open", Err: err}
	}
	if out.SessionID == "" {
		return nil, &domain.ProviderFaultError{Op: "open", Err: fmt.Errorf("agent returned empty session id")}
	}
	return &agentHandle{id: out.SessionID}, nil
}

// RequestCode asks the agent to dispatch a login code to the identifier.
func (c *AgentClient) RequestCode(ctx context.Context, h Handle, identifier string) error {
	body := map[string]string{"phone_number": identifier}
	err := c.do(ctx, http.MethodPost, "/v1/sessions/"+h.ID()+"/code", body, nil)
	return err
}

// SubmitCode completes sign-in with the dispatched code.
func (c *AgentClient) SubmitCode(ctx context.Context, h Handle, code string) (SignInResult, error) {
	var out signInResponse
	if err := c.do(ctx, http.MethodPost, "/v1/sessions/"+h.ID()+"/sign-in", map[string]string{"code": code}, &out); err != nil {
		return 0, err
	}
	switch out.Result {
	case "ok":
		return SignInOK, nil
	case "second_factor_required":
		return SignInSecondFactorRequired, nil
	case "invalid_code":
		return SignInInvalidCode, nil
	}
	return 0, &domain.ProviderFaultError{Op: "sign-in", Err: fmt.Errorf("unknown result %q", out.Result)}
}

// SubmitSecondFactor completes a password-protected sign-in.
func (c *AgentClient) SubmitSecondFactor(ctx context.Context, h Handle, secret string) (SignInResult, error) {
	var out signInResponse
	if err := c.do(ctx, http.MethodPost, "/v1/sessions/"+h.ID()+"/second-factor", map[string]string{"password": secret}, &out); err != nil {
		return 0, err
	}
	switch out.Result {
	case "ok":
		return SignInOK, nil
	case "invalid_password":
		return SignInInvalidSecret, nil
	}
	return 0, &domain.ProviderFaultError{Op: "second-factor", Err: fmt.Errorf("unknown result %q", out.Result)}
}

// Close tears the agent-side session down. Best effort: the agent expires
// abandoned sessions on its own, so a failed delete is only logged.
func (c *AgentClient) Close(h Handle) {
	if h == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.do(ctx, http.MethodDelete, "/v1/sessions/"+h.ID(), nil, nil); err != nil {
		logger.PROV.Warn("session close failed",
			slog.String("event", "provider.close"),
			slog.String("session", h.ID()),
			slog.String("err", err.Error()),
		)
	}
}

func (c *AgentClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.ProviderFaultError{Op: method + " " + path, Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &domain.ProviderFaultError{Op: path, Err: fmt.Errorf("decode response: %w", err)}
		}
		return nil
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return ErrInvalidIdentifier
	case resp.StatusCode == http.StatusTooManyRequests:
		var ae agentError
		_ = json.NewDecoder(resp.Body).Decode(&ae)
		wait := time.Duration(ae.RetryAfterSeconds) * time.Second
		if wait <= 0 {
			wait = time.Minute
		}
		return &domain.RateLimitedError{RetryAfter: wait}
	default:
		return &domain.ProviderFaultError{Op: path, Err: fmt.Errorf("agent status %s", resp.Status)}
	}
}

type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	backoff    time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	attempts := t.maxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		currReq := req
		if attempt > 1 {
			currReq = req.Clone(req.Context())
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				currReq.Body = body
			} else if req.Body != nil {
				return nil, lastErr
			}
		}

		resp, err := base.RoundTrip(currReq)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !netutil.ShouldRetry(err) || attempt == attempts {
			break
		}

		delay := t.backoff * time.Duration(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}

	return nil, lastErr
}
