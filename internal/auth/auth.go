// Package auth acquires Kite access tokens via the login + TOTP flow.
//
// The flow mirrors the browser handshake: password login, TOTP two-factor
// answer, then the connect/login redirect that carries a request token,
// which is exchanged (with a SHA-256 checksum) for the day's access token.
// Access tokens are invalidated by the broker daily; the connector owns the
// single TokenSource that sessions read.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
)

// ErrAuthRejected reports that the broker refused the credentials, the
// two-factor answer, or the token exchange. Not retried here; the caller
// decides whether to re-attempt a full login.
var ErrAuthRejected = errors.New("authentication rejected")

// Credentials holds everything needed for a scripted Kite login.
type Credentials struct {
	APIKey     string
	APISecret  string
	UserID     string
	Password   string
	TOTPSecret string // base32 seed shown at TOTP enrollment
}

// Client performs the login flow against the broker.
type Client struct {
	creds    Credentials
	loginURL string
	apiURL   string
	timeout  time.Duration
	logger   *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a login client.
func NewClient(creds Credentials, opts ...ClientOption) *Client {
	c := &Client{
		creds:    creds,
		loginURL: "https://kite.zerodha.com",
		apiURL:   "https://api.kite.trade",
		timeout:  30 * time.Second,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithLoginURL overrides the interactive login host.
func WithLoginURL(u string) ClientOption {
	return func(c *Client) {
		c.loginURL = strings.TrimRight(u, "/")
	}
}

// WithAPIURL overrides the REST API host.
func WithAPIURL(u string) ClientOption {
	return func(c *Client) {
		c.apiURL = strings.TrimRight(u, "/")
	}
}

// WithTimeout sets the HTTP timeout for each login step.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Login runs the full flow and returns a fresh access token.
func (c *Client) Login(ctx context.Context) (string, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return "", fmt.Errorf("cookie jar: %w", err)
	}

	// The connect/login step answers with a redirect chain whose final hop
	// targets the app's registered redirect URL. That URL is usually not
	// routable from here, so the chase stops as soon as a hop carries the
	// request token.
	var requestToken string
	httpClient := &http.Client{
		Timeout: c.timeout,
		Jar:     jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if tok := req.URL.Query().Get("request_token"); tok != "" {
				requestToken = tok
				return http.ErrUseLastResponse
			}
			if len(via) >= 10 {
				return errors.New("too many redirects")
			}
			return nil
		},
	}

	requestID, err := c.passwordLogin(ctx, httpClient)
	if err != nil {
		return "", err
	}
	c.logger.Debug("password step accepted", "user_id", c.creds.UserID)

	if err := c.answerTwoFA(ctx, httpClient, requestID); err != nil {
		return "", err
	}
	c.logger.Debug("twofa step accepted", "user_id", c.creds.UserID)

	if err := c.chaseRequestToken(ctx, httpClient, &requestToken); err != nil {
		return "", err
	}

	token, err := c.exchangeToken(ctx, httpClient, requestToken)
	if err != nil {
		return "", err
	}

	c.logger.Info("access token acquired", "user_id", c.creds.UserID)
	return token, nil
}

// apiEnvelope is the broker's standard JSON response wrapper.
type apiEnvelope struct {
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	ErrorType string          `json:"error_type"`
	Data      json.RawMessage `json:"data"`
}

func (c *Client) passwordLogin(ctx context.Context, httpClient *http.Client) (string, error) {
	form := url.Values{
		"user_id":  {c.creds.UserID},
		"password": {c.creds.Password},
	}

	var data struct {
		RequestID string `json:"request_id"`
		TwoFAType string `json:"twofa_type"`
	}
	if err := c.postForm(ctx, httpClient, c.loginURL+"/api/login", form, &data); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if data.RequestID == "" {
		return "", fmt.Errorf("login: %w: no request id in response", ErrAuthRejected)
	}
	return data.RequestID, nil
}

func (c *Client) answerTwoFA(ctx context.Context, httpClient *http.Client, requestID string) error {
	code, err := totp.GenerateCode(c.creds.TOTPSecret, time.Now())
	if err != nil {
		return fmt.Errorf("generate totp: %w", err)
	}

	form := url.Values{
		"user_id":     {c.creds.UserID},
		"request_id":  {requestID},
		"twofa_value": {code},
		"twofa_type":  {"totp"},
	}

	if err := c.postForm(ctx, httpClient, c.loginURL+"/api/twofa", form, nil); err != nil {
		return fmt.Errorf("twofa: %w", err)
	}
	return nil
}

func (c *Client) chaseRequestToken(ctx context.Context, httpClient *http.Client, requestToken *string) error {
	connectURL := fmt.Sprintf("%s/connect/login?v=3&api_key=%s", c.loginURL, url.QueryEscape(c.creds.APIKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, connectURL, nil)
	if err != nil {
		return fmt.Errorf("connect login: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connect login: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	// Redirect chase may have landed on the final URL instead of stopping
	// one hop earlier.
	if *requestToken == "" {
		*requestToken = resp.Request.URL.Query().Get("request_token")
	}
	if *requestToken == "" {
		return fmt.Errorf("connect login: %w: no request token in redirect chain", ErrAuthRejected)
	}
	return nil
}

func (c *Client) exchangeToken(ctx context.Context, httpClient *http.Client, requestToken string) (string, error) {
	checksum := sha256.Sum256([]byte(c.creds.APIKey + requestToken + c.creds.APISecret))

	form := url.Values{
		"api_key":       {c.creds.APIKey},
		"request_token": {requestToken},
		"checksum":      {hex.EncodeToString(checksum[:])},
	}

	var data struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.postForm(ctx, httpClient, c.apiURL+"/session/token", form, &data); err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	if data.AccessToken == "" {
		return "", fmt.Errorf("token exchange: %w: empty access token", ErrAuthRejected)
	}
	return data.AccessToken, nil
}

// postForm posts a form and decodes the broker envelope into out (if any).
// A non-success envelope maps to ErrAuthRejected with the broker's message.
func (c *Client) postForm(ctx context.Context, httpClient *http.Client, rawURL string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Kite-Version", "3")

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("parse response (status %d): %w", resp.StatusCode, err)
	}

	if env.Status != "success" {
		return fmt.Errorf("%w: %s (%s)", ErrAuthRejected, env.Message, env.ErrorType)
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("parse response data: %w", err)
		}
	}
	return nil
}
