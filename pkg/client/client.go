package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// ErrBusy is returned by Trigger when the daemon is already running a batch.
var ErrBusy = errors.New("a batch is already running")

// Client talks to the control API of "launchcheck serve".
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Logger   *slog.Logger // Optional logger for client operations
	CACert   string       // PEM bundle used to verify an https daemon
	Insecure bool         // Skip TLS verification
	Token    string       // Bearer token, required when the daemon has auth enabled
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8787/api",
		Timeout: 10 * time.Second,
	}
}

// New creates a new API client. TLS settings apply only to https URLs.
func New(config Config) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := &http.Transport{}
	if config.CACert != "" || config.Insecure {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			config.Logger.Error("TLS setup failed", "error", err)
		} else {
			transport.TLSClientConfig = tlsConfig
		}
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		token:   config.Token,
		logger:  config.Logger,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		c.logger.Debug("Failed to create request for reachability check", "error", err)
		return false
	}
	c.authorize(req)
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Pause holds the batch before its next case.
func (c *Client) Pause(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodPost, "/pause", nil, nil)
}

func (c *Client) Resume(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodPost, "/resume", nil, nil)
}

// Toggle flips the pause flag and reports whether the batch is now paused.
func (c *Client) Toggle(ctx context.Context) (bool, error) {
	var pr pauseResponse
	if err := c.doRequest(ctx, http.MethodPost, "/toggle", nil, &pr); err != nil {
		return false, err
	}
	return pr.Paused, nil
}

// Cancel stops the batch; the case in progress finishes first.
func (c *Client) Cancel(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodPost, "/cancel", nil, nil)
}

// Trigger starts a batch. It returns ErrBusy if one is already running.
func (c *Client) Trigger(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodPost, "/run", nil, nil)
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.doRequest(ctx, http.MethodGet, "/status", nil, &st)
	return st, err
}

// Results returns the rows of the current or last batch.
func (c *Client) Results(ctx context.Context) ([]ResultRow, error) {
	var rows []ResultRow
	err := c.doRequest(ctx, http.MethodGet, "/results?format=json", nil, &rows)
	return rows, err
}

// Login exchanges client credentials for a token. Later calls on c send it.
func (c *Client) Login(ctx context.Context, clientID, clientSecret string) (*Token, error) {
	var tok Token
	in := loginRequest{ClientID: clientID, ClientSecret: clientSecret}
	if err := c.doRequest(ctx, http.MethodPost, "/auth/token", in, &tok); err != nil {
		return nil, err
	}
	c.token = tok.Value
	return &tok, nil
}

// setupClientTLS configures TLS settings for HTTP client
func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{}
	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true
		return tlsConfig, nil
	}
	if config.CACert != "" {
		if err := loadCACert(tlsConfig, config.CACert); err != nil {
			return nil, fmt.Errorf("failed to load CA certificate: %w", err)
		}
	}
	return tlsConfig, nil
}

// loadCACert loads CA certificate from file and adds it to TLS config
func loadCACert(tlsConfig *tls.Config, caCertPath string) error {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return fmt.Errorf("failed to read CA certificate file: %w", err)
	}
	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return fmt.Errorf("failed to parse CA certificate")
	}
	tlsConfig.RootCAs = caCertPool
	return nil
}

// doRequest performs the call and decodes a JSON body into out when given.
func (c *Client) doRequest(ctx context.Context, method, path string, in, out any) error {
	url := c.baseURL + path
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", url)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := c.handleErrorResponse(resp.StatusCode, data); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(code int, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}
	var errorResp ErrorResponse
	if err := json.Unmarshal(body, &errorResp); err != nil || errorResp.Error == "" {
		c.logger.Error("Failed to decode error response", "status", code)
		return fmt.Errorf("HTTP %d", code)
	}
	if code == http.StatusConflict {
		return fmt.Errorf("%w: %s", ErrBusy, errorResp.Error)
	}
	c.logger.Error("API request failed", "error", errorResp.Error, "status", code)
	return fmt.Errorf("API error: %s", errorResp.Error)
}
