package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/invoicekeeper/internal/client/models"
	"github.com/dmitrijs2005/invoicekeeper/internal/common"
	"github.com/dmitrijs2005/invoicekeeper/internal/logging"
	"github.com/google/uuid"
)

const (
	DefaultTimeout = 15 * time.Second

	maxResponseBytes = 4 << 20
)

var ErrInvalidBaseURL = errors.New("invalid base url")

// HTTPClient implements Client over HTTP/JSON. It is immutable after
// construction and safe for concurrent use.
type HTTPClient struct {
	baseURL  string
	http     *http.Client
	tokens   TokenSource
	log      logging.Logger
	timeout  time.Duration
	insecure bool
}

type Option func(*HTTPClient)

func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) { c.timeout = d }
}

// WithInsecureSkipVerify disables TLS certificate checks. Development
// servers often run with a self-signed certificate.
func WithInsecureSkipVerify(skip bool) Option {
	return func(c *HTTPClient) { c.insecure = skip }
}

func WithTokenSource(ts TokenSource) Option {
	return func(c *HTTPClient) { c.tokens = ts }
}

func WithLogger(l logging.Logger) Option {
	return func(c *HTTPClient) { c.log = l }
}

// WithHTTPClient replaces the underlying transport. Timeout and TLS options
// are then ignored.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.http = hc }
}

func NewHTTPClient(baseURL string, opts ...Option) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}

	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: DefaultTimeout,
		tokens:  StaticToken(""),
		log:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if c.insecure {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for dev servers
		}
		c.http = &http.Client{Timeout: c.timeout, Transport: transport}
	}

	return c, nil
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) Login(ctx context.Context, data models.LoginData) (*models.AuthResponse, error) {
	var out models.AuthResponse
	if err := c.call(ctx, http.MethodPost, "/Auth/login", "", data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Register(ctx context.Context, data models.RegisterData) (*models.User, error) {
	var out models.User
	if err := c.call(ctx, http.MethodPost, "/Auth/register", "", data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me fetches the identity behind token. The payload is accepted both inside
// the envelope and bare.
func (c *HTTPClient) Me(ctx context.Context, token string) (*models.User, error) {
	status, body, err := c.send(ctx, http.MethodGet, "/Auth/me", token, nil)
	if err != nil {
		return nil, err
	}
	env, err := decodeEnvelope(status, body)
	if err != nil {
		return nil, err
	}

	raw := body
	if isPresent(env.Data) {
		raw = env.Data
	}

	var me models.MeResponse
	if err := json.Unmarshal(raw, &me); err != nil {
		return nil, &Error{Kind: KindUnknown, Status: status, Err: fmt.Errorf("decode me: %w", err)}
	}
	u := me.ToUser()
	return &u, nil
}

func (c *HTTPClient) ForgotPassword(ctx context.Context, data models.ForgotPasswordData) error {
	return c.call(ctx, http.MethodPost, "/Auth/forgot-password", "", data, nil)
}

func (c *HTTPClient) ResetPassword(ctx context.Context, data models.ResetPasswordData) error {
	return c.call(ctx, http.MethodPost, "/Auth/reset-password", "", data, nil)
}

func (c *HTTPClient) ListInvoices(ctx context.Context) ([]models.Invoice, error) {
	var out []models.Invoice
	if err := c.call(ctx, http.MethodGet, "/invoices", "", nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Invoice{}
	}
	return out, nil
}

func (c *HTTPClient) GetInvoice(ctx context.Context, invoiceNumber string) (*models.Invoice, error) {
	var out models.Invoice
	if err := c.call(ctx, http.MethodGet, invoicePath(invoiceNumber), "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) CreateInvoice(ctx context.Context, data models.CreateInvoiceData) (*models.Invoice, error) {
	var out models.Invoice
	if err := c.call(ctx, http.MethodPost, "/invoices", "", data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) UpdateInvoice(ctx context.Context, invoiceNumber string, data models.UpdateInvoiceData) (*models.Invoice, error) {
	var out models.Invoice
	if err := c.call(ctx, http.MethodPut, invoicePath(invoiceNumber), "", data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) DeleteInvoice(ctx context.Context, invoiceNumber string) error {
	return c.call(ctx, http.MethodDelete, invoicePath(invoiceNumber), "", nil, nil)
}

func invoicePath(invoiceNumber string) string {
	return "/invoices/" + url.PathEscape(invoiceNumber)
}

// call sends a request and decodes the envelope's data into out (if non-nil).
func (c *HTTPClient) call(ctx context.Context, method, path, token string, in, out any) error {
	status, body, err := c.send(ctx, method, path, token, in)
	if err != nil {
		return err
	}
	env, err := decodeEnvelope(status, body)
	if err != nil {
		return err
	}
	if out == nil || !isPresent(env.Data) {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &Error{Kind: KindUnknown, Status: status, Err: fmt.Errorf("decode %s %s: %w", method, path, err)}
	}
	return nil
}

// send performs the round trip. A non-empty token overrides the token source.
// Only transport failures are returned as errors here.
func (c *HTTPClient) send(ctx context.Context, method, path, token string, in any) (int, []byte, error) {
	var reqBody io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(common.RequestIDHeaderName, requestID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if token == "" {
		token, err = c.tokens.Token(ctx)
		if err != nil {
			return 0, nil, fmt.Errorf("token source: %w", err)
		}
	}
	if token != "" {
		req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+token)
	}

	log := c.log.With("request_id", requestID, "method", method, "path", path)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn(ctx, "request failed", "error", err)
		return 0, nil, &Error{Kind: KindNetwork, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		log.Warn(ctx, "reading response failed", "status", resp.StatusCode, "error", err)
		return 0, nil, &Error{Kind: KindNetwork, Err: fmt.Errorf("read response: %w", err)}
	}

	log.Debug(ctx, "request done", "status", resp.StatusCode, "elapsed", time.Since(start))
	return resp.StatusCode, body, nil
}

type envelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  []string        `json:"errors"`
}

// decodeEnvelope maps status and body to the error taxonomy. A 2xx body that
// is not an envelope at all decodes to an empty envelope.
func decodeEnvelope(status int, body []byte) (envelope, error) {
	var env envelope
	decodeErr := json.Unmarshal(body, &env)
	if len(bytes.TrimSpace(body)) == 0 {
		decodeErr = nil
	}

	if status < 200 || status > 299 {
		return env, &Error{
			Kind:    kindForStatus(status),
			Status:  status,
			Message: env.Message,
			Errors:  env.Errors,
		}
	}

	if decodeErr != nil {
		return env, &Error{Kind: KindUnknown, Status: status, Err: fmt.Errorf("decode envelope: %w", decodeErr)}
	}

	if env.Success != nil && !*env.Success {
		kind := KindUnknown
		if len(env.Errors) > 0 {
			kind = KindValidation
		}
		return env, &Error{Kind: kind, Status: status, Message: env.Message, Errors: env.Errors}
	}

	return env, nil
}

func isPresent(raw json.RawMessage) bool {
	s := bytes.TrimSpace(raw)
	return len(s) > 0 && !bytes.Equal(s, []byte("null"))
}
