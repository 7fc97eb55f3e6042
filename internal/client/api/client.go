package api

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

	"github.com/dmitrijs2005/civilforms/internal/buildinfo"
	"github.com/dmitrijs2005/civilforms/internal/forms"
	"github.com/dmitrijs2005/civilforms/internal/logging"
	"github.com/dmitrijs2005/civilforms/internal/pricing"
	"github.com/dmitrijs2005/civilforms/internal/storage"
	"github.com/dmitrijs2005/civilforms/internal/uploads"
)

// Client talks to one intake server.
type Client struct {
	base           *url.URL
	http           *http.Client
	requestTimeout time.Duration
	userAgent      string
	log            logging.Logger
}

type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRequestTimeout bounds every call except uploads. Zero disables it.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.requestTimeout = d }
}

// WithUserAgent overrides the civilforms-cli/<version> User-Agent.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

func WithLogger(l logging.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New parses baseURL and returns a client for it.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("server url %q is not absolute", baseURL)
	}
	c := &Client{
		base:           u,
		http:           http.DefaultClient,
		requestTimeout: 30 * time.Second,
		userAgent:      defaultUserAgent(),
		log:            logging.Nop{},
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With("module", "api")
	return c, nil
}

func defaultUserAgent() string {
	v := buildinfo.Version
	if v == "" || v == "N/A" {
		v = "dev"
	}
	return "civilforms-cli/" + v
}

// setHeaders stamps the headers every request carries.
func (c *Client) setHeaders(req *http.Request, token string) {
	req.Header.Set("User-Agent", c.userAgent)
	setToken(req, token)
}

func (c *Client) url(path string, q url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.requestTimeout)
}

// do sends a JSON request and decodes a JSON response into out, which may
// be nil. token, when set, goes into the session header.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, token string, in, out any, want int) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path, q), body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.setHeaders(req, token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if err := check(resp, want); err != nil {
		c.log.Debug(ctx, "request failed", "method", method, "path", path, "status", resp.StatusCode, "error", err)
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// Health pings the server's liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, "", nil, nil, http.StatusOK)
}

// NewSession opens an upload session on the server.
func (c *Client) NewSession(ctx context.Context) (*Session, error) {
	s := &Session{c: c}
	if err := c.do(ctx, http.MethodPost, "/api/uploads/sessions", nil, "", nil, s, http.StatusCreated); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

// List returns the stored objects under prefix.
func (c *Client) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	var out struct {
		Items []storage.ObjectInfo `json:"items"`
	}
	q := url.Values{"prefix": {prefix}}
	if err := c.do(ctx, http.MethodGet, "/api/uploads", q, "", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Submission is one form posted for storage.
type Submission struct {
	Form      forms.Form             `json:"form"`
	Files     []uploads.UploadedFile `json:"files,omitempty"`
	Honeypot  string                 `json:"honeypot,omitempty"`
	StartedAt time.Time              `json:"started_at"`
}

// Submit posts a form and returns the stored confirmation.
func (c *Client) Submit(ctx context.Context, sub Submission) (forms.Confirmation, error) {
	var conf forms.Confirmation
	if sub.Form == nil {
		return conf, fmt.Errorf("submit: no form")
	}
	path := "/api/forms/" + url.PathEscape(string(sub.Form.Type()))
	err := c.do(ctx, http.MethodPost, path, nil, "", sub, &conf, http.StatusCreated)
	return conf, err
}

// Confirmation reads back a stored submission.
func (c *Client) Confirmation(ctx context.Context, ft forms.FormType, id string) (forms.Confirmation, error) {
	var conf forms.Confirmation
	path := "/api/forms/" + url.PathEscape(string(ft)) + "/" + url.PathEscape(id)
	err := c.do(ctx, http.MethodGet, path, nil, "", nil, &conf, http.StatusOK)
	return conf, err
}

// Quote is a priced project as the server formats it.
type Quote struct {
	pricing.Breakdown
	Display map[string]string `json:"display"`
	Tier    string            `json:"tier"`
}

// Quote prices in on the server.
func (c *Client) Quote(ctx context.Context, in pricing.Input) (Quote, error) {
	var q Quote
	err := c.do(ctx, http.MethodPost, "/api/pricing/quote", nil, "", in, &q, http.StatusOK)
	return q, err
}
