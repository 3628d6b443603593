// Package client drives the CloneCademy API from Go: an HTTP wrapper around the
// /api endpoints, the course view loading lifecycle and the moderator request form.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/clonecademy/clonecademy/core"
)

const (
	tokenCookie     = "token"
	maxErrorBody    = 4 << 10
	defaultTimeout  = 30 * time.Second
	defaultEndpoint = "http://localhost:8000/api/"
)

// HTTPError is returned for any non-2xx response.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	StatusText string
	Message    string
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.StatusText)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// StatusCode returns the HTTP status carried by err, or 0 when err is not an *HTTPError.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// Getter is the read side of Server.
type Getter interface {
	Get(ctx context.Context, path string, authenticated bool, out interface{}) error
}

// API is what the forms need from Server.
type API interface {
	Getter
	Post(ctx context.Context, path string, body, out interface{}) error
}

// Server talks JSON to the API. The token is kept as a cookie in its jar.
type Server struct {
	base   *url.URL
	http   *http.Client
	logger core.Logger
}

func NewServer(conf core.ClientConfig, logger core.Logger) (*Server, error) {
	if logger == nil {
		logger = core.NopLogger()
	}
	endpoint := conf.BaseURL
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	base, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "parsing base url")
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating cookie jar")
	}
	timeout := conf.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	s := &Server{
		base:   base,
		http:   &http.Client{Jar: jar, Timeout: timeout},
		logger: logger,
	}
	if conf.Token != "" {
		s.SetToken(conf.Token)
	}
	return s, nil
}

// SetToken stores token as the credential sent with authenticated requests.
func (s *Server) SetToken(token string) {
	s.http.Jar.SetCookies(s.base, []*http.Cookie{{Name: tokenCookie, Value: token, Path: s.base.Path}})
}

// Token returns the stored credential, if any.
func (s *Server) Token() string {
	for _, c := range s.http.Jar.Cookies(s.base) {
		if c.Name == tokenCookie {
			return c.Value
		}
	}
	return ""
}

func (s *Server) Get(ctx context.Context, path string, authenticated bool, out interface{}) error {
	return s.do(ctx, http.MethodGet, path, nil, authenticated, out)
}

func (s *Server) Post(ctx context.Context, path string, body, out interface{}) error {
	return s.do(ctx, http.MethodPost, path, body, true, out)
}

// Login exchanges credentials for a token and stores it.
func (s *Server) Login(ctx context.Context, username, password string) error {
	var resp struct {
		Token string `json:"token"`
	}
	creds := map[string]string{"username": username, "password": password}
	if err := s.do(ctx, http.MethodPost, "users/login", creds, false, &resp); err != nil {
		return errors.Wrap(err, "logging in")
	}
	if resp.Token == "" {
		return errors.New("logging in: empty token")
	}
	s.SetToken(resp.Token)
	return nil
}

func (s *Server) do(ctx context.Context, method, path string, body interface{}, authenticated bool, out interface{}) error {
	rel, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return errors.Wrapf(err, "parsing path %q", path)
	}
	target := s.base.ResolveReference(rel)

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return errors.Wrap(err, "creating request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated {
		if token := s.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		httpErr := &HTTPError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			Message:    errorMessage(raw),
		}
		s.logger.Debug(httpErr.Error())
		return httpErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.Wrapf(err, "reading %s %s", method, path)
		}
		*raw = b
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decoding %s %s", method, path)
	}
	return nil
}

// errorMessage extracts {"error": "..."} bodies and falls back to the raw text.
func errorMessage(raw []byte) string {
	var body struct {
		Error interface{} `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != nil {
		if msg, ok := body.Error.(string); ok {
			return msg
		}
		b, _ := json.Marshal(body.Error)
		return string(b)
	}
	return strings.TrimSpace(string(raw))
}
