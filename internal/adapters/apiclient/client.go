// Package apiclient is the client-side view of the fintrack session API.
// It keeps the session cookie in a jar, emits auth state events to
// subscribers, and fetches the stored profile for the current session.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	domainauth "github.com/fintrack/fintrack-api/internal/domain/auth"
	"github.com/fintrack/fintrack-api/internal/ports"
)

var (
	_ ports.SessionSource  = (*Client)(nil)
	_ ports.ProfileFetcher = (*Client)(nil)
)

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 1 << 20

// Options configures a Client.
type Options struct {
	BaseURL string
	// HTTPClient is used for all requests. A cookie jar is attached when it has none.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the fintrack API on behalf of one user.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *slog.Logger

	mu        sync.Mutex
	current   *domainauth.Session
	listeners map[uint64]ports.AuthStateListener
	nextID    uint64
}

// New builds a Client for the API at opts.BaseURL.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid API base URL %q", opts.BaseURL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	} else {
		cp := *hc
		hc = &cp
	}
	if hc.Jar == nil {
		jar, jerr := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if jerr != nil {
			return nil, fmt.Errorf("create cookie jar: %w", jerr)
		}
		hc.Jar = jar
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		base:      base,
		http:      hc,
		logger:    logger.With("component", "apiclient"),
		listeners: make(map[uint64]ports.AuthStateListener),
	}, nil
}

// OnAuthStateChange registers l for SIGNED_IN, SIGNED_OUT and TOKEN_REFRESHED events.
func (c *Client) OnAuthStateChange(l ports.AuthStateListener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.listeners, id)
		})
	}
}

// GetSession asks the API for the current session. It returns nil when signed out.
func (c *Client) GetSession(ctx context.Context) (*domainauth.Session, error) {
	var view domainauth.SessionView
	if err := c.do(ctx, http.MethodGet, "/api/auth/session", nil, &view); err != nil {
		if isUnauthorized(err) {
			c.setCurrent(nil)
			return nil, nil
		}
		return nil, err
	}
	sess := c.sessionFromView(view)
	c.setCurrent(sess)
	return copySession(sess), nil
}

// SignInWithPassword signs in and emits SIGNED_IN on success.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) error {
	in := domainauth.SignInInput{Email: email, Password: password}
	var view domainauth.SessionView
	if err := c.do(ctx, http.MethodPost, "/api/auth/signin", in, &view); err != nil {
		return err
	}
	sess := c.sessionFromView(view)
	c.setCurrent(sess)
	c.emit(domainauth.EventSignedIn, sess)
	return nil
}

// SignUp registers an account. It does not sign in.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) error {
	in := domainauth.SignUpInput{Email: email, Password: password}
	if name, ok := metadata[domainauth.MetadataFullName].(string); ok {
		in.FullName = name
	}
	return c.do(ctx, http.MethodPost, "/api/auth/signup", in, nil)
}

// SignOut ends the session. The local session is cleared and SIGNED_OUT is
// emitted even when the API call fails.
func (c *Client) SignOut(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/signout", nil, nil)
	if err != nil && isUnauthorized(err) {
		err = nil
	}
	c.setCurrent(nil)
	c.emit(domainauth.EventSignedOut, nil)
	return err
}

// Refresh extends the session and emits TOKEN_REFRESHED. When the API no
// longer recognises the session it emits SIGNED_OUT and returns nil.
func (c *Client) Refresh(ctx context.Context) (*domainauth.Session, error) {
	var view domainauth.SessionView
	if err := c.do(ctx, http.MethodPost, "/api/auth/refresh", nil, &view); err != nil {
		if isUnauthorized(err) {
			c.setCurrent(nil)
			c.emit(domainauth.EventSignedOut, nil)
			return nil, nil
		}
		return nil, err
	}
	sess := c.sessionFromView(view)
	c.setCurrent(sess)
	c.emit(domainauth.EventTokenRefreshed, sess)
	return copySession(sess), nil
}

// StartAutoRefresh refreshes the session every interval while one is held.
// The returned function stops the loop and waits for it to exit.
func (c *Client) StartAutoRefresh(ctx context.Context, interval time.Duration) (stop func()) {
	if interval <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !c.hasSession() {
					continue
				}
				if _, err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
					c.logger.WarnContext(ctx, "session refresh failed", "error", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// FetchProfile returns the stored profile for the current session.
// Payloads that are not a JSON object with an id, or that carry an error
// marker, are rejected with ErrMalformedProfile.
func (c *Client) FetchProfile(ctx context.Context) (domainauth.Profile, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/auth/profile", nil)
	if err != nil {
		return domainauth.Profile{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return domainauth.Profile{}, fmt.Errorf("fetch profile: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return domainauth.Profile{}, fmt.Errorf("read profile: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domainauth.Profile{}, statusError(resp.StatusCode, body)
	}
	return DecodeProfile(body)
}

// DecodeProfile parses a profile payload.
func DecodeProfile(body []byte) (domainauth.Profile, error) {
	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		return domainauth.Profile{}, fmt.Errorf("%w: invalid JSON", domainauth.ErrProfileDecode)
	}
	if len(body) == 0 || body[0] != '{' {
		return domainauth.Profile{}, fmt.Errorf("%w: not a JSON object", domainauth.ErrMalformedProfile)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return domainauth.Profile{}, fmt.Errorf("%w: %v", domainauth.ErrProfileDecode, err)
	}
	if marker, ok := fields["error"]; ok && truthy(marker) {
		return domainauth.Profile{}, fmt.Errorf("%w: error marker present", domainauth.ErrMalformedProfile)
	}

	var p domainauth.Profile
	if err := json.Unmarshal(body, &p); err != nil {
		return domainauth.Profile{}, fmt.Errorf("%w: %v", domainauth.ErrProfileDecode, err)
	}
	if !p.Valid() {
		return domainauth.Profile{}, fmt.Errorf("%w: missing id", domainauth.ErrMalformedProfile)
	}
	return p, nil
}

// truthy reports whether a JSON value counts as set. null, false, 0 and ""
// do not.
func truthy(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return true
	}
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	default:
		return true
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func statusError(code int, body []byte) error {
	var payload struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	_ = json.Unmarshal(body, &payload)
	return &domainauth.StatusError{StatusCode: code, Code: payload.Code, Message: payload.Error}
}

func isUnauthorized(err error) bool {
	var se *domainauth.StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized
}

func (c *Client) sessionFromView(v domainauth.SessionView) *domainauth.Session {
	sess := &domainauth.Session{Identity: v.User, ExpiresAt: v.ExpiresAt}
	for _, ck := range c.http.Jar.Cookies(c.base) {
		if ck.Name == domainauth.SessionCookieName {
			sess.ID = ck.Value
		}
	}
	return sess
}

func (c *Client) setCurrent(s *domainauth.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = s
}

func (c *Client) hasSession() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// emit delivers kind to a snapshot of the listeners outside the lock.
func (c *Client) emit(kind domainauth.EventKind, sess *domainauth.Session) {
	c.mu.Lock()
	ls := make([]ports.AuthStateListener, 0, len(c.listeners))
	for _, l := range c.listeners {
		ls = append(ls, l)
	}
	c.mu.Unlock()

	for _, l := range ls {
		l(kind, copySession(sess))
	}
}

func copySession(s *domainauth.Session) *domainauth.Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
