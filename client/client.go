// Package client provides the DevTools HTTP introspection client: browser
// readiness polling and page target management.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mailru/easyjson"
	"github.com/tidwall/gjson"
)

const (
	// DefaultEndpoint is the default endpoint to connect to.
	DefaultEndpoint = "http://localhost:9222/json"

	// DefaultWatchInterval is the default delay between readiness checks.
	DefaultWatchInterval = 100 * time.Millisecond

	// DefaultWatchAttempts is the default number of readiness checks before
	// giving up.
	DefaultWatchAttempts = 50

	// DefaultRequestTimeout bounds each individual introspection request.
	DefaultRequestTimeout = 2 * time.Second
)

// Error is a client error.
type Error string

// Error satisfies the error interface.
func (err Error) Error() string {
	return string(err)
}

const (
	// ErrNotReady is returned by WaitReady when the browser never exposed a
	// control channel within the allotted attempts.
	ErrNotReady Error = "browser did not become ready"

	// ErrNoPageTarget is returned when no page target is available.
	ErrNoPageTarget Error = "no page target available"
)

// Version is the browser version information exposed on /json/version.
type Version struct {
	Browser              string
	ProtocolVersion      string
	UserAgent            string
	V8Version            string
	WebSocketDebuggerURL string
}

// Client is a DevTools HTTP introspection client.
type Client struct {
	url      string
	interval time.Duration
	attempts int
	cl       *http.Client
}

// New creates a new introspection client.
func New(opts ...Option) *Client {
	c := &Client{
		url:      DefaultEndpoint,
		interval: DefaultWatchInterval,
		attempts: DefaultWatchAttempts,
		cl:       &http.Client{Timeout: DefaultRequestTimeout},
	}

	// apply opts
	for _, o := range opts {
		o(c)
	}

	return c
}

// doReq executes a request, decoding the response body into v when v is
// not nil.
func (c *Client) doReq(ctx context.Context, method, action string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.url+"/"+action, nil)
	if err != nil {
		return err
	}

	res, err := c.cl.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: unexpected status %s", method, action, res.Status)
	}

	if v == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}

	switch z := v.(type) {
	case *[]byte:
		*z = body
		return nil
	case easyjson.Unmarshaler:
		return easyjson.Unmarshal(body, z)
	}
	return json.Unmarshal(body, v)
}

// VersionInfo returns information about the remote debugging protocol. The
// control channel URL is empty until the browser is ready to accept
// connections.
func (c *Client) VersionInfo(ctx context.Context) (*Version, error) {
	var body []byte
	if err := c.doReq(ctx, http.MethodGet, "version", &body); err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid version response %q", body)
	}

	res := gjson.GetManyBytes(body,
		"Browser",
		"Protocol-Version",
		"User-Agent",
		"V8-Version",
		"webSocketDebuggerUrl",
	)
	return &Version{
		Browser:              res[0].String(),
		ProtocolVersion:      res[1].String(),
		UserAgent:            res[2].String(),
		V8Version:            res[3].String(),
		WebSocketDebuggerURL: res[4].String(),
	}, nil
}

// WaitReady polls the version endpoint at a fixed interval, up to the
// configured number of attempts, until it reports a control channel URL.
// It returns ErrNotReady once the attempts are exhausted.
func (c *Client) WaitReady(ctx context.Context) (*Version, error) {
	for i := 0; i < c.attempts; i++ {
		if i > 0 {
			timer := time.NewTimer(c.interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		v, err := c.VersionInfo(ctx)
		if err == nil && v.WebSocketDebuggerURL != "" {
			return v, nil
		}
	}
	return nil, ErrNotReady
}

// ListTargets returns a list of all targets.
func (c *Client) ListTargets(ctx context.Context) ([]*Target, error) {
	var l []*Target
	if err := c.doReq(ctx, http.MethodGet, "list", &l); err != nil {
		return nil, err
	}
	return l, nil
}

// ListTargetsWithType returns a list of Targets with the specified target
// type.
func (c *Client) ListTargetsWithType(ctx context.Context, typ TargetType) ([]*Target, error) {
	targets, err := c.ListTargets(ctx)
	if err != nil {
		return nil, err
	}

	var ret []*Target
	for _, t := range targets {
		if t.Type == typ {
			ret = append(ret, t)
		}
	}

	return ret, nil
}

// ListPageTargets lists the available Page targets.
func (c *Client) ListPageTargets(ctx context.Context) ([]*Target, error) {
	return c.ListTargetsWithType(ctx, Page)
}

// PageTarget returns the open page target with the given id, or
// ErrNoPageTarget when the browser lists no such page.
func (c *Client) PageTarget(ctx context.Context, id string) (*Target, error) {
	targets, err := c.ListPageTargets(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range targets {
		if t.ID == id && t.WebSocketDebuggerURL != "" {
			return t, nil
		}
	}
	return nil, ErrNoPageTarget
}

// NewPageTarget creates a new blank page target.
//
// Note: Chrome 111+ only accepts PUT on /json/new.
func (c *Client) NewPageTarget(ctx context.Context) (*Target, error) {
	t := new(Target)
	if err := c.doReq(ctx, http.MethodPut, "new?about:blank", t); err != nil {
		return nil, err
	}
	return t, nil
}

// CloseTarget closes a target.
func (c *Client) CloseTarget(ctx context.Context, t *Target) error {
	return c.doReq(ctx, http.MethodGet, "close/"+t.ID, nil)
}

// Option is a DevTools introspection client option.
type Option func(*Client)

// URL is a client option to specify the remote DevTools endpoint to connect
// to.
func URL(urlstr string) Option {
	return func(c *Client) {
		// since chrome 66+, dev tools requires the host name to be either an
		// IP address, or "localhost"
		if strings.HasPrefix(strings.ToLower(urlstr), "http://") {
			host, port, path := urlstr[7:], "", ""
			if i := strings.Index(host, "/"); i != -1 {
				host, path = host[:i], host[i:]
			}
			if i := strings.Index(host, ":"); i != -1 {
				host, port = host[:i], host[i:]
			}
			if addr, err := net.ResolveIPAddr("ip", host); err == nil {
				urlstr = "http://" + addr.IP.String() + port + path
			}
		}
		c.url = strings.TrimSuffix(urlstr, "/")
	}
}

// WatchInterval is a client option that specifies the readiness check
// interval.
func WatchInterval(interval time.Duration) Option {
	return func(c *Client) {
		c.interval = interval
	}
}

// WatchAttempts is a client option that specifies the maximum number of
// readiness checks.
func WatchAttempts(attempts int) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
	}
}

// HTTPClient is a client option to use a custom http.Client.
func HTTPClient(cl *http.Client) Option {
	return func(c *Client) {
		c.cl = cl
	}
}
