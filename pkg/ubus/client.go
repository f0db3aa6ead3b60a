package ubus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SessionState is the authentication state of a Client.
type SessionState int

const (
	StateUnauthenticated SessionState = iota
	StateAuthenticated
	StateExpired
	StateReauthenticating
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateExpired:
		return "expired"
	case StateReauthenticating:
		return "reauthenticating"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config holds the connection parameters of one device.
type Config struct {
	URL       string
	Username  string
	Password  string
	Timeout   time.Duration
	VerifyTLS bool

	// Transport overrides the default HTTP transport.
	Transport Transport
	Logger    *zerolog.Logger
}

// Client is a ubus JSON-RPC session client for a single device.
//
// The session token is shared by every caller of the client; it is only
// replaced by a login and cleared when the device reports the session as
// expired. Call ids are strictly increasing for the lifetime of the client.
type Client struct {
	url       string
	username  string
	password  string
	transport Transport
	logger    zerolog.Logger

	nextID atomic.Uint64

	mu    sync.Mutex
	token string
	state SessionState

	// loginMu keeps concurrent callers from logging in at the same time.
	loginMu sync.Mutex
}

// NewClient creates a client. No network traffic happens until the first call.
func NewClient(cfg Config) *Client {
	tr := cfg.Transport
	if tr == nil {
		tr = NewHTTPTransport(cfg.Timeout, cfg.VerifyTLS)
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	c := &Client{
		url:       cfg.URL,
		username:  cfg.Username,
		password:  cfg.Password,
		transport: tr,
		logger:    logger.With().Str("url", cfg.URL).Logger(),
	}
	c.nextID.Store(1)
	return c
}

// URL returns the endpoint the client talks to.
func (c *Client) URL() string {
	return c.url
}

// Token returns the current session token, empty when unauthenticated.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// State returns the current session state.
func (c *Client) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s SessionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Call invokes method on subsystem and returns the decoded payload. An empty
// payload is returned as an empty map.
func (c *Client) Call(ctx context.Context, subsystem, method string, params map[string]interface{}) (map[string]interface{}, error) {
	raw, err := c.invoke(ctx, rpcCall, subsystem, method, params)
	if err != nil {
		return nil, err
	}
	return c.decodeCall(raw, subsystem, method)
}

// List returns the catalog of ubus objects exposed to this session, keyed by
// object name.
func (c *Client) List(ctx context.Context) (map[string]interface{}, error) {
	raw, err := c.invoke(ctx, rpcList, "*", "", nil)
	if err != nil {
		return nil, err
	}

	catalog := map[string]interface{}{}
	if err := json.Unmarshal(raw, &catalog); err != nil {
		return nil, &Error{Kind: ErrProtocol, Subsystem: "*", Message: "list result is not an object", Err: err}
	}
	return catalog, nil
}

// Login authenticates with the configured credentials and stores the new
// session token.
func (c *Client) Login(ctx context.Context) error {
	c.loginMu.Lock()
	defer c.loginMu.Unlock()
	return c.login(ctx)
}

func (c *Client) login(ctx context.Context) error {
	c.logger.Debug().Str("username", c.username).Msg("Logging in to ubus")

	raw, err := c.exchange(ctx, rpcCall, NullSession, "session", "login", map[string]interface{}{
		"username": c.username,
		"password": c.password,
	})
	if err != nil {
		c.setState(StateFailed)
		return fmt.Errorf("login: %w", err)
	}

	result, err := c.decodeCall(raw, "session", "login")
	if err != nil {
		c.setState(StateFailed)
		return fmt.Errorf("login: %w", err)
	}

	token, _ := result["ubus_rpc_session"].(string)
	if token == "" {
		c.setState(StateFailed)
		return fmt.Errorf("login: %w", &Error{Kind: ErrProtocol, Subsystem: "session", Method: "login", Message: "missing ubus_rpc_session"})
	}

	c.mu.Lock()
	c.token = token
	c.state = StateAuthenticated
	c.mu.Unlock()

	c.logger.Debug().Msg("ubus session established")
	return nil
}

// ensureSession logs in unless a token is already held.
func (c *Client) ensureSession(ctx context.Context) (string, error) {
	if token := c.Token(); token != "" {
		return token, nil
	}

	c.loginMu.Lock()
	defer c.loginMu.Unlock()

	// another caller may have logged in while we waited
	if token := c.Token(); token != "" {
		return token, nil
	}
	if err := c.login(ctx); err != nil {
		return "", err
	}
	return c.Token(), nil
}

// invoke runs one logical call: Authenticated -> Expired -> Reauthenticating
// -> Authenticated|Failed. The call is retried at most once.
func (c *Client) invoke(ctx context.Context, rpcMethod, subsystem, method string, params map[string]interface{}) (json.RawMessage, error) {
	token, err := c.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := c.exchange(ctx, rpcMethod, token, subsystem, method, params)
	if !errors.Is(err, ErrAuthExpired) {
		return raw, err
	}

	c.logger.Info().
		Str("subsystem", subsystem).
		Str("method", method).
		Msg("ubus session expired, logging in again")

	c.loginMu.Lock()
	c.setState(StateReauthenticating)
	err = c.login(ctx)
	c.loginMu.Unlock()
	if err != nil {
		return nil, err
	}

	raw, err = c.exchange(ctx, rpcMethod, c.Token(), subsystem, method, params)
	if errors.Is(err, ErrAuthExpired) {
		c.setState(StateFailed)
	}
	return raw, err
}

// exchange sends a single envelope and returns the raw result member.
func (c *Client) exchange(ctx context.Context, rpcMethod, session, subsystem, method string, params map[string]interface{}) (json.RawMessage, error) {
	id := c.nextID.Add(1) - 1

	body, err := encodeRequest(id, rpcMethod, session, subsystem, method, params)
	if err != nil {
		return nil, &Error{Kind: ErrProtocol, Subsystem: subsystem, Method: method, Err: err}
	}

	c.logger.Debug().
		Uint64("id", id).
		Str("rpc", rpcMethod).
		Str("subsystem", subsystem).
		Str("method", method).
		Msg("ubus request")

	status, data, err := c.transport.Post(ctx, c.url, body)
	if err != nil {
		return nil, &Error{Kind: ErrUnreachable, Subsystem: subsystem, Method: method, Err: err}
	}
	if status != http.StatusOK {
		return nil, &Error{Kind: ErrUnreachable, Subsystem: subsystem, Method: method, Message: fmt.Sprintf("HTTP status %d", status)}
	}

	var resp rpcResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &Error{Kind: ErrUnreachable, Subsystem: subsystem, Method: method, Message: "malformed response body", Err: err}
	}

	if resp.Error != nil {
		rerr := rpcError(resp.Error, subsystem, method)
		if errors.Is(rerr, ErrAuthExpired) {
			c.expire(session)
		}
		c.logger.Debug().
			Int("code", resp.Error.Code).
			Str("message", resp.Error.Message).
			Str("subsystem", subsystem).
			Msg("ubus rpc error")
		return nil, rerr
	}

	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		return nil, &Error{Kind: ErrProtocol, Subsystem: subsystem, Method: method, Message: "missing result"}
	}
	return resp.Result, nil
}

// expire clears the token if it is still the one that was rejected.
func (c *Client) expire(session string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == session {
		c.token = ""
		c.state = StateExpired
	}
}

func (c *Client) decodeCall(raw json.RawMessage, subsystem, method string) (map[string]interface{}, error) {
	code, payload, err := decodeCallResult(raw)
	if err != nil {
		return nil, &Error{Kind: ErrProtocol, Subsystem: subsystem, Method: method, Err: err}
	}
	if code != StatusOK {
		return nil, statusError(code, subsystem, method)
	}
	return payload, nil
}
