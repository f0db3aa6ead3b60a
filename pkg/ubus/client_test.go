package ubus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// scriptedTransport answers requests from a handler and records them.
type scriptedTransport struct {
	mu       sync.Mutex
	requests []rpcRequest
	handler  func(n int, req rpcRequest) (int, string, error)
}

func (t *scriptedTransport) Post(_ context.Context, _ string, body []byte) (int, []byte, error) {
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return 0, nil, err
	}

	t.mu.Lock()
	t.requests = append(t.requests, req)
	n := len(t.requests)
	t.mu.Unlock()

	status, resp, err := t.handler(n, req)
	return status, []byte(resp), err
}

func (t *scriptedTransport) count(subsystem, method string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, r := range t.requests {
		if len(r.Params) >= 3 && r.Params[1] == subsystem && r.Params[2] == method {
			n++
		}
	}
	return n
}

func newTestClient(t *testing.T, tr Transport) *Client {
	t.Helper()
	logger := zerolog.Nop()
	return NewClient(Config{
		URL:       "http://router/ubus",
		Username:  "root",
		Password:  "secret",
		Transport: tr,
		Logger:    &logger,
	})
}

func isLogin(req rpcRequest) bool {
	return len(req.Params) >= 3 && req.Params[1] == "session" && req.Params[2] == "login"
}

const loginOK = `{"jsonrpc":"2.0","id":1,"result":[0,{"ubus_rpc_session":"tok-1"}]}`

func TestCallLogsInOnceBeforeFirstCall(t *testing.T) {
	tr := &scriptedTransport{handler: func(n int, req rpcRequest) (int, string, error) {
		if isLogin(req) {
			if req.Params[0] != NullSession {
				t.Errorf("login session = %v, want null session", req.Params[0])
			}
			return 200, loginOK, nil
		}
		if req.Params[0] != "tok-1" {
			t.Errorf("call session = %v, want tok-1", req.Params[0])
		}
		return 200, `{"jsonrpc":"2.0","id":2,"result":[0,{"model":"x"}]}`, nil
	}}
	c := newTestClient(t, tr)

	for i := 0; i < 3; i++ {
		res, err := c.Call(context.Background(), "system", "board", nil)
		if err != nil {
			t.Fatalf("Call: %v", err)
		}
		if res["model"] != "x" {
			t.Fatalf("model = %v", res["model"])
		}
	}

	if got := tr.count("session", "login"); got != 1 {
		t.Fatalf("logins = %d, want 1", got)
	}
	if tr.requests[0].Method != "call" || !isLogin(tr.requests[0]) {
		t.Fatalf("first request is not a login: %+v", tr.requests[0])
	}
	if c.State() != StateAuthenticated {
		t.Fatalf("state = %s", c.State())
	}
}

func TestCallIDsStrictlyIncrease(t *testing.T) {
	tr := &scriptedTransport{handler: func(n int, req rpcRequest) (int, string, error) {
		if isLogin(req) {
			return 200, loginOK, nil
		}
		return 200, `{"result":[0]}`, nil
	}}
	c := newTestClient(t, tr)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Call(context.Background(), "system", "info", nil); err != nil {
				t.Errorf("Call: %v", err)
			}
		}()
	}
	wg.Wait()

	seen := map[uint64]bool{}
	for _, r := range tr.requests {
		if seen[r.ID] {
			t.Fatalf("call id %d reused", r.ID)
		}
		seen[r.ID] = true
	}

	// sequential calls observe strictly increasing ids
	before := len(tr.requests)
	for i := 0; i < 5; i++ {
		if _, err := c.Call(context.Background(), "system", "info", nil); err != nil {
			t.Fatalf("Call: %v", err)
		}
	}
	for i := before + 1; i < len(tr.requests); i++ {
		if tr.requests[i].ID <= tr.requests[i-1].ID {
			t.Fatalf("id %d not greater than %d", tr.requests[i].ID, tr.requests[i-1].ID)
		}
	}
}

func TestCallReauthenticatesOnce(t *testing.T) {
	logins := 0
	calls := 0
	tr := &scriptedTransport{handler: func(n int, req rpcRequest) (int, string, error) {
		if isLogin(req) {
			logins++
			return 200, fmt.Sprintf(`{"result":[0,{"ubus_rpc_session":"tok-%d"}]}`, logins), nil
		}
		calls++
		if req.Params[0] == "tok-1" {
			return 200, `{"error":{"code":-32002,"message":"Access denied"}}`, nil
		}
		return 200, `{"result":[0,{"ok":true}]}`, nil
	}}
	c := newTestClient(t, tr)

	res, err := c.Call(context.Background(), "network.wireless", "status", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if res["ok"] != true {
		t.Fatalf("unexpected result %v", res)
	}
	if logins != 2 || calls != 2 {
		t.Fatalf("logins=%d calls=%d, want 2/2", logins, calls)
	}
	if c.Token() != "tok-2" {
		t.Fatalf("token = %q", c.Token())
	}
}

func TestCallSurfacesSecondAuthExpired(t *testing.T) {
	tr := &scriptedTransport{handler: func(n int, req rpcRequest) (int, string, error) {
		if isLogin(req) {
			return 200, loginOK, nil
		}
		return 200, `{"error":{"code":-32002,"message":"Access denied"}}`, nil
	}}
	c := newTestClient(t, tr)

	_, err := c.Call(context.Background(), "system", "board", nil)
	if !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("err = %v, want ErrAuthExpired", err)
	}
	if got := tr.count("system", "board"); got != 2 {
		t.Fatalf("attempts = %d, want 2", got)
	}
	if got := tr.count("session", "login"); got != 2 {
		t.Fatalf("logins = %d, want 2", got)
	}
	if c.Token() != "" {
		t.Fatalf("token not cleared: %q", c.Token())
	}
	if c.State() != StateFailed {
		t.Fatalf("state = %s, want failed", c.State())
	}
}

func TestResultCodeMapping(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"ok with payload", `{"result":[0,{"a":1}]}`, nil},
		{"ok without payload", `{"result":[0]}`, nil},
		{"permission denied", `{"result":[6]}`, ErrPermissionDenied},
		{"not allowed", `{"result":[8]}`, ErrNotAllowed},
		{"other code", `{"result":[4]}`, ErrProtocol},
		{"object not found", `{"error":{"code":-32000,"message":"Object not found"}}`, ErrUnsupportedObject},
		{"other rpc error", `{"error":{"code":-32600,"message":"Invalid request"}}`, ErrProtocol},
		{"malformed body", `<html>`, ErrUnreachable},
		{"result not array", `{"result":{"a":1}}`, ErrProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &scriptedTransport{handler: func(n int, req rpcRequest) (int, string, error) {
				if isLogin(req) {
					return 200, loginOK, nil
				}
				return 200, tt.body, nil
			}}
			c := newTestClient(t, tr)

			res, err := c.Call(context.Background(), "system", "board", nil)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("Call: %v", err)
				}
				if res == nil {
					t.Fatal("nil payload, want empty map")
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCallTransportFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler func(n int, req rpcRequest) (int, string, error)
	}{
		{"connection error", func(n int, req rpcRequest) (int, string, error) {
			return 0, "", errors.New("connection refused")
		}},
		{"http status", func(n int, req rpcRequest) (int, string, error) {
			return 502, "bad gateway", nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, &scriptedTransport{handler: tt.handler})
			_, err := c.Call(context.Background(), "system", "board", nil)
			if !errors.Is(err, ErrUnreachable) {
				t.Fatalf("err = %v, want ErrUnreachable", err)
			}
		})
	}
}

func TestListSendsWildcard(t *testing.T) {
	tr := &scriptedTransport{handler: func(n int, req rpcRequest) (int, string, error) {
		if isLogin(req) {
			return 200, loginOK, nil
		}
		if req.Method != "list" || req.Params[1] != "*" {
			t.Errorf("unexpected list request %+v", req)
		}
		return 200, `{"result":{"system":{"board":{}},"iwinfo":{"info":{"device":"string"}}}}`, nil
	}}
	c := newTestClient(t, tr)

	catalog, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if _, ok := catalog["iwinfo"]; !ok {
		t.Fatalf("catalog missing iwinfo: %v", catalog)
	}
}

func TestHTTPTransportTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), `"login"`) {
			io.WriteString(w, loginOK)
			return
		}
		time.Sleep(200 * time.Millisecond)
		io.WriteString(w, `{"result":[0]}`)
	}))
	defer srv.Close()

	logger := zerolog.Nop()
	c := NewClient(Config{
		URL:       srv.URL,
		Username:  "root",
		Transport: NewHTTPTransport(50*time.Millisecond, true),
		Logger:    &logger,
	})

	_, err := c.Call(context.Background(), "system", "board", nil)
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
}
