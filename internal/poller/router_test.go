package poller

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/openwrt-tools/ubus-monitor/internal/models"
	"github.com/openwrt-tools/ubus-monitor/pkg/ubus"
)

type handler func(params map[string]interface{}) (map[string]interface{}, error)

// fakeRouter answers ubus calls from per-method handlers.
type fakeRouter struct {
	mu       sync.Mutex
	objects  []string
	handlers map[string]handler
	calls    []string
	lists    int
	listErr  error
}

func newFakeRouter(objects ...string) *fakeRouter {
	return &fakeRouter{
		objects:  objects,
		handlers: make(map[string]handler),
	}
}

func (r *fakeRouter) on(subsystem, method string, h handler) *fakeRouter {
	r.handlers[subsystem+" "+method] = h
	return r
}

func (r *fakeRouter) reply(subsystem, method string, resp map[string]interface{}) *fakeRouter {
	return r.on(subsystem, method, func(map[string]interface{}) (map[string]interface{}, error) {
		return resp, nil
	})
}

func (r *fakeRouter) fail(subsystem, method string, kind error) *fakeRouter {
	return r.on(subsystem, method, func(map[string]interface{}) (map[string]interface{}, error) {
		return nil, &ubus.Error{Kind: kind, Subsystem: subsystem, Method: method}
	})
}

func (r *fakeRouter) Call(_ context.Context, subsystem, method string, params map[string]interface{}) (map[string]interface{}, error) {
	key := subsystem + " " + method
	r.mu.Lock()
	r.calls = append(r.calls, key)
	h, ok := r.handlers[key]
	r.mu.Unlock()

	if !ok {
		return nil, &ubus.Error{Kind: ubus.ErrUnsupportedObject, Subsystem: subsystem, Method: method}
	}
	return h(params)
}

func (r *fakeRouter) List(context.Context) (map[string]interface{}, error) {
	r.mu.Lock()
	r.lists++
	r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	catalog := make(map[string]interface{}, len(r.objects))
	for _, o := range r.objects {
		catalog[o] = map[string]interface{}{}
	}
	return catalog, nil
}

func (r *fakeRouter) called(subsystem, method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == subsystem+" "+method {
			n++
		}
	}
	return n
}

func (r *fakeRouter) calledPrefix(prefix string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func testDevice(id string) *models.DeviceIdentity {
	return &models.DeviceIdentity{
		ID:           id,
		Address:      id + ".lan",
		Scheme:       "http",
		Path:         "/ubus",
		Username:     "root",
		PollInterval: time.Minute,
		VerifyTLS:    true,
		WifiDevices:  models.NameFilter{},
		MeshDevices:  models.NameFilter{},
		WanDevices:   models.NameFilter{},
	}
}

func board() map[string]interface{} {
	return map[string]interface{}{
		"model": "GL.iNet GL-MT3000",
		"release": map[string]interface{}{
			"distribution": "OpenWrt",
			"version":      "23.05.2",
			"revision":     "r23630-842932a63d",
		},
	}
}

func iface(ifname, mode string, extra map[string]interface{}) map[string]interface{} {
	conf := map[string]interface{}{"mode": mode, "network": []interface{}{"lan"}}
	for k, v := range extra {
		conf[k] = v
	}
	return map[string]interface{}{"ifname": ifname, "config": conf}
}

func radio(disabled bool, ifaces ...map[string]interface{}) map[string]interface{} {
	list := make([]interface{}, 0, len(ifaces))
	for _, i := range ifaces {
		list = append(list, i)
	}
	return map[string]interface{}{"disabled": disabled, "up": !disabled, "interfaces": list}
}
