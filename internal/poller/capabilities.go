package poller

import "sort"

// Capabilities is the set of ubus objects a device exposes. It is fetched once
// per device and never refreshed: objects added or removed later (for example
// by installing a package on the router) go unnoticed until restart.
type Capabilities map[string]struct{}

// NewCapabilities builds the set from a ubus list catalog.
func NewCapabilities(catalog map[string]interface{}) Capabilities {
	caps := make(Capabilities, len(catalog))
	for name := range catalog {
		caps[name] = struct{}{}
	}
	return caps
}

// Has reports whether the object is present. A nil set has nothing.
func (c Capabilities) Has(name string) bool {
	if c == nil {
		return false
	}
	_, ok := c[name]
	return ok
}

// Names returns the object names sorted.
func (c Capabilities) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
