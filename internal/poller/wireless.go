package poller

import (
	"context"
	"fmt"
	"sort"

	"github.com/openwrt-tools/ubus-monitor/internal/models"
)

// ifaceConfig is one wireless interface found by discovery.
type ifaceConfig struct {
	ifname  string
	network string
	meshID  string
}

type wirelessConfig struct {
	ap   []ifaceConfig
	mesh []ifaceConfig
}

// discoverWireless classifies the interfaces of every enabled radio into
// access-point and mesh configs, applying the configured allow-lists.
func (c *Coordinator) discoverWireless(ctx context.Context, cy *cycle) error {
	resp, err := c.client.Call(ctx, "network.wireless", "status", nil)
	if err != nil {
		return fmt.Errorf("network.wireless status: %w", err)
	}

	radios := make([]string, 0, len(resp))
	for radio := range resp {
		radios = append(radios, radio)
	}
	sort.Strings(radios)

	var result wirelessConfig
	for _, radio := range radios {
		item, ok := resp[radio].(map[string]interface{})
		if !ok {
			continue
		}
		r := models.Variables(item)
		if r.Bool("disabled", false) {
			continue
		}

		ifaces, _ := r["interfaces"].([]interface{})
		for _, raw := range ifaces {
			obj, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			iface := models.Variables(obj)
			ifname := iface.String("ifname")
			if ifname == "" {
				// radio is enabled but the interface is not up yet
				continue
			}

			conf := iface.Map("config")
			ic := ifaceConfig{ifname: ifname, network: firstString(conf["network"])}

			switch conf.String("mode") {
			case "ap":
				if !c.device.WifiDevices.Allows(ifname) {
					continue
				}
				result.ap = append(result.ap, ic)
			case "mesh":
				if !c.device.MeshDevices.Allows(ifname) {
					continue
				}
				ic.meshID = conf.String("mesh_id")
				result.mesh = append(result.mesh, ic)
			}
		}
	}

	cy.wireless = result
	return nil
}

// updateAP collects client lists for every discovered access point. A failing
// interface is left out of the result.
func (c *Coordinator) updateAP(ctx context.Context, cy *cycle) error {
	for _, ap := range cy.wireless.ap {
		object := "hostapd." + ap.ifname
		if !cy.caps.Has(object) {
			c.logger.Debug().Str("interface", ap.ifname).Msg("hostapd object not available")
			continue
		}

		stats, err := c.updateHostapdClients(ctx, object)
		if err != nil {
			c.logger.Warn().Err(err).Str("interface", ap.ifname).Msg("Failed to read access point clients")
			continue
		}
		cy.snap.Wireless[ap.ifname] = stats
	}
	return nil
}

func (c *Coordinator) updateHostapdClients(ctx context.Context, object string) (models.APStats, error) {
	resp, err := c.client.Call(ctx, object, "get_clients", nil)
	if err != nil {
		return models.APStats{}, fmt.Errorf("%s get_clients: %w", object, err)
	}

	macs := map[string]models.ClientInfo{}
	for mac, raw := range models.Variables(resp).Map("clients") {
		client, _ := raw.(map[string]interface{})
		macs[mac] = models.ClientInfo{
			Signal: int(models.Variables(client).Int("signal", 0)),
		}
	}

	stats := models.APStats{
		Clients: len(macs),
		Macs:    macs,
	}

	if c.device.WPS {
		status, err := c.client.Call(ctx, object, "wps_status", nil)
		if err != nil {
			c.logger.Warn().Err(err).Str("object", object).Msg("Interface doesn't support WPS")
		} else {
			active := models.Variables(status).String("pbc_status") == "Active"
			stats.WPS = &active
		}
	}

	return stats, nil
}

func firstString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case []interface{}:
		if len(val) > 0 {
			s, _ := val[0].(string)
			return s
		}
	}
	return ""
}
