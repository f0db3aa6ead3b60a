package poller

import (
	"context"
	"fmt"
	"sort"

	"github.com/openwrt-tools/ubus-monitor/internal/models"
)

// updateMwan3 reads the state of every enabled mwan3 interface.
func (c *Coordinator) updateMwan3(ctx context.Context, cy *cycle) error {
	resp, err := c.client.Call(ctx, "mwan3", "status", map[string]interface{}{"section": "interfaces"})
	if err != nil {
		return fmt.Errorf("mwan3 status: %w", err)
	}

	ifaces := models.Variables(resp).Map("interfaces")
	names := make([]string, 0, len(ifaces))
	for name := range ifaces {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		iface := ifaces.Map(name)
		if !iface.Bool("enabled", false) {
			continue
		}
		status := iface.String("status")
		cy.snap.Mwan3[name] = models.LinkStats{
			OfflineSec: iface.Int("offline", 0),
			OnlineSec:  iface.Int("online", 0),
			UptimeSec:  iface.Int("uptime", 0),
			Online:     status == "online",
			Status:     status,
			Up:         iface.Bool("up", false),
		}
	}
	return nil
}

// updateWan reads counters of each configured WAN device. network.device is
// assumed to exist; a failing device is left out.
func (c *Coordinator) updateWan(ctx context.Context, cy *cycle) error {
	for _, name := range c.device.WanDevices.Names() {
		resp, err := c.client.Call(ctx, "network.device", "status", map[string]interface{}{"name": name})
		if err != nil {
			c.logger.Warn().Err(err).Str("wan", name).Msg("Failed to read WAN device")
			continue
		}

		dev := models.Variables(resp)
		stats := dev.Map("statistics")
		cy.snap.Wan[name] = models.WanStats{
			Up:      dev.Bool("up", false),
			RxBytes: stats.Int("rx_bytes", 0),
			TxBytes: stats.Int("tx_bytes", 0),
			Speed:   dev.String("speed"),
			MAC:     dev.String("macaddr"),
		}
	}
	return nil
}
