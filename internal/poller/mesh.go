package poller

import (
	"context"
	"fmt"
	"strings"

	"github.com/openwrt-tools/ubus-monitor/internal/models"
	"github.com/openwrt-tools/ubus-monitor/internal/storage"
)

// meshEstablished is the iwinfo plink state of an active mesh link.
const meshEstablished = "ESTAB"

// FindMeshPeers returns the MAC of every mesh interface, on any known device,
// that reports meshID. Devices that have not published a snapshot yet are
// skipped.
func FindMeshPeers(lookup storage.SnapshotLookup, meshID string) []string {
	var peers []string
	seen := map[string]bool{}
	for _, id := range lookup.DeviceIDs() {
		snap := lookup.Latest(id)
		if snap == nil || snap.Mesh == nil {
			continue
		}
		for _, mesh := range snap.Mesh {
			if mesh.ID != meshID || mesh.MAC == "" || seen[mesh.MAC] {
				continue
			}
			seen[mesh.MAC] = true
			peers = append(peers, mesh.MAC)
		}
	}
	return peers
}

// updateMesh reads the local radio of each mesh interface and the link
// quality towards every peer found through the other devices' snapshots.
func (c *Coordinator) updateMesh(ctx context.Context, cy *cycle) error {
	for _, conf := range cy.wireless.mesh {
		stats, err := c.meshInfo(ctx, conf)
		if err != nil {
			c.logger.Warn().Err(err).Str("interface", conf.ifname).Msg("Failed to read mesh interface")
			continue
		}

		for _, mac := range FindMeshPeers(c.store, conf.meshID) {
			if mac == stats.MAC {
				continue
			}
			peer, err := c.meshPeer(ctx, conf.ifname, mac)
			if err != nil {
				c.logger.Debug().Err(err).Str("interface", conf.ifname).Str("peer", mac).Msg("Mesh peer query failed")
				continue
			}
			stats.Peers[mac] = peer
		}

		cy.snap.Mesh[conf.ifname] = stats
	}
	return nil
}

func (c *Coordinator) meshInfo(ctx context.Context, conf ifaceConfig) (models.MeshStats, error) {
	resp, err := c.client.Call(ctx, "iwinfo", "info", map[string]interface{}{"device": conf.ifname})
	if err != nil {
		return models.MeshStats{}, fmt.Errorf("iwinfo info: %w", err)
	}

	info := models.Variables(resp)
	return models.MeshStats{
		MAC:     strings.ToLower(info.String("bssid")),
		Signal:  int(info.Int("signal", -100)),
		ID:      conf.meshID,
		Noise:   int(info.Int("noise", 0)),
		Bitrate: int(info.Int("bitrate", -1)),
		Peers:   map[string]models.MeshPeer{},
	}, nil
}

func (c *Coordinator) meshPeer(ctx context.Context, ifname, mac string) (models.MeshPeer, error) {
	resp, err := c.client.Call(ctx, "iwinfo", "assoclist", map[string]interface{}{
		"device": ifname,
		"mac":    mac,
	})
	if err != nil {
		return models.MeshPeer{}, fmt.Errorf("iwinfo assoclist: %w", err)
	}

	assoc := models.Variables(resp)
	return models.MeshPeer{
		Active: assoc.String("mesh plink") == meshEstablished,
		Signal: int(assoc.Int("signal", -100)),
		Noise:  int(assoc.Int("noise", 0)),
	}, nil
}
