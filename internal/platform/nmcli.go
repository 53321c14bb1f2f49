package platform

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lanlink/internal/models"
)

const hotspotConnectionName = "lanlink-hotspot"

// NMCli implements WifiPlatform and HotspotPlatform by shelling out to
// NetworkManager's nmcli tool (Linux).
type NMCli struct {
	logger zerolog.Logger
}

// NewNMCli creates an nmcli-backed platform.
func NewNMCli() *NMCli {
	return &NMCli{
		logger: log.With().Str("component", "nmcli").Logger(),
	}
}

func (n *NMCli) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "nmcli", args...)
	n.logger.Debug().Str("command", strings.Join(cmd.Args, " ")).Msg("Executing nmcli command")

	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("nmcli %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// Scan triggers a rescan and returns nearby access points.
func (n *NMCli) Scan(ctx context.Context) ([]models.WifiNetwork, error) {
	out, err := n.run(ctx, "-t", "-f", "SSID,BSSID,SIGNAL,FREQ,SECURITY", "device", "wifi", "list", "--rescan", "yes")
	if err != nil {
		return nil, err
	}
	return parseScanOutput(out), nil
}

// Join associates with the given network.
func (n *NMCli) Join(ctx context.Context, ssid, password string) error {
	args := []string{"device", "wifi", "connect", ssid}
	if password != "" {
		args = append(args, "password", password)
	}
	_, err := n.run(ctx, args...)
	return err
}

// Leave disconnects the active Wi-Fi interface.
func (n *NMCli) Leave(ctx context.Context) error {
	iface, err := n.wifiInterface(ctx)
	if err != nil {
		return err
	}
	_, err = n.run(ctx, "device", "disconnect", iface)
	return err
}

// CurrentLink returns the active association.
func (n *NMCli) CurrentLink(ctx context.Context) (Link, error) {
	out, err := n.run(ctx, "-t", "-f", "ACTIVE,SSID,BSSID,SIGNAL", "device", "wifi", "list")
	if err != nil {
		return Link{}, err
	}

	for _, line := range strings.Split(out, "\n") {
		fields := splitEscaped(line, 4)
		if len(fields) != 4 || fields[0] != "yes" {
			continue
		}
		return Link{
			SSID:           fields[1],
			BSSID:          fields[2],
			SignalStrength: percentToDBM(atoiDefault(fields[3], 0)),
		}, nil
	}

	return Link{}, fmt.Errorf("no active wifi link")
}

// StartAccessPoint brings up a device-hosted access point.
func (n *NMCli) StartAccessPoint(ctx context.Context, ssid, password, security string, maxClients int) error {
	args := []string{"device", "wifi", "hotspot", "con-name", hotspotConnectionName, "ssid", ssid}
	if security != "open" && password != "" {
		args = append(args, "password", password)
	}
	_, err := n.run(ctx, args...)
	return err
}

// StopAccessPoint tears down the access point connection.
func (n *NMCli) StopAccessPoint(ctx context.Context) error {
	_, err := n.run(ctx, "connection", "down", hotspotConnectionName)
	return err
}

func (n *NMCli) wifiInterface(ctx context.Context) (string, error) {
	out, err := n.run(ctx, "-t", "-f", "DEVICE,TYPE", "device")
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(out, "\n") {
		fields := splitEscaped(line, 2)
		if len(fields) == 2 && fields[1] == "wifi" {
			return fields[0], nil
		}
	}
	return "", fmt.Errorf("no wifi interface found")
}

// parseScanOutput parses nmcli terse scan output into networks sorted by
// descending signal strength.
func parseScanOutput(out string) []models.WifiNetwork {
	var networks []models.WifiNetwork

	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		fields := splitEscaped(line, 5)
		if len(fields) != 5 || fields[0] == "" {
			continue
		}

		capabilities := fields[4]
		networks = append(networks, models.WifiNetwork{
			SSID:           fields[0],
			BSSID:          fields[1],
			SignalStrength: percentToDBM(atoiDefault(fields[2], 0)),
			Frequency:      parseFrequency(fields[3]),
			Capabilities:   capabilities,
			IsSecure:       models.ClassifySecurity(capabilities),
		})
	}

	sort.Slice(networks, func(i, j int) bool {
		return networks[i].SignalStrength > networks[j].SignalStrength
	})
	return networks
}

// splitEscaped splits nmcli terse output on ':' while honoring the '\:'
// escape nmcli uses inside BSSID fields.
func splitEscaped(line string, want int) []string {
	var fields []string
	var cur strings.Builder

	escaped := false
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ':' && len(fields) < want-1:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	fields = append(fields, cur.String())

	if len(fields) != want {
		return nil
	}
	return fields
}

// percentToDBM converts nmcli's 0-100 signal quality to an approximate dBm.
func percentToDBM(percent int) int {
	if percent <= 0 {
		return -100
	}
	if percent >= 100 {
		return -50
	}
	return percent/2 - 100
}

func parseFrequency(s string) int {
	s = strings.TrimSuffix(strings.TrimSpace(s), " MHz")
	return atoiDefault(s, 0)
}

func atoiDefault(s string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return v
}
