// Package hwid derives the device's encoded hardware identifier when the
// caller does not supply one: a 16-byte identity from per-device
// features, base64url-encoded without padding.
package hwid

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net"
	"runtime"
	"sort"
)

// Derive returns the base64url, no-padding encoded 16-byte hardware
// identity for this machine. It hashes the first non-loopback interface
// MAC address it finds (interfaces are considered in name order, for
// determinism across calls on the same machine) together with
// GOOS/GOARCH, so the identity is stable across restarts of the same
// device but distinct across machines.
//
// Board-specific identity sources (chip serials, TPM-backed IDs) are
// out of scope here — this package's stdlib-only net.Interfaces view is
// the only per-device signal available on a general-purpose OS.
func Derive() (string, error) {
	mac, err := firstHardwareAddr()
	if err != nil {
		return "", fmt.Errorf("hwid: %w", err)
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", mac, runtime.GOOS, runtime.GOARCH)))
	return base64.RawURLEncoding.EncodeToString(sum[:16]), nil
}

func firstHardwareAddr() (net.HardwareAddr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	sort.Slice(ifaces, func(i, j int) bool { return ifaces[i].Name < ifaces[j].Name })
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		return iface.HardwareAddr, nil
	}
	return nil, fmt.Errorf("no non-loopback interface with a hardware address")
}
