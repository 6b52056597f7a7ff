package perfprobe

import (
	"strings"

	"github.com/perfprobe/perfprobe/device"
)

// NetworkConditions describes an emulated network link. Throughputs are in
// bytes per second, -1 disables throttling.
type NetworkConditions struct {
	Latency  float64 // ms
	Download float64
	Upload   float64
}

// Profile is a named set of emulation settings applied to every page before
// navigation.
type Profile struct {
	Name        string
	Device      device.Info
	CPUSlowdown float64
	Network     NetworkConditions
}

// Profiles.
var (
	// MobileProfile emulates a mid-range phone on a slow 4G link with a 4x
	// CPU slowdown.
	MobileProfile = Profile{
		Name:        "mobile",
		Device:      device.MotoGPower,
		CPUSlowdown: 4,
		Network: NetworkConditions{
			Latency:  150 * 3.75,
			Download: 1.6 * 1000 * 1000 / 8 * .9,
			Upload:   750 * 1000 / 8 * .9,
		},
	}

	// DesktopProfile emulates a desktop browser on wired broadband.
	DesktopProfile = Profile{
		Name:        "desktop",
		Device:      device.Desktop,
		CPUSlowdown: 1,
		Network: NetworkConditions{
			Latency:  40,
			Download: 10 * 1024 * 1024 / 8,
			Upload:   10 * 1024 * 1024 / 8,
		},
	}
)

// ProfileByName returns the named profile.
func ProfileByName(name string) (Profile, error) {
	switch strings.ToLower(name) {
	case MobileProfile.Name:
		return MobileProfile, nil
	case DesktopProfile.Name:
		return DesktopProfile, nil
	}
	return Profile{}, ErrUnknownProfile
}
