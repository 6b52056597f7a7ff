package perfprobe

import (
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
)

// EmulateAction are actions that change the emulation settings for the
// page.
type EmulateAction Action

// Emulate is an action to apply the profile to the page: user agent,
// viewport, touch, CPU throttling and network shape. The HTTP cache is always
// disabled so every measurement starts cold.
func Emulate(p Profile) EmulateAction {
	d := p.Device
	return Tasks{
		emulation.SetUserAgentOverride(d.UserAgent),
		EmulateViewport(d.Width, d.Height, d.Scale, d.Mobile, d.Landscape),
		emulation.SetTouchEmulationEnabled(d.Touch),
		emulation.SetCPUThrottlingRate(cpuRate(p.CPUSlowdown)),
		EmulateNetwork(p.Network),
		network.SetCacheDisabled(true),
	}
}

// EmulateViewport is an action to change the page viewport.
func EmulateViewport(width, height int64, scale float64, mobile, landscape bool) EmulateAction {
	orientation := &emulation.ScreenOrientation{
		Type:  emulation.OrientationTypePortraitPrimary,
		Angle: 0,
	}
	if landscape {
		orientation.Type, orientation.Angle = emulation.OrientationTypeLandscapePrimary, 90
	}
	return emulation.SetDeviceMetricsOverride(width, height, scale, mobile).
		WithScreenOrientation(orientation)
}

// EmulateNetwork is an action to shape the page's network traffic.
func EmulateNetwork(n NetworkConditions) EmulateAction {
	return network.EmulateNetworkConditions(false, n.Latency, n.Download, n.Upload)
}

// cpuRate clamps the slowdown to the minimum rate the browser accepts.
func cpuRate(slowdown float64) float64 {
	if slowdown < 1 {
		return 1
	}
	return slowdown
}
