// Package device contains the device presets used by the measurement
// profiles.
package device

// Info holds device information for viewport emulation.
type Info struct {
	// Name is the device name.
	Name string

	// UserAgent is the device user agent string.
	UserAgent string

	// Width is the viewport width.
	Width int64

	// Height is the viewport height.
	Height int64

	// Scale is the device viewport scale factor.
	Scale float64

	// Landscape indicates whether or not the device is in landscape mode or
	// not.
	Landscape bool

	// Mobile indicates whether it is a mobile device or not.
	Mobile bool

	// Touch indicates whether the device has touch enabled.
	Touch bool
}

// String satisfies fmt.Stringer.
func (i Info) String() string {
	return i.Name
}

// Device presets.
var (
	// MotoGPower is a mid-range Android phone, the reference device for
	// mobile lab measurements.
	MotoGPower = Info{
		Name:      "Moto G Power",
		UserAgent: "Mozilla/5.0 (Linux; Android 11; moto g power (2022)) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Mobile Safari/537.36",
		Width:     412,
		Height:    823,
		Scale:     1.75,
		Mobile:    true,
		Touch:     true,
	}

	// Desktop is a generic desktop browser window.
	Desktop = Info{
		Name:      "Desktop",
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
		Width:     1350,
		Height:    940,
		Scale:     1,
		Landscape: true,
	}
)
