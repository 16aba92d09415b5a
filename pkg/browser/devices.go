package browser

// Device is a named emulation preset. Selecting one overrides the viewport,
// scale factor, and user agent captured in a recording, which is useful when
// a desktop capture needs to be replayed against a mobile layout.
type Device struct {
	Name              string  `json:"name"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	DeviceScaleFactor float64 `json:"deviceScaleFactor"`
	Mobile            bool    `json:"mobile"`
	UserAgent         string  `json:"userAgent"`
}

// devices holds the built-in presets, keyed by name.
var devices = map[string]Device{
	"iPhone 12 Pro": {
		Name:              "iPhone 12 Pro",
		Width:             390,
		Height:            844,
		DeviceScaleFactor: 3,
		Mobile:            true,
		UserAgent:         "Mozilla/5.0 (iPhone; CPU iPhone OS 14_7_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.1.2 Mobile/15E148 Safari/604.1",
	},
	"iPhone X": {
		Name:              "iPhone X",
		Width:             375,
		Height:            812,
		DeviceScaleFactor: 3,
		Mobile:            true,
		UserAgent:         "Mozilla/5.0 (iPhone; CPU iPhone OS 11_0 like Mac OS X) AppleWebKit/604.1.38 (KHTML, like Gecko) Version/11.0 Mobile/15A372 Safari/604.1",
	},
	"Galaxy S20": {
		Name:              "Galaxy S20",
		Width:             360,
		Height:            800,
		DeviceScaleFactor: 3,
		Mobile:            true,
		UserAgent:         "Mozilla/5.0 (Linux; Android 10; SM-G981B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/80.0.3987.162 Mobile Safari/537.36",
	},
	"iPad Pro": {
		Name:              "iPad Pro",
		Width:             768,
		Height:            1024,
		DeviceScaleFactor: 2,
		Mobile:            true,
		UserAgent:         "Mozilla/5.0 (iPad; CPU OS 13_3 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) CriOS/87.0.4280.77 Mobile/15E148 Safari/604.1",
	},
	"Desktop": {
		Name:              "Desktop",
		Width:             1280,
		Height:            800,
		DeviceScaleFactor: 1,
		UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	},
}

// LookupDevice returns the preset for name.
func LookupDevice(name string) (Device, bool) {
	d, ok := devices[name]
	return d, ok
}

// DeviceNames lists the available presets.
func DeviceNames() []string {
	names := make([]string, 0, len(devices))
	for name := range devices {
		names = append(names, name)
	}
	return names
}

// Apply overlays the device preset onto context options.
func (d Device) Apply(opts ContextOptions) ContextOptions {
	opts.Width = d.Width
	opts.Height = d.Height
	opts.DeviceScaleFactor = d.DeviceScaleFactor
	opts.Mobile = d.Mobile
	opts.UserAgent = d.UserAgent
	return opts
}
