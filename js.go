package perfprobe

import (
	_ "embed"
)

var (
	// instrumentJS is a javascript snippet installed on every new document
	// before any page script runs. It registers buffered performance
	// observers for paints, largest contentful paint candidates, layout
	// shifts and long tasks, accumulating them on window.__perfprobe.
	//go:embed js/instrument.js
	instrumentJS string

	// snapshotJS is a javascript expression that returns the accumulated
	// observer state together with the navigation and resource timing
	// entries, or null when the instrumentation never ran.
	//go:embed js/snapshot.js
	snapshotJS string
)
