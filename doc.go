// Package perfprobe measures page load performance with headless Chrome.
//
// perfprobe talks the Chrome DevTools Protocol directly: a Session
// multiplexes commands, responses and events over a single page websocket,
// and a Driver uses it to emulate a device profile, install in-page
// performance observers, load the page and read back paint timings, layout
// shifts, long tasks and precise JavaScript coverage. The results are
// combined into a MetricsSummary per URL and collected into a Report.
package perfprobe
