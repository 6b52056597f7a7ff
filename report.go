package perfprobe

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/afero"
)

// Report is the artifact written at the end of a run.
type Report struct {
	GeneratedAt       time.Time         `json:"generatedAt"`
	DurationMs        int64             `json:"durationMs"`
	BrowserBinaryPath string            `json:"browserBinaryPath"`
	Measurements      []*MetricsSummary `json:"measurements"`
}

// Marshal encodes the report as indented JSON.
func (r *Report) Marshal() ([]byte, error) {
	buf, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(buf, '\n'), nil
}

// WriteReport writes r to path on fs, creating missing directories.
func WriteReport(fs afero.Fs, path string, r *Report) error {
	buf, err := r.Marshal()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return afero.WriteFile(fs, path, buf, 0o644)
}

var (
	bold   = color.New(color.Bold)
	faint  = color.New(color.Faint)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
)

func ratingColor(r Rating) *color.Color {
	switch r {
	case RatingGood:
		return green
	case RatingNeedsImprovement:
		return yellow
	case RatingPoor:
		return red
	}
	return faint
}

// PrintSummary writes a human readable block for s to w.
func PrintSummary(w io.Writer, s *MetricsSummary) {
	bold.Fprintf(w, "%s", s.URL)
	if s.Profile != "" {
		faint.Fprintf(w, " (%s)", s.Profile)
	}
	fmt.Fprintln(w)

	line := func(label, key, value string) {
		fmt.Fprintf(w, "  %-26s %12s", label, value)
		if r, ok := s.Ratings[key]; ok {
			fmt.Fprint(w, "  ")
			ratingColor(r).Fprint(w, r)
		}
		fmt.Fprintln(w)
	}
	ms := func(v float64) string {
		return fmt.Sprintf("%.0f ms", v)
	}

	line("First Contentful Paint", "fcp", ms(s.FirstContentfulPaint))
	line("Largest Contentful Paint", "lcp", ms(s.LargestContentfulPaint))
	if s.LCPElement != "" {
		faint.Fprintf(w, "  %-26s %12s\n", "  element", s.LCPElement)
	}
	line("Cumulative Layout Shift", "cls", fmt.Sprintf("%.3f", s.CumulativeLayoutShift))
	line("Total Blocking Time", "tbt", ms(s.TotalBlockingTime))
	line("Time To First Byte", "ttfb", ms(s.TimeToFirstByte))
	line("Requests", "", fmt.Sprintf("%d", s.Requests))
	line("Transferred", "", formatBytes(s.TransferSize))
	line("JavaScript", "", formatBytes(s.JSBytes))
	line("Unused JavaScript", "", formatBytes(s.JSUnusedBytes))

	for _, r := range s.RenderBlocking {
		yellow.Fprintf(w, "  render blocking: %s\n", r.URL)
	}
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}
