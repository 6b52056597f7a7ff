package perfprobe

import (
	"bytes"
	"encoding/json"
)

// ObserverState is the in-page observer state accumulated by the
// instrumentation script. Times are milliseconds since navigation start.
type ObserverState struct {
	FirstPaint           *float64      `json:"firstPaint"`
	FirstContentfulPaint *float64      `json:"firstContentfulPaint"`
	LCP                  *LargestPaint `json:"lcp"`
	CLS                  float64       `json:"cls"`
	Shifts               []LayoutShift `json:"shifts"`
	LongTasks            []LongTask    `json:"longTasks"`
}

// LargestPaint is the latest largest contentful paint candidate.
type LargestPaint struct {
	Time    float64 `json:"time"`
	Size    float64 `json:"size"`
	Element string  `json:"element"`
}

// LayoutShift is a single layout-shift entry.
type LayoutShift struct {
	Value          float64 `json:"value"`
	HadRecentInput bool    `json:"hadRecentInput"`
	StartTime      float64 `json:"startTime"`
}

// LongTask is a main thread task that ran for 50ms or more.
type LongTask struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// PaintTime returns the first paint, falling back to first contentful paint,
// or 0 when the page never painted.
func (s *ObserverState) PaintTime() float64 {
	switch {
	case s.FirstPaint != nil:
		return *s.FirstPaint
	case s.FirstContentfulPaint != nil:
		return *s.FirstContentfulPaint
	}
	return 0
}

// LayoutShiftScore returns the cumulative layout shift, ignoring shifts that
// closely followed user input. The in-page running total is used when no
// individual entries were recorded.
func (s *ObserverState) LayoutShiftScore() float64 {
	if len(s.Shifts) == 0 {
		return s.CLS
	}
	var score float64
	for _, shift := range s.Shifts {
		if !shift.HadRecentInput {
			score += shift.Value
		}
	}
	return score
}

// ResourceEntry is a resource timing entry.
type ResourceEntry struct {
	URL                  string  `json:"url"`
	InitiatorType        string  `json:"initiatorType"`
	TransferSize         int64   `json:"transferSize"`
	EncodedBodySize      int64   `json:"encodedBodySize"`
	Duration             float64 `json:"duration"`
	StartTime            float64 `json:"startTime"`
	RenderBlockingStatus string  `json:"renderBlockingStatus,omitempty"`
}

// NavigationTiming holds the main document's navigation timing.
type NavigationTiming struct {
	TTFB             float64 `json:"ttfb"`
	DOMContentLoaded float64 `json:"domContentLoaded"`
	Load             float64 `json:"load"`
	TransferSize     int64   `json:"transferSize"`
}

// Snapshot is the page state read back after the settle delay.
type Snapshot struct {
	Observer   *ObserverState    `json:"observer"`
	Navigation *NavigationTiming `json:"navigation"`
	Resources  []ResourceEntry   `json:"resources"`
}

// ParseSnapshot decodes the value returned by the snapshot expression.
func ParseSnapshot(buf []byte) (*Snapshot, error) {
	buf = bytes.TrimSpace(buf)
	if len(buf) == 0 || bytes.Equal(buf, []byte("null")) {
		return nil, ErrUndefinedSnapshot
	}
	s := new(Snapshot)
	if err := json.Unmarshal(buf, s); err != nil {
		return nil, err
	}
	if s.Observer == nil {
		return nil, ErrUndefinedSnapshot
	}
	return s, nil
}
