package perfprobe

// blockingThreshold is the part of a long task that does not count as
// blocking, in ms.
const blockingThreshold = 50

// Rating is a Web Vitals rating.
type Rating string

// Rating values.
const (
	RatingGood             Rating = "good"
	RatingNeedsImprovement Rating = "needs_improvement"
	RatingPoor             Rating = "poor"
)

// threshold holds the Web Vitals limits of a metric.
type threshold struct {
	good float64 // values below this are good
	ni   float64 // values at or below this need improvement, above is poor
}

var thresholds = map[string]threshold{
	"fcp":  {good: 1800, ni: 3000},
	"lcp":  {good: 2500, ni: 4000},
	"cls":  {good: 0.1, ni: 0.25},
	"tbt":  {good: 200, ni: 600},
	"ttfb": {good: 800, ni: 1800},
}

// Rate returns the Web Vitals rating of the named metric, or "" when the
// metric has no thresholds.
func Rate(name string, value float64) Rating {
	t, ok := thresholds[name]
	switch {
	case !ok:
		return ""
	case value < t.good:
		return RatingGood
	case value <= t.ni:
		return RatingNeedsImprovement
	}
	return RatingPoor
}

// TotalBlockingTime sums the blocking portion of the long tasks that started
// at or after firstPaint.
func TotalBlockingTime(firstPaint float64, tasks []LongTask) float64 {
	var tbt float64
	for _, t := range tasks {
		if t.Start < firstPaint {
			continue
		}
		if d := t.Duration - blockingThreshold; d > 0 {
			tbt += d
		}
	}
	return tbt
}

// RenderBlocking returns the stylesheets the browser marked as render
// blocking. Stylesheets are loaded from a link element or a CSS @import.
func RenderBlocking(resources []ResourceEntry) []ResourceEntry {
	var blocking []ResourceEntry
	for _, r := range resources {
		if r.RenderBlockingStatus != "blocking" {
			continue
		}
		if r.InitiatorType == "link" || r.InitiatorType == "css" {
			blocking = append(blocking, r)
		}
	}
	return blocking
}

// MetricsSummary is the result of measuring a single URL. Times are in ms.
type MetricsSummary struct {
	URL     string `json:"url"`
	Profile string `json:"profile,omitempty"`

	FirstPaint             float64 `json:"firstPaint"`
	FirstContentfulPaint   float64 `json:"firstContentfulPaint"`
	LargestContentfulPaint float64 `json:"largestContentfulPaint"`
	LCPSize                float64 `json:"lcpSize"`
	LCPElement             string  `json:"lcpElement"`
	CumulativeLayoutShift  float64 `json:"cumulativeLayoutShift"`
	TotalBlockingTime      float64 `json:"totalBlockingTime"`
	LongTasks              int     `json:"longTasks"`

	TimeToFirstByte  float64 `json:"timeToFirstByte"`
	DOMContentLoaded float64 `json:"domContentLoaded"`
	Load             float64 `json:"load"`
	Requests         int     `json:"requests"`
	TransferSize     int64   `json:"transferSize"`

	JSBytes                 int64         `json:"jsBytes"`
	JSUnusedBytes           int64         `json:"jsUnusedBytes"`
	FirstPartyJSBytes       int64         `json:"firstPartyJsBytes"`
	FirstPartyJSUnusedBytes int64         `json:"firstPartyJsUnusedBytes"`
	Scripts                 []ScriptUsage `json:"scripts"`

	RenderBlocking []ResourceEntry    `json:"renderBlocking"`
	Ratings        map[string]Rating  `json:"ratings"`
	Runtime        map[string]float64 `json:"runtime,omitempty"`
}

// Input is everything collected during a measurement.
type Input struct {
	URL      string
	Profile  string
	Snapshot *Snapshot
	Coverage *CoverageSummary
	Runtime  map[string]float64
}

// Aggregate combines the collected data into a MetricsSummary.
func Aggregate(in Input) *MetricsSummary {
	s := &MetricsSummary{
		URL:            in.URL,
		Profile:        in.Profile,
		Scripts:        []ScriptUsage{},
		RenderBlocking: []ResourceEntry{},
		Ratings:        make(map[string]Rating),
		Runtime:        in.Runtime,
	}

	if snap := in.Snapshot; snap != nil {
		if obs := snap.Observer; obs != nil {
			if obs.FirstPaint != nil {
				s.FirstPaint = *obs.FirstPaint
			}
			if obs.FirstContentfulPaint != nil {
				s.FirstContentfulPaint = *obs.FirstContentfulPaint
				s.Ratings["fcp"] = Rate("fcp", s.FirstContentfulPaint)
			}
			if obs.LCP != nil {
				s.LargestContentfulPaint = obs.LCP.Time
				s.LCPSize = obs.LCP.Size
				s.LCPElement = obs.LCP.Element
				s.Ratings["lcp"] = Rate("lcp", s.LargestContentfulPaint)
			}
			s.CumulativeLayoutShift = obs.LayoutShiftScore()
			s.TotalBlockingTime = TotalBlockingTime(obs.PaintTime(), obs.LongTasks)
			s.LongTasks = len(obs.LongTasks)
			s.Ratings["cls"] = Rate("cls", s.CumulativeLayoutShift)
			s.Ratings["tbt"] = Rate("tbt", s.TotalBlockingTime)
		}
		if nav := snap.Navigation; nav != nil {
			s.TimeToFirstByte = nav.TTFB
			s.DOMContentLoaded = nav.DOMContentLoaded
			s.Load = nav.Load
			s.TransferSize = nav.TransferSize
			s.Requests = 1
			s.Ratings["ttfb"] = Rate("ttfb", s.TimeToFirstByte)
		}
		for _, r := range snap.Resources {
			s.Requests++
			s.TransferSize += r.TransferSize
		}
		if blocking := RenderBlocking(snap.Resources); blocking != nil {
			s.RenderBlocking = blocking
		}
	}

	if cov := in.Coverage; cov != nil {
		s.JSBytes = cov.Total
		s.JSUnusedBytes = cov.Unused
		s.FirstPartyJSBytes = cov.FirstPartyTotal
		s.FirstPartyJSUnusedBytes = cov.FirstPartyUnused
		if cov.Scripts != nil {
			s.Scripts = cov.Scripts
		}
	}

	return s
}
