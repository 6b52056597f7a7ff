package perfprobe

import (
	"context"
	"net/url"
	"strings"

	"github.com/chromedp/cdproto/profiler"
	"github.com/chromedp/cdproto/runtime"
	"golang.org/x/exp/slices"
)

// Range is a [Start, End) byte interval of a script's source.
type Range struct {
	Start int64
	End   int64
	Count int64
}

// UsedRanges returns the ranges of the script that executed at least once,
// across all of its functions.
func UsedRanges(sc *profiler.ScriptCoverage) []Range {
	var ranges []Range
	for _, fn := range sc.Functions {
		for _, r := range fn.Ranges {
			if r.Count > 0 {
				ranges = append(ranges, Range{Start: r.StartOffset, End: r.EndOffset, Count: r.Count})
			}
		}
	}
	return ranges
}

// MergeRanges sorts the ranges by start and merges the ones that overlap or
// touch, returning disjoint intervals. The input is not modified.
func MergeRanges(ranges []Range) []Range {
	if len(ranges) == 0 {
		return nil
	}
	sorted := slices.Clone(ranges)
	slices.SortFunc(sorted, func(a, b Range) bool {
		return a.Start < b.Start
	})

	merged := []Range{sorted[0]}
	for _, r := range sorted[1:] {
		cur := &merged[len(merged)-1]
		if r.Start > cur.End {
			merged = append(merged, r)
			continue
		}
		if r.End > cur.End {
			cur.End = r.End
		}
		if r.Count > cur.Count {
			cur.Count = r.Count
		}
	}
	return merged
}

// RangesLength returns the total length of the ranges.
func RangesLength(ranges []Range) int64 {
	var n int64
	for _, r := range ranges {
		n += r.End - r.Start
	}
	return n
}

// ScriptMeta is what the page reported about a parsed script.
type ScriptMeta struct {
	ID     runtime.ScriptID
	URL    string
	Length int64
}

// SourceFunc returns the source of a script.
type SourceFunc func(context.Context, runtime.ScriptID) (string, error)

// ScriptUsage is the byte usage of a single script.
type ScriptUsage struct {
	URL        string `json:"url"`
	Length     int64  `json:"length"`
	Used       int64  `json:"used"`
	Unused     int64  `json:"unused"`
	FirstParty bool   `json:"firstParty"`
}

// CoverageSummary is the JavaScript byte usage of a page.
type CoverageSummary struct {
	Scripts          []ScriptUsage
	Total            int64
	Unused           int64
	FirstPartyTotal  int64
	FirstPartyUnused int64
}

// AnalyzeCoverage computes per-script used and unused bytes.
//
// Script lengths come from meta; when a script was never reported there,
// its source is fetched with source and its length used instead. Scripts
// without a URL (eval'd or injected code) have no origin and are skipped.
func AnalyzeCoverage(ctx context.Context, pageURL string, cov []*profiler.ScriptCoverage, meta map[runtime.ScriptID]ScriptMeta, source SourceFunc) (*CoverageSummary, error) {
	page, _ := url.Parse(pageURL)

	sum := new(CoverageSummary)
	for _, sc := range cov {
		m, ok := meta[sc.ScriptID]
		urlstr := m.URL
		if urlstr == "" {
			urlstr = sc.URL
		}
		if urlstr == "" {
			continue
		}

		length := m.Length
		if !ok || length <= 0 {
			if source == nil {
				continue
			}
			src, err := source(ctx, sc.ScriptID)
			if err != nil {
				return nil, err
			}
			length = int64(len(src))
		}

		used := RangesLength(MergeRanges(UsedRanges(sc)))
		if used > length {
			used = length
		}
		u := ScriptUsage{
			URL:        urlstr,
			Length:     length,
			Used:       used,
			Unused:     length - used,
			FirstParty: sameOrigin(page, urlstr),
		}
		sum.Scripts = append(sum.Scripts, u)
		sum.Total += u.Length
		sum.Unused += u.Unused
		if u.FirstParty {
			sum.FirstPartyTotal += u.Length
			sum.FirstPartyUnused += u.Unused
		}
	}
	return sum, nil
}

// sameOrigin reports whether urlstr has the same scheme, host and port as
// page.
func sameOrigin(page *url.URL, urlstr string) bool {
	if page == nil {
		return false
	}
	u, err := url.Parse(urlstr)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, page.Scheme) && strings.EqualFold(u.Host, page.Host)
}
