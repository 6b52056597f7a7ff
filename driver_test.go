package perfprobe

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/mailru/easyjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBrowser answers the commands a Session writes to a pipeTransport with
// canned results, optionally following a response with events.
type fakeBrowser struct {
	p *pipeTransport

	mu      sync.Mutex
	methods []string
	results map[string]string
	errs    map[string]*cdproto.Error
	events  map[string][]*cdproto.Message
}

func newFakeBrowser(p *pipeTransport) *fakeBrowser {
	b := &fakeBrowser{
		p:       p,
		results: make(map[string]string),
		errs:    make(map[string]*cdproto.Error),
		events:  make(map[string][]*cdproto.Message),
	}
	go b.run()
	return b
}

func (b *fakeBrowser) result(method, res string) *fakeBrowser {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.results[method] = res
	return b
}

func (b *fakeBrowser) after(method string, ev cdproto.MethodType, params string) *fakeBrowser {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[method] = append(b.events[method], &cdproto.Message{Method: ev, Params: easyjson.RawMessage(params)})
	return b
}

func (b *fakeBrowser) fail(method string, err *cdproto.Error) *fakeBrowser {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errs[method] = err
	return b
}

func (b *fakeBrowser) calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.methods...)
}

func (b *fakeBrowser) run() {
	for {
		var msg *cdproto.Message
		select {
		case msg = <-b.p.out:
		case <-b.p.closed:
			return
		}

		method := string(msg.Method)
		b.mu.Lock()
		b.methods = append(b.methods, method)
		res, ok := b.results[method]
		perr := b.errs[method]
		events := b.events[method]
		b.mu.Unlock()

		if !ok {
			res = `{}`
		}
		out := &cdproto.Message{ID: msg.ID, Result: easyjson.RawMessage(res)}
		if perr != nil {
			out = &cdproto.Message{ID: msg.ID, Error: perr}
		}
		b.p.in <- out
		for _, ev := range events {
			b.p.in <- ev
		}
	}
}

const staticPageSnapshot = `{"result":{"type":"object","value":{
	"observer": {
		"firstPaint": 180, "firstContentfulPaint": 180,
		"lcp": {"time": 420, "size": 180000, "element": "img#hero"},
		"cls": 0, "shifts": [], "longTasks": []
	},
	"navigation": {"ttfb": 40, "domContentLoaded": 300, "load": 410, "transferSize": 2048},
	"resources": [
		{"url": "https://example.com/style.css", "initiatorType": "link", "transferSize": 900, "encodedBodySize": 600, "duration": 30, "startTime": 50, "renderBlockingStatus": "blocking"},
		{"url": "https://example.com/hero.jpg", "initiatorType": "img", "transferSize": 40000, "encodedBodySize": 39700, "duration": 200, "startTime": 60, "renderBlockingStatus": "non-blocking"},
		{"url": "https://example.com/app.js", "initiatorType": "script", "transferSize": 1200, "encodedBodySize": 1000, "duration": 20, "startTime": 70, "renderBlockingStatus": "non-blocking"}
	]
}}}`

func staticPage(p *pipeTransport) *fakeBrowser {
	return newFakeBrowser(p).
		result("Debugger.enable", `{"debuggerId":"D1"}`).
		result("Page.addScriptToEvaluateOnNewDocument", `{"identifier":"1"}`).
		result("Profiler.startPreciseCoverage", `{"timestamp":1}`).
		result("Page.navigate", `{"frameId":"F1","loaderId":"L1"}`).
		after("Page.navigate", cdproto.EventDebuggerScriptParsed, `{"scriptId":"10","url":"https://example.com/app.js","startLine":0,"startColumn":0,"endLine":40,"endColumn":0,"executionContextId":1,"hash":"h","length":1000}`).
		after("Page.navigate", cdproto.EventPageLoadEventFired, `{"timestamp":2.5}`).
		result("Profiler.takePreciseCoverage", `{"timestamp":3,"result":[
			{"scriptId":"10","url":"https://example.com/app.js","functions":[
				{"functionName":"","isBlockCoverage":false,"ranges":[{"startOffset":0,"endOffset":300,"count":1}]},
				{"functionName":"unused","isBlockCoverage":false,"ranges":[{"startOffset":300,"endOffset":1000,"count":0}]}
			]},
			{"scriptId":"11","url":"","functions":[{"functionName":"","isBlockCoverage":false,"ranges":[{"startOffset":0,"endOffset":20,"count":1}]}]}
		]}`).
		result("Runtime.evaluate", staticPageSnapshot).
		result("Performance.getMetrics", `{"metrics":[{"name":"ScriptDuration","value":0.012},{"name":"Nodes","value":42}]}`)
}

func TestDriverMeasureStaticPage(t *testing.T) {
	t.Parallel()

	p := newPipeTransport()
	b := staticPage(p)
	s := NewSession(p)
	defer s.Close()

	d := NewDriver(s, WithSettle(0), WithLoadTimeout(5*time.Second))
	sum, err := d.Measure(context.Background(), "https://example.com/")
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/", sum.URL)
	assert.Equal(t, "mobile", sum.Profile)
	assert.EqualValues(t, 180, sum.FirstPaint)
	assert.EqualValues(t, 420, sum.LargestContentfulPaint)
	assert.Equal(t, "img#hero", sum.LCPElement)
	assert.Zero(t, sum.TotalBlockingTime)
	assert.Zero(t, sum.CumulativeLayoutShift)

	require.Len(t, sum.RenderBlocking, 1)
	assert.Equal(t, "https://example.com/style.css", sum.RenderBlocking[0].URL)

	require.Len(t, sum.Scripts, 1)
	assert.Equal(t, ScriptUsage{URL: "https://example.com/app.js", Length: 1000, Used: 300, Unused: 700, FirstParty: true}, sum.Scripts[0])
	assert.EqualValues(t, 700, sum.JSUnusedBytes)
	assert.EqualValues(t, 1000, sum.FirstPartyJSBytes)
	assert.Equal(t, 4, sum.Requests)
	assert.EqualValues(t, 42, sum.Runtime["Nodes"])

	assert.Equal(t, []string{
		"Page.enable",
		"Runtime.enable",
		"Network.enable",
		"Debugger.enable",
		"Profiler.enable",
		"Performance.enable",
		"Page.addScriptToEvaluateOnNewDocument",
		"Emulation.setUserAgentOverride",
		"Emulation.setDeviceMetricsOverride",
		"Emulation.setTouchEmulationEnabled",
		"Emulation.setCPUThrottlingRate",
		"Network.emulateNetworkConditions",
		"Network.setCacheDisabled",
		"Profiler.startPreciseCoverage",
		"Page.navigate",
		"Profiler.takePreciseCoverage",
		"Runtime.evaluate",
		"Performance.getMetrics",
		"Profiler.stopPreciseCoverage",
	}, b.calls())
}

func TestDriverMeasureSourceFallback(t *testing.T) {
	t.Parallel()

	p := newPipeTransport()
	b := newFakeBrowser(p).
		result("Page.navigate", `{"frameId":"F1","loaderId":"L1"}`).
		after("Page.navigate", cdproto.EventPageLoadEventFired, `{"timestamp":1}`).
		result("Profiler.takePreciseCoverage", `{"timestamp":3,"result":[
			{"scriptId":"7","url":"https://example.com/late.js","functions":[{"functionName":"","isBlockCoverage":false,"ranges":[{"startOffset":0,"endOffset":5,"count":1}]}]}
		]}`).
		result("Debugger.getScriptSource", `{"scriptSource":"console.log(1)"}`).
		result("Runtime.evaluate", `{"result":{"type":"object","value":{"observer":{"cls":0,"shifts":[],"longTasks":[]},"navigation":null,"resources":[]}}}`).
		result("Performance.getMetrics", `{"metrics":[]}`)
	s := NewSession(p)
	defer s.Close()

	sum, err := NewDriver(s, WithSettle(0), WithProfile(DesktopProfile)).Measure(context.Background(), "https://example.com/")
	require.NoError(t, err)
	require.Len(t, sum.Scripts, 1)
	assert.EqualValues(t, 14, sum.Scripts[0].Length)
	assert.EqualValues(t, 9, sum.Scripts[0].Unused)
	assert.Equal(t, "desktop", sum.Profile)
	assert.Contains(t, b.calls(), "Debugger.getScriptSource")
}

func TestDriverNavigateErrorText(t *testing.T) {
	t.Parallel()

	p := newPipeTransport()
	newFakeBrowser(p).
		result("Page.navigate", `{"frameId":"F1","loaderId":"L1","errorText":"net::ERR_NAME_NOT_RESOLVED"}`)
	s := NewSession(p)
	defer s.Close()

	_, err := NewDriver(s, WithSettle(0)).Measure(context.Background(), "https://nope.invalid/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "net::ERR_NAME_NOT_RESOLVED")

	s.mu.Lock()
	assert.Empty(t, s.waiters, "load waiter is cancelled when navigation fails")
	s.mu.Unlock()
}

func TestDriverLoadTimeout(t *testing.T) {
	t.Parallel()

	p := newPipeTransport()
	newFakeBrowser(p).
		result("Page.navigate", `{"frameId":"F1","loaderId":"L1"}`)
	s := NewSession(p)
	defer s.Close()

	_, err := NewDriver(s, WithSettle(0), WithLoadTimeout(50*time.Millisecond)).Measure(context.Background(), "https://example.com/slow")
	assert.ErrorIs(t, err, ErrWaitTimeout)
}

func TestDriverProtocolError(t *testing.T) {
	t.Parallel()

	p := newPipeTransport()
	b := newFakeBrowser(p).
		fail("Profiler.startPreciseCoverage", &cdproto.Error{Code: -32000, Message: "Profiler is not enabled"})
	s := NewSession(p)
	defer s.Close()

	_, err := NewDriver(s, WithSettle(0)).Measure(context.Background(), "https://example.com/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Profiler is not enabled")
	assert.NotContains(t, b.calls(), "Page.navigate")
}

func TestDriverUndefinedSnapshot(t *testing.T) {
	t.Parallel()

	p := newPipeTransport()
	newFakeBrowser(p).
		result("Page.navigate", `{"frameId":"F1","loaderId":"L1"}`).
		after("Page.navigate", cdproto.EventPageLoadEventFired, `{"timestamp":1}`).
		result("Profiler.takePreciseCoverage", `{"timestamp":3,"result":[]}`).
		result("Runtime.evaluate", `{"result":{"type":"object","subtype":"null","value":null}}`)
	s := NewSession(p)
	defer s.Close()

	_, err := NewDriver(s, WithSettle(0)).Measure(context.Background(), "https://example.com/")
	assert.ErrorIs(t, err, ErrUndefinedSnapshot)
}

func TestDriverSettleCancelled(t *testing.T) {
	t.Parallel()

	p := newPipeTransport()
	newFakeBrowser(p).
		result("Page.navigate", `{"frameId":"F1","loaderId":"L1"}`).
		after("Page.navigate", cdproto.EventPageLoadEventFired, `{"timestamp":1}`)
	s := NewSession(p)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := NewDriver(s, WithSettle(time.Hour)).Measure(ctx, "https://example.com/")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
