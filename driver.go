package perfprobe

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/debugger"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/performance"
	"github.com/chromedp/cdproto/profiler"
	"github.com/chromedp/cdproto/runtime"
	"github.com/mailru/easyjson"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
)

const (
	// DefaultSettle is the default delay between the load event and the
	// snapshot, letting late paints, shifts and long tasks land.
	DefaultSettle = 1 * time.Second

	// DefaultLoadTimeout is the default time allowed for the load event.
	DefaultLoadTimeout = 60 * time.Second
)

// Driver measures a single page over a Session.
type Driver struct {
	s           *Session
	profile     Profile
	settle      time.Duration
	loadTimeout time.Duration
	log         logrus.FieldLogger
}

// DriverOption is a Driver option.
type DriverOption func(*Driver)

// WithProfile is a Driver option to set the emulation profile.
func WithProfile(p Profile) DriverOption {
	return func(d *Driver) { d.profile = p }
}

// WithSettle is a Driver option to set the delay between the load event and
// the snapshot.
func WithSettle(settle time.Duration) DriverOption {
	return func(d *Driver) {
		if settle >= 0 {
			d.settle = settle
		}
	}
}

// WithLoadTimeout is a Driver option to set how long to wait for the load
// event.
func WithLoadTimeout(timeout time.Duration) DriverOption {
	return func(d *Driver) {
		if timeout > 0 {
			d.loadTimeout = timeout
		}
	}
}

// WithLogger is a Driver option to set the logger.
func WithLogger(l logrus.FieldLogger) DriverOption {
	return func(d *Driver) { d.log = l }
}

// NewDriver creates a Driver for the page behind s.
func NewDriver(s *Session, opts ...DriverOption) *Driver {
	d := &Driver{
		s:           s,
		profile:     MobileProfile,
		settle:      DefaultSettle,
		loadTimeout: DefaultLoadTimeout,
		log:         discardLogger(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Measure loads urlstr and measures it. The steps run strictly in order and
// the first failing step aborts the measurement.
func (d *Driver) Measure(ctx context.Context, urlstr string) (*MetricsSummary, error) {
	ctx = cdp.WithExecutor(ctx, d.s)
	log := d.log.WithField("url", urlstr)

	// script metadata arrives as events once the debugger is enabled, so
	// the listener goes in first.
	var mu sync.Mutex
	meta := make(map[runtime.ScriptID]ScriptMeta)
	remove := d.s.On(cdproto.EventDebuggerScriptParsed, func(msg *cdproto.Message) {
		ev := new(debugger.EventScriptParsed)
		if err := easyjson.Unmarshal(msg.Params, ev); err != nil {
			log.WithError(err).Debug("could not decode scriptParsed")
			return
		}
		mu.Lock()
		meta[ev.ScriptID] = ScriptMeta{ID: ev.ScriptID, URL: ev.URL, Length: ev.Length}
		mu.Unlock()
	})
	defer remove()

	if err := (Tasks{
		enableDomains(),
		installInstrumentation(),
		Emulate(d.profile),
		startCoverage(),
	}).Do(ctx); err != nil {
		return nil, err
	}

	w := d.s.WaitFor(cdproto.EventPageLoadEventFired, d.loadTimeout)
	log.Debug("navigating")
	if err := navigate(urlstr).Do(ctx); err != nil {
		w.Cancel()
		return nil, err
	}
	if _, err := w.Wait(ctx); err != nil {
		return nil, err
	}
	log.Debug("load event fired")

	settle := time.NewTimer(d.settle)
	defer settle.Stop()
	select {
	case <-settle.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	cov, _, err := profiler.TakePreciseCoverage().Do(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := evaluateSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	counters, err := runtimeCounters(ctx)
	if err != nil {
		return nil, err
	}
	if err := profiler.StopPreciseCoverage().Do(ctx); err != nil {
		log.WithError(err).Debug("could not stop coverage")
	}

	mu.Lock()
	scripts := maps.Clone(meta)
	mu.Unlock()
	summary, err := AnalyzeCoverage(ctx, urlstr, cov, scripts, scriptSource)
	if err != nil {
		return nil, err
	}

	return Aggregate(Input{
		URL:      urlstr,
		Profile:  d.profile.Name,
		Snapshot: snap,
		Coverage: summary,
		Runtime:  counters,
	}), nil
}

func enableDomains() Action {
	return Tasks{
		page.Enable(),
		runtime.Enable(),
		network.Enable(),
		ActionFunc(func(ctx context.Context) error {
			_, err := debugger.Enable().Do(ctx)
			return err
		}),
		profiler.Enable(),
		performance.Enable(),
	}
}

func installInstrumentation() Action {
	return ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(instrumentJS).Do(ctx)
		return err
	})
}

func startCoverage() Action {
	return ActionFunc(func(ctx context.Context) error {
		_, err := profiler.StartPreciseCoverage().
			WithCallCount(true).
			WithDetailed(true).
			Do(ctx)
		return err
	})
}

func navigate(urlstr string) Action {
	return ActionFunc(func(ctx context.Context) error {
		_, _, errorText, err := page.Navigate(urlstr).Do(ctx)
		if err != nil {
			return err
		}
		if errorText != "" {
			return fmt.Errorf("page load error %s", errorText)
		}
		return nil
	})
}

func evaluateSnapshot(ctx context.Context) (*Snapshot, error) {
	res, exp, err := runtime.Evaluate(snapshotJS).
		WithReturnByValue(true).
		WithAwaitPromise(true).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if exp != nil {
		return nil, exp
	}
	if res == nil {
		return nil, ErrUndefinedSnapshot
	}
	return ParseSnapshot(res.Value)
}

func runtimeCounters(ctx context.Context) (map[string]float64, error) {
	metrics, err := performance.GetMetrics().Do(ctx)
	if err != nil {
		return nil, err
	}
	counters := make(map[string]float64, len(metrics))
	for _, m := range metrics {
		counters[m.Name] = m.Value
	}
	return counters, nil
}

func scriptSource(ctx context.Context, id runtime.ScriptID) (string, error) {
	src, _, err := debugger.GetScriptSource(id).Do(ctx)
	return src, err
}
