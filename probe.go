package perfprobe

import (
	"context"
	"time"

	"github.com/perfprobe/perfprobe/client"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Measurer measures a single URL.
type Measurer interface {
	Measure(ctx context.Context, urlstr string) (*MetricsSummary, error)
}

// Probe measures URLs in a running browser, opening a fresh page target and
// Session for each one.
type Probe struct {
	targets *client.Client
	opts    []DriverOption
	tracer  trace.Tracer
	log     logrus.FieldLogger
}

// ProbeOption is a Probe option.
type ProbeOption func(*Probe)

// WithDriverOptions is a Probe option to set the options of every Driver.
func WithDriverOptions(opts ...DriverOption) ProbeOption {
	return func(p *Probe) { p.opts = append(p.opts, opts...) }
}

// WithTracer is a Probe option to set the tracer recording a span per URL.
func WithTracer(t trace.Tracer) ProbeOption {
	return func(p *Probe) { p.tracer = t }
}

// WithProbeLogger is a Probe option to set the logger.
func WithProbeLogger(l logrus.FieldLogger) ProbeOption {
	return func(p *Probe) { p.log = l }
}

// NewProbe creates a Probe managing page targets through c.
func NewProbe(c *client.Client, opts ...ProbeOption) *Probe {
	p := &Probe{
		targets: c,
		tracer:  noop.NewTracerProvider().Tracer(serviceName),
		log:     discardLogger(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Measure opens a page target, measures urlstr in it and closes it again.
// Teardown failures are logged and otherwise ignored.
func (p *Probe) Measure(ctx context.Context, urlstr string) (_ *MetricsSummary, err error) {
	ctx, span := p.tracer.Start(ctx, "measure", trace.WithAttributes(attribute.String("url", urlstr)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	log := p.log.WithField("url", urlstr)

	t, err := p.targets.NewPageTarget(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := p.targets.CloseTarget(context.Background(), t); err != nil {
			log.WithError(err).Debug("could not close target")
		}
	}()

	// the new target must be listed as a page before it is driven.
	pt, err := p.targets.PageTarget(ctx, t.ID)
	if err != nil {
		return nil, err
	}

	conn, err := DialContext(ctx, pt.WebSocketDebuggerURL)
	if err != nil {
		return nil, err
	}
	s := NewSession(conn,
		WithLogf(log.Infof),
		WithErrorf(log.Errorf),
		WithDebugf(log.Debugf),
	)
	defer s.Close()

	opts := append([]DriverOption{WithLogger(log)}, p.opts...)
	return NewDriver(s, opts...).Measure(ctx, urlstr)
}

// Run measures the urls one after another, calling onResult (when not nil)
// as soon as each measurement completes. A failing URL is logged and left
// out of the report; the number of failures is returned alongside it.
func Run(ctx context.Context, m Measurer, urls []string, log logrus.FieldLogger, onResult func(*MetricsSummary)) (*Report, int) {
	start := time.Now()
	r := &Report{
		GeneratedAt:  start.UTC(),
		Measurements: []*MetricsSummary{},
	}

	var failed int
	for _, urlstr := range urls {
		s, err := m.Measure(ctx, urlstr)
		if err != nil {
			failed++
			log.WithError(err).WithField("url", urlstr).Error("measurement failed")
			continue
		}
		r.Measurements = append(r.Measurements, s)
		if onResult != nil {
			onResult(s)
		}
	}

	r.DurationMs = time.Since(start).Milliseconds()
	return r, failed
}
