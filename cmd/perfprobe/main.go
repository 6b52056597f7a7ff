// Command perfprobe measures page load performance in headless Chrome.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/perfprobe/perfprobe"
	"github.com/perfprobe/perfprobe/client"
	"github.com/perfprobe/perfprobe/runner"
	"github.com/perfprobe/perfprobe/storage"
)

func main() {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	cfg, err := perfprobe.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}

	cmd := newRootCommand(cfg, logger, afero.NewOsFs(), colorable.NewColorableStdout())
	if err := cmd.ExecuteContext(ctx); err != nil {
		logger.Error(err)
		stop()
		os.Exit(1)
	}
}

// options are the command line flags.
type options struct {
	out         string
	profile     string
	settle      time.Duration
	loadTimeout time.Duration
	port        int
	verbose     bool
	noColor     bool
	s3Bucket    string
	s3Key       string
}

// launcher starts a browser, returning the introspection client, the binary
// path and a func that kills the browser.
type launcher func(ctx context.Context, cfg *perfprobe.Config, port int) (*client.Client, string, func(), error)

type rootCommand struct {
	cfg    *perfprobe.Config
	logger *logrus.Logger
	fs     afero.Fs
	stdout io.Writer
	launch launcher
	opts   options
}

func newRootCommand(cfg *perfprobe.Config, logger *logrus.Logger, fs afero.Fs, stdout io.Writer) *cobra.Command {
	c := &rootCommand{
		cfg:    cfg,
		logger: logger,
		fs:     fs,
		stdout: stdout,
		launch: launchChrome,
	}
	return c.command()
}

func (c *rootCommand) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "perfprobe [flags] <url> [<url> ...]",
		Short: "Measure page load performance in headless Chrome",
		Long: `perfprobe loads each URL in a fresh headless Chrome tab under emulated
network and CPU throttling, and reports paint timings, layout shift, total
blocking time and JavaScript coverage. URLs are measured one after another.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd.Context(), args)
		},
	}

	cmd.Flags().AddFlagSet(c.flagSet())

	return cmd
}

func (c *rootCommand) flagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	flags.SortFlags = false
	flags.StringVarP(&c.opts.out, "out", "o", "perfprobe-report.json", "report output `path`")
	flags.StringVar(&c.opts.profile, "profile", c.cfg.Profile, "emulation profile (mobile or desktop)")
	flags.DurationVar(&c.opts.settle, "settle", c.cfg.Settle, "delay between the load event and the snapshot")
	flags.DurationVar(&c.opts.loadTimeout, "load-timeout", c.cfg.LoadTimeout, "time allowed for the load event")
	flags.IntVar(&c.opts.port, "port", c.cfg.Port, "remote debugging port")
	flags.BoolVarP(&c.opts.verbose, "verbose", "v", false, "enable debug logging")
	flags.BoolVar(&c.opts.noColor, "no-color", false, "disable colored output")
	flags.StringVar(&c.opts.s3Bucket, "s3-bucket", c.cfg.S3Bucket, "upload the report to this S3 bucket")
	flags.StringVar(&c.opts.s3Key, "s3-key", "", "object key of the uploaded report (default: report file name)")
	return flags
}

func (c *rootCommand) run(ctx context.Context, urls []string) error {
	if c.opts.verbose {
		c.logger.SetLevel(logrus.DebugLevel)
	}
	if c.opts.noColor {
		color.NoColor = true
	}

	profile, err := perfprobe.ProfileByName(c.opts.profile)
	if err != nil {
		return fmt.Errorf("%w %q", err, c.opts.profile)
	}

	cl, execPath, kill, err := c.launch(ctx, c.cfg, c.opts.port)
	if err != nil {
		return err
	}
	defer kill()

	v, err := cl.WaitReady(ctx)
	if err != nil {
		return err
	}
	fields := logrus.Fields{
		"browser":  v.Browser,
		"protocol": v.ProtocolVersion,
	}
	if major, err := runner.MajorVersion(execPath); err == nil {
		fields["major"] = major
	} else {
		c.logger.WithError(err).Debug("could not read browser binary version")
	}
	c.logger.WithFields(fields).Debug("browser ready")

	tp, err := perfprobe.NewTracerProvider(ctx, c.cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			c.logger.WithError(err).Warn("could not flush traces")
		}
	}()

	probe := perfprobe.NewProbe(cl,
		perfprobe.WithTracer(tp.Tracer()),
		perfprobe.WithProbeLogger(c.logger),
		perfprobe.WithDriverOptions(
			perfprobe.WithProfile(profile),
			perfprobe.WithSettle(c.opts.settle),
			perfprobe.WithLoadTimeout(c.opts.loadTimeout),
		),
	)
	report, failed := perfprobe.Run(ctx, probe, urls, c.logger, func(s *perfprobe.MetricsSummary) {
		perfprobe.PrintSummary(c.stdout, s)
		fmt.Fprintln(c.stdout)
	})
	report.BrowserBinaryPath = execPath

	if err := perfprobe.WriteReport(c.fs, c.opts.out, report); err != nil {
		return err
	}
	c.logger.WithField("path", c.opts.out).Info("report written")

	if c.opts.s3Bucket != "" {
		if err := c.upload(ctx, report); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d urls failed", failed, len(urls))
	}
	return nil
}

func (c *rootCommand) upload(ctx context.Context, report *perfprobe.Report) error {
	u, err := storage.NewUploader(ctx, storage.Config{
		Bucket:    c.opts.s3Bucket,
		Endpoint:  c.cfg.S3Endpoint,
		AccessKey: c.cfg.S3AccessKey,
		SecretKey: c.cfg.S3SecretKey,
		Region:    c.cfg.S3Region,
	})
	if err != nil {
		return err
	}
	buf, err := report.Marshal()
	if err != nil {
		return err
	}
	key := c.opts.s3Key
	if key == "" {
		key = filepath.Base(c.opts.out)
	}
	if err := u.Upload(ctx, key, buf, "application/json"); err != nil {
		return err
	}
	c.logger.WithFields(logrus.Fields{"bucket": u.Bucket(), "key": key}).Info("report uploaded")
	return nil
}

func launchChrome(ctx context.Context, cfg *perfprobe.Config, port int) (*client.Client, string, func(), error) {
	r, err := runner.New(
		runner.ExecPath(cfg.ChromePath),
		runner.RemoteDebuggingPort(port),
	)
	if err != nil {
		return nil, "", nil, err
	}
	if err := r.Start(ctx); err != nil {
		return nil, "", nil, err
	}
	cl := r.Client(
		client.WatchInterval(cfg.PollInterval),
		client.WatchAttempts(cfg.PollAttempts),
	)
	return cl, r.ExecPath(), r.Kill, nil
}
