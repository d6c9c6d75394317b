package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	goTenant "github.com/MrEthical07/goTenant"
	otelexport "github.com/MrEthical07/goTenant/metrics/export/otel"
	"github.com/MrEthical07/goTenant/metrics/export/prometheus"
	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// app carries the global flags and the client opened for one invocation.
type app struct {
	baseURL     string
	sessionFile string
	output      string
	verbose     bool

	metricsFile   string
	metricsFormat string

	client *goTenant.Client
}

// execute runs one orgctl invocation and releases the client afterwards.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	defer a.close()
	err := root.ExecuteContext(ctx)
	if werr := a.writeMetrics(ctx); err == nil {
		err = werr
	}
	return err
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "orgctl",
		Short: "Manage your account and organizations",
		Long: `orgctl signs in to an organization backend and manages memberships,
roles and invites.

Settings are read from GOTENANT_* environment variables. The session is
kept in a file so later commands stay signed in.

Examples:
  orgctl auth login --email alice@example.com --password secret
  orgctl org list --output yaml
  orgctl org leave 42 --yes`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch a.metricsFormat {
			case "prometheus", "otel":
			default:
				return fmt.Errorf("unknown metrics format %q: use prometheus or otel", a.metricsFormat)
			}
			_, err := newPrinter(a.output, io.Discard)
			return err
		},
	}

	root.PersistentFlags().StringVar(&a.baseURL, "base-url", "", "backend URL (overrides GOTENANT_GATEWAY_BASE_URL)")
	root.PersistentFlags().StringVar(&a.sessionFile, "session-file", "", "session file (default: user config dir)")
	root.PersistentFlags().StringVarP(&a.output, "output", "o", "table", "output format: table, json or yaml")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log client diagnostics to stderr")
	root.PersistentFlags().StringVar(&a.metricsFile, "metrics-file", "", "write client metrics to this file on exit")
	root.PersistentFlags().StringVar(&a.metricsFormat, "metrics-format", "prometheus", "metrics file format: prometheus or otel")

	root.AddCommand(newAuthCmd(a), newOrgCmd(a), newInviteCmd(a))
	return root
}

func (a *app) config(cmd *cobra.Command) (goTenant.Config, error) {
	cfg, err := goTenant.LoadConfigFromEnv()
	if err != nil {
		return goTenant.Config{}, err
	}
	if a.baseURL != "" {
		cfg.Gateway.BaseURL = a.baseURL
	}
	if cfg.Gateway.BaseURL == "" {
		return goTenant.Config{}, errors.New("no backend configured: set --base-url or GOTENANT_GATEWAY_BASE_URL")
	}

	// A memory session would not survive the process.
	if a.sessionFile != "" || cfg.Session.Backend == goTenant.SessionBackendMemory {
		cfg.Session.Backend = goTenant.SessionBackendFile
	}
	if cfg.Session.Backend == goTenant.SessionBackendFile {
		switch {
		case a.sessionFile != "":
			cfg.Session.FilePath = a.sessionFile
		case cfg.Session.FilePath == "":
			dir, err := os.UserConfigDir()
			if err != nil {
				return goTenant.Config{}, fmt.Errorf("locate config dir: %w", err)
			}
			cfg.Session.FilePath = filepath.Join(dir, "orgctl", "session")
		}
	}

	if a.metricsFile != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.EnableLatencyHistograms = true
	}

	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	cfg.Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return cfg, nil
}

// connect builds the client on first use and hydrates the saved session.
func (a *app) connect(cmd *cobra.Command) (*goTenant.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	cfg, err := a.config(cmd)
	if err != nil {
		return nil, err
	}
	b := goTenant.New().WithConfig(cfg)
	if cfg.Audit.Enabled {
		b = b.WithAuditSink(goTenant.NewJSONWriterSink(cmd.ErrOrStderr()))
	}
	cl, err := b.Build()
	if err != nil {
		return nil, err
	}
	if err := cl.Init(cmd.Context()); err != nil {
		cl.Close()
		return nil, err
	}
	a.client = cl
	cfg.Logger.Debug("client ready", "backend", cfg.Gateway.BaseURL, "session", cfg.Session.FilePath, "authenticated", cl.Authenticated())
	return cl, nil
}

// session is connect for commands that need a signed-in user.
func (a *app) session(cmd *cobra.Command) (*goTenant.Client, error) {
	cl, err := a.connect(cmd)
	if err != nil {
		return nil, err
	}
	if !cl.Authenticated() {
		return nil, errors.New("not signed in: run 'orgctl auth login' first")
	}
	return cl, nil
}

// writeMetrics dumps the counters of this invocation to --metrics-file.
// Commands that never opened a client write nothing.
func (a *app) writeMetrics(ctx context.Context) error {
	if a.metricsFile == "" || a.client == nil {
		return nil
	}
	if a.metricsFormat != "otel" {
		return prometheus.New(a.client).WriteFile(a.metricsFile)
	}

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(ctx)

	exp, err := otelexport.New(provider.Meter("orgctl"), a.client)
	if err != nil {
		return err
	}
	defer exp.Close()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return fmt.Errorf("metrics: collect: %w", err)
	}
	data, err := json.MarshalIndent(rm.ScopeMetrics, "", "  ")
	if err != nil {
		return fmt.Errorf("metrics: encode: %w", err)
	}
	if err := os.WriteFile(a.metricsFile, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("metrics: write %s: %w", a.metricsFile, err)
	}
	return nil
}

func (a *app) close() {
	if a.client != nil {
		a.client.Close()
		a.client = nil
	}
}

func (a *app) print(cmd *cobra.Command, v table) error {
	p, err := newPrinter(a.output, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	return p.print(v)
}

// describe renders err for the terminal. Client errors use their user
// message; anything else, such as flag errors, is shown as is.
func describe(err error) string {
	if goTenant.Classify(err) == goTenant.KindUnknown {
		return err.Error()
	}
	return goTenant.UserMessage(err)
}
