package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"auditlog/internal/config"
	"auditlog/internal/logging"
	"auditlog/internal/metrics"
	"auditlog/internal/metrics/datadog"
	"auditlog/internal/metrics/prompush"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Setting keys. Each is bound to a persistent flag of the same name and to
// the environment variable AUDITLOG_<KEY> with dashes as underscores.
const (
	keyConfig         = "config"
	keyLogLevel       = "log-level"
	keyLogFormat      = "log-format"
	keyMetricsBackend = "metrics-backend"
	keyPushgatewayURL = "pushgateway-url"
	keyDatadogAddr    = "datadog-addr"
)

// app holds what every subcommand shares.
type app struct {
	v      *viper.Viper
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{v: viper.New(), stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "auditlog",
		Short:         "Merge, parse and enrich S3 server access logs",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(a.stderr, a.v.GetString(keyLogLevel), a.v.GetString(keyLogFormat))
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringP(keyConfig, "c", "auditlog.json", "pipeline config JSON path")
	pf.String(keyLogLevel, "info", "log level: debug, info, warn, error")
	pf.String(keyLogFormat, "text", "log format: text or json")
	pf.String(keyMetricsBackend, "none", "metrics backend: none, pushgateway or datadog")
	pf.String(keyPushgatewayURL, "http://localhost:9091", "Pushgateway base URL")
	pf.String(keyDatadogAddr, "127.0.0.1:8125", "DogStatsD address")

	a.v.SetEnvPrefix("AUDITLOG")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	cobra.CheckErr(a.v.BindPFlags(pf))

	root.AddCommand(
		a.newRunCmd(),
		a.newMergeCmd(),
		a.newParseCmd(),
		a.newValidateCmd(),
		newFieldsCmd(),
	)
	root.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return fmt.Errorf("%w\n%s", err, c.UsageString())
	})
	return root
}

// loadPipeline reads the config file and prints every issue. Errors abort.
func (a *app) loadPipeline() (config.Pipeline, error) {
	path := a.v.GetString(keyConfig)
	p, err := config.Load(path)
	if err != nil {
		return config.Pipeline{}, err
	}
	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintf(a.stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return config.Pipeline{}, fmt.Errorf("configuration is invalid: %s", path)
	}
	return p, nil
}

// setupMetrics installs the selected backend. The returned func flushes it.
// A backend that fails to initialize leaves metrics disabled.
func (a *app) setupMetrics(job string) func() {
	logger := a.logger.With("component", "metrics")
	var (
		b   metrics.Backend
		err error
	)
	switch name := a.v.GetString(keyMetricsBackend); name {
	case "", "none":
		return func() {}
	case "pushgateway":
		b, err = prompush.NewBackend(job, a.v.GetString(keyPushgatewayURL))
	case "datadog":
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       a.v.GetString(keyDatadogAddr),
			Namespace:  "auditlog.",
			GlobalTags: []string{"job:" + job},
		})
	default:
		logger.Warn("unknown metrics backend; metrics disabled", "backend", name)
		return func() {}
	}
	if err != nil {
		logger.Warn("metrics backend init failed; metrics disabled", "error", err)
		return func() {}
	}
	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			logger.Warn("metrics flush failed", "error", err)
		}
	}
}
