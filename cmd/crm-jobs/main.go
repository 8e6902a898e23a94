// Command crm-jobs запускает плановые задачи CRM: по одной за вызов
// (heartbeat, order-reminders, low-stock, report) или все по расписанию (cron).
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/crm/internal/jobs"
	"github.com/vladislavdragonenkov/crm/internal/metrics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "crm-jobs",
		Short:        "Scheduled CRM tasks",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (environment overrides it)")

	load := func() (jobs.Config, error) {
		cfg, err := jobs.LoadConfig(configPath)
		if err != nil {
			return jobs.Config{}, err
		}
		setupLogger(cfg.LogLevel)
		return cfg, nil
	}

	for _, name := range jobs.Names() {
		root.AddCommand(newJobCmd(name, load))
	}
	root.AddCommand(newCronCmd(load))
	return root
}

// setupLogger настраивает формат и уровень журнала процесса.
func setupLogger(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

func newJobCmd(name string, load func() (jobs.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: "Run the " + name + " task once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return runOnce(cmd.Context(), cfg, name, cmd.OutOrStdout())
		},
	}
}

// dialAPI подменяется в тестах.
var dialAPI = jobs.Config.Dial

// runOnce выполняет одну задачу. Сбой подключения или вызова API не является
// ошибкой процесса: он записан в журнал задачи.
func runOnce(ctx context.Context, cfg jobs.Config, name string, out io.Writer) error {
	registry := prometheus.NewRegistry()
	runner := jobs.NewRunner(cfg.LogDir, jobs.WithRunnerMetrics(metrics.NewJobMetrics(registry)))

	var client jobs.Client
	apiClient, closeFn, err := dialAPI(cfg)
	if err != nil {
		client = jobs.UnreachableClient(err)
	} else {
		client = apiClient
		defer func() { _ = closeFn() }()
	}

	job, err := jobs.New(name, cfg, client)
	if err != nil {
		return err
	}

	res, err := runner.Run(ctx, job)
	if err != nil {
		return err
	}

	if err := jobs.PushMetrics(ctx, cfg.PushgatewayURL, name, registry); err != nil {
		log.WithError(err).Warn("failed to push job metrics")
	}

	_, _ = fmt.Fprintf(out, "%s: %s\n", name, res.Status)
	return nil
}

func newCronCmd(load func() (jobs.Config, error)) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Run all tasks on their schedules until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return runCron(cmd.Context(), cfg, metricsAddr)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics on this address (empty disables)")
	return cmd
}

func runCron(ctx context.Context, cfg jobs.Config, metricsAddr string) error {
	logger := log.WithField("component", "crm-cron")

	client, closeFn, err := cfg.Dial()
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()

	runner := jobs.NewRunner(cfg.LogDir,
		jobs.WithRunnerLogger(logger),
		jobs.WithRunnerMetrics(metrics.NewJobMetrics(prometheus.DefaultRegisterer)),
	)
	factory := func(name string) (jobs.Job, error) { return jobs.New(name, cfg, client) }

	scheduler, err := jobs.NewScheduler(ctx, runner, factory, cfg.Schedules, logger)
	if err != nil {
		return err
	}

	var metricsSrv *http.Server
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Warn("metrics server failed")
			}
		}()
	}

	scheduler.Start()
	logger.Info("cron started")
	<-ctx.Done()

	logger.Info("stopping cron, waiting for running tasks")
	<-scheduler.Stop().Done()

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}
