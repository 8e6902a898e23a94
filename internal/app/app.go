// Package app собирает процесс crm-service: хранилище, сервис CRM, API по
// gRPC и HTTP, метрики, health-пробы и outbox worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/vladislavdragonenkov/crm/internal/api"
	"github.com/vladislavdragonenkov/crm/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/crm/internal/health"
	"github.com/vladislavdragonenkov/crm/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/crm/internal/metrics"
	"github.com/vladislavdragonenkov/crm/internal/service/crm"
	"github.com/vladislavdragonenkov/crm/internal/service/outbox"
	"github.com/vladislavdragonenkov/crm/internal/version"
)

// Run запускает сервис и блокируется до отмены ctx или сбоя сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	crmMetrics := metrics.NewCRMMetrics()
	svc := crm.NewService(deps.store,
		crm.WithLogger(logger.WithField("layer", "service")),
		crm.WithMetrics(crmMetrics),
	)
	dispatcher := api.NewDispatcher(svc,
		api.WithDispatcherLogger(logger.WithField("layer", "api")),
		api.WithDispatcherMetrics(crmMetrics),
	)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", deps.storageChecker)
	healthHandler.RegisterChecker("outbox", healthcheck.NewOutboxBacklogChecker(deps.outbox, cfg.OutboxMaxPending))

	producer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafkaProducer(producer, logger)

	grpcServer, grpcHealth := newGRPCServer(dispatcher, logger)
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}
	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = grpcLis.Close()
		return fmt.Errorf("listen http %s: %w", cfg.HTTPAddr, err)
	}
	httpSrv := &http.Server{
		Handler:           newHTTPMux(api.NewHTTPHandler(dispatcher, logger.WithField("layer", "http")), healthHandler),
		ReadHeaderTimeout: shutdownTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Infof("gRPC сервер слушает %s", grpcLis.Addr())
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Infof("HTTP сервер слушает %s (%s, /metrics, /healthz, /livez, /readyz)", httpLis.Addr(), api.GraphQLPath)
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if producer != nil {
		worker := newOutboxWorker(cfg, deps.outbox, producer, logger)
		g.Go(func() error { return worker.Run(gctx) })
	} else {
		logger.Info("kafka is not configured, outbox events stay pending")
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("получен сигнал остановки, останавливаем серверы")
		stopGRPC(grpcServer, grpcHealth, logger)
		shutdownHTTP(httpSrv, logger)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// newOutboxWorker собирает worker с основным топиком и, при наличии, DLQ.
func newOutboxWorker(cfg Config, repo domain.OutboxRepository, producer *kafka.Producer, logger *log.Entry) *outbox.Worker {
	opts := []outbox.Option{
		outbox.WithLogger(logger.WithField("layer", "outbox")),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		outbox.WithMetrics(metrics.NewOutboxMetrics(nil)),
	}
	if cfg.KafkaDLQTopic != "" {
		opts = append(opts, outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, cfg.KafkaDLQTopic)))
	}
	return outbox.NewWorker(repo, kafka.NewOutboxPublisher(producer, cfg.KafkaTopic), opts...)
}
