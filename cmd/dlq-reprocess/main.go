// Command dlq-reprocess переотправляет события CRM из DLQ в основной топик.
// Без -execute только перечисляет кандидатов.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/crm/internal/app"
	"github.com/vladislavdragonenkov/crm/internal/domain"
	"github.com/vladislavdragonenkov/crm/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
)

var errNotDeadLetter = errors.New("message is not a dead letter")

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
}

type saramaSource struct {
	consumer sarama.Consumer
}

func (s saramaSource) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	pc, err := s.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

// dependencies - подключения к Kafka одного запуска.
type dependencies struct {
	client    offsetClient
	source    partitionSource
	publisher domain.OutboxPublisher
	closeFn   func()
}

var newDependencies = func(cfg config) (dependencies, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.ClientID = "crm-dlq-reprocess"
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		return dependencies{}, fmt.Errorf("create kafka client: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return dependencies{}, fmt.Errorf("create kafka consumer: %w", err)
	}

	deps := dependencies{
		client: client,
		source: saramaSource{consumer: consumer},
		closeFn: func() {
			_ = consumer.Close()
			_ = client.Close()
		},
	}
	if !cfg.execute {
		return deps, nil
	}

	producer, err := kafka.NewProducer(cfg.brokers, "crm-dlq-reprocess")
	if err != nil {
		deps.closeFn()
		return dependencies{}, err
	}
	deps.publisher = kafka.NewOutboxPublisher(producer, cfg.targetTopic)
	closeConsumer := deps.closeFn
	deps.closeFn = func() {
		_ = producer.Close()
		closeConsumer()
	}
	return deps, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig(flag.CommandLine, os.Args[1:], os.LookupEnv)
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

// readConfig берёт значения по умолчанию из окружения crm-service
// (CRM_KAFKA_BROKERS, CRM_KAFKA_TOPIC, CRM_KAFKA_DLQ_TOPIC), флаги их переопределяют.
func readConfig(fs *flag.FlagSet, args []string, lookup func(string) (string, bool)) (config, error) {
	env, err := app.ConfigFromEnv(lookup)
	if err != nil {
		return config{}, err
	}
	dlqTopic := env.KafkaDLQTopic
	if dlqTopic == "" {
		dlqTopic = kafka.TopicDeadLetterQueue
	}

	var (
		brokersRaw string
		cfg        config
	)
	fs.StringVar(&brokersRaw, "brokers", strings.Join(env.KafkaBrokers, ","), "Kafka brokers, comma-separated (fallback: CRM_KAFKA_BROKERS)")
	fs.StringVar(&cfg.sourceTopic, "source-topic", dlqTopic, "DLQ source topic")
	fs.StringVar(&cfg.targetTopic, "target-topic", env.KafkaTopic, "target topic for replay")
	fs.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of messages to scan")
	fs.BoolVar(&cfg.execute, "execute", false, "publish replayed events; default is dry-run")
	fs.BoolVar(&cfg.fromNewest, "from-newest", false, "scan the newest messages of each partition")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	cfg.brokers = app.SplitBrokers(brokersRaw)
	var errs []error
	if len(cfg.brokers) == 0 {
		errs = append(errs, errors.New("kafka brokers are required (-brokers or CRM_KAFKA_BROKERS)"))
	}
	if strings.TrimSpace(cfg.sourceTopic) == "" {
		errs = append(errs, errors.New("source-topic is required"))
	}
	if strings.TrimSpace(cfg.targetTopic) == "" {
		errs = append(errs, errors.New("target-topic is required"))
	}
	if cfg.sourceTopic == cfg.targetTopic {
		errs = append(errs, errors.New("source-topic and target-topic must differ"))
	}
	if cfg.limit <= 0 {
		errs = append(errs, errors.New("limit must be > 0"))
	}
	if cfg.idleTimeout <= 0 {
		errs = append(errs, errors.New("idle-timeout must be > 0"))
	}
	if err := errors.Join(errs...); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config) error {
	deps, err := newDependencies(cfg)
	if err != nil {
		return err
	}
	defer deps.closeFn()

	r := &replayer{
		cfg:       cfg,
		client:    deps.client,
		source:    deps.source,
		publisher: deps.publisher,
		logger: log.WithFields(log.Fields{
			"source_topic": cfg.sourceTopic,
			"target_topic": cfg.targetTopic,
		}),
	}
	_, err = r.Run(ctx)
	return err
}

// replayStats - итог сканирования.
type replayStats struct {
	processed int
	replayed  int
	skipped   int
}

func (s *replayStats) add(o replayStats) {
	s.processed += o.processed
	s.replayed += o.replayed
	s.skipped += o.skipped
}

type replayer struct {
	cfg       config
	client    offsetClient
	source    partitionSource
	publisher domain.OutboxPublisher
	logger    *log.Entry
}

// Run сканирует партиции по возрастанию номера, пока не наберёт limit сообщений.
func (r *replayer) Run(ctx context.Context) (replayStats, error) {
	var total replayStats
	if r.cfg.execute && r.publisher == nil {
		return total, errors.New("publisher is required in execute mode")
	}

	partitions, err := r.client.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", r.cfg.sourceTopic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		if total.processed >= r.cfg.limit {
			break
		}
		stats, err := r.partition(ctx, partition, r.cfg.limit-total.processed)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}

	mode := "dry-run"
	if r.cfg.execute {
		mode = "execute"
	}
	r.logger.WithFields(log.Fields{
		"mode":      mode,
		"processed": total.processed,
		"replayed":  total.replayed,
		"skipped":   total.skipped,
	}).Info("dlq replay finished")
	return total, nil
}

func (r *replayer) partition(ctx context.Context, partition int32, limit int) (replayStats, error) {
	var stats replayStats

	oldest, err := r.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if r.cfg.fromNewest {
		start = max(newest-int64(limit), oldest)
	}

	pc, err := r.source.ConsumePartition(r.cfg.sourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()

	for stats.processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case cerr := <-pc.Errors():
			if cerr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, cerr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			idle.Reset(r.cfg.idleTimeout)

			stats.processed++
			switch err := r.replay(ctx, msg); {
			case err == nil:
				stats.replayed++
			case errors.Is(err, errNotDeadLetter):
				stats.skipped++
				r.logger.WithError(err).WithFields(log.Fields{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Warn("skip unsupported dlq message")
			default:
				return stats, err
			}

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}
	return stats, nil
}

func (r *replayer) replay(ctx context.Context, msg *sarama.ConsumerMessage) error {
	event, err := decodeDeadLetter(msg.Value)
	if err != nil {
		return err
	}

	if !r.cfg.execute {
		r.logger.WithFields(log.Fields{
			"partition":  msg.Partition,
			"offset":     msg.Offset,
			"outbox_id":  event.ID,
			"event_type": event.EventType,
		}).Info("dlq replay candidate")
		return nil
	}
	if err := r.publisher.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish replay of %s: %w", event.ID, err)
	}
	return nil
}

// decodeDeadLetter разбирает запись DLQ: kafka.Envelope, в payload
// которого лежит domain.DeadLetter с исходным телом события.
func decodeDeadLetter(value []byte) (domain.OutboxMessage, error) {
	var envelope kafka.Envelope
	if err := json.Unmarshal(value, &envelope); err != nil {
		return domain.OutboxMessage{}, errNotDeadLetter
	}
	if len(envelope.Payload) == 0 || string(envelope.Payload) == "null" {
		return domain.OutboxMessage{}, errNotDeadLetter
	}

	var letter domain.DeadLetter
	if err := json.Unmarshal(envelope.Payload, &letter); err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("%w: %v", errNotDeadLetter, err)
	}
	if len(letter.Payload) == 0 {
		return domain.OutboxMessage{}, fmt.Errorf("%w: original event payload is missing", errNotDeadLetter)
	}

	event := letter.Message()
	event.ID = firstNonEmpty(event.ID, envelope.ID)
	event.AggregateType = firstNonEmpty(event.AggregateType, envelope.AggregateType)
	event.AggregateID = firstNonEmpty(event.AggregateID, envelope.AggregateID)
	event.EventType = firstNonEmpty(event.EventType, envelope.EventType)
	return event, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
