// Команда dlq-reprocess возвращает письма из DLQ обратно в topic уведомлений.
// Без -execute только читает DLQ и печатает отчёт.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/myshop/internal/app"
	"github.com/vladislavdragonenkov/myshop/internal/messaging/kafka"
)

// headerReplayedFrom помечает переотправленное письмо координатами записи в DLQ.
const headerReplayedFrom = "x-replayed-from"

type options struct {
	brokers     []string
	dlqTopic    string
	emailTopic  string
	limit       int
	execute     bool
	idleTimeout time.Duration
	reportPath  string
}

// skipReason объясняет, почему запись DLQ не переотправлена.
type skipReason string

const (
	reasonEmpty        skipReason = "empty"
	reasonBadEnvelope  skipReason = "bad_envelope"
	reasonBadEmail     skipReason = "bad_email"
	reasonForeignTopic skipReason = "foreign_topic"
)

type rejection struct {
	reason skipReason
	err    error
}

func (r *rejection) Error() string { return string(r.reason) + ": " + r.err.Error() }
func (r *rejection) Unwrap() error { return r.err }

func reject(reason skipReason, format string, args ...any) error {
	return &rejection{reason: reason, err: fmt.Errorf(format, args...)}
}

// deadLetter повторяет тело, которое consumer пишет в DLQ после исчерпания попыток.
type deadLetter struct {
	OriginalTopic string `json:"original_topic"`
	OriginalKey   string `json:"original_key"`
	OriginalValue string `json:"original_value"`
	ErrorMessage  string `json:"error_message"`
	RetryCount    int    `json:"retry_count"`
	FailedAt      string `json:"failed_at"`
}

// emailCheck описывает минимум, без которого письмо нет смысла доставлять повторно.
type emailCheck struct {
	To      string `validate:"required,email"`
	Subject string `validate:"required"`
}

var emailValidator = validator.New()

type pendingEmail struct {
	key       string
	raw       []byte
	email     kafka.EmailMessage
	lastError string
}

type rejectedEntry struct {
	Partition int32      `json:"partition"`
	Offset    int64      `json:"offset"`
	Reason    skipReason `json:"reason"`
	Detail    string     `json:"detail"`
}

type replayReport struct {
	Mode       string             `json:"mode"`
	DLQTopic   string             `json:"dlq_topic"`
	EmailTopic string             `json:"email_topic"`
	Scanned    int                `json:"scanned"`
	Candidates int                `json:"candidates"`
	Replayed   int                `json:"replayed"`
	Skipped    map[skipReason]int `json:"skipped"`
	Rejected   []rejectedEntry    `json:"rejected,omitempty"`
}

// dialKafka подменяется в тестах.
var dialKafka = func(opts options) (sarama.Consumer, sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumer(opts.brokers, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	if !opts.execute {
		return consumer, nil, nil
	}

	producerCfg := sarama.NewConfig()
	producerCfg.Producer.RequiredAcks = sarama.WaitForAll
	producerCfg.Producer.Retry.Max = 5
	producerCfg.Producer.Return.Successes = true
	producerCfg.Producer.Idempotent = true
	producerCfg.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(opts.brokers, producerCfg)
	if err != nil {
		_ = consumer.Close()
		return nil, nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return consumer, producer, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	logger := log.WithField("component", "dlq-reprocess")

	opts, err := parseOptions(os.Args[1:], os.Getenv)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := run(ctx, opts, logger)
	if err != nil {
		logger.WithError(err).Error("dlq replay failed")
		os.Exit(1)
	}
	if err := emitReport(os.Stdout, opts.reportPath, report); err != nil {
		logger.WithError(err).Error("write replay report")
		os.Exit(1)
	}
}

func parseOptions(args []string, getenv func(string) string) (options, error) {
	var (
		opts    options
		brokers string
	)

	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&brokers, "brokers", getenv(app.EnvKafkaBrokers), "comma-separated Kafka brokers")
	fs.StringVar(&opts.dlqTopic, "dlq-topic", kafka.TopicDeadLetterQueue, "dead letter topic to read")
	fs.StringVar(&opts.emailTopic, "email-topic", firstNonEmpty(getenv(app.EnvKafkaNotificationTopic), kafka.TopicEmailNotifications), "notifications topic to replay into")
	fs.IntVar(&opts.limit, "limit", 100, "max DLQ records to scan")
	fs.BoolVar(&opts.execute, "execute", false, "publish emails; without it only the report is printed")
	fs.DurationVar(&opts.idleTimeout, "idle-timeout", 2*time.Second, "stop reading a partition after this much silence")
	fs.StringVar(&opts.reportPath, "report", "", "optional path for the JSON report")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	for _, broker := range strings.Split(brokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			opts.brokers = append(opts.brokers, broker)
		}
	}
	opts.dlqTopic = strings.TrimSpace(opts.dlqTopic)
	opts.emailTopic = strings.TrimSpace(opts.emailTopic)

	switch {
	case len(opts.brokers) == 0:
		return options{}, fmt.Errorf("kafka brokers are required (-brokers or %s)", app.EnvKafkaBrokers)
	case opts.dlqTopic == "" || opts.emailTopic == "":
		return options{}, errors.New("dlq-topic and email-topic are required")
	case opts.dlqTopic == opts.emailTopic:
		return options{}, errors.New("email-topic must differ from dlq-topic")
	case opts.limit <= 0:
		return options{}, errors.New("limit must be > 0")
	case opts.idleTimeout <= 0:
		return options{}, errors.New("idle-timeout must be > 0")
	}
	return opts, nil
}

func run(ctx context.Context, opts options, logger *log.Entry) (replayReport, error) {
	consumer, producer, err := dialKafka(opts)
	if err != nil {
		return replayReport{}, err
	}
	defer func() {
		if producer != nil {
			_ = producer.Close()
		}
		_ = consumer.Close()
	}()

	return replay(ctx, opts, consumer, producer, logger)
}

// replay читает DLQ и отправляет пригодные письма в emailTopic. При producer == nil работает как dry-run.
func replay(ctx context.Context, opts options, consumer sarama.Consumer, producer sarama.SyncProducer, logger *log.Entry) (replayReport, error) {
	if opts.execute && producer == nil {
		return replayReport{}, errors.New("producer is required with -execute")
	}

	r := &replayer{
		opts:     opts,
		producer: producer,
		logger:   logger,
		report: replayReport{
			Mode:       "dry-run",
			DLQTopic:   opts.dlqTopic,
			EmailTopic: opts.emailTopic,
			Skipped:    make(map[skipReason]int),
		},
	}
	if opts.execute {
		r.report.Mode = "execute"
	}

	err := scanDeadLetters(ctx, consumer, opts, r.handle)

	logger.WithFields(log.Fields{
		"mode":       r.report.Mode,
		"scanned":    r.report.Scanned,
		"candidates": r.report.Candidates,
		"replayed":   r.report.Replayed,
		"skipped":    len(r.report.Rejected),
	}).Info("dlq replay finished")
	return r.report, err
}

type replayer struct {
	opts     options
	producer sarama.SyncProducer
	logger   *log.Entry
	report   replayReport
}

func (r *replayer) handle(msg *sarama.ConsumerMessage) error {
	r.report.Scanned++
	entry := r.logger.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})

	pending, err := decodeDeadLetter(msg, r.opts.emailTopic)
	if err != nil {
		var rej *rejection
		if !errors.As(err, &rej) {
			return err
		}
		r.report.Skipped[rej.reason]++
		r.report.Rejected = append(r.report.Rejected, rejectedEntry{
			Partition: msg.Partition,
			Offset:    msg.Offset,
			Reason:    rej.reason,
			Detail:    rej.err.Error(),
		})
		entry.WithError(rej.err).WithField("reason", rej.reason).Warn("dlq record skipped")
		return nil
	}

	r.report.Candidates++
	entry = entry.WithFields(log.Fields{
		"to":         pending.email.To,
		"subject":    pending.email.Subject,
		"last_error": pending.lastError,
	})
	if r.producer == nil {
		entry.Info("email ready for replay")
		return nil
	}

	_, _, err = r.producer.SendMessage(&sarama.ProducerMessage{
		Topic: r.opts.emailTopic,
		Key:   sarama.StringEncoder(pending.key),
		Value: sarama.ByteEncoder(pending.raw),
		Headers: []sarama.RecordHeader{{
			Key:   []byte(headerReplayedFrom),
			Value: []byte(fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)),
		}},
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("replay email from offset %d: %w", msg.Offset, err)
	}
	r.report.Replayed++
	entry.Info("email replayed")
	return nil
}

// decodeDeadLetter достаёт из записи DLQ исходное письмо. Счётчик попыток не переносится,
// поэтому переотправленное письмо снова получает полный набор ретраев consumer'а.
func decodeDeadLetter(msg *sarama.ConsumerMessage, emailTopic string) (pendingEmail, error) {
	if len(msg.Value) == 0 {
		return pendingEmail{}, reject(reasonEmpty, "record has no value")
	}

	var letter deadLetter
	if err := json.Unmarshal(msg.Value, &letter); err != nil {
		return pendingEmail{}, reject(reasonBadEnvelope, "decode dlq envelope: %w", err)
	}
	if strings.TrimSpace(letter.OriginalValue) == "" {
		return pendingEmail{}, reject(reasonEmpty, "envelope has no original_value")
	}

	origin := strings.TrimSpace(firstNonEmpty(letter.OriginalTopic, headerValue(msg, kafka.HeaderOriginalTopic), emailTopic))
	if origin != emailTopic {
		return pendingEmail{}, reject(reasonForeignTopic, "record came from %s, not %s", origin, emailTopic)
	}

	var email kafka.EmailMessage
	if err := json.Unmarshal([]byte(letter.OriginalValue), &email); err != nil {
		return pendingEmail{}, reject(reasonBadEmail, "decode email: %w", err)
	}
	check := emailCheck{To: strings.TrimSpace(email.To), Subject: strings.TrimSpace(email.Subject)}
	if err := emailValidator.Struct(check); err != nil {
		return pendingEmail{}, reject(reasonBadEmail, "invalid email: %w", err)
	}

	return pendingEmail{
		key:       firstNonEmpty(letter.OriginalKey, string(msg.Key), check.To),
		raw:       []byte(letter.OriginalValue),
		email:     email,
		lastError: firstNonEmpty(letter.ErrorMessage, headerValue(msg, kafka.HeaderErrorMessage)),
	}, nil
}

// scanDeadLetters читает партиции DLQ с начала, пока не дочитает до high watermark,
// не наберёт opts.limit записей или партиция не замолчит на idleTimeout.
func scanDeadLetters(ctx context.Context, consumer sarama.Consumer, opts options, handle func(*sarama.ConsumerMessage) error) error {
	partitions, err := consumer.Partitions(opts.dlqTopic)
	if err != nil {
		return fmt.Errorf("list partitions of %s: %w", opts.dlqTopic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	remaining := opts.limit
	for _, partition := range partitions {
		if remaining <= 0 {
			break
		}
		read, err := drainPartition(ctx, consumer, opts, partition, remaining, handle)
		if err != nil {
			return err
		}
		remaining -= read
	}
	return nil
}

func drainPartition(ctx context.Context, consumer sarama.Consumer, opts options, partition int32, limit int, handle func(*sarama.ConsumerMessage) error) (int, error) {
	pc, err := consumer.ConsumePartition(opts.dlqTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return 0, fmt.Errorf("consume %s/%d: %w", opts.dlqTopic, partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(opts.idleTimeout)
	defer idle.Stop()

	errs := pc.Errors()
	read := 0
	for read < limit {
		select {
		case <-ctx.Done():
			return read, ctx.Err()
		case <-idle.C:
			return read, nil
		case cerr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if cerr != nil {
				return read, fmt.Errorf("consume %s/%d: %w", opts.dlqTopic, partition, cerr)
			}
		case msg, ok := <-pc.Messages():
			if !ok {
				return read, nil
			}
			read++
			if err := handle(msg); err != nil {
				return read, err
			}
			if msg.Offset+1 >= pc.HighWaterMarkOffset() {
				return read, nil
			}
			idle.Reset(opts.idleTimeout)
		}
	}
	return read, nil
}

func emitReport(stdout io.Writer, path string, report replayReport) error {
	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	raw = append(raw, '\n')

	if path == "" {
		_, err = stdout.Write(raw)
		return err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	_, err = fmt.Fprintf(stdout, "report written to %s\n", path)
	return err
}

func headerValue(msg *sarama.ConsumerMessage, key string) string {
	for _, header := range msg.Headers {
		if header != nil && string(header.Key) == key {
			return string(header.Value)
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
