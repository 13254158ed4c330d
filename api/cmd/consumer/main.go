package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"cityfix/shared/config"
	"cityfix/shared/events"
	"cityfix/shared/influxx"
	"cityfix/shared/logx"
	"cityfix/shared/metricsx"
	"cityfix/shared/mqx"
	"cityfix/shared/observability"
)

type requestEventPayload struct {
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	ReworkCount int    `json:"rework_count"`
}

func main() {
	cfg, problems := config.Load("request-events-consumer", 8082)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)

	if len(cfg.KafkaBrokers) == 0 {
		problems = append(problems, config.Problem{Field: "KAFKA_BROKERS", Message: "KAFKA_BROKERS is required"})
	}
	if cfg.KafkaGroupID == "" {
		problems = append(problems, config.Problem{Field: "KAFKA_CONSUMER_GROUP", Message: "KAFKA_CONSUMER_GROUP is required"})
	}
	if cfg.InfluxURL == "" {
		problems = append(problems, config.Problem{Field: "INFLUX_URL", Message: "INFLUX_URL is required"})
	}
	if len(problems) > 0 {
		logger.Error(context.Background(), "config_invalid", "invalid config",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.Any("problems", problems),
		)
		os.Exit(1)
	}

	if cfg.OtelEnabled {
		if shutdown, err := observability.InitTracer(context.Background(), observability.TracerConfig{
			ServiceName: cfg.ServiceName,
			Env:         cfg.Env,
			Endpoint:    cfg.OtelEndpoint,
			Insecure:    cfg.OtelInsecure,
			SampleRatio: cfg.OtelSampleRatio,
		}); err == nil {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	influx, err := influxx.New(cfg)
	if err != nil {
		logger.Error(context.Background(), "influx_init_failed", "influx init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer influx.Close()

	reader, err := mqx.NewConsumer(cfg, events.TopicRequestEvents, cfg.KafkaGroupID)
	if err != nil {
		logger.Error(context.Background(), "kafka_init_failed", "kafka reader init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer reader.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	logger.Info(ctx, "consumer_start", "request events consumer started",
		slog.String("topic", events.TopicRequestEvents),
		slog.String("group", cfg.KafkaGroupID),
	)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			logger.Error(ctx, "kafka_fetch_failed", "failed to fetch message",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		spanCtx, span := otel.Tracer("mqx").Start(ctx, "kafka.consume")
		span.SetAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", events.TopicRequestEvents),
		)
		if err := handleRequestEvent(spanCtx, influx, msg.Value); err != nil {
			span.End()
			logger.Error(ctx, "event_handle_failed", "failed to handle event",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			continue
		}
		span.End()
		if err := reader.CommitMessages(ctx, msg); err != nil {
			logger.Error(ctx, "kafka_commit_failed", "failed to commit message",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
		}
		stats := reader.Stats()
		metricsx.SetKafkaLag(stats.Topic, cfg.KafkaGroupID, stats.Lag)
	}

	logger.Info(context.Background(), "consumer_stop", "request events consumer stopped")
}

func handleRequestEvent(ctx context.Context, influx *influxx.Client, raw []byte) error {
	var envelope events.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return err
	}
	if envelope.EventID == uuid.Nil || envelope.AggregateID == uuid.Nil || envelope.EventType == "" {
		return errors.New("missing event_id/aggregate_id/event_type")
	}
	var payload requestEventPayload
	_ = json.Unmarshal(envelope.Payload, &payload)

	tags := map[string]string{
		"event_type": envelope.EventType,
		"status":     payload.Status,
		"priority":   payload.Priority,
	}
	fields := map[string]any{
		"count":        1,
		"rework_count": payload.ReworkCount,
		"request_id":   envelope.AggregateID.String(),
	}
	ts := envelope.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if err := influx.WritePoint(ctx, "request_events", tags, fields, ts); err != nil {
		metricsx.IncInfluxWriteFailure()
		return err
	}
	return nil
}
