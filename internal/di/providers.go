package di

import (
	"context"
	"fmt"
	"time"

	"PriceMesh/internal/domain/models"
	"PriceMesh/internal/domain/repository"
	"PriceMesh/internal/handler/api"
	mid "PriceMesh/internal/middleware"
	"PriceMesh/internal/oracle"
	internalrepo "PriceMesh/internal/repository"
	icache "PriceMesh/internal/service/cache"
	"PriceMesh/internal/service/feedgate"
	"PriceMesh/internal/usecase"
	pkgcache "PriceMesh/pkg/cache"
	pkgch "PriceMesh/pkg/clickhouse"
	"PriceMesh/pkg/config"
	xhttp "PriceMesh/pkg/http"
	pkgkafka "PriceMesh/pkg/kafka"
	applogger "PriceMesh/pkg/logger"
	"PriceMesh/pkg/metrics"
	"PriceMesh/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideEngine creates the oracle engine with params and reporters from
// config. Reporters with API keys start authorized; admins can change that
// at runtime.
func ProvideEngine(cfg *config.Config, l *applogger.Logger) *oracle.Engine {
	eng := oracle.NewEngine(models.OracleParams{
		ValidityPeriod:     cfg.Oracle.ValidityPeriod,
		MaxPriceDeviation:  cfg.Oracle.MaxPriceDeviation,
		MinRequiredSources: cfg.Oracle.MinRequiredSources,
		MinVolumeThreshold: cfg.Oracle.MinVolumeThreshold,
		SlippageTolerance:  cfg.Oracle.SlippageTolerance,
	}, oracle.WithLogger(l))

	for _, reporter := range cfg.Oracle.ReporterKeys {
		eng.SetAuthorizedProvider(reporter, true)
	}
	return eng
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	// Initialize schema
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db := cfg.ClickHouse.Database
	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + db,
		"CREATE TABLE IF NOT EXISTS " + db + ".oracle_submissions (ts DateTime, asset String, reporter String, price UInt64, volume UInt64, weight UInt32, verified UInt8) ENGINE=MergeTree ORDER BY (asset, ts)",
	}); err != nil {
		_ = client.Close() // cannot log here (DI layer no logger); propagate error
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideAuditStore creates the ClickHouse audit store.
func ProvideAuditStore(chClient *pkgch.Client, cfg *config.Config) repository.AuditStore {
	return internalrepo.NewClickHouseAuditStore(chClient.DB(), cfg.ClickHouse.Database+".oracle_submissions")
}

// ProvideAuditPublisher creates the Kafka audit publisher.
func ProvideAuditPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.AuditTopic)
}

// ProvideFeedgateStream creates the reporter gateway WebSocket stream.
func ProvideFeedgateStream(cfg *config.Config) repository.SubmissionStream {
	return feedgate.New(
		cfg.Feedgate.Token,
		cfg.Feedgate.URL,
		models.SupportedAssets(),
		cfg.Feedgate.ReconnectDelay,
		cfg.Feedgate.PingInterval,
	)
}

// ProvideSubmissionProcessor creates the backend router for accepted entries.
func ProvideSubmissionProcessor(
	pub repository.Publisher,
	store repository.AuditStore,
	metrics repository.Metrics,
	cfg *config.Config,
) *usecase.SubmissionProcessor {
	return usecase.NewSubmissionProcessor(
		pub,
		store,
		metrics,
		cfg.Backend.Type,
		cfg.Backend.BatchSize,
		cfg.Backend.BatchTimeout,
	)
}

// ProvideSubmissionIntake creates the shared intake. Lanes relabel it via
// WithLane.
func ProvideSubmissionIntake(
	eng *oracle.Engine,
	proc *usecase.SubmissionProcessor,
	metrics repository.Metrics,
	l *applogger.Logger,
) *usecase.SubmissionIntake {
	return usecase.NewSubmissionIntake(eng, proc, metrics, "feedgate", l)
}

// ProvideKafkaSubmissionsHandler registers the handler for the submissions topic.
func ProvideKafkaSubmissionsHandler(intake *usecase.SubmissionIntake, metrics repository.Metrics, cfg *config.Config) *usecase.KafkaSubmissionsHandler {
	return usecase.NewKafkaSubmissionsHandler(cfg.Kafka.SubmissionsTopic, intake.WithLane("kafka"), metrics)
}

// ProvidePriceCache creates the read-path cache, Redis when enabled.
func ProvidePriceCache(cfg *config.Config) (repository.PriceCache, error) {
	if !cfg.Redis.Enabled {
		return icache.NewMemoryPriceCache(), nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return icache.NewRedisPriceCache(rc), nil
}

// ProvideHTTPHandler creates the oracle HTTP handler.
func ProvideHTTPHandler(
	l *applogger.Logger,
	intake *usecase.SubmissionIntake,
	store repository.AuditStore,
	cache repository.PriceCache,
	cfg *config.Config,
) xhttp.Handler {
	return api.NewOracleEchoHandler(l, intake, store, cache, cfg)
}

// ProvideSubmissionCollector creates the feedgate collector with the
// realtime pipeline in front of the intake.
func ProvideSubmissionCollector(
	stream repository.SubmissionStream,
	intake *usecase.SubmissionIntake,
	metrics repository.Metrics,
	cfg *config.Config,
) *usecase.SubmissionCollector {
	pipe := mid.NewRealtimePipeline(intake, metrics,
		mid.WithMaxRPS(cfg.Oracle.SubmitRPS),
	)
	return usecase.NewSubmissionCollector(stream, intake, metrics, pipe)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	eng *oracle.Engine,
	collector *usecase.SubmissionCollector,
	proc *usecase.SubmissionProcessor,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaSubmissionsHandler,
	chClient *pkgch.Client,
	handler xhttp.Handler,
	cache repository.PriceCache,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
	}
	return server.New(cfg, l, eng, collector, proc, consumer, kh, chClient, handler, cache)
}
