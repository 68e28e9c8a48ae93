package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/commshield/commstack/config"
	"github.com/commshield/commstack/interfaces"
	"github.com/commshield/commstack/internal/database"
	"github.com/commshield/commstack/internal/logger"
	"github.com/commshield/commstack/internal/models"
	"github.com/commshield/commstack/internal/repository"
	"github.com/commshield/commstack/internal/tracing"
	"github.com/commshield/commstack/services/connector"
	"github.com/commshield/commstack/services/email_connector"
	"github.com/commshield/commstack/services/email_processor"
	"github.com/commshield/commstack/services/ingestion"
	"github.com/commshield/commstack/services/kafka"
	"github.com/commshield/commstack/services/normalizer"
	"github.com/commshield/commstack/services/storage"
)

const dateLayout = "2006-01-02"

func main() {
	app := &cli.App{
		Name:  "commstack",
		Usage: "communication capture pipeline",
		Commands: []*cli.Command{
			{
				Name:   "email-connector",
				Usage:  "poll a mailbox and deliver raw messages to the broker",
				Action: runEmailConnector,
			},
			{
				Name:   "email-processor",
				Usage:  "consume raw references, parse MIME, publish parsed records",
				Action: runEmailProcessor,
			},
			{
				Name:   "normalizer",
				Usage:  "consume parsed records and publish the canonical schema",
				Action: runNormalizer,
			},
			{
				Name:  "backfill",
				Usage: "ingest a historical mailbox window and exit",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "start", Usage: "window start (YYYY-MM-DD)", Required: true},
					&cli.StringFlag{Name: "end", Usage: "window end, exclusive (YYYY-MM-DD)", Required: true},
				},
				Action: runBackfill,
			},
			{
				Name:   "migrate",
				Usage:  "create or update database tables",
				Action: runMigrate,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// bootstrap loads configuration and stands up the logger and tracer
// shared by every command.
func bootstrap(serviceName string) (*config.Config, logger.Logger, io.Closer, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "config load failed")
	}

	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()
	appLog := appLogger.With("service", serviceName)

	cfg.Tracing.ServiceName = serviceName
	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, appLog)
	if err != nil {
		return nil, nil, nil, err
	}
	opentracing.SetGlobalTracer(tracer)

	return cfg, appLog, closer, nil
}

func runEmailConnector(c *cli.Context) error {
	cfg, appLog, closer, err := bootstrap("email-connector")
	if err != nil {
		return err
	}
	defer closer.Close()

	runner, err := buildEmailRunner(cfg, appLog)
	if err != nil {
		return err
	}
	return runner.Run(c.Context)
}

func runBackfill(c *cli.Context) error {
	cfg, appLog, closer, err := bootstrap("email-backfill")
	if err != nil {
		return err
	}
	defer closer.Close()

	start, err := time.Parse(dateLayout, c.String("start"))
	if err != nil {
		return errors.Wrap(err, "invalid --start")
	}
	end, err := time.Parse(dateLayout, c.String("end"))
	if err != nil {
		return errors.Wrap(err, "invalid --end")
	}
	if !end.After(start) {
		return errors.New("--end must be after --start")
	}

	runner, err := buildEmailRunner(cfg, appLog)
	if err != nil {
		return err
	}

	delivered, err := runner.RunBackfill(c.Context, models.BackfillRequest{
		Start: start,
		End:   end,
	})
	if errors.Is(err, interfaces.ErrBackfillUnsupported) {
		return errors.New("this connector does not support backfill")
	}
	appLog.Infof("backfill delivered %d messages", delivered)
	if err == nil {
		fmt.Printf("backfill complete: %d messages\n", delivered)
	}
	return err
}

func buildEmailRunner(cfg *config.Config, appLog logger.Logger) (*connector.Runner, error) {
	if cfg.IMAPConfig.Host == "" {
		return nil, errors.New("IMAP_HOST is required")
	}

	storageService := storage.NewS3StorageService(cfg.StorageConfig)
	emailStore := storage.NewEmailStore(storageService, cfg.StorageConfig)

	cursorRepo, err := buildCursorRepository(cfg, appLog)
	if err != nil {
		return nil, err
	}

	mailbox := email_connector.NewIMAPClient(cfg.IMAPConfig, appLog)
	emailConn := email_connector.NewEmailConnector(
		cfg.AppConfig.ConnectorName, cfg.IMAPConfig, mailbox, emailStore, cursorRepo, appLog)

	producer := kafka.NewProducer(cfg.KafkaConfig, appLog)
	forwarder := ingestion.NewClient(cfg.IngestionAPIConfig, appLog)
	deliverer := connector.NewDeliverer(
		producer, forwarder, cfg.AppConfig.ConnectorName, cfg.RetryConfig, appLog)

	return connector.NewRunner(emailConn, deliverer, producer, cfg.AppConfig, appLog), nil
}

func buildCursorRepository(cfg *config.Config, appLog logger.Logger) (interfaces.CursorRepository, error) {
	if !cfg.DatabaseConfig.Enabled() {
		appLog.Warn("no database configured, mailbox cursor is in-memory only")
		return repository.NewInMemoryCursorRepository(), nil
	}
	db, err := database.InitDatabase(cfg.DatabaseConfig)
	if err != nil {
		return nil, err
	}
	if err := repository.MigrateDB(db); err != nil {
		return nil, err
	}
	return repository.NewMailboxCursorRepository(db), nil
}

func runEmailProcessor(c *cli.Context) error {
	cfg, appLog, closer, err := bootstrap("email-processor")
	if err != nil {
		return err
	}
	defer closer.Close()

	storageService := storage.NewS3StorageService(cfg.StorageConfig)
	emailStore := storage.NewEmailStore(storageService, cfg.StorageConfig)

	consumer := kafka.NewConsumer(
		cfg.KafkaConfig, cfg.KafkaConfig.RawMessagesTopic, cfg.KafkaConfig.ProcessorGroup, appLog)
	publisher := kafka.NewTopicPublisher(cfg.KafkaConfig, cfg.KafkaConfig.ParsedMessagesTopic, appLog)

	processor := email_processor.NewProcessor(consumer, publisher, emailStore, cfg.AppConfig, appLog)
	return processor.Run(c.Context)
}

func runNormalizer(c *cli.Context) error {
	cfg, appLog, closer, err := bootstrap("normalizer")
	if err != nil {
		return err
	}
	defer closer.Close()

	storageService := storage.NewS3StorageService(cfg.StorageConfig)
	normalizedStore := storage.NewNormalizedStore(storageService, cfg.StorageConfig)

	consumer := kafka.NewConsumer(
		cfg.KafkaConfig, cfg.KafkaConfig.ParsedMessagesTopic, cfg.KafkaConfig.NormalizerGroup, appLog)
	publisher := kafka.NewTopicPublisher(cfg.KafkaConfig, cfg.KafkaConfig.NormalizedTopic, appLog)

	registry := normalizer.NewRegistry(
		normalizer.NewEmailNormalizer(cfg.NormalizerConfig.MonitoredDomains),
	)

	service := normalizer.NewService(consumer, publisher, normalizedStore, registry, cfg.AppConfig, appLog)
	return service.Run(c.Context)
}

func runMigrate(c *cli.Context) error {
	cfg, appLog, closer, err := bootstrap("migrate")
	if err != nil {
		return err
	}
	defer closer.Close()

	if !cfg.DatabaseConfig.Enabled() {
		return errors.New("POSTGRES_HOST is required for migrate")
	}
	db, err := database.InitDatabase(cfg.DatabaseConfig)
	if err != nil {
		return err
	}
	if err := repository.MigrateDB(db); err != nil {
		return err
	}
	appLog.Info("database migration complete")
	return nil
}
