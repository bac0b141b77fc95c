package main

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/GearGrab/service-booking/internal/application"
	"github.com/GearGrab/service-booking/internal/config"
	bookingDomain "github.com/GearGrab/service-booking/internal/domain/booking"
	"github.com/GearGrab/service-booking/internal/notify"
	"github.com/GearGrab/service-booking/internal/payment"
	"github.com/GearGrab/service-booking/internal/platform/database"
	"github.com/GearGrab/service-booking/internal/platform/health"
	"github.com/GearGrab/service-booking/internal/platform/kafka"
	"github.com/GearGrab/service-booking/internal/repository"
	"github.com/GearGrab/service-booking/migrations"
)

type bookingStore struct {
	repo     bookingDomain.Repository
	db       *gorm.DB
	checkers map[string]health.Checker
	closers  []func()
}

func (s *bookingStore) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// closeOnError releases whatever was opened so far if *err is set.
func (s *bookingStore) closeOnError(err *error) {
	if *err != nil {
		s.close()
	}
}

func openStore(ctx context.Context, cfg *config.ServiceConfig, log *zap.Logger) (_ *bookingStore, err error) {
	store := &bookingStore{checkers: map[string]health.Checker{}}
	defer store.closeOnError(&err)

	switch cfg.StoreDriver {
	case config.StorePostgres:
		pgCfg := postgresConfig(cfg)
		db, err := database.Connect(pgCfg, log)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("postgres handle: %w", err)
		}
		store.closers = append(store.closers, func() { _ = sqlDB.Close() })

		if cfg.AppEnv == "development" {
			if err := db.AutoMigrate(&repository.BookingModel{}, &notify.AuditLogModel{}); err != nil {
				return nil, fmt.Errorf("auto-migrate: %w", err)
			}
			log.Info("database migration completed (dev auto-migrate)")
		} else if err := database.RunMigrations(pgCfg.DatabaseURL(), migrations.FS, log); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}

		store.db = db
		store.repo = repository.NewGormBookingRepository(db)
		store.checkers["postgres"] = health.CheckerFunc(sqlDB.PingContext)

	case config.StoreMongo:
		mdb, err := database.ConnectMongo(ctx, cfg.MongoConfig.URI, cfg.MongoConfig.Database, log)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		store.closers = append(store.closers, func() { _ = mdb.Client().Disconnect(context.Background()) })

		repo := repository.NewMongoBookingRepository(mdb)
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}

		store.repo = repo
		store.checkers["mongo"] = health.CheckerFunc(func(ctx context.Context) error {
			return mdb.Client().Ping(ctx, readpref.Primary())
		})

	case config.StoreMemory:
		log.Warn("using in-memory booking store; data is lost on restart")
		store.repo = repository.NewMemoryBookingRepository()

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	return store, nil
}

func buildGateway(cfg config.PaymentConfig) (payment.Gateway, error) {
	switch cfg.Provider {
	case config.ProviderStripe:
		return payment.NewStripeGateway(cfg.StripeSecretKey), nil
	case config.ProviderOmise:
		gw, err := payment.NewOmiseGateway(cfg.OmisePublicKey, cfg.OmiseSecretKey)
		if err != nil {
			return nil, fmt.Errorf("create omise client: %w", err)
		}
		return gw, nil
	case config.ProviderFake:
		return payment.NewFakeGateway(), nil
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.Provider)
	}
}

func buildCoordinator(cfg *config.ServiceConfig, log *zap.Logger) (*payment.Coordinator, error) {
	gw, err := buildGateway(cfg.Payment)
	if err != nil {
		return nil, err
	}
	if cfg.Payment.Provider == config.ProviderFake {
		log.Warn("using fake payment gateway; no money moves")
	}
	instrumented := payment.NewInstrumentedGateway(gw, cfg.Payment.Provider, cfg.Payment.Timeout, log)
	return payment.NewCoordinator(instrumented, log), nil
}

type notifierSet struct {
	notifier application.Notifier
	checkers map[string]health.Checker
	closers  []func()
}

func (n *notifierSet) close() {
	for i := len(n.closers) - 1; i >= 0; i-- {
		n.closers[i]()
	}
}

func buildNotifier(cfg *config.ServiceConfig, store *bookingStore, log *zap.Logger) (*notifierSet, error) {
	set := &notifierSet{checkers: map[string]health.Checker{}}
	var sinks []notify.Sink

	if cfg.HasSink("kafka") {
		producer := kafka.NewProducer(cfg.KafkaConfig.Brokers, log)
		set.closers = append(set.closers, func() { _ = producer.Close() })
		sinks = append(sinks, notify.Sink{Name: "kafka", Notifier: notify.NewKafkaNotifier(producer)})
	}

	if cfg.HasSink("amqp") {
		publisher, err := notify.NewAMQPPublisher(cfg.AMQPConfig.URL, cfg.AMQPConfig.Exchange)
		if err != nil {
			set.close()
			return nil, fmt.Errorf("connect amqp: %w", err)
		}
		set.closers = append(set.closers, func() { _ = publisher.Close() })
		set.checkers["amqp"] = publisher
		sinks = append(sinks, notify.Sink{Name: "amqp", Notifier: notify.NewAMQPNotifier(publisher)})
	}

	if cfg.HasSink("audit") {
		if store.db == nil {
			log.Warn("audit sink requires the postgres store; skipping", zap.String("store", cfg.StoreDriver))
		} else {
			sinks = append(sinks, notify.Sink{Name: "audit", Notifier: notify.NewAuditNotifier(store.db)})
		}
	}

	if cfg.HasSink("log") {
		sinks = append(sinks, notify.Sink{Name: "log", Notifier: notify.NewLogNotifier(log)})
	}

	multi := notify.NewMulti(log, sinks...)
	log.Info("notification sinks configured", zap.Int("count", multi.Len()))
	set.notifier = multi
	return set, nil
}
