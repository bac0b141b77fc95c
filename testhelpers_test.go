//go:build integration

package main_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	mongomodule "github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/GearGrab/service-booking/internal/application"
	bookingDomain "github.com/GearGrab/service-booking/internal/domain/booking"
	bookingEvents "github.com/GearGrab/service-booking/internal/events"
	"github.com/GearGrab/service-booking/internal/notify"
	"github.com/GearGrab/service-booking/internal/payment"
	"github.com/GearGrab/service-booking/internal/platform/database"
	"github.com/GearGrab/service-booking/internal/platform/kafka"
	"github.com/GearGrab/service-booking/internal/repository"
	"github.com/GearGrab/service-booking/migrations"
)

// setupPostgres starts a PostgreSQL container and applies the embedded migrations.
func setupPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	pgReq := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test_booking",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: pgReq,
		Started:          true,
	})
	require.NoError(t, err, "failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate PostgreSQL container: %v", err)
		}
	})

	pgHost, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := database.PostgresConfig{
		Host:     pgHost,
		Port:     pgPort.Port(),
		User:     "test",
		Password: "test",
		DBName:   "test_booking",
		SSLMode:  "disable",
	}

	log := zap.NewNop()
	var db *gorm.DB
	require.Eventually(t, func() bool {
		db, err = database.Connect(cfg, log)
		return err == nil
	}, 30*time.Second, time.Second, "PostgreSQL not ready for connections")

	require.NoError(t, database.RunMigrations(cfg.DatabaseURL(), migrations.FS, log))
	return db
}

// setupKafka starts a single-node Kafka and pre-creates the booking topics.
func setupKafka(t *testing.T) []string {
	t.Helper()
	ctx := context.Background()

	kafkaContainer, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "failed to start Kafka container")
	t.Cleanup(func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Kafka container: %v", err)
		}
	})

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err, "failed to get Kafka brokers")

	createTopics(t, brokers, notify.TopicBookingEvents, bookingEvents.TopicRentalEvents)
	return brokers
}

// setupMongo starts a MongoDB container and returns a database handle.
func setupMongo(t *testing.T) *mongo.Database {
	t.Helper()
	ctx := context.Background()

	mongoContainer, err := mongomodule.Run(ctx, "mongo:7")
	require.NoError(t, err, "failed to start MongoDB container")
	t.Cleanup(func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate MongoDB container: %v", err)
		}
	})

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	mdb, err := database.ConnectMongo(ctx, uri, "test_booking", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mdb.Client().Disconnect(context.Background()) })
	return mdb
}

// bookingStack holds wired-up booking service components.
type bookingStack struct {
	Bookings    *application.BookingService
	Resolutions *application.ResolutionService
	Gateway     *payment.FakeGateway
	Consumer    *bookingEvents.RentalEventConsumer
}

// setupBookingStack wires the services to a repository, the fake gateway and
// the given notifier. A consumer is created only when brokers are given.
func setupBookingStack(t *testing.T, repo bookingDomain.Repository, notifier application.Notifier, brokers []string) *bookingStack {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	gw := payment.NewFakeGateway()
	coordinator := payment.NewCoordinator(gw, logger)

	bookingSvc := application.NewBookingService(repo, bookingDomain.NewDepositPricingStrategy(), coordinator, notifier, logger)
	resolutionSvc := application.NewResolutionService(repo, coordinator, notifier, logger)

	stack := &bookingStack{
		Bookings:    bookingSvc,
		Resolutions: resolutionSvc,
		Gateway:     gw,
	}
	if len(brokers) > 0 {
		groupID := fmt.Sprintf("test-booking-%s", uuid.New().String()[:8])
		stack.Consumer = bookingEvents.NewRentalEventConsumer(brokers, groupID, bookingSvc, logger)
		t.Cleanup(func() { _ = stack.Consumer.Close() })
	}
	return stack
}

// requestBooking creates a pending booking for a 5000-cent rental.
func requestBooking(t *testing.T, stack *bookingStack, ownerID, renterID uuid.UUID) *application.BookingDTO {
	t.Helper()
	start := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)

	dto, err := stack.Bookings.RequestBooking(context.Background(), renterID, application.CreateBookingRequest{
		ListingID:     uuid.New(),
		OwnerID:       ownerID,
		StartDate:     start,
		EndDate:       start.Add(72 * time.Hour),
		TotalAmount:   5000,
		Currency:      "USD",
		PaymentMethod: "pm_card_visa",
	})
	require.NoError(t, err, "failed to request booking")
	return dto
}

// publishTestEvent publishes a CloudEvent to Kafka.
func publishTestEvent(t *testing.T, brokers []string, topic, source, eventType string, data any) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	producer := kafka.NewProducer(brokers, logger)
	defer func() { _ = producer.Close() }()

	ce, err := kafka.NewCloudEvent(source, eventType, "", data)
	require.NoError(t, err, "failed to create cloud event")

	err = producer.PublishEvent(context.Background(), topic, ce)
	require.NoError(t, err, "failed to publish event")
}

// waitForBookingStatus polls the bookings table until the status matches.
func waitForBookingStatus(t *testing.T, db *gorm.DB, bookingID uuid.UUID, expectedStatus bookingDomain.Status, timeout time.Duration) repository.BookingModel {
	t.Helper()
	var result repository.BookingModel
	require.Eventually(t, func() bool {
		var model repository.BookingModel
		if err := db.Where("id = ?", bookingID).First(&model).Error; err != nil {
			return false
		}
		if model.Status == string(expectedStatus) {
			result = model
			return true
		}
		return false
	}, timeout, 200*time.Millisecond, "booking did not transition to %s", expectedStatus)
	return result
}

// consumeOneEvent reads from a Kafka topic until it finds an event of the
// expected type for the given booking.
func consumeOneEvent(t *testing.T, brokers []string, topic, expectedType, subject string, timeout time.Duration) kafka.CloudEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	groupID := fmt.Sprintf("test-assert-%s", uuid.New().String()[:8])
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	defer func() { _ = reader.Close() }()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				t.Fatalf("timed out waiting for event type %q on topic %q", expectedType, topic)
			}
			continue
		}
		ce, err := kafka.ParseCloudEvent(msg.Value)
		if err != nil {
			continue
		}
		if ce.Type == expectedType && ce.Subject == subject {
			return ce
		}
	}
}

// createTopics pre-creates Kafka topics so producers don't fail with "Unknown Topic".
func createTopics(t *testing.T, brokers []string, topics ...string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", brokers[0])
	require.NoError(t, err, "failed to dial Kafka for topic creation")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "failed to get Kafka controller")

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, fmt.Sprintf("%d", controller.Port)))
	require.NoError(t, err, "failed to connect to Kafka controller")
	defer controllerConn.Close()

	topicConfigs := make([]kafkago.TopicConfig, len(topics))
	for i, topic := range topics {
		topicConfigs[i] = kafkago.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
	}
	require.NoError(t, controllerConn.CreateTopics(topicConfigs...), "failed to create Kafka topics")

	// Give Kafka a moment to propagate topic metadata.
	time.Sleep(1 * time.Second)
}
