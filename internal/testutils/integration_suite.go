package testutils

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"sourcefetch/internal/config"
)

// IntegrationSuite starts real Postgres and nsqd containers. Weaviate is only
// started by SetupWeaviate since most suites do not need it.
type IntegrationSuite struct {
	T        *testing.T
	DB       *sql.DB
	DSN      string
	NSQ      *nsq.Producer
	NSQDAddr string
	NSQDHTTP string
	Weaviate *weaviate.Client

	pgContainer       *postgres.PostgresContainer
	nsqContainer      testcontainers.Container
	weaviateContainer testcontainers.Container
	weaviateHost      string
}

func NewIntegrationSuite(t *testing.T) *IntegrationSuite {
	return &IntegrationSuite{T: t}
}

// MigrationsPath returns the file:// URL of the repository migrations.
func MigrationsPath() string {
	_, b, _, _ := runtime.Caller(0)
	return fmt.Sprintf("file://%s", filepath.Join(filepath.Dir(b), "..", "..", "migrations"))
}

func (s *IntegrationSuite) Setup() {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("sourcefetch_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(s.T, err)
	s.pgContainer = pgContainer

	s.DSN, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(s.T, err)

	s.DB, err = sql.Open("postgres", s.DSN)
	require.NoError(s.T, err)

	m, err := migrate.New(MigrationsPath(), s.DSN)
	require.NoError(s.T, err)
	require.NoError(s.T, m.Up())

	nsqReq := testcontainers.ContainerRequest{
		Image:        "nsqio/nsq:v1.3.0",
		ExposedPorts: []string{"4150/tcp", "4151/tcp"},
		Cmd:          []string{"/nsqd", "--broadcast-address=localhost"},
		WaitingFor:   wait.ForLog("TCP: listening on").WithStartupTimeout(60 * time.Second),
	}
	nsqC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: nsqReq,
		Started:          true,
	})
	require.NoError(s.T, err)
	s.nsqContainer = nsqC

	nsqHost, err := nsqC.Host(ctx)
	require.NoError(s.T, err)
	tcpPort, err := nsqC.MappedPort(ctx, "4150")
	require.NoError(s.T, err)
	httpPort, err := nsqC.MappedPort(ctx, "4151")
	require.NoError(s.T, err)

	s.NSQDAddr = fmt.Sprintf("%s:%s", nsqHost, tcpPort.Port())
	s.NSQDHTTP = fmt.Sprintf("%s:%s", nsqHost, httpPort.Port())

	s.NSQ, err = nsq.NewProducer(s.NSQDAddr, nsq.NewConfig())
	require.NoError(s.T, err)
}

func (s *IntegrationSuite) SetupWeaviate() {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "semitechnologies/weaviate:1.33.6",
		ExposedPorts: []string{"8080/tcp", "50051/tcp"},
		Env: map[string]string{
			"AUTHENTICATION_ANONYMOUS_ACCESS_ENABLED": "true",
			"DEFAULT_VECTORIZER_MODULE":               "none",
			"PERSISTENCE_DATA_PATH":                   "/var/lib/weaviate",
		},
		WaitingFor: wait.ForHTTP("/v1/meta").WithPort("8080/tcp").WithStartupTimeout(60 * time.Second),
	}
	weaviateC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(s.T, err)
	s.weaviateContainer = weaviateC

	host, err := weaviateC.Host(ctx)
	require.NoError(s.T, err)
	port, err := weaviateC.MappedPort(ctx, "8080")
	require.NoError(s.T, err)

	s.weaviateHost = fmt.Sprintf("%s:%s", host, port.Port())
	s.Weaviate, err = weaviate.NewClient(weaviate.Config{
		Host:   s.weaviateHost,
		Scheme: "http",
	})
	require.NoError(s.T, err)
}

func (s *IntegrationSuite) Teardown() {
	ctx := context.Background()
	if s.NSQ != nil {
		s.NSQ.Stop()
	}
	if s.DB != nil {
		s.DB.Close()
	}
	if s.pgContainer != nil {
		s.pgContainer.Terminate(ctx)
	}
	if s.nsqContainer != nil {
		s.nsqContainer.Terminate(ctx)
	}
	if s.weaviateContainer != nil {
		s.weaviateContainer.Terminate(ctx)
	}
}

// GetAppConfig returns a config pointing at the suite's containers. Consumers
// connect straight to nsqd since no lookupd runs.
func (s *IntegrationSuite) GetAppConfig() *config.Config {
	ctx := context.Background()

	host, err := s.pgContainer.Host(ctx)
	require.NoError(s.T, err)
	port, err := s.pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(s.T, err)

	cfg := &config.Config{
		DBHost:               host,
		DBPort:               port.Int(),
		DBUser:               "test",
		DBPass:               "test",
		DBName:               "sourcefetch_test",
		NSQDHost:             s.NSQDAddr,
		NSQDHTTP:             s.NSQDHTTP,
		MigrationPath:        MigrationsPath(),
		EnableOrchestrator:   true,
		EnableIngestor:       true,
		Collectors:           []string{"rss"},
		PriorityTick:         time.Minute,
		PriorityMinInterval:  time.Minute,
		PriorityMaxInterval:  time.Hour,
		PriorityBaseInterval: 10 * time.Minute,
		RecencySaturation:    time.Hour,
		RecencyWeight:        1,
		FollowerWeight:       0.25,
		YieldWeight:          0.1,
		ErrorDampening:       0.5,
		ErroredCooldown:      time.Hour,
		PriorityLeaseKey:     "priority-calculator-test",
		OrchestratorPoolSize: 2,
		IngestorPoolSize:     2,
		DefaultPageSize:      50,
		ErrorThreshold:       5,
		RetryableErrorWeight: 0.5,
		CASMaxRetries:        5,
		JobMaxAttempts:       3,
		JobBackoffBase:       100 * time.Millisecond,
		JobBackoffMax:        time.Second,
		JobTimeout:           30 * time.Second,
		UserAgent:            "sourcefetch-test/1.0",

		BootstrapRetryAttempts:     3,
		BootstrapRetryDelaySeconds: 1,
	}
	if s.Weaviate != nil {
		cfg.WeaviateHost = s.weaviateHost
		cfg.WeaviateScheme = "http"
		cfg.EnablePostIndex = true
	}
	return cfg
}

// ConsumeOne waits for a single message on topic, or returns nil after 10s.
func (s *IntegrationSuite) ConsumeOne(topic string) *nsq.Message {
	cfg := nsq.NewConfig()
	consumer, err := nsq.NewConsumer(topic, "test-consume-one", cfg)
	require.NoError(s.T, err)
	defer consumer.Stop()

	got := make(chan *nsq.Message, 1)
	consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
		select {
		case got <- m:
		default:
		}
		return nil
	}))
	require.NoError(s.T, consumer.ConnectToNSQD(s.NSQDAddr))

	select {
	case m := <-got:
		return m
	case <-time.After(10 * time.Second):
		return nil
	}
}
