package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hupe1980/medguard/core"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPostgresSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("audit_db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(5*time.Minute),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(context.Background()) })

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	sink := NewPostgresSink(pool)
	require.NoError(t, sink.EnsureSchema(ctx))
	require.NoError(t, sink.EnsureSchema(ctx), "schema creation is idempotent")

	blocked := sampleEntry("req-1", core.ActionBlocked)
	require.NoError(t, sink.Append(ctx, blocked))
	require.NoError(t, sink.Append(ctx, blocked), "re-append of the same id is a no-op")
	require.NoError(t, sink.Append(ctx, sampleEntry("req-2", core.ActionApproved)))

	got, err := sink.ByRequest(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, blocked.ID, got[0].ID)
	assert.Equal(t, core.ActionBlocked, got[0].Action)
	assert.Equal(t, "chat_response", got[0].ContentType)
	assert.Equal(t, []string{"self-harm"}, got[0].Reasons)
	assert.Equal(t, blocked.Validation.Issues, got[0].Validation.Issues)
}

func TestRabbitMQSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping rabbitmq integration test in short mode")
	}
	ctx := context.Background()

	rmqContainer, err := rabbitmq.Run(ctx,
		"rabbitmq:3-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete"),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rmqContainer.Terminate(context.Background()) })

	url, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)
	conn, err := amqp.Dial(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	sink, err := NewRabbitMQSink(conn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })

	entry := sampleEntry("req-1", core.ActionBlocked)
	require.NoError(t, sink.Append(ctx, entry))

	ch, err := conn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	msg, ok, err := ch.Get("medguard.audit", true)
	require.NoError(t, err)
	require.True(t, ok, "entry should be durably queued")
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, entry.ID, msg.MessageId)

	var decoded core.AuditEntry
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, entry.RequestID, decoded.RequestID)
	assert.Equal(t, core.ActionBlocked, decoded.Action)
}
