package repositories

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTransactionPostgresContainer(t *testing.T) (*sqlx.DB, func()) {
	t.Helper()

	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_PASSWORD": "password", "POSTGRES_DB": "testdb", "POSTGRES_USER": "postgres"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp"),
	}

	container, err := tc.GenericContainer(context.Background(), tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	assert.NoError(t, err)

	host, _ := container.Host(context.Background())
	port, _ := container.MappedPort(context.Background(), "5432")

	dsn := fmt.Sprintf("postgres://postgres:password@%s:%d/testdb?sslmode=disable", host, port.Int())

	var db *sqlx.DB
	for i := 0; i < 10; i++ {
		db, err = sqlx.Connect("pgx", dsn)
		if err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	assert.NoError(t, err)

	schema := `
	CREATE TABLE IF NOT EXISTS users (
		user_id UUID PRIMARY KEY,
		username VARCHAR(255) NOT NULL UNIQUE,
		email VARCHAR(255) UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS transactions (
		transaction_id UUID PRIMARY KEY,
		sender_id UUID NOT NULL REFERENCES users (user_id),
		receiver_id UUID NOT NULL REFERENCES users (user_id),
		amount NUMERIC(20, 2) NOT NULL CHECK (amount > 0),
		currency VARCHAR(3) NOT NULL,
		status VARCHAR(16) NOT NULL,
		description TEXT,
		failure_reason TEXT,
		refunded BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		completed_at TIMESTAMPTZ
	);
	`
	_, err = db.Exec(schema)
	assert.NoError(t, err)

	return db, func() {
		db.Close()
		container.Terminate(context.Background())
	}
}

func seedTransaction(t *testing.T, db *sqlx.DB, writer *TransactionWriteRepository) models.TransactionDB {
	t.Helper()
	senderID := uuid.New()
	receiverID := uuid.New()

	for i, id := range []uuid.UUID{senderID, receiverID} {
		_, err := db.Exec(`INSERT INTO users (user_id, username, email, password_hash) VALUES ($1, $2, $3, $4)`,
			id, fmt.Sprintf("user%d-%s", i, id), fmt.Sprintf("user%d-%s@example.com", i, id), "pass")
		assert.NoError(t, err)
	}

	txn := models.TransactionDB{
		TransactionID: uuid.New(),
		SenderID:      senderID,
		ReceiverID:    receiverID,
		Amount:        decimal.NewFromInt(100),
		Currency:      models.USD,
		Status:        models.StatusInitiated,
		Description:   "lunch money",
	}
	assert.NoError(t, writer.Save(context.Background(), txn))
	return txn
}

func TestTransactionRepository_SaveAndGet(t *testing.T) {
	db, cleanup := setupTransactionPostgresContainer(t)
	defer cleanup()
	ctx := context.Background()

	writer := NewTransactionWriteRepository(db)
	reader := NewTransactionReadRepository(db)

	txn := seedTransaction(t, db, writer)

	got, err := reader.GetByID(ctx, txn.TransactionID)
	assert.NoError(t, err)
	assert.NotNil(t, got)
	assert.Equal(t, txn.TransactionID, got.TransactionID)
	assert.Equal(t, models.StatusInitiated, got.Status)
	assert.Equal(t, "lunch money", got.Description)
	assert.False(t, got.Refunded)
	assert.False(t, got.FailureReason.Valid)
	assert.False(t, got.CompletedAt.Valid)

	missing, err := reader.GetByID(ctx, uuid.New())
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTransactionWriteRepository_SetStatus(t *testing.T) {
	db, cleanup := setupTransactionPostgresContainer(t)
	defer cleanup()
	ctx := context.Background()

	writer := NewTransactionWriteRepository(db)
	reader := NewTransactionReadRepository(db)

	txn := seedTransaction(t, db, writer)

	ok, err := writer.SetStatus(ctx, txn.TransactionID, models.StatusInitiated, models.StatusDebited)
	assert.NoError(t, err)
	assert.True(t, ok)

	// Re-applying the same transition matches no row.
	ok, err = writer.SetStatus(ctx, txn.TransactionID, models.StatusInitiated, models.StatusDebited)
	assert.NoError(t, err)
	assert.False(t, ok)

	got, err := reader.GetByID(ctx, txn.TransactionID)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusDebited, got.Status)
}

func TestTransactionWriteRepository_SetStatusWithReason(t *testing.T) {
	db, cleanup := setupTransactionPostgresContainer(t)
	defer cleanup()
	ctx := context.Background()

	writer := NewTransactionWriteRepository(db)
	reader := NewTransactionReadRepository(db)

	txn := seedTransaction(t, db, writer)

	ok, err := writer.SetStatus(ctx, txn.TransactionID, models.StatusInitiated, models.StatusDebited)
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = writer.SetStatusWithReason(ctx, txn.TransactionID, models.StatusDebited, models.StatusRefunding, "credit failed: simulated credit failure")
	assert.NoError(t, err)
	assert.True(t, ok)

	got, err := reader.GetByID(ctx, txn.TransactionID)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusRefunding, got.Status)
	assert.True(t, got.FailureReason.Valid)
	assert.Equal(t, "credit failed: simulated credit failure", got.FailureReason.String)
}

func TestTransactionWriteRepository_MarkCompleted(t *testing.T) {
	db, cleanup := setupTransactionPostgresContainer(t)
	defer cleanup()
	ctx := context.Background()

	writer := NewTransactionWriteRepository(db)
	reader := NewTransactionReadRepository(db)

	txn := seedTransaction(t, db, writer)

	_, err := writer.SetStatus(ctx, txn.TransactionID, models.StatusInitiated, models.StatusDebited)
	assert.NoError(t, err)

	ok, err := writer.MarkCompleted(ctx, txn.TransactionID, models.StatusDebited)
	assert.NoError(t, err)
	assert.True(t, ok)

	got, err := reader.GetByID(ctx, txn.TransactionID)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.True(t, got.CompletedAt.Valid)
	assert.False(t, got.Refunded)
}

func TestTransactionWriteRepository_MarkFailed(t *testing.T) {
	db, cleanup := setupTransactionPostgresContainer(t)
	defer cleanup()
	ctx := context.Background()

	writer := NewTransactionWriteRepository(db)
	reader := NewTransactionReadRepository(db)

	txn := seedTransaction(t, db, writer)

	ok, err := writer.MarkFailed(ctx, txn.TransactionID, models.StatusInitiated, "debit failed: insufficient balance", false)
	assert.NoError(t, err)
	assert.True(t, ok)

	got, err := reader.GetByID(ctx, txn.TransactionID)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, "debit failed: insufficient balance", got.FailureReason.String)
	assert.False(t, got.Refunded)
	assert.True(t, got.CompletedAt.Valid)

	// MarkFailed with the refunded flag, from REFUNDING.
	txn2 := seedTransaction(t, db, writer)
	_, err = writer.SetStatus(ctx, txn2.TransactionID, models.StatusInitiated, models.StatusDebited)
	assert.NoError(t, err)
	_, err = writer.SetStatusWithReason(ctx, txn2.TransactionID, models.StatusDebited, models.StatusRefunding, "credit failed: wallet not found")
	assert.NoError(t, err)

	ok, err = writer.MarkFailed(ctx, txn2.TransactionID, models.StatusRefunding, "credit failed: wallet not found, funds refunded to sender", true)
	assert.NoError(t, err)
	assert.True(t, ok)

	got2, err := reader.GetByID(ctx, txn2.TransactionID)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got2.Status)
	assert.True(t, got2.Refunded)
}
