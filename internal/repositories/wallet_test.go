package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/logger"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// --- Setup Postgres ---
func setupPostgres(t *testing.T) (*sqlx.DB, func()) {
	logger.Initialize("debug")
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_PASSWORD": "secret", "POSTGRES_DB": "testdb", "POSTGRES_USER": "postgres"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	assert.NoError(t, err)

	host, err := container.Host(ctx)
	assert.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	assert.NoError(t, err)

	dsn := fmt.Sprintf("postgres://postgres:secret@%s:%s/testdb?sslmode=disable", host, port.Port())
	db, err := sqlx.Connect("pgx", dsn)
	assert.NoError(t, err)

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id UUID PRIMARY KEY,
			username VARCHAR(255) NOT NULL UNIQUE,
			email VARCHAR(255) UNIQUE,
			password_hash VARCHAR(255) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE TABLE IF NOT EXISTS wallets (
			wallet_id UUID PRIMARY KEY,
			user_id UUID NOT NULL UNIQUE REFERENCES users (user_id),
			currency VARCHAR(3) NOT NULL,
			balance NUMERIC(20, 2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
	}

	for _, m := range migrations {
		_, err = db.Exec(m)
		assert.NoError(t, err)
	}

	return db, func() {
		db.Close()
		container.Terminate(ctx)
	}
}

// --- Helpers ---
func createUser(t *testing.T, db *sqlx.DB, username string) uuid.UUID {
	t.Helper()
	userID := uuid.New()
	_, err := db.Exec(`INSERT INTO users (user_id, username, email, password_hash) VALUES ($1, $2, $3, $4)`,
		userID, username, username+"@example.com", "password123")
	assert.NoError(t, err)
	return userID
}

func getBalance(t *testing.T, db *sqlx.DB, userID uuid.UUID) decimal.Decimal {
	t.Helper()
	var balance decimal.Decimal
	err := db.Get(&balance, `SELECT balance FROM wallets WHERE user_id=$1`, userID)
	assert.NoError(t, err)
	return balance
}

func TestWalletWriteRepository_SaveAndGet(t *testing.T) {
	db, cleanup := setupPostgres(t)
	defer cleanup()
	ctx := context.Background()

	userID := createUser(t, db, "alice")

	writer := NewWalletWriteRepository(db)
	reader := NewWalletReadRepository(db)

	assert.NoError(t, writer.Save(ctx, userID, models.USD))

	wallet, err := reader.GetByUserID(ctx, userID)
	assert.NoError(t, err)
	assert.NotNil(t, wallet)
	assert.Equal(t, userID, wallet.UserID)
	assert.Equal(t, models.USD, wallet.Currency)
	assert.True(t, wallet.Balance.IsZero())

	// Unknown user has no wallet and no error.
	missing, err := reader.GetByUserID(ctx, uuid.New())
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestWalletWriteRepository_Increment(t *testing.T) {
	db, cleanup := setupPostgres(t)
	defer cleanup()
	ctx := context.Background()

	userID := createUser(t, db, "bob")
	writer := NewWalletWriteRepository(db)
	assert.NoError(t, writer.Save(ctx, userID, models.USD))

	balance, err := writer.Increment(ctx, userID, decimal.NewFromInt(100))
	assert.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(balance))

	balance, err = writer.Increment(ctx, userID, decimal.NewFromInt(50))
	assert.NoError(t, err)
	assert.True(t, decimal.NewFromInt(150).Equal(balance))
	assert.True(t, decimal.NewFromInt(150).Equal(getBalance(t, db, userID)))

	// Incrementing a missing wallet reports no row.
	_, err = writer.Increment(ctx, uuid.New(), decimal.NewFromInt(10))
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestWalletWriteRepository_DecrementIfSufficient(t *testing.T) {
	db, cleanup := setupPostgres(t)
	defer cleanup()
	ctx := context.Background()

	userID := createUser(t, db, "carol")
	writer := NewWalletWriteRepository(db)
	assert.NoError(t, writer.Save(ctx, userID, models.USD))

	_, err := writer.Increment(ctx, userID, decimal.NewFromInt(200))
	assert.NoError(t, err)

	balance, err := writer.DecrementIfSufficient(ctx, userID, decimal.NewFromInt(80))
	assert.NoError(t, err)
	assert.True(t, decimal.NewFromInt(120).Equal(balance))

	// Insufficient: the balance must not move.
	_, err = writer.DecrementIfSufficient(ctx, userID, decimal.NewFromInt(500))
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.True(t, decimal.NewFromInt(120).Equal(getBalance(t, db, userID)))

	// Exact balance drains to zero.
	balance, err = writer.DecrementIfSufficient(ctx, userID, decimal.NewFromInt(120))
	assert.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestWalletWriteRepository_DecrementConcurrency(t *testing.T) {
	db, cleanup := setupPostgres(t)
	defer cleanup()
	ctx := context.Background()

	userID := createUser(t, db, "concurrent")
	writer := NewWalletWriteRepository(db)
	assert.NoError(t, writer.Save(ctx, userID, models.USD))

	_, err := writer.Increment(ctx, userID, decimal.NewFromInt(100))
	assert.NoError(t, err)

	// 200 concurrent debits of 1 against a balance of 100: exactly 100
	// succeed and the balance never goes negative.
	const numGoroutines = 200
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			if _, err := writer.DecrementIfSufficient(ctx, userID, decimal.NewFromInt(1)); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, succeeded)
	assert.True(t, getBalance(t, db, userID).IsZero())
}
