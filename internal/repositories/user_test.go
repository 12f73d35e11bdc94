package repositories

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupUserPostgresContainer(t *testing.T) (*sqlx.DB, func()) {
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
	`
	_, err = db.Exec(schema)
	assert.NoError(t, err)

	return db, func() {
		db.Close()
		container.Terminate(context.Background())
	}
}

func TestUserRepository_SaveAndGet(t *testing.T) {
	db, cleanup := setupUserPostgresContainer(t)
	defer cleanup()
	ctx := context.Background()

	writer := NewUserWriteRepository(db)
	reader := NewUserReadRepository(db)

	userID := uuid.New()
	username := "alice"
	email := "alice@example.com"

	assert.NoError(t, writer.Save(ctx, userID, username, "hashed-password", email))

	t.Run("find by username", func(t *testing.T) {
		user, err := reader.GetByUsernameOrEmail(ctx, &username, nil)
		assert.NoError(t, err)
		assert.NotNil(t, user)
		assert.Equal(t, userID, user.UserID)
		assert.Equal(t, "hashed-password", user.PasswordHash)
	})

	t.Run("find by email", func(t *testing.T) {
		user, err := reader.GetByUsernameOrEmail(ctx, nil, &email)
		assert.NoError(t, err)
		assert.NotNil(t, user)
		assert.Equal(t, userID, user.UserID)
	})

	t.Run("absent user returns nil without error", func(t *testing.T) {
		unknown := "nobody"
		user, err := reader.GetByUsernameOrEmail(ctx, &unknown, nil)
		assert.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("duplicate username is rejected", func(t *testing.T) {
		err := writer.Save(ctx, uuid.New(), username, "other-hash", "other@example.com")
		assert.Error(t, err)
	})
}
