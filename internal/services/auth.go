package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/logger"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// Error variables
var (
	ErrUserAlreadyExists  = errors.New("username or email already exists")
	ErrUserDoesNotExist   = errors.New("username does not exist")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// UserReader defines read-only operations for users.
type UserReader interface {
	GetByUsernameOrEmail(ctx context.Context, username *string, email *string) (*models.UserDB, error)
}

// UserWriter defines write operations for users.
type UserWriter interface {
	Save(ctx context.Context, userID uuid.UUID, username string, passwordHash string, email string) error
}

// WalletCreator provisions the user's wallet at registration.
type WalletCreator interface {
	Save(ctx context.Context, userID uuid.UUID, currency string) error
}

// JWTGenerator defines an interface for generating JWT tokens.
type JWTGenerator interface {
	Generate(ctx context.Context, userID uuid.UUID) (string, error)
}

// AuthService handles registration and login. Registration creates the
// user together with their wallet in one transaction: every registered
// user has exactly one wallet from the start.
type AuthService struct {
	tx           TxRunner
	reader       UserReader
	writer       UserWriter
	walletWriter WalletCreator
	jwt          JWTGenerator
}

// NewAuthService creates a new AuthService instance.
func NewAuthService(tx TxRunner, reader UserReader, writer UserWriter, walletWriter WalletCreator, jwt JWTGenerator) *AuthService {
	return &AuthService{
		tx:           tx,
		reader:       reader,
		writer:       writer,
		walletWriter: walletWriter,
		jwt:          jwt,
	}
}

// Register registers a new user and provisions their wallet.
func (svc *AuthService) Register(ctx context.Context, username, password, email, currency string) error {
	user, err := svc.reader.GetByUsernameOrEmail(ctx, &username, &email)
	if err != nil {
		logger.Log.Errorw("failed to check user exists", "err", err)
		return err
	}
	if user != nil {
		logger.Log.Errorw("user already exists", "username", username, "email", email)
		return ErrUserAlreadyExists
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		logger.Log.Errorw("failed to hash password", "err", err)
		return err
	}

	if currency == "" {
		currency = models.USD
	}

	userID := uuid.New()
	err = svc.tx(ctx, func(ctx context.Context) error {
		if err := svc.writer.Save(ctx, userID, username, string(hashedPassword), email); err != nil {
			return err
		}
		return svc.walletWriter.Save(ctx, userID, currency)
	})
	if err != nil {
		logger.Log.Errorw("failed to save user", "err", err)
		return err
	}

	return nil
}

// Login authenticates a user and returns a JWT token.
func (svc *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := svc.reader.GetByUsernameOrEmail(ctx, &username, nil)
	if err != nil {
		logger.Log.Errorw("failed to get user", "err", err)
		return "", err
	}
	if user == nil {
		logger.Log.Errorw("user does not exist", "username", username)
		return "", ErrUserDoesNotExist
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		logger.Log.Errorw("invalid credentials", "username", username)
		return "", ErrInvalidCredentials
	}

	token, err := svc.jwt.Generate(ctx, user.UserID)
	if err != nil {
		logger.Log.Errorw("failed to generate JWT", "err", err)
		return "", err
	}

	return token, nil
}
