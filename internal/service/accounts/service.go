package accounts

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"barbershop/backend/internal/auth"
	"barbershop/backend/internal/domain"
	"barbershop/backend/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

var ErrInvalidCredentials = errors.New("invalid username or password")

type Service struct {
	users      store.UserRepository
	tokens     *auth.TokenManager
	bcryptCost int
	log        *slog.Logger
}

func NewService(users store.UserRepository, tokens *auth.TokenManager, bcryptCost int, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		users:      users,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		log:        log.With(slog.String("component", "accounts")),
	}
}

type RegisterInput struct {
	Username string
	Password string
	Name     string
	Phone    string
}

// Register creates a client account. Accounts created here are never admins.
func (s *Service) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return domain.User{}, validationError("username is required")
	}
	if len(username) > 64 {
		return domain.User{}, validationError("username too long")
	}
	if len(in.Password) < 6 {
		return domain.User{}, validationError("password must be at least 6 characters")
	}
	if len(in.Password) > 72 {
		return domain.User{}, validationError("password too long")
	}

	return s.create(ctx, domain.User{
		Username: username,
		Role:     domain.RoleClient,
		Name:     strings.TrimSpace(in.Name),
		Phone:    strings.TrimSpace(in.Phone),
	}, in.Password)
}

type Session struct {
	Token     string
	ExpiresAt time.Time
	User      domain.User
}

func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	u, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if err := auth.ComparePassword(u.PasswordHash, password); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(domain.Principal{UserID: u.ID, Role: u.Role})
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: expiresAt, User: u}, nil
}

type AdminSeed struct {
	Username string
	Password string
	Name     string
	Phone    string
}

// EnsureAdmin creates the bootstrap admin when it does not exist yet. An
// existing account with that username is left untouched.
func (s *Service) EnsureAdmin(ctx context.Context, seed AdminSeed) error {
	if strings.TrimSpace(seed.Username) == "" || seed.Password == "" {
		s.log.Warn("admin bootstrap skipped: username or password not configured")
		return nil
	}

	_, err := s.users.FindByUsername(ctx, seed.Username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	u, err := s.create(ctx, domain.User{
		Username: seed.Username,
		Role:     domain.RoleAdmin,
		Name:     seed.Name,
		Phone:    seed.Phone,
	}, seed.Password)
	if errors.Is(err, store.ErrDuplicate) {
		return nil
	}
	if err != nil {
		return err
	}
	s.log.Info("admin account created", slog.String("user_id", u.ID.String()), slog.String("username", u.Username))
	return nil
}

func (s *Service) ListClients(ctx context.Context) ([]domain.User, error) {
	return s.users.ListByRole(ctx, domain.RoleClient)
}

func (s *Service) create(ctx context.Context, u domain.User, password string) (domain.User, error) {
	hashed, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return domain.User{}, err
	}
	u.PasswordHash = hashed
	return s.users.Create(ctx, u)
}
