package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"edugame-service/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AdminStore persists administrator accounts.
type AdminStore interface {
	Create(ctx context.Context, admin domain.Admin) error
	FindByEmail(ctx context.Context, email string) (domain.Admin, error)
}

// AuthConfig controls token issuance and the calendar used for streaks.
type AuthConfig struct {
	Secret   string
	TokenTTL time.Duration
	Issuer   string
	Location *time.Location
}

// SignupRequest registers a student account.
type SignupRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	College  string `json:"college" validate:"max=200"`
	Place    string `json:"place" validate:"max=100"`
	District string `json:"district" validate:"max=100"`
	State    string `json:"state" validate:"max=100"`
}

// LoginRequest holds credentials for either role.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Session is the outcome of a successful login.
type Session struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	Identity  domain.Identity `json:"user"`
	Streak    int             `json:"streak,omitempty"`
}

type claims struct {
	Name string      `json:"name"`
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// AuthService authenticates students and admins and resolves session tokens into identities.
type AuthService struct {
	students StudentStore
	admins   AdminStore
	validate *validator.Validate
	logger   *zap.Logger
	cfg      AuthConfig
	now      func() time.Time
}

func NewAuthService(students StudentStore, admins AdminStore, validate *validator.Validate, logger *zap.Logger, cfg AuthConfig) *AuthService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &AuthService{students: students, admins: admins, validate: validate, logger: logger, cfg: cfg, now: time.Now}
}

// WithClock is test-only for deterministic streaks and expiries.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

// SignupStudent creates a student account with a bcrypt password hash.
func (s *AuthService) SignupStudent(ctx context.Context, req SignupRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return storeErr(s.students.Create(ctx, domain.Student{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
		College:      req.College,
		Place:        req.Place,
		District:     req.District,
		State:        req.State,
	}))
}

// CreateAdmin seeds an administrator account.
func (s *AuthService) CreateAdmin(ctx context.Context, name, email, password string) error {
	req := SignupRequest{Name: strings.TrimSpace(name), Email: strings.ToLower(strings.TrimSpace(email)), Password: password}
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return storeErr(s.admins.Create(ctx, domain.Admin{Name: req.Name, Email: req.Email, PasswordHash: string(hash)}))
}

// LoginStudent verifies credentials, advances the login streak and issues a token.
// The login fails as a whole if the streak cannot be written.
func (s *AuthService) LoginStudent(ctx context.Context, req LoginRequest) (Session, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validate.Struct(req); err != nil {
		return Session{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	student, err := s.students.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Session{}, domain.ErrInvalidCredentials
		}
		return Session{}, storeErr(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(student.PasswordHash), []byte(req.Password)); err != nil {
		return Session{}, domain.ErrInvalidCredentials
	}

	now := s.now()
	loc := s.cfg.Location
	streak, err := s.students.RecordLogin(ctx, student.Name, now, func(state domain.LoginState) int {
		return NextStreak(state.LastLogin, state.Streak, now, loc)
	})
	if err != nil {
		s.logger.Error("record login failed", zap.String("student", student.Name), zap.Error(err))
		return Session{}, storeErr(err)
	}

	session, err := s.issue(domain.Identity{Name: student.Name, Role: domain.RoleStudent}, now)
	if err != nil {
		return Session{}, err
	}
	session.Streak = streak
	s.logger.Info("student logged in", zap.String("student", student.Name), zap.Int("streak", streak))
	return session, nil
}

// LoginAdmin verifies administrator credentials and issues a token.
func (s *AuthService) LoginAdmin(ctx context.Context, req LoginRequest) (Session, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validate.Struct(req); err != nil {
		return Session{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	admin, err := s.admins.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Session{}, domain.ErrInvalidCredentials
		}
		return Session{}, storeErr(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(req.Password)); err != nil {
		return Session{}, domain.ErrInvalidCredentials
	}
	return s.issue(domain.Identity{Name: admin.Name, Role: domain.RoleAdmin}, s.now())
}

// ParseToken validates a session token and returns the identity it carries.
func (s *AuthService) ParseToken(raw string) (domain.Identity, error) {
	parsed := &claims{}
	_, err := jwt.ParseWithClaims(raw, parsed, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if parsed.Name == "" || !parsed.Role.Valid() {
		return domain.Identity{}, domain.ErrUnauthorized
	}
	return domain.Identity{Name: parsed.Name, Role: parsed.Role}, nil
}

func (s *AuthService) issue(identity domain.Identity, now time.Time) (Session, error) {
	expires := now.Add(s.cfg.TokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Name: identity.Name,
		Role: identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.cfg.Issuer,
			Subject:   identity.Name,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{Token: signed, ExpiresAt: expires, Identity: identity}, nil
}
