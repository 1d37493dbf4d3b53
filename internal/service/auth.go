package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"schoolbus/internal/domain"
	"schoolbus/internal/logging"
	"schoolbus/internal/repository"
)

const (
	DefaultSessionTTL  = 12 * time.Hour
	RememberSessionTTL = 30 * 24 * time.Hour
)

// LoginRequest contains the parameters for a guardian or driver login.
type LoginRequest struct {
	ID       string
	Password string
	Remember bool
}

// Principal is the record behind a session. Exactly one field is set.
type Principal struct {
	Guardian *domain.Guardian
	Vehicle  *domain.Vehicle
}

// AuthService checks credentials against the store and manages sessions.
// Passwords are compared as opaque strings.
type AuthService struct {
	guardians repository.GuardianRepository
	vehicles  repository.VehicleRepository
	sessions  repository.SessionStore
	logger    *slog.Logger
	now       func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(
	guardians repository.GuardianRepository,
	vehicles repository.VehicleRepository,
	sessions repository.SessionStore,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		guardians: guardians,
		vehicles:  vehicles,
		sessions:  sessions,
		logger:    logger,
		now:       time.Now,
	}
}

// LoginGuardian authenticates a guardian and opens a session.
func (s *AuthService) LoginGuardian(ctx context.Context, req LoginRequest) (*domain.Session, *domain.Guardian, error) {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return nil, nil, ErrInvalidCredentials
	}

	g, err := s.guardians.GetByID(ctx, id)
	if err == nil && g.Password != req.Password {
		err = ErrCredentialMismatch
	}
	if err != nil {
		s.logFailure(domain.RoleGuardian, id, err)
		return nil, nil, ErrInvalidCredentials
	}

	session, err := s.open(ctx, id, domain.RoleGuardian, req.Remember)
	if err != nil {
		return nil, nil, err
	}
	return session, g, nil
}

// LoginDriver authenticates a driver by vehicle ID and opens a session.
func (s *AuthService) LoginDriver(ctx context.Context, req LoginRequest) (*domain.Session, *domain.Vehicle, error) {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return nil, nil, ErrInvalidCredentials
	}

	v, err := s.vehicles.GetByID(ctx, id)
	if err == nil && v.Password != req.Password {
		err = ErrCredentialMismatch
	}
	if err != nil {
		s.logFailure(domain.RoleDriver, id, err)
		return nil, nil, ErrInvalidCredentials
	}

	session, err := s.open(ctx, id, domain.RoleDriver, req.Remember)
	if err != nil {
		return nil, nil, err
	}
	return session, v, nil
}

// logFailure records why a login failed. The reason never reaches the caller.
func (s *AuthService) logFailure(role domain.Role, id string, err error) {
	reason := "store_error"
	switch {
	case errors.Is(err, repository.ErrNotFound):
		reason = "not_found"
	case errors.Is(err, ErrCredentialMismatch):
		reason = "credential_mismatch"
	}
	s.logger.Warn("login failed",
		slog.String("role", string(role)),
		slog.String("id", id),
		slog.String("reason", reason))
}

func (s *AuthService) open(ctx context.Context, identity string, role domain.Role, remember bool) (*domain.Session, error) {
	session := &domain.Session{
		Token:     uuid.NewString(),
		Identity:  identity,
		Role:      role,
		CreatedAt: s.now().UTC(),
	}
	ttl := DefaultSessionTTL
	if remember {
		ttl = RememberSessionTTL
	}
	if err := s.sessions.Save(ctx, session, ttl); err != nil {
		return nil, err
	}
	logging.LogOperation(s.logger, "session_opened",
		slog.String("role", string(role)),
		slog.String("identity", identity))
	return session, nil
}

// Session returns the live session for token.
func (s *AuthService) Session(ctx context.Context, token string) (*domain.Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}
	session, err := s.sessions.Get(ctx, token)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logging.LogError(s.logger, "session lookup failed", err)
		}
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Resume re-authenticates a saved session without a password by reloading its
// record. A session whose record no longer exists is cleared.
func (s *AuthService) Resume(ctx context.Context, token string) (*domain.Session, Principal, error) {
	session, err := s.Session(ctx, token)
	if err != nil {
		return nil, Principal{}, err
	}

	var p Principal
	switch session.Role {
	case domain.RoleGuardian:
		p.Guardian, err = s.guardians.GetByID(ctx, session.Identity)
	case domain.RoleDriver:
		p.Vehicle, err = s.vehicles.GetByID(ctx, session.Identity)
	default:
		err = repository.ErrNotFound
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			if derr := s.sessions.Delete(ctx, token); derr != nil {
				logging.LogError(s.logger, "clear stale session", derr)
			}
		} else {
			logging.LogError(s.logger, "resume session", err)
		}
		return nil, Principal{}, ErrSessionNotFound
	}
	return session, p, nil
}

// Logout clears the session.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.sessions.Delete(ctx, token)
}
