package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yourorg/taskhub/internal/domain"
	"github.com/yourorg/taskhub/internal/identity"
	"github.com/yourorg/taskhub/internal/observability/metrics"
	"github.com/yourorg/taskhub/internal/security"
	"github.com/yourorg/taskhub/internal/security/audit"
	"github.com/yourorg/taskhub/internal/session"
)

const tempCredentialLength = 16

// InviteService runs the user-invite saga: provision an identity account,
// create the directory profile, then send the magic-link notification. Each
// completed step registers an undo; a failed step unwinds everything already
// done, in reverse order, so a failed invite leaves no partial state behind.
type InviteService struct {
	userRepository domain.UserRepository
	provider       identity.Provider
	authorization  *security.AuthorizationService
	auditLogger    *audit.Logger
	logger         *slog.Logger
}

// NewInviteService creates a new invite service
func NewInviteService(
	userRepo domain.UserRepository,
	provider identity.Provider,
	authz *security.AuthorizationService,
	auditLogger *audit.Logger,
	logger *slog.Logger,
) *InviteService {
	if logger == nil {
		logger = slog.Default()
	}

	return &InviteService{
		userRepository: userRepo,
		provider:       provider,
		authorization:  authz,
		auditLogger:    auditLogger,
		logger:         logger,
	}
}

// undoStep is one registered compensation. Compensations are best-effort:
// a failed undo is logged, never surfaced.
type undoStep struct {
	name string
	fn   func(context.Context) error
}

// InviteUser invites a new user by email with the role the inviter chose.
// The invited profile starts with no business assignment; an admin assigns
// it later.
func (s *InviteService) InviteUser(ctx context.Context, sess session.Context, email, name string, role domain.Role) (*domain.User, error) {
	actor, err := s.resolveActor(ctx, sess)
	if err != nil {
		metrics.ObserveInvite("unauthenticated")
		return nil, err
	}

	if err := s.authorization.ValidatePermission(actor.Role, security.PermInviteUsers); err != nil {
		metrics.ObserveInvite("denied")
		s.auditLogger.LogInvite(ctx, actor.ID, email, "denied")
		return nil, err
	}

	if !role.Valid() {
		metrics.ObserveInvite("error")
		return nil, fmt.Errorf("invalid role %q", role)
	}

	tempPassword, err := generateTempCredential()
	if err != nil {
		metrics.ObserveInvite("error")
		return nil, fmt.Errorf("failed to generate temporary credential: %w", err)
	}

	var undos []undoStep

	// Step 1: provision the identity account
	account, err := s.provider.AdminCreateUser(ctx, email, tempPassword)
	if err != nil {
		metrics.ObserveInvite("error")
		s.auditLogger.LogInvite(ctx, actor.ID, email, "failed")
		return nil, fmt.Errorf("failed to create identity account: %w", err)
	}
	undos = append(undos, undoStep{
		name: "delete identity account",
		fn: func(ctx context.Context) error {
			return s.provider.AdminDeleteUser(ctx, account.ID)
		},
	})

	// Step 2: create the directory profile, unassigned
	user := &domain.User{
		ID:    account.ID,
		Name:  name,
		Email: email,
		Role:  role,
	}
	if err := s.userRepository.Create(ctx, user); err != nil {
		s.compensate(ctx, email, undos)
		metrics.ObserveInvite("error")
		s.auditLogger.LogInvite(ctx, actor.ID, email, "failed")
		return nil, fmt.Errorf("failed to create directory profile: %w", err)
	}
	undos = append(undos, undoStep{
		name: "delete directory profile",
		fn: func(ctx context.Context) error {
			return s.userRepository.Delete(ctx, user.ID)
		},
	})

	// Step 3: send the sign-in notification with the temporary credential
	if err := s.provider.SendOTP(ctx, email, map[string]string{"temp_password": tempPassword}); err != nil {
		s.compensate(ctx, email, undos)
		metrics.ObserveInvite("error")
		s.auditLogger.LogInvite(ctx, actor.ID, email, "failed")
		return nil, fmt.Errorf("failed to send invite notification: %w", err)
	}

	metrics.ObserveInvite("success")
	s.auditLogger.LogInvite(ctx, actor.ID, email, "success")
	s.logger.Info("user invited",
		slog.String("acting_user", actor.ID),
		slog.String("email", email),
		slog.String("user_id", user.ID),
		slog.String("role", string(role)),
	)

	return user, nil
}

func (s *InviteService) resolveActor(ctx context.Context, sess session.Context) (*domain.User, error) {
	if sess.UserID == "" {
		return nil, domain.ErrUnauthenticated
	}
	actor, err := s.userRepository.GetByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnauthenticated
		}
		return nil, fmt.Errorf("failed to resolve acting profile: %w", err)
	}
	return actor, nil
}

// compensate runs registered undos in reverse registration order.
func (s *InviteService) compensate(ctx context.Context, email string, undos []undoStep) {
	for i := len(undos) - 1; i >= 0; i-- {
		step := undos[i]
		if err := step.fn(ctx); err != nil {
			s.logger.Error("invite compensation failed",
				slog.String("step", step.name),
				slog.String("email", email),
				slog.String("error", err.Error()),
			)
		}
	}
}

const credentialAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// generateTempCredential produces the one-time password an invited account
// starts with. It is replaced the first time the invitee signs in.
func generateTempCredential() (string, error) {
	buf := make([]byte, tempCredentialLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = credentialAlphabet[int(b)%len(credentialAlphabet)]
	}
	return string(buf), nil
}
