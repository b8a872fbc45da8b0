package mfa

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hackgods/dental-practice-portal/internal/logging"
	"github.com/hackgods/dental-practice-portal/internal/tenancy"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidCode       = errors.New("invalid or already used backup code")
	ErrExportUnavailable = errors.New("no backup code export pending, generate a new set")
)

type Service struct {
	repo    Repository
	pending PendingExports
	logger  *logging.Logger
	count   int
	cost    int
	now     func() time.Time
}

func NewService(repo Repository, pending PendingExports, logger *logging.Logger, count int) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:    repo,
		pending: pending,
		logger:  logger,
		count:   count,
		cost:    bcrypt.DefaultCost,
		now:     time.Now,
	}
}

// Generate replaces the user's backup codes and returns the new plaintext codes.
// The plaintext is also parked for a single Export download.
func (s *Service) Generate(ctx context.Context, userID uuid.UUID) ([]string, error) {
	orgID, err := tenancy.RequireOrganization(ctx)
	if err != nil {
		return nil, err
	}
	email, err := s.repo.UserEmail(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}

	codes, err := GenerateCodes(s.count)
	if err != nil {
		return nil, err
	}
	hashes := make([]string, 0, len(codes))
	for _, c := range codes {
		h, err := bcrypt.GenerateFromPassword([]byte(c), s.cost)
		if err != nil {
			return nil, fmt.Errorf("hash backup code: %w", err)
		}
		hashes = append(hashes, string(h))
	}

	if err := s.repo.ReplaceCodes(ctx, orgID, userID, hashes); err != nil {
		return nil, err
	}

	if s.pending != nil {
		if err := s.pending.Put(ctx, orgID, userID, FormatExport(email, codes, s.now())); err != nil {
			s.logger.WithError(err).WithField("user_id", userID).Warn("failed to park backup code export")
		}
	}
	return codes, nil
}

// Export returns the plaintext file for the most recent generation, once.
// Only the organization that generated the codes can collect them.
func (s *Service) Export(ctx context.Context, userID uuid.UUID) (string, error) {
	orgID, err := tenancy.RequireOrganization(ctx)
	if err != nil {
		return "", err
	}
	if s.pending == nil {
		return "", ErrExportUnavailable
	}
	return s.pending.Take(ctx, orgID, userID)
}

// Redeem consumes a backup code. Each code works exactly once.
func (s *Service) Redeem(ctx context.Context, userID uuid.UUID, input string) error {
	orgID, err := tenancy.RequireOrganization(ctx)
	if err != nil {
		return err
	}
	code := NormalizeCode(input)

	stored, err := s.repo.ListUnused(ctx, orgID, userID)
	if err != nil {
		return err
	}
	for _, c := range stored {
		if bcrypt.CompareHashAndPassword([]byte(c.Hash), []byte(code)) != nil {
			continue
		}
		ok, err := s.repo.MarkUsed(ctx, c.ID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidCode
		}
		s.logger.WithField("user_id", userID).WithField("remaining", len(stored)-1).Info("backup code redeemed")
		return nil
	}
	return ErrInvalidCode
}
