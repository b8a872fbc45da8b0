package mfa

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/dental-practice-portal/internal/db"
)

type StoredCode struct {
	ID   uuid.UUID
	Hash string
}

type Repository interface {
	// ReplaceCodes drops every existing code of the user and stores the new hashes.
	ReplaceCodes(ctx context.Context, orgID, userID uuid.UUID, hashes []string) error
	ListUnused(ctx context.Context, orgID, userID uuid.UUID) ([]StoredCode, error)
	// MarkUsed returns false when the code was already used.
	MarkUsed(ctx context.Context, id uuid.UUID) (bool, error)
	UserEmail(ctx context.Context, orgID, userID uuid.UUID) (string, error)
}

type PgRepository struct {
	db db.Querier
}

func NewPgRepository(q db.Querier) *PgRepository {
	return &PgRepository{db: q}
}

func (r *PgRepository) ReplaceCodes(ctx context.Context, orgID, userID uuid.UUID, hashes []string) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			DELETE FROM mfa_backup_codes
			WHERE user_id = $1 AND organization_id = $2
		`, userID, orgID); err != nil {
			return fmt.Errorf("delete backup codes: %w", err)
		}
		for _, h := range hashes {
			if _, err := tx.Exec(ctx, `
				INSERT INTO mfa_backup_codes (id, organization_id, user_id, code_hash, created_at)
				VALUES ($1, $2, $3, $4, now())
			`, uuid.New(), orgID, userID, h); err != nil {
				return fmt.Errorf("insert backup code: %w", err)
			}
		}
		return nil
	})
}

func (r *PgRepository) ListUnused(ctx context.Context, orgID, userID uuid.UUID) ([]StoredCode, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, code_hash
		FROM mfa_backup_codes
		WHERE user_id = $1 AND organization_id = $2 AND used_at IS NULL
	`, userID, orgID)
	if err != nil {
		return nil, fmt.Errorf("list backup codes: %w", err)
	}
	defer rows.Close()

	var out []StoredCode
	for rows.Next() {
		var c StoredCode
		if err := rows.Scan(&c.ID, &c.Hash); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PgRepository) MarkUsed(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE mfa_backup_codes
		SET used_at = now()
		WHERE id = $1 AND used_at IS NULL
	`, id)
	if err != nil {
		return false, fmt.Errorf("mark backup code used: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgRepository) UserEmail(ctx context.Context, orgID, userID uuid.UUID) (string, error) {
	var email string
	err := r.db.QueryRow(ctx, `
		SELECT email FROM users
		WHERE id = $1 AND organization_id = $2 AND active
	`, userID, orgID).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrUserNotFound
	}
	return email, err
}

// PendingExports holds the plaintext export between generation and download.
type PendingExports interface {
	Put(ctx context.Context, orgID, userID uuid.UUID, text string) error
	// Take returns the export once and forgets it.
	Take(ctx context.Context, orgID, userID uuid.UUID) (string, error)
}

type RedisPendingExports struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisPendingExports(client *redis.Client, ttl time.Duration) *RedisPendingExports {
	return &RedisPendingExports{client: client, ttl: ttl}
}

func exportKey(orgID, userID uuid.UUID) string {
	return "mfa:backup-export:" + orgID.String() + ":" + userID.String()
}

func (p *RedisPendingExports) Put(ctx context.Context, orgID, userID uuid.UUID, text string) error {
	return p.client.Set(ctx, exportKey(orgID, userID), text, p.ttl).Err()
}

func (p *RedisPendingExports) Take(ctx context.Context, orgID, userID uuid.UUID) (string, error) {
	text, err := p.client.GetDel(ctx, exportKey(orgID, userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrExportUnavailable
	}
	return text, err
}
