package mfa

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hackgods/dental-practice-portal/internal/logging"
	"github.com/hackgods/dental-practice-portal/internal/tenancy"
)

var codePattern = regexp.MustCompile(`^[a-z2-7]{4}-[a-z2-7]{4}$`)

func TestGenerateCodes(t *testing.T) {
	codes, err := GenerateCodes(10)
	require.NoError(t, err)
	require.Len(t, codes, 10)

	seen := map[string]bool{}
	for _, c := range codes {
		assert.Regexp(t, codePattern, c)
		assert.False(t, seen[c])
		seen[c] = true
	}

	_, err = GenerateCodes(0)
	assert.ErrorIs(t, err, ErrInvalidCount)
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "abcd-ef23", NormalizeCode(" ABCD EF23 "))
	assert.Equal(t, "abcd-ef23", NormalizeCode("abcdef23"))
	assert.Equal(t, "abcd-ef23", NormalizeCode("abcd-ef23"))
	assert.Equal(t, "abc", NormalizeCode("abc"))
}

func TestFormatExport(t *testing.T) {
	out := FormatExport("dr.lee@example.com", []string{"aaaa-bbbb", "cccc-dddd"}, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	assert.Equal(t, "Dental Practice Portal - MFA backup codes", lines[0])
	assert.Equal(t, "Account: dr.lee@example.com", lines[1])
	assert.Equal(t, "Generated: 2026-01-02T03:04:05Z", lines[2])
	assert.Equal(t, []string{"aaaa-bbbb", "cccc-dddd"}, lines[len(lines)-2:])
}

type memRepo struct {
	codes map[uuid.UUID]*memCode
}

type memCode struct {
	user uuid.UUID
	hash string
	used bool
}

func (r *memRepo) ReplaceCodes(ctx context.Context, orgID, userID uuid.UUID, hashes []string) error {
	for id, c := range r.codes {
		if c.user == userID {
			delete(r.codes, id)
		}
	}
	for _, h := range hashes {
		r.codes[uuid.New()] = &memCode{user: userID, hash: h}
	}
	return nil
}

func (r *memRepo) ListUnused(ctx context.Context, orgID, userID uuid.UUID) ([]StoredCode, error) {
	var out []StoredCode
	for id, c := range r.codes {
		if c.user == userID && !c.used {
			out = append(out, StoredCode{ID: id, Hash: c.hash})
		}
	}
	return out, nil
}

func (r *memRepo) MarkUsed(ctx context.Context, id uuid.UUID) (bool, error) {
	c, ok := r.codes[id]
	if !ok || c.used {
		return false, nil
	}
	c.used = true
	return true, nil
}

func (r *memRepo) UserEmail(ctx context.Context, orgID, userID uuid.UUID) (string, error) {
	return "front.desk@example.com", nil
}

func newMFAService(t *testing.T) (*Service, *memRepo, context.Context) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	repo := &memRepo{codes: map[uuid.UUID]*memCode{}}
	svc := NewService(repo, NewRedisPendingExports(client, 10*time.Minute), logging.Discard(), 4)
	svc.cost = bcrypt.MinCost
	return svc, repo, tenancy.WithOrganization(context.Background(), uuid.New())
}

func TestGenerateStoresHashesAndExportsOnce(t *testing.T) {
	svc, repo, ctx := newMFAService(t)
	user := uuid.New()

	codes, err := svc.Generate(ctx, user)
	require.NoError(t, err)
	require.Len(t, codes, 4)
	require.Len(t, repo.codes, 4)
	for _, c := range repo.codes {
		assert.NotContains(t, codes, c.hash)
	}

	text, err := svc.Export(ctx, user)
	require.NoError(t, err)
	for _, c := range codes {
		assert.Contains(t, text, c+"\n")
	}

	_, err = svc.Export(ctx, user)
	assert.ErrorIs(t, err, ErrExportUnavailable)
}

func TestExportStaysInGeneratingOrganization(t *testing.T) {
	svc, _, ctx := newMFAService(t)
	user := uuid.New()

	_, err := svc.Generate(ctx, user)
	require.NoError(t, err)

	other := tenancy.WithOrganization(context.Background(), uuid.New())
	_, err = svc.Export(other, user)
	assert.ErrorIs(t, err, ErrExportUnavailable)

	text, err := svc.Export(ctx, user)
	require.NoError(t, err)
	assert.Contains(t, text, "front.desk@example.com")
}

func TestRedeemOnce(t *testing.T) {
	svc, _, ctx := newMFAService(t)
	user := uuid.New()

	codes, err := svc.Generate(ctx, user)
	require.NoError(t, err)

	require.NoError(t, svc.Redeem(ctx, user, strings.ToUpper(codes[1])))
	assert.ErrorIs(t, svc.Redeem(ctx, user, codes[1]), ErrInvalidCode)
	assert.ErrorIs(t, svc.Redeem(ctx, user, "zzzz-zzzz"), ErrInvalidCode)
	assert.NoError(t, svc.Redeem(ctx, user, codes[0]))
}

func TestRegenerateInvalidatesOldCodes(t *testing.T) {
	svc, _, ctx := newMFAService(t)
	user := uuid.New()

	old, err := svc.Generate(ctx, user)
	require.NoError(t, err)
	_, err = svc.Generate(ctx, user)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Redeem(ctx, user, old[0]), ErrInvalidCode)
}
