package storage

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/motify-engine/internal/models"
	"github.com/terra-clan/motify-engine/migrations"
)

// newTestPostgres connects to DATABASE_DSN with a throwaway schema
func newTestPostgres(t *testing.T) *PostgresRepository {
	t.Helper()

	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		t.Skip("DATABASE_DSN not set, skipping")
	}

	ctx := context.Background()
	schema := "motify_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	repo, err := NewPostgresRepository(ctx, PostgresConfig{DSN: dsn, Schema: schema, MaxOpenConns: 4, MaxIdleConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() {
		if _, err := repo.pool.Exec(context.Background(), "DROP SCHEMA IF EXISTS "+pq.QuoteIdentifier(schema)+" CASCADE"); err != nil {
			t.Logf("failed to drop schema %s: %v", schema, err)
		}
		repo.Close()
	})

	require.NoError(t, repo.Migrate(ctx, migrations.FS))
	return repo
}

func newPostgresChallenge(name string) *models.Challenge {
	start := time.Now().UTC().Truncate(time.Second)
	return &models.Challenge{
		Name:        name,
		Goal:        "10",
		StartTime:   start.Add(-time.Hour),
		EndTime:     start.Add(48 * time.Hour),
		ServiceType: models.ServiceGitHub,
		APIProvider: models.ProviderGitHub,
	}
}

func TestPostgresMigrateIsIdempotent(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()

	require.NoError(t, repo.Migrate(ctx, migrations.FS))

	var applied int
	require.NoError(t, repo.pool.QueryRow(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	all, err := loadMigrations(migrations.FS)
	require.NoError(t, err)
	assert.Equal(t, len(all), applied)
}

func TestPostgresEmptyList(t *testing.T) {
	repo := newTestPostgres(t)

	list, err := repo.ListChallenges(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestPostgresChallengeLifecycle(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()

	first := newPostgresChallenge("first")
	require.NoError(t, repo.CreateChallenge(ctx, first))
	second := newPostgresChallenge("second")
	require.NoError(t, repo.CreateChallenge(ctx, second))
	assert.Greater(t, second.ID, first.ID)

	got, err := repo.GetChallenge(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "first", got.Name)
	assert.Equal(t, models.ProviderGitHub, got.APIProvider)
	assert.Empty(t, got.CharityWallet)
	assert.False(t, got.Completed)
	assert.Empty(t, got.Participants)

	missing, err := repo.GetChallenge(ctx, second.ID+100)
	require.NoError(t, err)
	assert.Nil(t, missing)

	p := models.Participant{WalletAddress: " 0xABC ", AmountUSD: 0.05, JoinedAt: time.Now().UTC(), TxHash: "0xfeed"}
	require.NoError(t, repo.AddParticipant(ctx, first.ID, p))

	err = repo.AddParticipant(ctx, first.ID, models.Participant{WalletAddress: "0xabc", AmountUSD: 1, JoinedAt: time.Now().UTC()})
	assert.ErrorIs(t, err, ErrDuplicateParticipant)

	// The same wallet may join another challenge
	require.NoError(t, repo.AddParticipant(ctx, second.ID, models.Participant{WalletAddress: "0xabc", AmountUSD: 2, JoinedAt: time.Now().UTC()}))

	err = repo.AddParticipant(ctx, second.ID+100, models.Participant{WalletAddress: "0xdef", AmountUSD: 1, JoinedAt: time.Now().UTC()})
	assert.ErrorIs(t, err, models.ErrNotFound)

	got, err = repo.GetChallenge(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, got.Participants, 1)
	assert.Equal(t, "0xabc", got.Participants[0].WalletAddress)
	assert.Equal(t, 0.05, got.Participants[0].AmountUSD)
	assert.Equal(t, "0xfeed", got.Participants[0].TxHash)

	list, err := repo.ListChallenges(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Len(t, list[0].Participants, 1)
	assert.Len(t, list[1].Participants, 1)

	require.NoError(t, repo.MarkCompleted(ctx, first.ID))
	got, err = repo.GetChallenge(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, got.Completed)

	assert.ErrorIs(t, repo.MarkCompleted(ctx, second.ID+100), models.ErrNotFound)
}

func TestPostgresClients(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()

	client := &models.ApiClient{
		Name:        "operator",
		ApiKey:      "pg-test-key",
		IsActive:    true,
		Permissions: []string{"challenges:*"},
		Metadata:    map[string]string{"source": "test"},
	}
	require.NoError(t, repo.UpsertClient(ctx, client))

	client.Permissions = []string{"*"}
	require.NoError(t, repo.UpsertClient(ctx, client))

	got, err := repo.GetClientByApiKey(ctx, "pg-test-key")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"*"}, got.Permissions)
	assert.Equal(t, "test", got.Metadata["source"])
	assert.Nil(t, got.LastUsedAt)

	require.NoError(t, repo.UpdateClientLastUsed(ctx, "pg-test-key"))
	got, err = repo.GetClientByApiKey(ctx, "pg-test-key")
	require.NoError(t, err)
	assert.NotNil(t, got.LastUsedAt)

	none, err := repo.GetClientByApiKey(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, none)
}
