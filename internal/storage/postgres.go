package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"github.com/terra-clan/motify-engine/internal/ledger"
	"github.com/terra-clan/motify-engine/internal/models"
)

// Postgres error codes
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	Schema       string // optional, sets search_path on every connection
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 2
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	if cfg.Schema != "" {
		setPath := "SET search_path TO " + pq.QuoteIdentifier(cfg.Schema)
		poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, setPath)
			return err
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool, schema: cfg.Schema}, nil
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

const challengeColumns = `id, name, description, goal, start_time, end_time, service_type, activity_type,
	api_provider, is_charity, charity_wallet, completed, created_at`

func scanChallenge(row pgx.Row) (*models.Challenge, error) {
	var c models.Challenge
	var serviceType string
	var activityType, apiProvider, charityWallet sql.NullString

	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Description,
		&c.Goal,
		&c.StartTime,
		&c.EndTime,
		&serviceType,
		&activityType,
		&apiProvider,
		&c.IsCharity,
		&charityWallet,
		&c.Completed,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.ServiceType = models.ServiceType(serviceType)
	c.ActivityType = models.ActivityType(activityType.String)
	c.APIProvider = models.APIProvider(apiProvider.String)
	c.CharityWallet = charityWallet.String
	c.StartTime = c.StartTime.UTC()
	c.EndTime = c.EndTime.UTC()
	c.Participants = []models.Participant{}

	return &c, nil
}

// ListChallenges returns all challenges ordered by id
func (r *PostgresRepository) ListChallenges(ctx context.Context) ([]*models.Challenge, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+challengeColumns+` FROM challenges ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}
	defer rows.Close()

	challenges := make([]*models.Challenge, 0)
	byID := make(map[int64]*models.Challenge)

	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan challenge: %w", err)
		}
		challenges = append(challenges, c)
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating challenges: %w", err)
	}

	if len(challenges) == 0 {
		return challenges, nil
	}

	prows, err := r.pool.Query(ctx, `
		SELECT challenge_id, wallet_address, amount_usd, joined_at, tx_hash
		FROM challenge_participants
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer prows.Close()

	for prows.Next() {
		var challengeID int64
		p, err := scanParticipant(prows, &challengeID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		if c, ok := byID[challengeID]; ok {
			c.Participants = append(c.Participants, p)
		}
	}

	if err := prows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participants: %w", err)
	}

	return challenges, nil
}

// GetChallenge retrieves a challenge by ID
func (r *PostgresRepository) GetChallenge(ctx context.Context, id int64) (*models.Challenge, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE id = $1`, id)

	c, err := scanChallenge(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}

	participants, err := r.getParticipants(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants for challenge %d: %w", id, err)
	}
	c.Participants = participants

	return c, nil
}

func scanParticipant(row pgx.Row, challengeID *int64) (models.Participant, error) {
	var p models.Participant
	var txHash sql.NullString

	if err := row.Scan(challengeID, &p.WalletAddress, &p.AmountUSD, &p.JoinedAt, &txHash); err != nil {
		return p, err
	}
	p.TxHash = txHash.String
	p.JoinedAt = p.JoinedAt.UTC()
	return p, nil
}

func (r *PostgresRepository) getParticipants(ctx context.Context, challengeID int64) ([]models.Participant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT challenge_id, wallet_address, amount_usd, joined_at, tx_hash
		FROM challenge_participants
		WHERE challenge_id = $1
		ORDER BY id
	`, challengeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := []models.Participant{}
	for rows.Next() {
		var id int64
		p, err := scanParticipant(rows, &id)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}

	return participants, rows.Err()
}

// CreateChallenge inserts a challenge and writes the generated id back to c
func (r *PostgresRepository) CreateChallenge(ctx context.Context, c *models.Challenge) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO challenges (name, description, goal, start_time, end_time, service_type, activity_type,
			api_provider, is_charity, charity_wallet, completed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, $11)
		RETURNING id
	`

	err := r.pool.QueryRow(ctx, query,
		c.Name,
		c.Description,
		c.Goal,
		c.StartTime,
		c.EndTime,
		string(c.ServiceType),
		nullString(string(c.ActivityType)),
		nullString(string(c.APIProvider)),
		c.IsCharity,
		nullString(c.CharityWallet),
		c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to create challenge: %w", err)
	}

	c.Participants = []models.Participant{}
	c.Completed = false
	return nil
}

// AddParticipant records a wallet's stake in a challenge
func (r *PostgresRepository) AddParticipant(ctx context.Context, challengeID int64, p models.Participant) error {
	query := `
		INSERT INTO challenge_participants (challenge_id, wallet_address, amount_usd, joined_at, tx_hash)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query,
		challengeID,
		ledger.NormalizeAddress(p.WalletAddress),
		p.AmountUSD,
		p.JoinedAt,
		nullString(p.TxHash),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgUniqueViolation:
				return ErrDuplicateParticipant
			case pgForeignKeyViolation:
				return models.ErrNotFound
			}
		}
		return fmt.Errorf("failed to add participant: %w", err)
	}

	return nil
}

// MarkCompleted sets the completed flag of a challenge
func (r *PostgresRepository) MarkCompleted(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, `UPDATE challenges SET completed = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark challenge completed: %w", err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// GetClientByApiKey retrieves an API client by its key
func (r *PostgresRepository) GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error) {
	query := `
		SELECT id, name, api_key, is_active, created_at, last_used_at, permissions, metadata
		FROM api_clients
		WHERE api_key = $1
	`

	var client models.ApiClient
	var lastUsedAt sql.NullTime
	var permissionsJSON, metadataJSON []byte

	err := r.pool.QueryRow(ctx, query, apiKey).Scan(
		&client.ID,
		&client.Name,
		&client.ApiKey,
		&client.IsActive,
		&client.CreatedAt,
		&lastUsedAt,
		&permissionsJSON,
		&metadataJSON,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get api client: %w", err)
	}

	if lastUsedAt.Valid {
		client.LastUsedAt = &lastUsedAt.Time
	}

	if permissionsJSON != nil {
		if err := json.Unmarshal(permissionsJSON, &client.Permissions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
		}
	}

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &client.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &client, nil
}

// UpdateClientLastUsed updates the last_used_at timestamp for a client
func (r *PostgresRepository) UpdateClientLastUsed(ctx context.Context, apiKey string) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_clients SET last_used_at = NOW() WHERE api_key = $1`, apiKey)
	if err != nil {
		return fmt.Errorf("failed to update client last_used_at: %w", err)
	}

	return nil
}

// UpsertClient stores an API client, replacing any client with the same key
func (r *PostgresRepository) UpsertClient(ctx context.Context, c *models.ApiClient) error {
	permissionsJSON, err := json.Marshal(c.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	metadataJSON, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO api_clients (name, api_key, is_active, permissions, metadata)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (api_key) DO UPDATE
		SET name = EXCLUDED.name, is_active = EXCLUDED.is_active,
			permissions = EXCLUDED.permissions, metadata = EXCLUDED.metadata
	`

	if _, err := r.pool.Exec(ctx, query, c.Name, c.ApiKey, c.IsActive, permissionsJSON, metadataJSON); err != nil {
		return fmt.Errorf("failed to upsert api client: %w", err)
	}

	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
