package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marketglass/marketglass/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketUpsertQuery = `
	INSERT INTO markets (
		id, question, slug, description,
		outcome_0, outcome_1, token_id_0, token_id_1,
		condition_id, neg_risk, volume, status,
		closed_at, created_at, updated_at
	) VALUES (
		$1, $2, $3, $4,
		$5, $6, $7, $8,
		$9, $10, $11, $12,
		$13, $14, NOW()
	)
	ON CONFLICT (id) DO UPDATE SET
		question     = EXCLUDED.question,
		slug         = EXCLUDED.slug,
		description  = EXCLUDED.description,
		outcome_0    = EXCLUDED.outcome_0,
		outcome_1    = EXCLUDED.outcome_1,
		token_id_0   = EXCLUDED.token_id_0,
		token_id_1   = EXCLUDED.token_id_1,
		condition_id = EXCLUDED.condition_id,
		neg_risk     = EXCLUDED.neg_risk,
		volume       = EXCLUDED.volume,
		status       = EXCLUDED.status,
		closed_at    = EXCLUDED.closed_at,
		updated_at   = NOW()`

func marketUpsertArgs(m domain.Market) []any {
	return []any{
		m.ID, m.Question, m.Slug, m.Description,
		m.Outcomes[0], m.Outcomes[1], m.TokenIDs[0], m.TokenIDs[1],
		m.ConditionID, m.NegRisk, m.Volume, string(m.Status),
		m.ClosedAt, m.CreatedAt,
	}
}

// Upsert inserts a market or refreshes its mutable fields when it already
// exists.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	if _, err := s.pool.Exec(ctx, marketUpsertQuery, marketUpsertArgs(m)...); err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", m.ID, err)
	}
	return nil
}

// UpsertBatch upserts several markets in one round trip using a pgx batch.
func (s *MarketStore) UpsertBatch(ctx context.Context, markets []domain.Market) error {
	if len(markets) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range markets {
		batch.Queue(marketUpsertQuery, marketUpsertArgs(m)...)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range markets {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert market batch: %w", err)
		}
	}
	return nil
}

const marketSelectCols = `id, question, slug, description,
	outcome_0, outcome_1, token_id_0, token_id_1,
	condition_id, neg_risk, volume, status,
	closed_at, created_at, updated_at`

func scanMarket(scanner interface{ Scan(dest ...any) error }) (domain.Market, error) {
	var m domain.Market
	var status string

	err := scanner.Scan(
		&m.ID, &m.Question, &m.Slug, &m.Description,
		&m.Outcomes[0], &m.Outcomes[1], &m.TokenIDs[0], &m.TokenIDs[1],
		&m.ConditionID, &m.NegRisk, &m.Volume, &status,
		&m.ClosedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}

	m.Status = domain.MarketStatus(status)
	return m, nil
}

// GetByID retrieves a single market by ID.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketSelectCols+` FROM markets WHERE id = $1`, id)

	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// GetByTokenID retrieves the market owning the given outcome token.
func (s *MarketStore) GetByTokenID(ctx context.Context, tokenID string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketSelectCols+` FROM markets
		 WHERE token_id_0 = $1 OR token_id_1 = $1`, tokenID)

	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market by token %s: %w", tokenID, err)
	}
	return m, nil
}

// ListActive returns active markets ordered by volume, with pagination.
func (s *MarketStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketSelectCols + ` FROM markets WHERE status = 'active'`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND updated_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}

	query += " ORDER BY volume DESC, id"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list active markets: %w", err)
	}
	return markets, nil
}

// Count returns the total number of stored markets.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM markets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return n, nil
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
