package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

// SettingsStore implements domain.SettingsStore using PostgreSQL. Global
// settings live in the single row of market_settings.
type SettingsStore struct {
	pool *pgxpool.Pool
}

// NewSettingsStore creates a new SettingsStore backed by the given connection pool.
func NewSettingsStore(pool *pgxpool.Pool) *SettingsStore {
	return &SettingsStore{pool: pool}
}

func (s *SettingsStore) EnsureDefaults(ctx context.Context, def domain.Settings) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO market_settings (id, paused, bidding_duration_ms)
		 VALUES (1, $1, $2) ON CONFLICT (id) DO NOTHING`,
		def.Paused, def.BiddingDuration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("postgres: ensure settings: %w", err)
	}
	return nil
}

func (s *SettingsStore) Get(ctx context.Context) (domain.Settings, error) {
	var st domain.Settings
	var ms int64
	err := s.pool.QueryRow(ctx,
		`SELECT paused, bidding_duration_ms FROM market_settings WHERE id = 1`,
	).Scan(&st.Paused, &ms)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Settings{}, fmt.Errorf("postgres: settings: %w", domain.ErrNotFound)
		}
		return domain.Settings{}, fmt.Errorf("postgres: get settings: %w", err)
	}
	st.BiddingDuration = time.Duration(ms) * time.Millisecond
	return st, nil
}

func (s *SettingsStore) SetPaused(ctx context.Context, paused bool) error {
	return s.update(ctx, `UPDATE market_settings SET paused = $1, updated_at = NOW() WHERE id = 1`, paused)
}

func (s *SettingsStore) SetBiddingDuration(ctx context.Context, d time.Duration) error {
	return s.update(ctx, `UPDATE market_settings SET bidding_duration_ms = $1, updated_at = NOW() WHERE id = 1`, d.Milliseconds())
}

func (s *SettingsStore) update(ctx context.Context, query string, arg any) error {
	tag, err := s.pool.Exec(ctx, query, arg)
	if err != nil {
		return fmt.Errorf("postgres: update settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: settings: %w", domain.ErrNotFound)
	}
	return nil
}

func (s *SettingsStore) GetMedium(ctx context.Context, addr common.Address) (domain.Medium, error) {
	var m domain.Medium
	var address string
	err := s.pool.QueryRow(ctx,
		`SELECT address, symbol, decimals, enabled FROM payment_media WHERE address = $1`, hexAddr(addr),
	).Scan(&address, &m.Symbol, &m.Decimals, &m.Enabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Medium{}, fmt.Errorf("postgres: medium %s: %w", addr.Hex(), domain.ErrNotFound)
		}
		return domain.Medium{}, fmt.Errorf("postgres: get medium %s: %w", addr.Hex(), err)
	}
	m.Address = parseAddr(address)
	return m, nil
}

func (s *SettingsStore) UpsertMedium(ctx context.Context, m domain.Medium) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO payment_media (address, symbol, decimals, enabled)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (address) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			decimals = EXCLUDED.decimals,
			enabled = EXCLUDED.enabled,
			updated_at = NOW()`,
		hexAddr(m.Address), m.Symbol, m.Decimals, m.Enabled,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert medium %s: %w", m.Address.Hex(), err)
	}
	return nil
}

func (s *SettingsStore) ListMedia(ctx context.Context) ([]domain.Medium, error) {
	rows, err := s.pool.Query(ctx, `SELECT address, symbol, decimals, enabled FROM payment_media ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list media: %w", err)
	}
	defer rows.Close()

	var out []domain.Medium
	for rows.Next() {
		var m domain.Medium
		var address string
		if err := rows.Scan(&address, &m.Symbol, &m.Decimals, &m.Enabled); err != nil {
			return nil, fmt.Errorf("postgres: scan medium: %w", err)
		}
		m.Address = parseAddr(address)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list media rows: %w", err)
	}
	return out, nil
}
