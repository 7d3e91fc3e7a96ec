package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create inserts o and returns it with the identifier allocated by the
// orders sequence. Sequence values are never handed out twice.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) (domain.Order, error) {
	var expiresAt *time.Time
	if !o.ExpiresAt.IsZero() {
		expiresAt = &o.ExpiresAt
	}

	const query = `
		INSERT INTO orders (
			asset_contract, asset_id, asset_amount, asset_kind,
			payment_medium, base_price, bid_increment, kind,
			seller, listed_at, expires_at
		) VALUES (
			$1, $2::TEXT::NUMERIC, $3::TEXT::NUMERIC, $4,
			$5, $6::TEXT::NUMERIC, $7::TEXT::NUMERIC, $8,
			$9, $10, $11
		)
		RETURNING ` + orderSelectCols

	row := s.pool.QueryRow(ctx, query,
		hexAddr(o.AssetContract), numeric(o.AssetID), numeric(o.AssetAmount), string(o.AssetKind),
		hexAddr(o.PaymentMedium), numeric(o.BasePrice), numeric(o.BidIncrement), string(o.Kind),
		hexAddr(o.Seller), o.ListedAt, expiresAt,
	)
	stored, err := scanOrder(row)
	if err != nil {
		return domain.Order{}, fmt.Errorf("postgres: create order: %w", err)
	}
	return stored, nil
}

// GetByID retrieves a single order by ID.
func (s *OrderStore) GetByID(ctx context.Context, id uint64) (domain.Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderSelectCols+` FROM orders WHERE id = $1`, int64(id))
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, fmt.Errorf("postgres: order %d: %w", id, domain.ErrNotFound)
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %d: %w", id, err)
	}
	return o, nil
}

// Close writes the closure of an open order and applies credits in one
// transaction.
func (s *OrderStore) Close(ctx context.Context, id uint64, c domain.Closure, credits []domain.Credit) (domain.Order, error) {
	var closed domain.Order
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		const query = `
			UPDATE orders
			SET closed_at = $2, outcome = $3, buyer = $4, settled_price = $5::TEXT::NUMERIC
			WHERE id = $1 AND closed_at IS NULL
			RETURNING ` + orderSelectCols

		row := tx.QueryRow(ctx, query, int64(id), c.ClosedAt, string(c.Outcome), optAddr(c.Buyer), optNumeric(c.SettledPrice))
		o, err := scanOrder(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return missingOrClosed(ctx, tx, id)
		}
		if err != nil {
			return err
		}
		if err := applyCredits(ctx, tx, credits); err != nil {
			return err
		}
		closed = o
		return nil
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("postgres: close order %d: %w", id, err)
	}
	return closed, nil
}

// missingOrClosed explains why an update matched no open order.
func missingOrClosed(ctx context.Context, tx pgx.Tx, id uint64) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, int64(id)).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrAlreadyClosed
}

// ListOpen returns open orders in ascending id order.
func (s *OrderStore) ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error) {
	return s.list(ctx, "closed_at IS NULL", opts)
}

// ListAll returns every order in ascending id order.
func (s *OrderStore) ListAll(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error) {
	return s.list(ctx, "TRUE", opts)
}

func (s *OrderStore) list(ctx context.Context, where string, opts domain.ListOpts) ([]domain.Order, error) {
	query, args := paged(`SELECT `+orderSelectCols+` FROM orders WHERE `+where, nil, "listed_at", "id ASC", opts)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan orders: %w", err)
	}
	return orders, nil
}

// CountOpen returns the number of open orders.
func (s *OrderStore) CountOpen(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE closed_at IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count open orders: %w", err)
	}
	return n, nil
}

// ListClosed returns orders closed in [since, until), oldest first.
func (s *OrderStore) ListClosed(ctx context.Context, since, until time.Time) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 WHERE closed_at >= $1 AND closed_at < $2
		 ORDER BY closed_at ASC, id ASC`, since, until)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed orders: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed orders: %w", err)
	}
	return orders, nil
}

const orderSelectCols = `id, asset_contract, asset_id::TEXT, asset_amount::TEXT, asset_kind,
	payment_medium, base_price::TEXT, bid_increment::TEXT, kind,
	seller, listed_at, expires_at, closed_at, highest_bid_count,
	outcome, buyer, settled_price::TEXT`

func scanOrder(scanner interface{ Scan(dest ...any) error }) (domain.Order, error) {
	var o domain.Order
	var id int64
	var contract, medium, seller, buyer string
	var assetID, assetAmount, basePrice, incr string
	var assetKind, kind, outcome string
	var expiresAt, closedAt *time.Time
	var bidCount int32
	var settled *string

	err := scanner.Scan(
		&id, &contract, &assetID, &assetAmount, &assetKind,
		&medium, &basePrice, &incr, &kind,
		&seller, &o.ListedAt, &expiresAt, &closedAt, &bidCount,
		&outcome, &buyer, &settled,
	)
	if err != nil {
		return domain.Order{}, err
	}

	o.ID = uint64(id)
	o.AssetContract = parseAddr(contract)
	o.PaymentMedium = parseAddr(medium)
	o.Seller = parseAddr(seller)
	o.Buyer = parseAddr(buyer)
	o.AssetKind = domain.AssetKind(assetKind)
	o.Kind = domain.OrderKind(kind)
	o.Outcome = domain.Outcome(outcome)
	o.HighestBidCount = uint32(bidCount)
	if expiresAt != nil {
		o.ExpiresAt = *expiresAt
	}
	if closedAt != nil {
		o.ClosedAt = *closedAt
	}

	if o.AssetID, err = parseNumeric(assetID); err != nil {
		return domain.Order{}, err
	}
	if o.AssetAmount, err = parseNumeric(assetAmount); err != nil {
		return domain.Order{}, err
	}
	if o.BasePrice, err = parseNumeric(basePrice); err != nil {
		return domain.Order{}, err
	}
	if o.BidIncrement, err = parseNumeric(incr); err != nil {
		return domain.Order{}, err
	}
	if o.SettledPrice, err = parseOptNumeric(settled); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func scanOrderRows(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
