package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"payment-gateway/models"
	"payment-gateway/outbox"
)

const paymentColumns = "id, reference, amount, currency, email, status, provider, provider_reference, authorization_url, metadata, error, paid_at, verified_at, created_at, updated_at"

// Postgres stores records in the payments table and writes an outbox row in
// the same transaction as every change.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Create(ctx context.Context, rec *models.PaymentRecord) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(
		ctx,
		"INSERT INTO payments ("+paymentColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)",
		rec.ID, rec.Reference, rec.Amount, string(rec.Currency), rec.Email, string(rec.Status), rec.Provider,
		rec.ProviderReference, rec.AuthorizationURL, metadataOrEmpty(rec.Metadata), rec.Error,
		rec.PaidAt, rec.VerifiedAt, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateReference
		}
		return fmt.Errorf("insert payment: %w", err)
	}

	if err := outbox.Insert(ctx, tx, outbox.EventPaymentCreated, rec); err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}
	return tx.Commit(ctx)
}

func (p *Postgres) FindByID(ctx context.Context, id string) (*models.PaymentRecord, error) {
	return p.findOne(ctx, "SELECT "+paymentColumns+" FROM payments WHERE id = $1", id)
}

func (p *Postgres) FindByReference(ctx context.Context, reference string) (*models.PaymentRecord, error) {
	return p.findOne(ctx, "SELECT "+paymentColumns+" FROM payments WHERE reference = $1", reference)
}

func (p *Postgres) findOne(ctx context.Context, query string, arg any) (*models.PaymentRecord, error) {
	rec, err := scanPayment(p.pool.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (p *Postgres) Update(ctx context.Context, id string, u Update) (*models.PaymentRecord, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var status *string
	if u.Status != nil {
		s := string(*u.Status)
		status = &s
	}
	expectNot := make([]string, len(u.ExpectNot))
	for i, s := range u.ExpectNot {
		expectNot[i] = string(s)
	}

	rec, err := scanPayment(tx.QueryRow(
		ctx,
		`UPDATE payments SET
			status = COALESCE($2, status),
			provider_reference = COALESCE($3, provider_reference),
			authorization_url = COALESCE($4, authorization_url),
			error = COALESCE($5, error),
			paid_at = COALESCE($6, paid_at),
			verified_at = COALESCE($7, verified_at),
			updated_at = $8
		WHERE id = $1 AND status <> ALL($9::text[])
		RETURNING `+paymentColumns,
		id, status, u.ProviderReference, u.AuthorizationURL, u.Error, u.PaidAt, u.VerifiedAt, time.Now().UTC(), expectNot,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		// Nothing matched: either the id is unknown or the guard rejected.
		var exists bool
		if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM payments WHERE id = $1)", id).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrNotFound
		}
		return nil, ErrStatusConflict
	}
	if err != nil {
		return nil, fmt.Errorf("update payment: %w", err)
	}

	if err := outbox.Insert(ctx, tx, outbox.EventPaymentUpdated, rec); err != nil {
		return nil, fmt.Errorf("insert outbox message: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return rec, nil
}

func (p *Postgres) List(ctx context.Context, filter models.ListFilter, limit, skip int) ([]*models.PaymentRecord, int64, error) {
	const where = " WHERE ($1 = '' OR status = $1) AND ($2 = '' OR email = $2)"
	status, email := string(filter.Status), filter.Email

	var total int64
	if err := p.pool.QueryRow(ctx, "SELECT count(*) FROM payments"+where, status, email).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}

	rows, err := p.pool.Query(
		ctx,
		"SELECT "+paymentColumns+" FROM payments"+where+" ORDER BY created_at DESC LIMIT $3 OFFSET $4",
		status, email, limit, skip,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []*models.PaymentRecord
	for rows.Next() {
		rec, err := scanPayment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

func (p *Postgres) Close(context.Context) error {
	p.pool.Close()
	return nil
}

func scanPayment(row pgx.Row) (*models.PaymentRecord, error) {
	var (
		rec              models.PaymentRecord
		currency, status string
	)
	err := row.Scan(
		&rec.ID, &rec.Reference, &rec.Amount, &currency, &rec.Email, &status, &rec.Provider,
		&rec.ProviderReference, &rec.AuthorizationURL, &rec.Metadata, &rec.Error,
		&rec.PaidAt, &rec.VerifiedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Currency = models.Currency(currency)
	rec.Status = models.Status(status)
	return &rec, nil
}

func metadataOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

var _ PaymentStore = (*Postgres)(nil)
