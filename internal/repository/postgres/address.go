package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/manacity/address-service/internal/domain"
	apperrors "github.com/manacity/address-service/pkg/errors"
)

// DB is the subset of pgxpool.Pool the repository needs. Satisfied by
// *pgxpool.Pool in production and pgxmock in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const addressColumns = `id, user_id, label, line1, line2, city, state, pincode, lat, lng, is_default, fingerprint, last_used_at, created_at, updated_at`

// AddressRepository implements repository.AddressRepository using PostgreSQL.
type AddressRepository struct {
	db DB
}

// NewAddressRepository creates a new PostgreSQL-backed address repository.
func NewAddressRepository(db DB) *AddressRepository {
	return &AddressRepository{db: db}
}

// Create inserts a new address. The addresses table carries a unique index on
// (user_id, fingerprint); a violation is reported as an already-exists error
// so the service layer can fall back to updating the matched record.
func (r *AddressRepository) Create(ctx context.Context, a *domain.Address) error {
	query := `
		INSERT INTO addresses (` + addressColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := r.db.Exec(ctx, query,
		a.ID,
		a.UserID,
		a.Label,
		a.Line1,
		a.Line2,
		a.City,
		a.State,
		a.Pincode,
		a.Lat,
		a.Lng,
		a.IsDefault,
		a.Fingerprint,
		a.LastUsedAt,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("address", "fingerprint", a.Fingerprint)
		}
		return fmt.Errorf("insert address: %w", err)
	}

	return nil
}

// GetByID retrieves an address by its ID.
func (r *AddressRepository) GetByID(ctx context.Context, id string) (*domain.Address, error) {
	query := `
		SELECT ` + addressColumns + `
		FROM addresses
		WHERE id = $1`

	return r.scanAddress(ctx, query, id)
}

// GetByFingerprint retrieves the user's address matching the fingerprint.
func (r *AddressRepository) GetByFingerprint(ctx context.Context, userID, fingerprint string) (*domain.Address, error) {
	query := `
		SELECT ` + addressColumns + `
		FROM addresses
		WHERE user_id = $1 AND fingerprint = $2`

	return r.scanAddress(ctx, query, userID, fingerprint)
}

// ListByUserID returns all addresses for the given user. The default address
// sorts first, then the most recently used, then the most recently updated.
func (r *AddressRepository) ListByUserID(ctx context.Context, userID string) ([]domain.Address, error) {
	query := `
		SELECT ` + addressColumns + `
		FROM addresses
		WHERE user_id = $1
		ORDER BY is_default DESC, last_used_at DESC, updated_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	defer rows.Close()

	var addresses []domain.Address
	for rows.Next() {
		var a domain.Address
		if err := scanInto(rows, &a); err != nil {
			return nil, fmt.Errorf("scan address row: %w", err)
		}
		addresses = append(addresses, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate address rows: %w", err)
	}

	if addresses == nil {
		addresses = []domain.Address{}
	}

	return addresses, nil
}

// Update persists the mutable fields of an existing address. The fields that
// feed the fingerprint are immutable once stored; a new location is a new row.
func (r *AddressRepository) Update(ctx context.Context, a *domain.Address) error {
	a.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE addresses
		SET label = $1, line2 = $2, lat = $3, lng = $4, is_default = $5,
		    last_used_at = $6, updated_at = $7
		WHERE id = $8`

	ct, err := r.db.Exec(ctx, query,
		a.Label,
		a.Line2,
		a.Lat,
		a.Lng,
		a.IsDefault,
		a.LastUsedAt,
		a.UpdatedAt,
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("update address: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("address", a.ID)
	}

	return nil
}

// Touch refreshes the last-used timestamp of an address.
func (r *AddressRepository) Touch(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE addresses SET last_used_at = $1, updated_at = $1 WHERE id = $2`

	ct, err := r.db.Exec(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("touch address: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("address", id)
	}

	return nil
}

// CountByUserID returns how many addresses the user has saved.
func (r *AddressRepository) CountByUserID(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM addresses WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count addresses: %w", err)
	}
	return count, nil
}

// ClearDefaultExcept unsets the default flag on every address owned by the
// user except the given one.
func (r *AddressRepository) ClearDefaultExcept(ctx context.Context, userID, addressID string) error {
	query := `UPDATE addresses SET is_default = false WHERE user_id = $1 AND id <> $2 AND is_default = true`

	_, err := r.db.Exec(ctx, query, userID, addressID)
	if err != nil {
		return fmt.Errorf("clear default addresses: %w", err)
	}

	return nil
}

// SetDefault marks the specified address as the default for the user,
// unsetting any previous default within a transaction.
func (r *AddressRepository) SetDefault(ctx context.Context, userID, addressID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`UPDATE addresses SET is_default = false WHERE user_id = $1 AND is_default = true`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("unset default address: %w", err)
	}

	ct, err := tx.Exec(ctx,
		`UPDATE addresses SET is_default = true WHERE id = $1 AND user_id = $2`,
		addressID, userID,
	)
	if err != nil {
		return fmt.Errorf("set default address: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("address", addressID)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// scanAddress executes a query expected to return a single address row.
func (r *AddressRepository) scanAddress(ctx context.Context, query string, args ...any) (*domain.Address, error) {
	var a domain.Address
	if err := scanInto(r.db.QueryRow(ctx, query, args...), &a); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan address: %w", err)
	}
	return &a, nil
}

func scanInto(row pgx.Row, a *domain.Address) error {
	return row.Scan(
		&a.ID,
		&a.UserID,
		&a.Label,
		&a.Line1,
		&a.Line2,
		&a.City,
		&a.State,
		&a.Pincode,
		&a.Lat,
		&a.Lng,
		&a.IsDefault,
		&a.Fingerprint,
		&a.LastUsedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
