package repository

import (
	"context"
	"time"

	"github.com/manacity/address-service/internal/domain"
)

// AddressRepository defines the interface for address persistence operations.
type AddressRepository interface {
	// Create inserts a new address. It returns an already-exists error when
	// the (user, fingerprint) pair is already stored, so callers can convert
	// duplicate submissions into targeted updates.
	Create(ctx context.Context, address *domain.Address) error

	// GetByID retrieves an address by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Address, error)

	// GetByFingerprint retrieves the user's address matching the fingerprint.
	GetByFingerprint(ctx context.Context, userID, fingerprint string) (*domain.Address, error)

	// ListByUserID returns all addresses for the given user, default first,
	// then most recently used, then most recently updated.
	ListByUserID(ctx context.Context, userID string) ([]domain.Address, error)

	// Update persists the mutable fields of an existing address.
	Update(ctx context.Context, address *domain.Address) error

	// Touch refreshes the last-used timestamp of an address.
	Touch(ctx context.Context, id string, at time.Time) error

	// CountByUserID returns how many addresses the user has saved.
	CountByUserID(ctx context.Context, userID string) (int, error)

	// ClearDefaultExcept unsets the default flag on every address owned by
	// the user except the given one. This sweep is the mechanism that keeps
	// the single-default invariant.
	ClearDefaultExcept(ctx context.Context, userID, addressID string) error

	// SetDefault marks the given address as the user's default and unsets any
	// previous default, atomically.
	SetDefault(ctx context.Context, userID, addressID string) error
}
