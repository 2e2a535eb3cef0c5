package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/manacity/address-service/internal/domain"
	"github.com/manacity/address-service/internal/event"
	"github.com/manacity/address-service/internal/repository"
	apperrors "github.com/manacity/address-service/pkg/errors"
)

// defaultCaptureLabel names addresses captured from checkout shipping details
// when the payload carries neither a label nor a recipient name.
const defaultCaptureLabel = "Delivery address"

// ListCache caches rendered address lists per user. Implemented by the Redis
// repository; a nil cache disables caching entirely.
type ListCache interface {
	Get(ctx context.Context, userID string) ([]domain.AddressResponse, error)
	Set(ctx context.Context, userID string, addresses []domain.AddressResponse) error
	Invalidate(ctx context.Context, userID string) error
}

// AddressService implements the business logic for the address book:
// fingerprint-keyed deduplication, the single-default invariant, and
// opportunistic capture from checkout shipping details.
type AddressService struct {
	repo     repository.AddressRepository
	cache    ListCache
	producer *event.Producer
	logger   *slog.Logger
}

// NewAddressService creates a new address service.
func NewAddressService(
	repo repository.AddressRepository,
	cache ListCache,
	producer *event.Producer,
	logger *slog.Logger,
) *AddressService {
	return &AddressService{
		repo:     repo,
		cache:    cache,
		producer: producer,
		logger:   logger,
	}
}

// CreateAddressInput holds the parameters for saving an address.
type CreateAddressInput struct {
	Label     string
	Line1     string
	Line2     string
	City      string
	State     string
	Pincode   string
	Lat       *float64
	Lng       *float64
	IsDefault bool
}

// ShippingInput holds the shipping details submitted during checkout.
type ShippingInput struct {
	ReferenceID string
	Label       string
	Name        string
	Line1       string
	Line2       string
	City        string
	State       string
	Pincode     string
	Lat         *float64
	Lng         *float64
}

// sanitizeAddress validates the input and builds a persistable record:
// required fields checked post-trim, non-finite coordinates dropped silently,
// fingerprint computed, lastUsedAt stamped. Pure; no storage access.
func sanitizeAddress(userID string, input CreateAddressInput, now time.Time) (*domain.Address, error) {
	label := strings.TrimSpace(input.Label)
	line1 := strings.TrimSpace(input.Line1)
	line2 := strings.TrimSpace(input.Line2)
	city := strings.TrimSpace(input.City)
	state := strings.TrimSpace(input.State)
	pincode := strings.TrimSpace(input.Pincode)

	if len(label) < 2 || len(label) > 120 {
		return nil, apperrors.InvalidAddress("label must be 2-120 characters")
	}
	if len(line1) < 3 || len(line1) > 200 {
		return nil, apperrors.InvalidAddress("line1 must be 3-200 characters")
	}
	if len(line2) > 200 {
		return nil, apperrors.InvalidAddress("line2 must be at most 200 characters")
	}
	if len(city) < 2 || len(city) > 120 {
		return nil, apperrors.InvalidAddress("city must be 2-120 characters")
	}
	if len(state) < 2 || len(state) > 120 {
		return nil, apperrors.InvalidAddress("state must be 2-120 characters")
	}
	if len(pincode) < 3 || len(pincode) > 20 {
		return nil, apperrors.InvalidAddress("pincode must be 3-20 characters")
	}

	return &domain.Address{
		ID:          uuid.New().String(),
		UserID:      userID,
		Label:       label,
		Line1:       line1,
		Line2:       line2,
		City:        city,
		State:       state,
		Pincode:     pincode,
		Lat:         finiteOrNil(input.Lat),
		Lng:         finiteOrNil(input.Lng),
		IsDefault:   input.IsDefault,
		Fingerprint: domain.Fingerprint(line1, line2, city, state, pincode),
		LastUsedAt:  now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// CreateOrUpdate saves an address with upsert semantics keyed on the
// (user, fingerprint) uniqueness constraint: a duplicate submission of the
// same location converges onto the existing record instead of erroring.
func (s *AddressService) CreateOrUpdate(ctx context.Context, userID string, input CreateAddressInput) (*domain.Address, error) {
	address, err := sanitizeAddress(userID, input, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	err = s.repo.Create(ctx, address)
	if err == nil {
		if input.IsDefault {
			if err := s.repo.ClearDefaultExcept(ctx, userID, address.ID); err != nil {
				s.logger.ErrorContext(ctx, "failed to sweep default addresses",
					slog.String("address_id", address.ID),
					slog.String("error", err.Error()),
				)
			}
		} else if count, err := s.repo.CountByUserID(ctx, userID); err == nil && count == 1 {
			// First address a user saves becomes the default.
			address.IsDefault = true
			if err := s.repo.Update(ctx, address); err != nil {
				s.logger.ErrorContext(ctx, "failed to promote first address to default",
					slog.String("address_id", address.ID),
					slog.String("error", err.Error()),
				)
				address.IsDefault = false
			}
		}

		s.invalidateList(ctx, userID)
		s.publish(ctx, s.producer.PublishAddressCreated, address)

		s.logger.InfoContext(ctx, "address created",
			slog.String("user_id", userID),
			slog.String("address_id", address.ID),
		)

		return address, nil
	}

	if !errors.Is(err, apperrors.ErrAlreadyExists) {
		return nil, fmt.Errorf("create address: %w", err)
	}

	// Same location already saved: refresh the existing record rather than
	// surfacing the uniqueness violation.
	existing, err := s.repo.GetByFingerprint(ctx, userID, address.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("load address after uniqueness conflict: %w", err)
	}

	existing.Label = address.Label
	existing.Line2 = address.Line2
	existing.Lat = address.Lat
	existing.Lng = address.Lng
	existing.LastUsedAt = address.LastUsedAt
	if input.IsDefault {
		existing.IsDefault = true
	}

	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, fmt.Errorf("update matched address: %w", err)
	}

	if input.IsDefault {
		if err := s.repo.ClearDefaultExcept(ctx, userID, existing.ID); err != nil {
			s.logger.ErrorContext(ctx, "failed to sweep default addresses",
				slog.String("address_id", existing.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.invalidateList(ctx, userID)
	s.publish(ctx, s.producer.PublishAddressUpdated, existing)

	s.logger.InfoContext(ctx, "address matched and refreshed",
		slog.String("user_id", userID),
		slog.String("address_id", existing.ID),
	)

	return existing, nil
}

// List returns the user's addresses rendered for the API, default first, then
// most recently used, then most recently updated.
func (s *AddressService) List(ctx context.Context, userID string) ([]domain.AddressResponse, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.logger.WarnContext(ctx, "address list cache read failed",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}

	addresses, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}

	responses := make([]domain.AddressResponse, 0, len(addresses))
	for i := range addresses {
		responses = append(responses, addresses[i].Response())
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, userID, responses); err != nil {
			s.logger.WarnContext(ctx, "address list cache write failed",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}

	return responses, nil
}

// SetDefault marks the given address as the user's default and clears the
// flag on every sibling.
func (s *AddressService) SetDefault(ctx context.Context, userID, addressID string) (*domain.Address, error) {
	address, err := s.repo.GetByID(ctx, addressID)
	if err != nil {
		return nil, fmt.Errorf("get address for set default: %w", err)
	}

	// Verify ownership.
	if address.UserID != userID {
		return nil, apperrors.NotFound("address", addressID)
	}

	if err := s.repo.SetDefault(ctx, userID, addressID); err != nil {
		return nil, fmt.Errorf("set default address: %w", err)
	}

	now := time.Now().UTC()
	if err := s.repo.Touch(ctx, addressID, now); err != nil {
		s.logger.WarnContext(ctx, "failed to touch default address",
			slog.String("address_id", addressID),
			slog.String("error", err.Error()),
		)
	} else {
		address.LastUsedAt = now
	}
	address.IsDefault = true

	s.invalidateList(ctx, userID)
	if s.producer != nil {
		if err := s.producer.PublishDefaultChanged(ctx, userID, addressID); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish address event",
				slog.String("address_id", addressID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "default address updated",
		slog.String("user_id", userID),
		slog.String("address_id", addressID),
	)

	return address, nil
}

// CaptureFromShipping opportunistically saves or refreshes an address from
// checkout shipping details. A nil, nil return means the details were not
// address-shaped enough to persist; checkout proceeds without a saved address.
func (s *AddressService) CaptureFromShipping(ctx context.Context, userID string, input ShippingInput) (*domain.Address, error) {
	if input.ReferenceID != "" {
		address, err := s.repo.GetByID(ctx, input.ReferenceID)
		if err == nil && address.UserID == userID {
			now := time.Now().UTC()
			if err := s.repo.Touch(ctx, address.ID, now); err != nil {
				return nil, fmt.Errorf("touch referenced address: %w", err)
			}
			address.LastUsedAt = now
			s.invalidateList(ctx, userID)
			return address, nil
		}
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("resolve referenced address: %w", err)
		}
		// Stale or foreign reference: fall through to the fingerprint path.
	}

	label := strings.TrimSpace(input.Label)
	if label == "" {
		label = strings.TrimSpace(input.Name)
	}
	if label == "" {
		label = defaultCaptureLabel
	}

	address, err := s.CreateOrUpdate(ctx, userID, CreateAddressInput{
		Label:   label,
		Line1:   input.Line1,
		Line2:   input.Line2,
		City:    input.City,
		State:   input.State,
		Pincode: input.Pincode,
		Lat:     input.Lat,
		Lng:     input.Lng,
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			// Shipping details too sparse to save; not a checkout failure.
			s.logger.DebugContext(ctx, "skipped address capture from shipping",
				slog.String("user_id", userID),
				slog.String("reason", err.Error()),
			)
			return nil, nil
		}
		return nil, err
	}

	return address, nil
}

// publish sends a domain event and logs delivery failures without failing the
// calling operation.
func (s *AddressService) publish(ctx context.Context, fn func(context.Context, *domain.Address) error, a *domain.Address) {
	if s.producer == nil {
		return
	}
	if err := fn(ctx, a); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish address event",
			slog.String("address_id", a.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *AddressService) invalidateList(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.logger.WarnContext(ctx, "address list cache invalidation failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

func finiteOrNil(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return v
}
