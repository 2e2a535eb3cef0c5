package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manacity/address-service/internal/domain"
	apperrors "github.com/manacity/address-service/pkg/errors"
)

func newAddressTestFixture(t *testing.T) (*AddressRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	repo := NewAddressRepository(mock)
	return repo, mock
}

func sampleAddress() *domain.Address {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Address{
		ID:          "addr-1",
		UserID:      "u-1234",
		Label:       "Home",
		Line1:       "12 MG Road",
		Line2:       "2nd Floor",
		City:        "Bengaluru",
		State:       "Karnataka",
		Pincode:     "560001",
		IsDefault:   true,
		Fingerprint: domain.Fingerprint("12 MG Road", "2nd Floor", "Bengaluru", "Karnataka", "560001"),
		LastUsedAt:  now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func addressCols() []string {
	return []string{
		"id", "user_id", "label", "line1", "line2", "city", "state",
		"pincode", "lat", "lng", "is_default", "fingerprint",
		"last_used_at", "created_at", "updated_at",
	}
}

func addressRow(a *domain.Address) *pgxmock.Rows {
	return pgxmock.NewRows(addressCols()).AddRow(
		a.ID, a.UserID, a.Label, a.Line1, a.Line2, a.City, a.State,
		a.Pincode, a.Lat, a.Lng, a.IsDefault, a.Fingerprint,
		a.LastUsedAt, a.CreatedAt, a.UpdatedAt,
	)
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestAddressRepository_Create_Success(t *testing.T) {
	repo, mock := newAddressTestFixture(t)
	defer mock.Close()

	a := sampleAddress()

	mock.ExpectExec("INSERT INTO addresses").
		WithArgs(
			a.ID, a.UserID, a.Label, a.Line1, a.Line2, a.City, a.State,
			a.Pincode, a.Lat, a.Lng, a.IsDefault, a.Fingerprint,
			a.LastUsedAt, a.CreatedAt, a.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Create(context.Background(), a)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddressRepository_Create_UniqueViolation(t *testing.T) {
	repo, mock := newAddressTestFixture(t)
	defer mock.Close()

	a := sampleAddress()

	mock.ExpectExec("INSERT INTO addresses").
		WithArgs(
			a.ID, a.UserID, a.Label, a.Line1, a.Line2, a.City, a.State,
			a.Pincode, a.Lat, a.Lng, a.IsDefault, a.Fingerprint,
			a.LastUsedAt, a.CreatedAt, a.UpdatedAt,
		).
		WillReturnError(errors.New(`ERROR: duplicate key value violates unique constraint "addresses_user_fingerprint_key" (SQLSTATE 23505)`))

	err := repo.Create(context.Background(), a)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyExists))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// GetByID / GetByFingerprint
// ---------------------------------------------------------------------------

func TestAddressRepository_GetByID_Success(t *testing.T) {
	repo, mock := newAddressTestFixture(t)
	defer mock.Close()

	a := sampleAddress()

	mock.ExpectQuery("SELECT .+ FROM addresses WHERE id =").
		WithArgs(a.ID).
		WillReturnRows(addressRow(a))

	got, err := repo.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, a.Fingerprint, got.Fingerprint)
	assert.Equal(t, a.IsDefault, got.IsDefault)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddressRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := newAddressTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM addresses WHERE id =").
		WithArgs("missing-addr").
		WillReturnError(pgx.ErrNoRows)

	got, err := repo.GetByID(context.Background(), "missing-addr")
	assert.Nil(t, got)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddressRepository_GetByFingerprint_Success(t *testing.T) {
	repo, mock := newAddressTestFixture(t)
	defer mock.Close()

	a := sampleAddress()

	mock.ExpectQuery("SELECT .+ FROM addresses WHERE user_id = .+ AND fingerprint =").
		WithArgs(a.UserID, a.Fingerprint).
		WillReturnRows(addressRow(a))

	got, err := repo.GetByFingerprint(context.Background(), a.UserID, a.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddressRepository_GetByFingerprint_NotFound(t *testing.T) {
	repo, mock := newAddressTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM addresses WHERE user_id = .+ AND fingerprint =").
		WithArgs("u-1234", "no|such|place|ka|000000").
		WillReturnError(pgx.ErrNoRows)

	got, err := repo.GetByFingerprint(context.Background(), "u-1234", "no|such|place|ka|000000")
	assert.Nil(t, got)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// ListByUserID
// ---------------------------------------------------------------------------

func TestAddressRepository_ListByUserID_Success(t *testing.T) {
	repo, mock := newAddressTestFixture(t)
	defer mock.Close()

	a1 := sampleAddress()
	a2 := sampleAddress()
	a2.ID = "addr-2"
	a2.Label = "Work"
	a2.Line1 = "88 Residency Road"
	a2.IsDefault = false
	a2.Fingerprint = domain.Fingerprint("88 Residency Road", "", "Bengaluru", "Karnataka", "560025")

	rows := pgxmock.NewRows(addressCols()).
		AddRow(
			a1.ID, a1.UserID, a1.Label, a1.Line1, a1.Line2, a1.City, a1.State,
			a1.Pincode, a1.Lat, a1.Lng, a1.IsDefault, a1.Fingerprint,
			a1.LastUsedAt, a1.CreatedAt, a1.UpdatedAt,
		).
		AddRow(
			a2.ID, a2.UserID, a2.Label, a2.Line1, a2.Line2, a2.City, a2.State,
			a2.Pincode, a2.Lat, a2.Lng, a2.IsDefault, a2.Fingerprint,
			a2.LastUsedAt, a2.CreatedAt, a2.UpdatedAt,
		)

	mock.ExpectQuery("SELECT .+ FROM addresses WHERE user_id = .+ ORDER BY is_default DESC, last_used_at DESC, updated_at DESC").
		WithArgs("u-1234").
		WillReturnRows(rows)

	got, err := repo.ListByUserID(context.Background(), "u-1234")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "addr-1", got[0].ID)
	assert.Equal(t, "addr-2", got[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddressRepository_ListByUserID_Empty(t *testing.T) {
	repo, mock := newAddressTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM addresses WHERE user_id =").
		WithArgs("u-no-addrs").
		WillReturnRows(pgxmock.NewRows(addressCols()))

	got, err := repo.ListByUserID(context.Background(), "u-no-addrs")
	require.NoError(t, err)
	assert.NotNil(t, got, "should return empty slice, not nil")
	assert.Len(t, got, 0)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// Update / Touch
// ---------------------------------------------------------------------------

func TestAddressRepository_Update_Success(t *testing.T) {
	repo, mock := newAddressTestFixture(t)
	defer mock.Close()

	a := sampleAddress()

	mock.ExpectExec("UPDATE addresses").
		WithArgs(
			a.Label, a.Line2, a.Lat, a.Lng, a.IsDefault,
			a.LastUsedAt, pgxmock.AnyArg(), a.ID,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.Update(context.Background(), a)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddressRepository_Update_NotFound(t *testing.T) {
	repo, mock := newAddressTestFixture(t)
	defer mock.Close()

	a := sampleAddress()
	a.ID = "nonexistent"

	mock.ExpectExec("UPDATE addresses").
		WithArgs(
			a.Label, a.Line2, a.Lat, a.Lng, a.IsDefault,
			a.LastUsedAt, pgxmock.AnyArg(), a.ID,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Update(context.Background(), a)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddressRepository_Touch_Success(t *testing.T) {
	repo, mock := newAddressTestFixture(t)
	defer mock.Close()

	at := time.Now().UTC().Truncate(time.Microsecond)

	mock.ExpectExec("UPDATE addresses SET last_used_at =").
		WithArgs(at, "addr-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.Touch(context.Background(), "addr-1", at)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddressRepository_Touch_NotFound(t *testing.T) {
	repo, mock := newAddressTestFixture(t)
	defer mock.Close()

	at := time.Now().UTC()

	mock.ExpectExec("UPDATE addresses SET last_used_at =").
		WithArgs(at, "missing-addr").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Touch(context.Background(), "missing-addr", at)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// CountByUserID
// ---------------------------------------------------------------------------

func TestAddressRepository_CountByUserID(t *testing.T) {
	repo, mock := newAddressTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("u-1234").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountByUserID(context.Background(), "u-1234")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// ClearDefaultExcept / SetDefault
// ---------------------------------------------------------------------------

func TestAddressRepository_ClearDefaultExcept(t *testing.T) {
	repo, mock := newAddressTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE addresses SET is_default = false WHERE user_id =").
		WithArgs("u-1234", "addr-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	err := repo.ClearDefaultExcept(context.Background(), "u-1234", "addr-1")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddressRepository_SetDefault_Success(t *testing.T) {
	repo, mock := newAddressTestFixture(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE addresses SET is_default = false WHERE user_id =").
		WithArgs("u-1234").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE addresses SET is_default = true WHERE id =").
		WithArgs("addr-2", "u-1234").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := repo.SetDefault(context.Background(), "u-1234", "addr-2")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddressRepository_SetDefault_NotFound(t *testing.T) {
	repo, mock := newAddressTestFixture(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE addresses SET is_default = false WHERE user_id =").
		WithArgs("u-1234").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec("UPDATE addresses SET is_default = true WHERE id =").
		WithArgs("addr-missing", "u-1234").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := repo.SetDefault(context.Background(), "u-1234", "addr-missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
