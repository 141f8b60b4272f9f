package csr

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockGorm(t *testing.T) (Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db, PreferSimpleProtocol: true}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewRepository(gdb), mock
}

func TestMarkExhausted(t *testing.T) {
	repo, mock := newMockGorm(t)

	mock.ExpectExec(`UPDATE "csr_fundings" SET`).
		WithArgs("EXHAUSTED", sqlmock.AnyArg(), "ACTIVE").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.MarkExhausted(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusRequiresExpectedStatus(t *testing.T) {
	repo, mock := newMockGorm(t)
	fundingID := uuid.New()

	mock.ExpectExec(`UPDATE "csr_fundings" SET .* WHERE id = \$3 AND status = \$4`).
		WithArgs("PAUSED", sqlmock.AnyArg(), fundingID.String(), "ACTIVE").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), fundingID, FundingStatusActive, FundingStatusPaused)

	assert.ErrorIs(t, err, ErrStatusTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus(t *testing.T) {
	repo, mock := newMockGorm(t)
	fundingID := uuid.New()

	mock.ExpectExec(`UPDATE "csr_fundings" SET`).
		WithArgs("ACTIVE", sqlmock.AnyArg(), fundingID.String(), "PAUSED").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), fundingID, FundingStatusPaused, FundingStatusActive))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetFundingScopedToCorporate(t *testing.T) {
	repo, mock := newMockGorm(t)

	mock.ExpectQuery(`SELECT \* FROM "csr_fundings" WHERE id = \$1 AND corporate_id = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "corporate_id", "status"}))

	_, err := repo.Get(context.Background(), uuid.New(), uuid.New())

	assert.ErrorIs(t, err, ErrFundingNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedemptionsScan(t *testing.T) {
	repo, mock := newMockGorm(t)
	corporateID, fundingID, userID := uuid.New(), uuid.New(), uuid.New()
	at := time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "user_name", "user_email", "product_name", "product_price",
		"credits_redeemed", "csr_funding_id", "status", "created_at", "processed_at",
	}).AddRow(uuid.New().String(), userID.String(), "Asha Rao", "asha@example.com", "Hero e-bike",
		"30000.00", "5000.00", fundingID.String(), "APPROVED", at, at)

	mock.ExpectQuery(`FROM green_credit_claims c\s+JOIN csr_fundings f`).
		WithArgs(corporateID).
		WillReturnRows(rows)

	out, err := repo.Redemptions(context.Background(), corporateID)

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Asha Rao", out[0].UserName)
	assert.Equal(t, fundingID, out[0].CSRFundingID)
	assert.Equal(t, "5000", out[0].CreditsRedeemed.String())
	require.NotNil(t, out[0].ProcessedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedemptionTotals(t *testing.T) {
	repo, mock := newMockGorm(t)
	corporateID := uuid.New()

	mock.ExpectQuery(`SELECT COUNT\(\*\) AS redemption_count`).
		WithArgs(corporateID).
		WillReturnRows(sqlmock.NewRows([]string{"redemption_count", "total_credits_redeemed"}).AddRow(4, "12500.00"))

	totals, err := repo.RedemptionTotals(context.Background(), corporateID)

	require.NoError(t, err)
	assert.Equal(t, int64(4), totals.Count)
	assert.Equal(t, "12500", totals.Total.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}
