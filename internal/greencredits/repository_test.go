package greencredits

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decimalArg matches a decimal argument by value, ignoring scale
type decimalArg struct {
	want decimal.Decimal
}

func (a decimalArg) Match(v driver.Value) bool {
	var raw string
	switch x := v.(type) {
	case string:
		raw = x
	case []byte:
		raw = string(x)
	default:
		return false
	}
	got, err := decimal.NewFromString(raw)
	return err == nil && got.Equal(a.want)
}

func dec(s string) decimalArg {
	return decimalArg{want: decimal.RequireFromString(s)}
}

func newMockRepo(t *testing.T) (*postgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	fixed := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	repo := &postgresRepository{
		db:  sqlx.NewDb(db, "postgres"),
		now: func() time.Time { return fixed },
	}
	return repo, mock
}

func q(query string) string {
	return regexp.QuoteMeta(query)
}

func TestSettleExhaustsPoolButCreditsUserFully(t *testing.T) {
	repo, mock := newMockRepo(t)
	userID, claimID, poolID, corpID := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(q(queryLockBalance)).WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"green_credits"}).AddRow("5000.00"))
	mock.ExpectQuery(q(queryLockActivePool)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "corporate_id", "remaining_amount"}).
			AddRow(poolID.String(), corpID.String(), "2000.00"))
	mock.ExpectExec(q(queryDrawPool)).
		WithArgs(poolID, dec("0"), "EXHAUSTED", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q(queryFinalizeClaim)).
		WithArgs(claimID, sqlmock.AnyArg(), true, dec("2500"), poolID, "APPROVED", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q(queryDebitUser)).
		WithArgs(userID, dec("2500"), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	out, err := repo.Settle(context.Background(), SettleParams{
		ClaimID:      claimID,
		UserID:       userID,
		ProductPrice: decimal.NewFromInt(2500),
		Approved:     true,
		Verification: []byte(`{"isGreenProduct":true}`),
	})

	require.NoError(t, err)
	assert.True(t, out.CreditsRedeemed.Equal(decimal.NewFromInt(2500)))
	assert.True(t, out.NewBalance.Equal(decimal.NewFromInt(2500)))
	require.NotNil(t, out.FundingID)
	assert.Equal(t, poolID, *out.FundingID)
	assert.Equal(t, corpID, *out.CorporateID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettleRedeemsAtMostTheBalance(t *testing.T) {
	repo, mock := newMockRepo(t)
	userID, claimID, poolID := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(q(queryLockBalance)).WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"green_credits"}).AddRow("15000.00"))
	mock.ExpectQuery(q(queryLockActivePool)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "corporate_id", "remaining_amount"}).
			AddRow(poolID.String(), uuid.New().String(), "100000.00"))
	mock.ExpectExec(q(queryDrawPool)).
		WithArgs(poolID, dec("85000"), "ACTIVE", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q(queryFinalizeClaim)).
		WithArgs(claimID, sqlmock.AnyArg(), true, dec("15000"), poolID, "APPROVED", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q(queryDebitUser)).
		WithArgs(userID, dec("0"), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	out, err := repo.Settle(context.Background(), SettleParams{
		ClaimID:      claimID,
		UserID:       userID,
		ProductPrice: decimal.NewFromInt(1450000),
		Approved:     true,
	})

	require.NoError(t, err)
	assert.True(t, out.CreditsRedeemed.Equal(decimal.NewFromInt(15000)))
	assert.True(t, out.NewBalance.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettleWithoutActivePoolStillApproves(t *testing.T) {
	repo, mock := newMockRepo(t)
	userID, claimID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(q(queryLockBalance)).WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"green_credits"}).AddRow("800"))
	mock.ExpectQuery(q(queryLockActivePool)).WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(q(queryFinalizeClaim)).
		WithArgs(claimID, sqlmock.AnyArg(), true, dec("300"), nil, "APPROVED", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q(queryDebitUser)).
		WithArgs(userID, dec("500"), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	out, err := repo.Settle(context.Background(), SettleParams{
		ClaimID:      claimID,
		UserID:       userID,
		ProductPrice: decimal.NewFromInt(300),
		Approved:     true,
	})

	require.NoError(t, err)
	assert.Nil(t, out.FundingID)
	assert.True(t, out.NewBalance.Equal(decimal.NewFromInt(500)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettleRejectionLeavesBalance(t *testing.T) {
	repo, mock := newMockRepo(t)
	userID, claimID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(q(queryGetBalance)).WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"green_credits"}).AddRow("5000.00"))
	mock.ExpectExec(q(queryFinalizeClaim)).
		WithArgs(claimID, sqlmock.AnyArg(), false, dec("0"), nil, "REJECTED", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	out, err := repo.Settle(context.Background(), SettleParams{
		ClaimID:      claimID,
		UserID:       userID,
		ProductPrice: decimal.NewFromInt(80000),
		Approved:     false,
	})

	require.NoError(t, err)
	assert.False(t, out.Approved)
	assert.True(t, out.CreditsRedeemed.IsZero())
	assert.True(t, out.NewBalance.Equal(decimal.NewFromInt(5000)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettleIsTerminalOnce(t *testing.T) {
	repo, mock := newMockRepo(t)
	userID, claimID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(q(queryGetBalance)).WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"green_credits"}).AddRow("100"))
	mock.ExpectExec(q(queryFinalizeClaim)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Settle(context.Background(), SettleParams{
		ClaimID:      claimID,
		UserID:       userID,
		ProductPrice: decimal.NewFromInt(10),
	})

	assert.ErrorIs(t, err, ErrClaimAlreadyProcessed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBalanceUnknownUser(t *testing.T) {
	repo, mock := newMockRepo(t)
	userID := uuid.New()

	mock.ExpectQuery(q(queryGetBalance)).WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"green_credits"}))

	_, err := repo.GetBalance(context.Background(), userID)

	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePendingClaim(t *testing.T) {
	repo, mock := newMockRepo(t)
	ref := "uploaded:bill.pdf"
	claim := &Claim{
		UserID:          uuid.New(),
		ProductName:     "Solar Panel 5kW",
		ProductPrice:    decimal.NewFromInt(45000),
		UploadedFileURL: &ref,
	}

	mock.ExpectExec(q(queryInsertClaim)).
		WithArgs(sqlmock.AnyArg(), claim.UserID, "Solar Panel 5kW", dec("45000"), ref, false, dec("0"), "PENDING", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.CreatePendingClaim(context.Background(), claim))
	assert.NotEqual(t, uuid.Nil, claim.ID)
	assert.Equal(t, ClaimStatusPending, claim.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListClaims(t *testing.T) {
	repo, mock := newMockRepo(t)
	userID := uuid.New()
	processed := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "product_name", "product_price", "uploaded_file_url", "ai_verification_result",
		"is_approved", "credits_redeemed", "csr_funding_id", "status", "created_at", "processed_at",
	}).
		AddRow(uuid.New().String(), userID.String(), "iPhone 15", "80000.00", nil,
			[]byte(`{"isGreenProduct":false,"reason":"Not green","productCategory":"Not Eligible","confidence":"medium","verificationMethod":"fallback"}`),
			false, "0.00", nil, "REJECTED", processed, processed).
		AddRow(uuid.New().String(), userID.String(), "Hero e-bike", "30000.00", "uploaded:bill.pdf",
			[]byte("null"), false, "0.00", nil, "PENDING", processed, nil)

	mock.ExpectQuery(q(queryListClaims)).WithArgs(userID).WillReturnRows(rows)

	claims, err := repo.ListClaims(context.Background(), userID)

	require.NoError(t, err)
	require.Len(t, claims, 2)
	assert.Equal(t, ClaimStatusRejected, claims[0].Status)
	rec, err := claims[0].Verification()
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Not Eligible", rec.ProductCategory)

	assert.Nil(t, claims[1].ProcessedAt)
	rec, err = claims[1].Verification()
	assert.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditAddsToBalance(t *testing.T) {
	repo, mock := newMockRepo(t)
	userID := uuid.New()

	mock.ExpectQuery(q(queryCreditUser)).
		WithArgs(userID, dec("250"), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"green_credits"}).AddRow("1250.00"))

	balance, err := repo.Credit(context.Background(), userID, decimal.NewFromInt(250))

	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(1250)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditUnknownUser(t *testing.T) {
	repo, mock := newMockRepo(t)
	userID := uuid.New()

	mock.ExpectQuery(q(queryCreditUser)).
		WithArgs(userID, dec("5"), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"green_credits"}))

	_, err := repo.Credit(context.Background(), userID, decimal.NewFromInt(5))

	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
