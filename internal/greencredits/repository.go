package greencredits

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

var (
	ErrUserNotFound          = errors.New("user not found")
	ErrClaimNotFound         = errors.New("claim not found")
	ErrClaimAlreadyProcessed = errors.New("claim already processed")
)

const claimColumns = `id, user_id, product_name, product_price, uploaded_file_url,
	COALESCE(ai_verification_result, 'null'::jsonb) AS ai_verification_result,
	is_approved, credits_redeemed, csr_funding_id, status, created_at, processed_at`

const (
	queryGetUser = `SELECT id, name, email, green_credits, created_at, updated_at FROM users WHERE id = $1`

	queryGetBalance = `SELECT green_credits FROM users WHERE id = $1`

	queryLockBalance = `SELECT green_credits FROM users WHERE id = $1 FOR UPDATE`

	queryInsertClaim = `INSERT INTO green_credit_claims
	(id, user_id, product_name, product_price, uploaded_file_url, is_approved, credits_redeemed, status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	// oldest pool first so draws are reproducible
	queryLockActivePool = `SELECT id, corporate_id, remaining_amount FROM csr_fundings
	WHERE status = 'ACTIVE' AND remaining_amount > 0
	ORDER BY created_at, id
	LIMIT 1
	FOR UPDATE`

	queryDrawPool = `UPDATE csr_fundings SET remaining_amount = $2, status = $3, updated_at = $4 WHERE id = $1`

	queryFinalizeClaim = `UPDATE green_credit_claims
	SET ai_verification_result = $2, is_approved = $3, credits_redeemed = $4, csr_funding_id = $5, status = $6, processed_at = $7
	WHERE id = $1 AND status = 'PENDING'`

	queryDebitUser = `UPDATE users SET green_credits = $2, updated_at = $3 WHERE id = $1`

	queryCreditUser = `UPDATE users SET green_credits = green_credits + $2, updated_at = $3 WHERE id = $1
	RETURNING green_credits`

	queryGetClaim   = `SELECT ` + claimColumns + ` FROM green_credit_claims WHERE id = $1`
	queryListClaims = `SELECT ` + claimColumns + ` FROM green_credit_claims WHERE user_id = $1 ORDER BY created_at DESC`
)

// pool statuses as stored by the csr package
const (
	fundingActive    = "ACTIVE"
	fundingExhausted = "EXHAUSTED"
)

type Repository interface {
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
	CreatePendingClaim(ctx context.Context, claim *Claim) error
	Settle(ctx context.Context, params SettleParams) (*Settlement, error)
	GetClaim(ctx context.Context, id uuid.UUID) (*Claim, error)
	ListClaims(ctx context.Context, userID uuid.UUID) ([]Claim, error)
}

type postgresRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db, now: time.Now}
}

type lockedPool struct {
	ID          uuid.UUID       `db:"id"`
	CorporateID uuid.UUID       `db:"corporate_id"`
	Remaining   decimal.Decimal `db:"remaining_amount"`
}

func (r *postgresRepository) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	var user User
	err := r.db.GetContext(ctx, &user, queryGetUser, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (r *postgresRepository) GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.db.GetContext(ctx, &balance, queryGetBalance, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, ErrUserNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// Credit adds amount to the user's balance and returns the new balance
func (r *postgresRepository) Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.db.GetContext(ctx, &balance, queryCreditUser, userID, amount, r.now())
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, ErrUserNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to credit user: %w", err)
	}
	return balance, nil
}

func (r *postgresRepository) CreatePendingClaim(ctx context.Context, claim *Claim) error {
	if claim.ID == uuid.Nil {
		claim.ID = uuid.New()
	}
	if claim.CreatedAt.IsZero() {
		claim.CreatedAt = r.now()
	}
	claim.Status = ClaimStatusPending
	claim.IsApproved = false
	claim.CreditsRedeemed = decimal.Zero

	_, err := r.db.ExecContext(ctx, queryInsertClaim,
		claim.ID, claim.UserID, claim.ProductName, claim.ProductPrice, claim.UploadedFileURL,
		claim.IsApproved, claim.CreditsRedeemed, claim.Status, claim.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create claim: %w", err)
	}
	return nil
}

// Settle moves a pending claim to its terminal state. Balance, pool and claim
// are updated in one transaction under row locks, so concurrent claims for the
// same user or pool serialize instead of losing updates.
func (r *postgresRepository) Settle(ctx context.Context, p SettleParams) (*Settlement, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin settlement: %w", err)
	}
	defer tx.Rollback()

	now := r.now()
	out := &Settlement{ClaimID: p.ClaimID, Approved: p.Approved, ProcessedAt: now}

	var balance decimal.Decimal
	lockQuery := queryGetBalance
	if p.Approved {
		lockQuery = queryLockBalance
	}
	if err := tx.GetContext(ctx, &balance, lockQuery, p.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}

	redeem := decimal.Zero
	if p.Approved {
		redeem = decimal.Min(p.ProductPrice, balance)
		if redeem.IsNegative() {
			redeem = decimal.Zero
		}
	}

	if redeem.IsPositive() {
		var pool lockedPool
		err := tx.GetContext(ctx, &pool, queryLockActivePool)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// no backing pool; the claim is still honoured
		case err != nil:
			return nil, fmt.Errorf("failed to select funding pool: %w", err)
		default:
			remaining := pool.Remaining.Sub(redeem)
			status := fundingActive
			if !remaining.IsPositive() {
				remaining = decimal.Zero
				status = fundingExhausted
			}
			if _, err := tx.ExecContext(ctx, queryDrawPool, pool.ID, remaining, status, now); err != nil {
				return nil, fmt.Errorf("failed to draw funding pool: %w", err)
			}
			out.FundingID = &pool.ID
			out.CorporateID = &pool.CorporateID
		}
	}

	status := ClaimStatusRejected
	if p.Approved {
		status = ClaimStatusApproved
	}
	res, err := tx.ExecContext(ctx, queryFinalizeClaim,
		p.ClaimID, p.Verification, p.Approved, redeem, out.FundingID, status, now)
	if err != nil {
		return nil, fmt.Errorf("failed to update claim: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("failed to update claim: %w", err)
	} else if n == 0 {
		return nil, ErrClaimAlreadyProcessed
	}

	newBalance := balance
	if redeem.IsPositive() {
		newBalance = balance.Sub(redeem)
		if _, err := tx.ExecContext(ctx, queryDebitUser, p.UserID, newBalance, now); err != nil {
			return nil, fmt.Errorf("failed to debit user: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit settlement: %w", err)
	}

	out.CreditsRedeemed = redeem
	out.NewBalance = newBalance
	return out, nil
}

func (r *postgresRepository) GetClaim(ctx context.Context, id uuid.UUID) (*Claim, error) {
	var claim Claim
	err := r.db.GetContext(ctx, &claim, queryGetClaim, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrClaimNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}
	return &claim, nil
}

func (r *postgresRepository) ListClaims(ctx context.Context, userID uuid.UUID) ([]Claim, error) {
	claims := []Claim{}
	if err := r.db.SelectContext(ctx, &claims, queryListClaims, userID); err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	return claims, nil
}
