package csr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrFundingNotFound = errors.New("csr funding not found")

const queryRedemptionTotals = `
	SELECT COUNT(*) AS redemption_count,
	       COALESCE(SUM(c.credits_redeemed), 0) AS total_credits_redeemed
	FROM green_credit_claims c
	JOIN csr_fundings f ON f.id = c.csr_funding_id
	WHERE f.corporate_id = ? AND c.status = 'APPROVED'`

const queryRedemptions = `
	SELECT c.id, c.user_id, u.name AS user_name, u.email AS user_email,
	       c.product_name, c.product_price, c.credits_redeemed, c.csr_funding_id,
	       c.status, c.created_at, c.processed_at
	FROM green_credit_claims c
	JOIN csr_fundings f ON f.id = c.csr_funding_id
	JOIN users u ON u.id = c.user_id
	WHERE f.corporate_id = ? AND c.status = 'APPROVED'
	ORDER BY c.created_at DESC`

type Repository interface {
	Create(ctx context.Context, funding *Funding) error
	ListByCorporate(ctx context.Context, corporateID uuid.UUID) ([]Funding, error)
	Get(ctx context.Context, corporateID, fundingID uuid.UUID) (*Funding, error)
	UpdateStatus(ctx context.Context, fundingID uuid.UUID, from, to FundingStatus) error
	RedemptionTotals(ctx context.Context, corporateID uuid.UUID) (*RedemptionTotals, error)
	Redemptions(ctx context.Context, corporateID uuid.UUID) ([]Redemption, error)
	MarkExhausted(ctx context.Context) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, funding *Funding) error {
	if funding.ID == uuid.Nil {
		funding.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(funding).Error; err != nil {
		return fmt.Errorf("failed to create csr funding: %w", err)
	}
	return nil
}

func (r *gormRepository) ListByCorporate(ctx context.Context, corporateID uuid.UUID) ([]Funding, error) {
	var fundings []Funding
	err := r.db.WithContext(ctx).
		Where("corporate_id = ?", corporateID).
		Order("created_at DESC").
		Find(&fundings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list csr fundings: %w", err)
	}
	return fundings, nil
}

// Get scopes the lookup to the corporate so other tenants' pools read as missing
func (r *gormRepository) Get(ctx context.Context, corporateID, fundingID uuid.UUID) (*Funding, error) {
	var funding Funding
	err := r.db.WithContext(ctx).
		Where("id = ? AND corporate_id = ?", fundingID, corporateID).
		First(&funding).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFundingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get csr funding: %w", err)
	}
	return &funding, nil
}

// UpdateStatus applies only while the pool is still in status from, so a
// concurrent settlement that exhausts it wins.
func (r *gormRepository) UpdateStatus(ctx context.Context, fundingID uuid.UUID, from, to FundingStatus) error {
	res := r.db.WithContext(ctx).
		Model(&Funding{}).
		Where("id = ? AND status = ?", fundingID, from).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("failed to update csr funding status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStatusTransition
	}
	return nil
}

func (r *gormRepository) RedemptionTotals(ctx context.Context, corporateID uuid.UUID) (*RedemptionTotals, error) {
	var totals RedemptionTotals
	if err := r.db.WithContext(ctx).Raw(queryRedemptionTotals, corporateID).Scan(&totals).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate redemptions: %w", err)
	}
	return &totals, nil
}

func (r *gormRepository) Redemptions(ctx context.Context, corporateID uuid.UUID) ([]Redemption, error) {
	var out []Redemption
	if err := r.db.WithContext(ctx).Raw(queryRedemptions, corporateID).Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list redemptions: %w", err)
	}
	return out, nil
}

// MarkExhausted flips ACTIVE pools that have nothing left to EXHAUSTED
func (r *gormRepository) MarkExhausted(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&Funding{}).
		Where("status = ? AND remaining_amount <= 0", FundingStatusActive).
		Updates(map[string]interface{}{"status": FundingStatusExhausted, "updated_at": time.Now()})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to reconcile csr fundings: %w", res.Error)
	}
	return res.RowsAffected, nil
}
