package csr

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"greenfin/portal/portal-backend/pkg/workflows"
)

type FundingStatus string

const (
	FundingStatusActive    FundingStatus = "ACTIVE"
	FundingStatusExhausted FundingStatus = "EXHAUSTED"
	FundingStatusPaused    FundingStatus = "PAUSED"
)

// fundingTransitions covers every move a pool can make. Corporates may only
// request ACTIVE and PAUSED; EXHAUSTED comes from settlement or reconciliation.
var fundingTransitions = workflows.NewStateMachine(map[FundingStatus][]FundingStatus{
	FundingStatusActive:    {FundingStatusPaused, FundingStatusExhausted},
	FundingStatusPaused:    {FundingStatusActive, FundingStatusExhausted},
	FundingStatusExhausted: {},
})

// Funding is a corporate CSR pool that approved green-credit claims draw from
type Funding struct {
	ID              uuid.UUID       `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CorporateID     uuid.UUID       `json:"corporateId" gorm:"type:uuid;not null;index"`
	TotalAmount     decimal.Decimal `json:"totalAmount" gorm:"type:numeric(14,2);not null"`
	RemainingAmount decimal.Decimal `json:"remainingAmount" gorm:"type:numeric(14,2);not null"`
	Description     *string         `json:"description" gorm:"type:text"`
	FiscalYear      *string         `json:"fiscalYear" gorm:"type:varchar(10)"`
	Status          FundingStatus   `json:"status" gorm:"type:varchar(20);not null;default:'ACTIVE';index"`
	CreatedAt       time.Time       `json:"createdAt" gorm:"index"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

func (Funding) TableName() string {
	return "csr_fundings"
}

// AllocateRequest accepts totalAmount as a JSON number or a numeric string
type AllocateRequest struct {
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Description string          `json:"description"`
	FiscalYear  string          `json:"fiscalYear"`
}

type StatusRequest struct {
	Status FundingStatus `json:"status" binding:"required"`
}

// Stats summarises a corporate's pools and the redemptions drawn from them
type Stats struct {
	TotalAllocated       float64 `json:"totalAllocated"`
	TotalRemaining       float64 `json:"totalRemaining"`
	TotalUtilized        float64 `json:"totalUtilized"`
	UtilizationPercent   string  `json:"utilizationPercent"`
	ActiveCount          int     `json:"activeCount"`
	ExhaustedCount       int     `json:"exhaustedCount"`
	PausedCount          int     `json:"pausedCount"`
	RedemptionCount      int64   `json:"redemptionCount"`
	TotalCreditsRedeemed float64 `json:"totalCreditsRedeemed"`
}

// RedemptionTotals is the aggregate over approved claims linked to a corporate
type RedemptionTotals struct {
	Count int64           `gorm:"column:redemption_count"`
	Total decimal.Decimal `gorm:"column:total_credits_redeemed"`
}

// Redemption is an approved claim joined with the investor who made it
type Redemption struct {
	ID              uuid.UUID       `json:"id" gorm:"column:id"`
	UserID          uuid.UUID       `json:"userId" gorm:"column:user_id"`
	UserName        string          `json:"userName" gorm:"column:user_name"`
	UserEmail       string          `json:"userEmail" gorm:"column:user_email"`
	ProductName     string          `json:"productName" gorm:"column:product_name"`
	ProductPrice    decimal.Decimal `json:"productPrice" gorm:"column:product_price"`
	CreditsRedeemed decimal.Decimal `json:"creditsRedeemed" gorm:"column:credits_redeemed"`
	CSRFundingID    uuid.UUID       `json:"csrFundingId" gorm:"column:csr_funding_id"`
	Status          string          `json:"status" gorm:"column:status"`
	CreatedAt       time.Time       `json:"createdAt" gorm:"column:created_at"`
	ProcessedAt     *time.Time      `json:"processedAt" gorm:"column:processed_at"`
}
