package greencredits

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"greenfin/portal/portal-backend/internal/invoice"
	"greenfin/portal/portal-backend/internal/verification"
	"greenfin/portal/portal-backend/pkg/workflows"
)

type ClaimStatus string

const (
	ClaimStatusPending  ClaimStatus = "PENDING"
	ClaimStatusApproved ClaimStatus = "APPROVED"
	ClaimStatusRejected ClaimStatus = "REJECTED"
)

// A claim leaves PENDING exactly once
var claimTransitions = workflows.NewStateMachine(map[ClaimStatus][]ClaimStatus{
	ClaimStatusPending: {ClaimStatusApproved, ClaimStatusRejected},
})

// Settled reports whether the claim has reached a terminal status
func (s ClaimStatus) Settled() bool {
	return s != "" && claimTransitions.IsTerminal(s)
}

// User holds an investor's green-credit balance
type User struct {
	ID           uuid.UUID       `json:"id" db:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Name         string          `json:"name" db:"name" gorm:"type:varchar(255);not null"`
	Email        string          `json:"email" db:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	GreenCredits decimal.Decimal `json:"greenCredits" db:"green_credits" gorm:"type:numeric(15,2);not null;default:0"`
	CreatedAt    time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time       `json:"updatedAt" db:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// Claim is a single green-credit redemption request
type Claim struct {
	ID                   uuid.UUID       `json:"id" db:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID               uuid.UUID       `json:"userId" db:"user_id" gorm:"type:uuid;not null;index"`
	ProductName          string          `json:"productName" db:"product_name" gorm:"type:varchar(255);not null"`
	ProductPrice         decimal.Decimal `json:"productPrice" db:"product_price" gorm:"type:numeric(15,2);not null"`
	UploadedFileURL      *string         `json:"uploadedFileUrl,omitempty" db:"uploaded_file_url" gorm:"type:text"`
	AIVerificationResult datatypes.JSON  `json:"aiVerificationResult,omitempty" db:"ai_verification_result" gorm:"type:jsonb"`
	IsApproved           bool            `json:"isApproved" db:"is_approved" gorm:"not null;default:false"`
	CreditsRedeemed      decimal.Decimal `json:"creditsRedeemed" db:"credits_redeemed" gorm:"type:numeric(15,2);not null;default:0"`
	CSRFundingID         *uuid.UUID      `json:"csrFundingId,omitempty" db:"csr_funding_id" gorm:"type:uuid;index"`
	Status               ClaimStatus     `json:"status" db:"status" gorm:"type:varchar(20);not null;default:'PENDING';index"`
	CreatedAt            time.Time       `json:"createdAt" db:"created_at"`
	ProcessedAt          *time.Time      `json:"processedAt,omitempty" db:"processed_at"`

	// InvoiceURL is a short-lived download link, filled in for the owner only
	InvoiceURL string `json:"invoiceUrl,omitempty" db:"-" gorm:"-"`
}

func (Claim) TableName() string {
	return "green_credit_claims"
}

// Verification decodes the stored verification record, if any
func (c *Claim) Verification() (*VerificationRecord, error) {
	if len(c.AIVerificationResult) == 0 || string(c.AIVerificationResult) == "null" {
		return nil, nil
	}
	var rec VerificationRecord
	if err := json.Unmarshal(c.AIVerificationResult, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// VerificationRecord is persisted with the claim so the decision can be audited
type VerificationRecord struct {
	verification.Verdict
	VerificationMethod verification.Method `json:"verificationMethod"`
	Degraded           bool                `json:"degraded"`
	DegradedReason     string              `json:"degradedReason,omitempty"`
	Overridden         bool                `json:"overridden"`
	InvoiceProvided    bool                `json:"invoiceProvided"`
	InvoiceTextLength  int                 `json:"invoiceTextLength"`
	InvoiceLooksValid  bool                `json:"invoiceLooksValid"`
	ExtractionMethod   string              `json:"extractionMethod,omitempty"`
}

// ClaimRequest is the raw claim submission
type ClaimRequest struct {
	ProductName  string
	ProductPrice string
	File         *invoice.File
}

// SettleParams carries a verdict into the ledger
type SettleParams struct {
	ClaimID      uuid.UUID
	UserID       uuid.UUID
	ProductPrice decimal.Decimal
	Approved     bool
	Verification datatypes.JSON
}

// Settlement is the ledger's view of a finished claim
type Settlement struct {
	ClaimID         uuid.UUID
	Approved        bool
	CreditsRedeemed decimal.Decimal
	NewBalance      decimal.Decimal
	FundingID       *uuid.UUID
	CorporateID     *uuid.UUID
	ProcessedAt     time.Time
}

type VerificationResult struct {
	verification.Verdict
	Method           verification.Method `json:"method"`
	InvoiceProcessed bool                `json:"invoiceProcessed"`
	Degraded         bool                `json:"degraded"`
}

// ClaimResult is returned to the investor after a claim resolves
type ClaimResult struct {
	ClaimID            uuid.UUID          `json:"claimId"`
	IsApproved         bool               `json:"isApproved"`
	CreditsRedeemed    float64            `json:"creditsRedeemed"`
	NewBalance         float64            `json:"newBalance"`
	VerificationResult VerificationResult `json:"verificationResult"`
	Message            string             `json:"message"`
}

type Balance struct {
	UserID  uuid.UUID `json:"userId"`
	Balance float64   `json:"balance"`
}

// EarnRequest credits an investor for a completed investment
type EarnRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
}

type EarnResult struct {
	UserID        uuid.UUID `json:"userId"`
	Amount        float64   `json:"amount"`
	CreditsEarned float64   `json:"greenCreditsEarned"`
	NewBalance    float64   `json:"newBalance"`
	Reference     string    `json:"reference,omitempty"`
}
