package greencredits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"greenfin/portal/portal-backend/internal/auth"
	"greenfin/portal/portal-backend/internal/export"
	"greenfin/portal/portal-backend/internal/invoice"
	"greenfin/portal/portal-backend/internal/notifications/websocket"
	"greenfin/portal/portal-backend/internal/verification"
)

const (
	msgInvalidClaim = "Product name and valid price are required"
	msgOnlyPDF      = "Only PDF invoices are accepted."
	msgInvalidEarn  = "Valid investment amount is required"
)

// Investors earn 5% of every completed investment as green credits
var earnRate = decimal.RequireFromString("0.05")

var (
	ErrNoCredits    = errors.New("no green credits available")
	ErrClaimPending = errors.New("claim has not been processed yet")
)

// ValidationError carries a message that is safe to show to the caller
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

type TextExtractor interface {
	Extract(ctx context.Context, file invoice.File) invoice.Result
}

type ProductVerifier interface {
	Verify(ctx context.Context, req verification.Request) verification.Outcome
}

type Publisher interface {
	PublishRedemption(event websocket.RedemptionEvent)
}

type Service interface {
	SubmitClaim(ctx context.Context, identity auth.Identity, req ClaimRequest) (*ClaimResult, error)
	GetBalance(ctx context.Context, identity auth.Identity) (*Balance, error)
	Earn(ctx context.Context, identity auth.Identity, req EarnRequest) (*EarnResult, error)
	ListClaims(ctx context.Context, identity auth.Identity) ([]Claim, error)
	GetClaim(ctx context.Context, identity auth.Identity, claimID uuid.UUID) (*Claim, error)
	Receipt(ctx context.Context, identity auth.Identity, claimID uuid.UUID) ([]byte, error)
}

type service struct {
	repo      Repository
	extractor TextExtractor
	verifier  ProductVerifier
	files     FileStore
	events    Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewService wires the claim pipeline. files and events may be nil.
func NewService(repo Repository, extractor TextExtractor, verifier ProductVerifier, files FileStore, events Publisher, logger *zap.Logger) Service {
	if files == nil {
		files = ReferenceFileStore{}
	}
	return &service{
		repo:      repo,
		extractor: extractor,
		verifier:  verifier,
		files:     files,
		events:    events,
		logger:    logger,
		now:       time.Now,
	}
}

func parseClaim(req ClaimRequest) (string, decimal.Decimal, error) {
	name := strings.TrimSpace(req.ProductName)
	price, err := decimal.NewFromString(strings.TrimSpace(req.ProductPrice))
	// ledger columns hold paise, so amounts are settled at two places
	price = price.Round(2)
	if name == "" || err != nil || !price.IsPositive() {
		return "", decimal.Zero, &ValidationError{Message: msgInvalidClaim}
	}
	if f := req.File; f != nil && len(f.Data) > 0 && !invoice.IsPDF(f.Name, f.ContentType) {
		return "", decimal.Zero, &ValidationError{Message: msgOnlyPDF}
	}
	return name, price, nil
}

func (s *service) SubmitClaim(ctx context.Context, identity auth.Identity, req ClaimRequest) (*ClaimResult, error) {
	name, price, err := parseClaim(req)
	if err != nil {
		return nil, err
	}
	if identity.UserID == uuid.Nil {
		return nil, ErrUserNotFound
	}

	balance, err := s.repo.GetBalance(ctx, identity.UserID)
	if err != nil {
		return nil, err
	}
	if !balance.IsPositive() {
		return nil, ErrNoCredits
	}

	hasFile := req.File != nil && len(req.File.Data) > 0

	var (
		fileRef *string
		stored  bool
	)
	extraction := invoice.Result{Method: invoice.MethodNone}
	if hasFile {
		ref, err := s.files.Store(ctx, identity.UserID, *req.File)
		if err != nil {
			s.logger.Warn("Invoice upload failed, keeping file reference only",
				zap.String("file", req.File.Name),
				zap.Error(err))
			ref = uploadReference(req.File.Name)
		} else {
			stored = true
		}
		fileRef = &ref
		extraction = s.extractor.Extract(ctx, *req.File)
		if strings.TrimSpace(extraction.Text) == "" {
			s.logger.Warn("Invoice text extraction returned no text, continuing without it",
				zap.String("file", req.File.Name))
		}
	}
	invoiceText := strings.TrimSpace(extraction.Text)

	claim := &Claim{
		UserID:          identity.UserID,
		ProductName:     name,
		ProductPrice:    price,
		UploadedFileURL: fileRef,
	}
	if err := s.repo.CreatePendingClaim(ctx, claim); err != nil {
		if stored {
			if derr := s.files.Discard(ctx, *fileRef); derr != nil {
				s.logger.Warn("Failed to discard orphaned invoice",
					zap.String("ref", *fileRef),
					zap.Error(derr))
			}
		}
		return nil, fmt.Errorf("failed to record claim: %w", err)
	}

	outcome := s.verifier.Verify(ctx, verification.Request{
		ProductName:  name,
		ProductPrice: price,
		UserCredits:  balance,
		InvoiceText:  invoiceText,
	})

	record := VerificationRecord{
		Verdict:            outcome.Verdict,
		VerificationMethod: outcome.Method,
		Degraded:           outcome.Degraded,
		Overridden:         outcome.Overridden,
		InvoiceProvided:    invoiceText != "",
		InvoiceTextLength:  len([]rune(invoiceText)),
		InvoiceLooksValid:  invoice.IsLikelyInvoiceText(invoiceText),
	}
	if hasFile {
		record.ExtractionMethod = string(extraction.Method)
	}
	if outcome.Cause != nil {
		record.DegradedReason = outcome.Cause.Error()
	}
	recordJSON, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode verification: %w", err)
	}

	settlement, err := s.repo.Settle(ctx, SettleParams{
		ClaimID:      claim.ID,
		UserID:       identity.UserID,
		ProductPrice: price,
		Approved:     outcome.Verdict.IsGreenProduct,
		Verification: recordJSON,
	})
	if err != nil {
		s.logger.Error("Failed to settle claim",
			zap.String("claim_id", claim.ID.String()),
			zap.String("user_id", identity.UserID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to settle claim: %w", err)
	}

	s.logger.Info("Claim settled",
		zap.String("claim_id", claim.ID.String()),
		zap.Bool("approved", settlement.Approved),
		zap.String("credits_redeemed", settlement.CreditsRedeemed.StringFixed(2)),
		zap.String("method", string(outcome.Method)),
		zap.Bool("degraded", outcome.Degraded))

	if settlement.Approved && settlement.CorporateID != nil && s.events != nil {
		s.events.PublishRedemption(websocket.RedemptionEvent{
			ClaimID:         claim.ID,
			UserID:          identity.UserID,
			CorporateID:     *settlement.CorporateID,
			FundingID:       settlement.FundingID,
			ProductName:     name,
			Category:        outcome.Verdict.ProductCategory,
			CreditsRedeemed: settlement.CreditsRedeemed.InexactFloat64(),
			At:              settlement.ProcessedAt,
		})
	}

	return &ClaimResult{
		ClaimID:         claim.ID,
		IsApproved:      settlement.Approved,
		CreditsRedeemed: settlement.CreditsRedeemed.InexactFloat64(),
		NewBalance:      settlement.NewBalance.InexactFloat64(),
		VerificationResult: VerificationResult{
			Verdict:          outcome.Verdict,
			Method:           outcome.Method,
			InvoiceProcessed: invoiceText != "",
			Degraded:         outcome.Degraded,
		},
		Message: claimMessage(settlement, outcome.Verdict),
	}, nil
}

func claimMessage(s *Settlement, v verification.Verdict) string {
	if !s.Approved {
		return "Claim rejected: " + v.Reason
	}
	category := v.ProductCategory
	if category == "" {
		category = "green product"
	}
	return fmt.Sprintf("Claim approved! ₹%s credited to your account for your %s purchase.",
		s.CreditsRedeemed.StringFixed(2), category)
}

func (s *service) GetBalance(ctx context.Context, identity auth.Identity) (*Balance, error) {
	if identity.UserID == uuid.Nil {
		return nil, ErrUserNotFound
	}
	balance, err := s.repo.GetBalance(ctx, identity.UserID)
	if err != nil {
		return nil, err
	}
	return &Balance{UserID: identity.UserID, Balance: balance.InexactFloat64()}, nil
}

// Earn credits the investor with a share of a completed investment
func (s *service) Earn(ctx context.Context, identity auth.Identity, req EarnRequest) (*EarnResult, error) {
	amount := req.Amount.Round(2)
	earned := amount.Mul(earnRate).Round(2)
	if !amount.IsPositive() || !earned.IsPositive() {
		return nil, &ValidationError{Message: msgInvalidEarn}
	}
	if identity.UserID == uuid.Nil {
		return nil, ErrUserNotFound
	}

	balance, err := s.repo.Credit(ctx, identity.UserID, earned)
	if err != nil {
		return nil, err
	}

	reference := strings.TrimSpace(req.Reference)
	s.logger.Info("Green credits earned",
		zap.String("user_id", identity.UserID.String()),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("earned", earned.StringFixed(2)),
		zap.String("reference", reference))

	return &EarnResult{
		UserID:        identity.UserID,
		Amount:        amount.InexactFloat64(),
		CreditsEarned: earned.InexactFloat64(),
		NewBalance:    balance.InexactFloat64(),
		Reference:     reference,
	}, nil
}

func (s *service) ListClaims(ctx context.Context, identity auth.Identity) ([]Claim, error) {
	if identity.UserID == uuid.Nil {
		return nil, ErrUserNotFound
	}
	return s.repo.ListClaims(ctx, identity.UserID)
}

// GetClaim returns the caller's claim with a download link for a stored invoice
func (s *service) GetClaim(ctx context.Context, identity auth.Identity, claimID uuid.UUID) (*Claim, error) {
	claim, err := s.ownedClaim(ctx, identity, claimID)
	if err != nil {
		return nil, err
	}
	if claim.UploadedFileURL != nil {
		url, err := s.files.DownloadURL(ctx, *claim.UploadedFileURL)
		if err != nil {
			s.logger.Warn("Failed to sign invoice download",
				zap.String("claim_id", claim.ID.String()),
				zap.Error(err))
		}
		claim.InvoiceURL = url
	}
	return claim, nil
}

// ownedClaim hides other users' claims behind ErrClaimNotFound
func (s *service) ownedClaim(ctx context.Context, identity auth.Identity, claimID uuid.UUID) (*Claim, error) {
	claim, err := s.repo.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if claim.UserID != identity.UserID {
		return nil, ErrClaimNotFound
	}
	return claim, nil
}

func (s *service) Receipt(ctx context.Context, identity auth.Identity, claimID uuid.UUID) ([]byte, error) {
	claim, err := s.ownedClaim(ctx, identity, claimID)
	if err != nil {
		return nil, err
	}
	if !claim.Status.Settled() {
		return nil, ErrClaimPending
	}

	lines := []export.ReceiptLine{
		{Label: "Claim ID", Value: claim.ID.String()},
		{Label: "Product", Value: claim.ProductName},
		{Label: "Claimed Price", Value: "INR " + claim.ProductPrice.StringFixed(2)},
		{Label: "Status", Value: string(claim.Status)},
		{Label: "Credits Redeemed", Value: "INR " + claim.CreditsRedeemed.StringFixed(2)},
	}

	note := ""
	rec, err := claim.Verification()
	if err != nil {
		s.logger.Warn("Stored verification record is unreadable",
			zap.String("claim_id", claim.ID.String()),
			zap.Error(err))
	}
	if rec != nil {
		lines = append(lines,
			export.ReceiptLine{Label: "Category", Value: rec.ProductCategory},
			export.ReceiptLine{Label: "Verified By", Value: string(rec.VerificationMethod)},
		)
		note = rec.Reason
	}
	if claim.ProcessedAt != nil {
		lines = append(lines, export.ReceiptLine{Label: "Processed At", Value: claim.ProcessedAt.UTC().Format(time.RFC3339)})
	}
	if claim.CSRFundingID != nil {
		lines = append(lines, export.ReceiptLine{Label: "CSR Funding Pool", Value: claim.CSRFundingID.String()})
	}

	subtitle := "Claim " + string(claim.Status)
	return export.RenderReceipt(export.Receipt{
		Title:    "GreenFin Green Credit Receipt",
		Subtitle: subtitle,
		Lines:    lines,
		Note:     note,
		IssuedAt: s.now(),
	}, export.DefaultPDFOptions())
}
