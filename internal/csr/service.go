package csr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"greenfin/portal/portal-backend/internal/auth"
	"greenfin/portal/portal-backend/internal/export"
)

var (
	ErrInvalidAmount     = errors.New("total amount must be greater than 0")
	ErrInvalidStatus     = errors.New("status must be ACTIVE or PAUSED")
	ErrStatusTransition  = errors.New("csr funding cannot move to that status")
	ErrCorporateRequired = errors.New("corporate identity required")
	ErrUnsupportedFormat = errors.New("unsupported export format")
)

type ExportFormat string

const (
	FormatXLSX ExportFormat = "xlsx"
	FormatCSV  ExportFormat = "csv"
)

var redemptionColumns = []export.Column{
	{Key: "created_at", Label: "Date", Width: 20},
	{Key: "user_name", Label: "Investor"},
	{Key: "user_email", Label: "Email"},
	{Key: "product_name", Label: "Product"},
	{Key: "product_price", Label: "Product Price (INR)", Width: 18},
	{Key: "credits_redeemed", Label: "Credits Redeemed (INR)", Width: 20},
	{Key: "csr_funding_id", Label: "Funding Pool", Width: 38},
	{Key: "processed_at", Label: "Processed At", Width: 20},
}

type Service interface {
	Allocate(ctx context.Context, identity auth.Identity, req AllocateRequest) (*Funding, error)
	List(ctx context.Context, identity auth.Identity) ([]Funding, error)
	SetStatus(ctx context.Context, identity auth.Identity, fundingID uuid.UUID, status FundingStatus) (*Funding, error)
	Stats(ctx context.Context, identity auth.Identity) (*Stats, error)
	Redemptions(ctx context.Context, identity auth.Identity) ([]Redemption, error)
	ExportRedemptions(ctx context.Context, identity auth.Identity, format ExportFormat, w io.Writer) error
	ReconcileExhausted(ctx context.Context) (int64, error)
}

type service struct {
	repo   Repository
	logger *zap.Logger
}

func NewService(repo Repository, logger *zap.Logger) Service {
	return &service{repo: repo, logger: logger}
}

func corporateOf(identity auth.Identity) (uuid.UUID, error) {
	if !identity.IsCorporate() {
		return uuid.Nil, ErrCorporateRequired
	}
	return identity.CorporateID, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func (s *service) Allocate(ctx context.Context, identity auth.Identity, req AllocateRequest) (*Funding, error) {
	corporateID, err := corporateOf(identity)
	if err != nil {
		return nil, err
	}
	if !req.TotalAmount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	amount := req.TotalAmount.Round(2)
	funding := &Funding{
		CorporateID:     corporateID,
		TotalAmount:     amount,
		RemainingAmount: amount,
		Description:     optional(req.Description),
		FiscalYear:      optional(req.FiscalYear),
		Status:          FundingStatusActive,
	}
	if err := s.repo.Create(ctx, funding); err != nil {
		return nil, err
	}

	s.logger.Info("CSR funding allocated",
		zap.String("funding_id", funding.ID.String()),
		zap.String("corporate_id", corporateID.String()),
		zap.String("amount", amount.StringFixed(2)))
	return funding, nil
}

func (s *service) List(ctx context.Context, identity auth.Identity) ([]Funding, error) {
	corporateID, err := corporateOf(identity)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByCorporate(ctx, corporateID)
}

// SetStatus pauses or resumes a pool. EXHAUSTED is reached only by
// settlement or reconciliation and is terminal.
func (s *service) SetStatus(ctx context.Context, identity auth.Identity, fundingID uuid.UUID, status FundingStatus) (*Funding, error) {
	corporateID, err := corporateOf(identity)
	if err != nil {
		return nil, err
	}
	if status != FundingStatusActive && status != FundingStatusPaused {
		return nil, ErrInvalidStatus
	}

	funding, err := s.repo.Get(ctx, corporateID, fundingID)
	if err != nil {
		return nil, err
	}
	if funding.Status == status {
		return funding, nil
	}
	if !fundingTransitions.CanTransition(funding.Status, status) {
		return nil, ErrStatusTransition
	}
	if status == FundingStatusActive && !funding.RemainingAmount.IsPositive() {
		return nil, ErrStatusTransition
	}

	if err := s.repo.UpdateStatus(ctx, funding.ID, funding.Status, status); err != nil {
		return nil, err
	}
	s.logger.Info("CSR funding status changed",
		zap.String("funding_id", funding.ID.String()),
		zap.String("from", string(funding.Status)),
		zap.String("to", string(status)))

	funding.Status = status
	return funding, nil
}

func (s *service) Stats(ctx context.Context, identity auth.Identity) (*Stats, error) {
	corporateID, err := corporateOf(identity)
	if err != nil {
		return nil, err
	}
	fundings, err := s.repo.ListByCorporate(ctx, corporateID)
	if err != nil {
		return nil, err
	}

	stats := &Stats{UtilizationPercent: "0.0"}
	allocated, remaining := decimal.Zero, decimal.Zero
	for _, f := range fundings {
		allocated = allocated.Add(f.TotalAmount)
		remaining = remaining.Add(f.RemainingAmount)
		switch f.Status {
		case FundingStatusActive:
			stats.ActiveCount++
		case FundingStatusExhausted:
			stats.ExhaustedCount++
		case FundingStatusPaused:
			stats.PausedCount++
		}
	}
	utilized := allocated.Sub(remaining)
	if allocated.IsPositive() {
		stats.UtilizationPercent = utilized.Div(allocated).Mul(decimal.NewFromInt(100)).StringFixed(1)
	}
	stats.TotalAllocated = allocated.InexactFloat64()
	stats.TotalRemaining = remaining.InexactFloat64()
	stats.TotalUtilized = utilized.InexactFloat64()

	if len(fundings) > 0 {
		totals, err := s.repo.RedemptionTotals(ctx, corporateID)
		if err != nil {
			return nil, err
		}
		stats.RedemptionCount = totals.Count
		stats.TotalCreditsRedeemed = totals.Total.InexactFloat64()
	}
	return stats, nil
}

func (s *service) Redemptions(ctx context.Context, identity auth.Identity) ([]Redemption, error) {
	corporateID, err := corporateOf(identity)
	if err != nil {
		return nil, err
	}
	return s.repo.Redemptions(ctx, corporateID)
}

func (s *service) ExportRedemptions(ctx context.Context, identity auth.Identity, format ExportFormat, w io.Writer) error {
	if format != FormatXLSX && format != FormatCSV {
		return ErrUnsupportedFormat
	}
	redemptions, err := s.Redemptions(ctx, identity)
	if err != nil {
		return err
	}

	rows := make([]map[string]interface{}, 0, len(redemptions))
	for _, r := range redemptions {
		rows = append(rows, map[string]interface{}{
			"created_at":       r.CreatedAt,
			"user_name":        r.UserName,
			"user_email":       r.UserEmail,
			"product_name":     r.ProductName,
			"product_price":    r.ProductPrice,
			"credits_redeemed": r.CreditsRedeemed,
			"csr_funding_id":   r.CSRFundingID.String(),
			"processed_at":     r.ProcessedAt,
		})
	}

	if format == FormatCSV {
		return export.WriteCSV(w, redemptionColumns, rows, export.DefaultCSVOptions())
	}

	exporter, err := export.NewExcelExporter(export.DefaultExcelOptions())
	if err != nil {
		return fmt.Errorf("failed to create exporter: %w", err)
	}
	defer exporter.Close()

	if err := exporter.Write(redemptionColumns, rows); err != nil {
		return fmt.Errorf("failed to write redemptions: %w", err)
	}
	return exporter.WriteTo(w)
}

func (s *service) ReconcileExhausted(ctx context.Context) (int64, error) {
	n, err := s.repo.MarkExhausted(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("Marked drained CSR fundings exhausted", zap.Int64("count", n))
	}
	return n, nil
}
