package postgres

import (
	"context"

	"github.com/VictorLirio/nimbus-api/internal/domain"
	"github.com/VictorLirio/nimbus-api/internal/domain/ports"
)

const upsertInvoice = `INSERT INTO invoices (
		id, provider_invoice_id, subscription_id, user_id, amount_due, amount_paid,
		currency, status, pdf_url, period_start, period_end, billing_reason, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (provider_invoice_id) DO UPDATE SET
		amount_due = EXCLUDED.amount_due,
		amount_paid = EXCLUDED.amount_paid,
		currency = EXCLUDED.currency,
		status = EXCLUDED.status,
		pdf_url = EXCLUDED.pdf_url,
		period_start = EXCLUDED.period_start,
		period_end = EXCLUDED.period_end,
		billing_reason = EXCLUDED.billing_reason,
		updated_at = NOW()`

// InvoiceRecorder upserts invoice projections keyed by provider invoice id
type InvoiceRecorder struct {
	db ports.DBTX
}

// NewInvoiceRecorder creates a new invoice recorder
func NewInvoiceRecorder(db ports.DBTX) *InvoiceRecorder {
	return &InvoiceRecorder{db: db}
}

func (r *InvoiceRecorder) RecordInvoice(ctx context.Context, inv *domain.Invoice) error {
	amountDue, err := decimalToNumeric(inv.AmountDue)
	if err != nil {
		return err
	}
	amountPaid, err := decimalToNumeric(inv.AmountPaid)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, upsertInvoice,
		inv.ID,
		inv.ProviderInvoiceID,
		inv.SubscriptionID,
		inv.UserID,
		amountDue,
		amountPaid,
		inv.Currency,
		inv.Status,
		nullText(inv.PDFURL),
		nullTime(inv.PeriodStart),
		nullTime(inv.PeriodEnd),
		inv.BillingReason,
		inv.CreatedAt,
	)
	if err != nil {
		return wrapQueryError("record invoice", err)
	}
	return nil
}

var _ ports.InvoiceRecorder = (*InvoiceRecorder)(nil)
