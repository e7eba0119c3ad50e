package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/VictorLirio/nimbus-api/internal/domain"
	"github.com/VictorLirio/nimbus-api/internal/domain/ports"
)

const (
	selectAccount = `SELECT id, email, provider_customer_ref, has_active_subscription
		FROM accounts WHERE id = $1`

	updateAccountFlag = `UPDATE accounts SET has_active_subscription = $2, updated_at = NOW() WHERE id = $1`

	upsertAccount = `INSERT INTO accounts (id, email, provider_customer_ref, has_active_subscription)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			provider_customer_ref = EXCLUDED.provider_customer_ref,
			updated_at = NOW()`
)

// AccountDirectory reads and flags accounts in the accounts table
type AccountDirectory struct {
	db ports.DBTX
}

// NewAccountDirectory creates a new account directory
func NewAccountDirectory(db ports.DBTX) *AccountDirectory {
	return &AccountDirectory{db: db}
}

func (d *AccountDirectory) FindAccount(ctx context.Context, userID string) (*domain.Account, error) {
	var (
		acct        domain.Account
		customerRef pgtype.Text
	)
	err := d.db.QueryRow(ctx, selectAccount, userID).Scan(
		&acct.ID,
		&acct.Email,
		&customerRef,
		&acct.HasActiveSubscription,
	)
	if isNoRows(err) {
		return nil, domain.NewAccountNotFound(userID)
	}
	if err != nil {
		return nil, wrapQueryError("find account", err)
	}
	acct.ProviderCustomerRef = customerRef.String
	return &acct, nil
}

// SetHasActiveSubscription is idempotent
func (d *AccountDirectory) SetHasActiveSubscription(ctx context.Context, userID string, active bool) error {
	tag, err := d.db.Exec(ctx, updateAccountFlag, userID, active)
	if err != nil {
		return wrapQueryError("update account", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewAccountNotFound(userID)
	}
	return nil
}

// UpsertAccount creates or refreshes an account. The active flag is only
// set on insert.
func (d *AccountDirectory) UpsertAccount(ctx context.Context, acct *domain.Account) error {
	_, err := d.db.Exec(ctx, upsertAccount,
		acct.ID,
		acct.Email,
		nullText(acct.ProviderCustomerRef),
		acct.HasActiveSubscription,
	)
	if err != nil {
		return wrapQueryError("upsert account", err)
	}
	return nil
}

var _ ports.AccountDirectory = (*AccountDirectory)(nil)
