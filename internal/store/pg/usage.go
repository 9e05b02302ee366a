package pg

import (
	"context"
	"database/sql"
	"errors"

	"slatesign.org/internal/subscription"
)

// UsageStore keeps per-account plan counters in Postgres. Counters reset
// when the stored period rolls over to a new month.
type UsageStore struct {
	db *sql.DB
}

func NewUsageStore(db *sql.DB) *UsageStore {
	return &UsageStore{db: db}
}

var _ subscription.UsageReader = (*UsageStore)(nil)

func (u *UsageStore) Usage(ctx context.Context, accountID string) (subscription.Usage, error) {
	var usage subscription.Usage
	err := u.db.QueryRowContext(ctx, `
		select contracts_created, casting_submissions, self_tapes
		from account_usage
		where account_id=$1 and period_start = date_trunc('month', now())
	`, accountID).Scan(&usage.ContractsCreated, &usage.CastingSubmissions, &usage.SelfTapes)
	if errors.Is(err, sql.ErrNoRows) {
		return subscription.Usage{}, nil
	}
	return usage, err
}

func (u *UsageStore) IncrementContracts(ctx context.Context, accountID string) {
	// stale rows from previous months are overwritten on conflict
	_, _ = u.db.ExecContext(ctx, `
		insert into account_usage(account_id, contracts_created, period_start)
		values ($1, 1, date_trunc('month', now()))
		on conflict (account_id) do update set
			contracts_created = case
				when account_usage.period_start = excluded.period_start
				then account_usage.contracts_created + 1
				else 1
			end,
			casting_submissions = case
				when account_usage.period_start = excluded.period_start
				then account_usage.casting_submissions
				else 0
			end,
			self_tapes = case
				when account_usage.period_start = excluded.period_start
				then account_usage.self_tapes
				else 0
			end,
			period_start = excluded.period_start
	`, accountID)
}
