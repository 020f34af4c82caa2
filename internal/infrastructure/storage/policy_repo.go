package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/flowtonehq/flowtone/internal/domain/focus"
)

// PolicyRepository persists the single focus policy. It implements
// ports.PolicyStoragePort. A missing row is not an error: callers fall
// back to the configured default policy.
type PolicyRepository struct {
	conn *Connection
}

// NewPolicyRepository creates a policy repository over the given connection.
func NewPolicyRepository(conn *Connection) *PolicyRepository {
	return &PolicyRepository{conn: conn}
}

// SavePolicy upserts the policy row.
func (r *PolicyRepository) SavePolicy(ctx context.Context, policy focus.Policy) error {
	db, err := r.conn.DB()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO focus_policy (id, mode, blocked_apps, blocked_domains, allowed_apps, allowed_domains, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			mode = excluded.mode,
			blocked_apps = excluded.blocked_apps,
			blocked_domains = excluded.blocked_domains,
			allowed_apps = excluded.allowed_apps,
			allowed_domains = excluded.allowed_domains,
			updated_at = excluded.updated_at`,
		string(policy.Mode),
		joinList(policy.BlockedApps), joinList(policy.BlockedDomains),
		joinList(policy.AllowedApps), joinList(policy.AllowedDomains),
		time.Now().UTC())
	if err != nil {
		return fmt.Errorf("could not save policy: %w", err)
	}
	return nil
}

// LoadPolicy fetches the stored policy. The second return value is false
// when no policy has been saved yet.
func (r *PolicyRepository) LoadPolicy(ctx context.Context) (focus.Policy, bool, error) {
	db, err := r.conn.DB()
	if err != nil {
		return focus.Policy{}, false, err
	}

	var mode, blockedApps, blockedDomains, allowedApps, allowedDomains string
	err = db.QueryRowContext(ctx, `
		SELECT mode, blocked_apps, blocked_domains, allowed_apps, allowed_domains
		FROM focus_policy WHERE id = 1`).
		Scan(&mode, &blockedApps, &blockedDomains, &allowedApps, &allowedDomains)
	if err == sql.ErrNoRows {
		return focus.Policy{}, false, nil
	}
	if err != nil {
		return focus.Policy{}, false, fmt.Errorf("could not load policy: %w", err)
	}

	return focus.Policy{
		Mode:           focus.Mode(mode),
		BlockedApps:    splitList(blockedApps),
		BlockedDomains: splitList(blockedDomains),
		AllowedApps:    splitList(allowedApps),
		AllowedDomains: splitList(allowedDomains),
	}, true, nil
}
