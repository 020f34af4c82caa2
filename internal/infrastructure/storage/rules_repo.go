package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	flowerrors "github.com/flowtonehq/flowtone/internal/domain/errors"
	"github.com/flowtonehq/flowtone/internal/domain/routing"
)

// RuleRepository persists routing rules. It implements
// ports.RuleStoragePort. Rule order is kept in an explicit position column
// so the first-match-wins semantics survive round trips.
type RuleRepository struct {
	conn *Connection
}

// NewRuleRepository creates a rule repository over the given connection.
func NewRuleRepository(conn *Connection) *RuleRepository {
	return &RuleRepository{conn: conn}
}

// SaveRule inserts or updates a rule. New rules are appended at the end of
// the evaluation order.
func (r *RuleRepository) SaveRule(ctx context.Context, rule *routing.Rule) error {
	if err := rule.Validate(); err != nil {
		return flowerrors.NewError(flowerrors.CodeValidation, "invalid routing rule", err)
	}

	db, err := r.conn.DB()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = db.ExecContext(ctx, `
		INSERT INTO routing_rules (id, label, app_names, domains, prompt, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, COALESCE((SELECT MAX(position) + 1 FROM routing_rules), 0), ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			label = excluded.label,
			app_names = excluded.app_names,
			domains = excluded.domains,
			prompt = excluded.prompt,
			updated_at = excluded.updated_at`,
		rule.ID, rule.Label, joinList(rule.AppNames), joinList(rule.Domains),
		rule.Prompt, now, now)
	if err != nil {
		return fmt.Errorf("could not save rule: %w", err)
	}
	return nil
}

// GetRule fetches a rule by ID.
func (r *RuleRepository) GetRule(ctx context.Context, id string) (*routing.Rule, error) {
	db, err := r.conn.DB()
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx, `
		SELECT id, label, app_names, domains, prompt
		FROM routing_rules WHERE id = ?`, id)

	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, flowerrors.ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("could not load rule: %w", err)
	}
	return rule, nil
}

// ListRules returns all rules in evaluation order.
func (r *RuleRepository) ListRules(ctx context.Context) ([]*routing.Rule, error) {
	db, err := r.conn.DB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, label, app_names, domains, prompt
		FROM routing_rules ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("could not list rules: %w", err)
	}
	defer rows.Close()

	var rules []*routing.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// DeleteRule removes a rule by ID.
func (r *RuleRepository) DeleteRule(ctx context.Context, id string) error {
	db, err := r.conn.DB()
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, `DELETE FROM routing_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("could not delete rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return flowerrors.ErrRuleNotFound
	}
	return nil
}

// ReplaceRules swaps the full ordered rule list atomically.
func (r *RuleRepository) ReplaceRules(ctx context.Context, rules []*routing.Rule) error {
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			return flowerrors.NewError(flowerrors.CodeValidation, "invalid routing rule", err)
		}
	}

	db, err := r.conn.DB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM routing_rules`); err != nil {
		return fmt.Errorf("could not clear rules: %w", err)
	}

	now := time.Now().UTC()
	for i, rule := range rules {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO routing_rules (id, label, app_names, domains, prompt, position, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rule.ID, rule.Label, joinList(rule.AppNames), joinList(rule.Domains),
			rule.Prompt, i, now, now); err != nil {
			return fmt.Errorf("could not insert rule %q: %w", rule.Label, err)
		}
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*routing.Rule, error) {
	var rule routing.Rule
	var apps, domains string
	if err := row.Scan(&rule.ID, &rule.Label, &apps, &domains, &rule.Prompt); err != nil {
		return nil, err
	}
	rule.AppNames = splitList(apps)
	rule.Domains = splitList(domains)
	return &rule, nil
}

func joinList(items []string) string {
	return strings.Join(items, "\n")
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
