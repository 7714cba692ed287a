package access

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/platinummonkey/ehrops/pkg/apperrors"
)

// RuleStore persists the access-rule catalog
type RuleStore interface {
	ListRules(ctx context.Context) ([]AccessRule, error)
	GetRule(ctx context.Context, id int64) (*AccessRule, error)
	FindRule(ctx context.Context, resourceType ResourceType, resourceKey string, hospitalID *int64) (*AccessRule, error)
	CreateRule(ctx context.Context, rule *AccessRule) error
	UpdateRule(ctx context.Context, rule *AccessRule) error
	DeleteRule(ctx context.Context, id int64) error
}

// SQLRuleStore implements RuleStore. Role lists are stored as JSON arrays.
type SQLRuleStore struct {
	db *sql.DB
}

// NewRuleStore creates a new rule store
func NewRuleStore(db *sql.DB) *SQLRuleStore {
	return &SQLRuleStore{db: db}
}

var _ RuleStore = (*SQLRuleStore)(nil)

const ruleColumns = `id, resource_type, resource_key, description, allowed_roles, denied_roles, restriction_message, hospital_id, is_active, created_at, updated_at`

// ListRules returns every rule, active or not, ordered by type and key
func (s *SQLRuleStore) ListRules(ctx context.Context) ([]AccessRule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM access_rules ORDER BY resource_type, resource_key, id`)
	if err != nil {
		return nil, apperrors.Dependency("failed to list access rules", err)
	}
	defer rows.Close()

	rules := []AccessRule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, apperrors.Dependency("failed to scan access rule", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Dependency("failed to list access rules", err)
	}
	return rules, nil
}

// GetRule returns a rule by id
func (s *SQLRuleStore) GetRule(ctx context.Context, id int64) (*AccessRule, error) {
	rule, err := scanRule(s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM access_rules WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("access rule", id)
	}
	if err != nil {
		return nil, apperrors.Dependency("failed to get access rule", err)
	}
	return rule, nil
}

// FindRule returns the rule for (type, key, hospital) or a not-found error
func (s *SQLRuleStore) FindRule(ctx context.Context, resourceType ResourceType, resourceKey string, hospitalID *int64) (*AccessRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM access_rules WHERE resource_type = $1 AND resource_key = $2 AND hospital_id IS NULL`
	args := []interface{}{string(resourceType), resourceKey}
	if hospitalID != nil {
		query = `SELECT ` + ruleColumns + ` FROM access_rules WHERE resource_type = $1 AND resource_key = $2 AND hospital_id = $3`
		args = append(args, *hospitalID)
	}

	rule, err := scanRule(s.db.QueryRowContext(ctx, query+` ORDER BY id LIMIT 1`, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("access rule", fmt.Sprintf("%s/%s", resourceType, resourceKey))
	}
	if err != nil {
		return nil, apperrors.Dependency("failed to find access rule", err)
	}
	return rule, nil
}

// CreateRule inserts rule and sets its ID
func (s *SQLRuleStore) CreateRule(ctx context.Context, rule *AccessRule) error {
	allowed, denied, err := encodeRoles(rule)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO access_rules (
			resource_type, resource_key, description, allowed_roles, denied_roles,
			restriction_message, hospital_id, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	err = s.db.QueryRowContext(ctx, query,
		string(rule.ResourceType), rule.ResourceKey, rule.Description, allowed, denied,
		rule.RestrictionMessage, nullInt64(rule.HospitalID), rule.IsActive, rule.CreatedAt, rule.UpdatedAt,
	).Scan(&rule.ID)
	if err != nil {
		return apperrors.FromStorage("failed to create access rule", err)
	}
	return nil
}

// UpdateRule writes the mutable columns of rule
func (s *SQLRuleStore) UpdateRule(ctx context.Context, rule *AccessRule) error {
	allowed, denied, err := encodeRoles(rule)
	if err != nil {
		return err
	}
	query := `
		UPDATE access_rules
		SET description = $1, allowed_roles = $2, denied_roles = $3, restriction_message = $4, is_active = $5, updated_at = $6
		WHERE id = $7
	`
	result, err := s.db.ExecContext(ctx, query,
		rule.Description, allowed, denied, rule.RestrictionMessage, rule.IsActive, rule.UpdatedAt, rule.ID,
	)
	if err != nil {
		return apperrors.FromStorage("failed to update access rule", err)
	}
	return requireAffected(result, rule.ID)
}

// DeleteRule removes a rule
func (s *SQLRuleStore) DeleteRule(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM access_rules WHERE id = $1`, id)
	if err != nil {
		return apperrors.Dependency("failed to delete access rule", err)
	}
	return requireAffected(result, id)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row scanner) (*AccessRule, error) {
	var (
		rule         AccessRule
		resourceType string
		allowed      string
		denied       string
		hospitalID   sql.NullInt64
	)
	err := row.Scan(
		&rule.ID, &resourceType, &rule.ResourceKey, &rule.Description, &allowed, &denied,
		&rule.RestrictionMessage, &hospitalID, &rule.IsActive, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rule.ResourceType = ResourceType(resourceType)
	if hospitalID.Valid {
		id := hospitalID.Int64
		rule.HospitalID = &id
	}
	if rule.AllowedRoles, err = decodeRoles(allowed); err != nil {
		return nil, fmt.Errorf("failed to decode allowed roles of rule %d: %w", rule.ID, err)
	}
	if rule.DeniedRoles, err = decodeRoles(denied); err != nil {
		return nil, fmt.Errorf("failed to decode denied roles of rule %d: %w", rule.ID, err)
	}
	return &rule, nil
}

func encodeRoles(rule *AccessRule) (string, string, error) {
	allowed, err := json.Marshal(nonNil(rule.AllowedRoles))
	if err != nil {
		return "", "", apperrors.Validationf("invalid allowed roles: %v", err)
	}
	denied, err := json.Marshal(nonNil(rule.DeniedRoles))
	if err != nil {
		return "", "", apperrors.Validationf("invalid denied roles: %v", err)
	}
	return string(allowed), string(denied), nil
}

func decodeRoles(data string) ([]string, error) {
	roles := []string{}
	if data == "" {
		return roles, nil
	}
	if err := json.Unmarshal([]byte(data), &roles); err != nil {
		return nil, err
	}
	if roles == nil {
		roles = []string{}
	}
	return roles, nil
}

func nonNil(roles []string) []string {
	if roles == nil {
		return []string{}
	}
	return roles
}

func requireAffected(result sql.Result, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return apperrors.Dependency("failed to get rows affected", err)
	}
	if n == 0 {
		return apperrors.NotFound("access rule", id)
	}
	return nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
