package access

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/ehrops/pkg/apperrors"
	"github.com/platinummonkey/ehrops/pkg/observability"
	"github.com/platinummonkey/ehrops/pkg/validation"
)

// PermissionManageRules is required to change the rule catalog
const PermissionManageRules = "access_rules:manage"

// Authorizer checks that a user holds a permission
type Authorizer interface {
	Require(ctx context.Context, userID int64, permission string, projectID *int64) error
}

// UserAccess is the derived view of a user together with its restrictions.
// View is nil for unauthenticated callers.
type UserAccess struct {
	View         *UserView    `json:"view,omitempty"`
	Restrictions Restrictions `json:"restrictions"`
}

// Service evaluates access rules and manages the rule catalog
type Service struct {
	rules   RuleStore
	deriver *Deriver
	authz   Authorizer
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewService creates an access service. authz guards rule catalog changes;
// logger and metrics may be nil.
func NewService(rules RuleStore, deriver *Deriver, authz Authorizer, logger *observability.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		rules:   rules,
		deriver: deriver,
		authz:   authz,
		logger:  observability.OrNop(logger),
		metrics: metrics,
		now:     time.Now,
	}
}

// WithClock overrides the time source
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// GetAllAccessRules returns the full rule catalog
func (s *Service) GetAllAccessRules(ctx context.Context) ([]AccessRule, error) {
	return s.rules.ListRules(ctx)
}

// GetRule returns one rule
func (s *Service) GetRule(ctx context.Context, id int64) (*AccessRule, error) {
	return s.rules.GetRule(ctx, id)
}

// DeriveUserView returns the effective role level and project scope of a user
func (s *Service) DeriveUserView(ctx context.Context, userID int64) (*UserView, error) {
	return s.deriver.Derive(ctx, userID)
}

// RestrictionsForUser derives the user's view and evaluates every rule against
// it. A nil userID is evaluated as a guest.
func (s *Service) RestrictionsForUser(ctx context.Context, userID *int64) (*UserAccess, error) {
	if userID == nil {
		r, err := s.RestrictionsForSubject(ctx, SubjectForLevel(LevelGuest, nil))
		if err != nil {
			return nil, err
		}
		return &UserAccess{Restrictions: r}, nil
	}

	view, err := s.deriver.Derive(ctx, *userID)
	if err != nil {
		return nil, err
	}
	r, err := s.RestrictionsForSubject(ctx, view.Subject())
	if err != nil {
		return nil, err
	}
	return &UserAccess{View: view, Restrictions: r}, nil
}

// RestrictionsForRole evaluates rules for a stored role string. A nil role is a guest.
func (s *Service) RestrictionsForRole(ctx context.Context, role *string, isLeadership bool, hospitalID *int64) (Restrictions, error) {
	return s.RestrictionsForSubject(ctx, SubjectForRole(role, isLeadership, hospitalID))
}

// RestrictionsForSubject loads the current rule catalog and evaluates it
func (s *Service) RestrictionsForSubject(ctx context.Context, subject Subject) (r Restrictions, err error) {
	level := string(subject.Level)
	if level == "" {
		level = "custom"
	}
	ctx, span := observability.StartSpan(ctx, "access.Evaluate",
		attribute.String("role_level", level),
		attribute.StringSlice("keys", subject.Keys),
	)
	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation("evaluate_access", start, err)
		observability.EndSpan(span, err)
	}()

	rules, err := s.rules.ListRules(ctx)
	if err != nil {
		return Restrictions{}, err
	}

	r = Evaluate(rules, subject)
	s.metrics.RecordAccessEvaluation(level)
	span.SetAttributes(
		attribute.Int("restricted_pages", len(r.RestrictedPages)),
		attribute.Int("restricted_features", len(r.RestrictedFeatures)),
	)
	return r, nil
}

// CreateRule adds a rule. (type, key, hospital) must be unique.
func (s *Service) CreateRule(ctx context.Context, actorID int64, req CreateRuleRequest) (*AccessRule, error) {
	if err := s.authorize(ctx, actorID); err != nil {
		return nil, err
	}
	req.ResourceKey = strings.TrimSpace(req.ResourceKey)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if !req.ResourceType.Valid() {
		return nil, apperrors.Validationf("invalid resource type %q", req.ResourceType)
	}

	_, err := s.rules.FindRule(ctx, req.ResourceType, req.ResourceKey, req.HospitalID)
	if err == nil {
		return nil, apperrors.Conflict(fmt.Sprintf("an access rule for %s %s already exists", req.ResourceType, req.ResourceKey))
	}
	if !apperrors.IsNotFound(err) {
		return nil, err
	}

	now := s.clock()
	rule := &AccessRule{
		ResourceType:       req.ResourceType,
		ResourceKey:        req.ResourceKey,
		Description:        req.Description,
		AllowedRoles:       dedupe(req.AllowedRoles),
		DeniedRoles:        dedupe(req.DeniedRoles),
		RestrictionMessage: req.RestrictionMessage,
		HospitalID:         req.HospitalID,
		IsActive:           req.IsActive == nil || *req.IsActive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.rules.CreateRule(ctx, rule); err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"rule_id":       rule.ID,
		"resource_type": string(rule.ResourceType),
		"resource_key":  rule.ResourceKey,
		"actor_id":      actorID,
	}).Info("Access rule created")
	return rule, nil
}

// UpdateRule applies a partial update to a rule
func (s *Service) UpdateRule(ctx context.Context, actorID, id int64, req UpdateRuleRequest) (*AccessRule, error) {
	if err := s.authorize(ctx, actorID); err != nil {
		return nil, err
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	for _, list := range []*[]string{req.AllowedRoles, req.DeniedRoles} {
		if err := validateRoleList(list); err != nil {
			return nil, err
		}
	}

	rule, err := s.rules.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Description != nil {
		rule.Description = *req.Description
	}
	if req.AllowedRoles != nil {
		rule.AllowedRoles = dedupe(*req.AllowedRoles)
	}
	if req.DeniedRoles != nil {
		rule.DeniedRoles = dedupe(*req.DeniedRoles)
	}
	if req.RestrictionMessage != nil {
		rule.RestrictionMessage = *req.RestrictionMessage
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	rule.UpdatedAt = s.clock()

	if err := s.rules.UpdateRule(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// DeleteRule removes a rule
func (s *Service) DeleteRule(ctx context.Context, actorID, id int64) error {
	if err := s.authorize(ctx, actorID); err != nil {
		return err
	}
	if err := s.rules.DeleteRule(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("rule_id", id).WithField("actor_id", actorID).Info("Access rule deleted")
	return nil
}

func (s *Service) authorize(ctx context.Context, actorID int64) error {
	if s.authz == nil {
		return apperrors.Forbidden("no permission checker configured")
	}
	return s.authz.Require(ctx, actorID, PermissionManageRules, nil)
}

func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func validateRoleList(list *[]string) error {
	if list == nil {
		return nil
	}
	for _, role := range *list {
		if !validation.IsRoleName(role) {
			return apperrors.Validationf("invalid role name %q in role list", role)
		}
	}
	return nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
