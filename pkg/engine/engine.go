package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/ehrops/pkg/access"
	"github.com/platinummonkey/ehrops/pkg/async"
	"github.com/platinummonkey/ehrops/pkg/audit"
	"github.com/platinummonkey/ehrops/pkg/config"
	"github.com/platinummonkey/ehrops/pkg/directory"
	"github.com/platinummonkey/ehrops/pkg/invitations"
	"github.com/platinummonkey/ehrops/pkg/observability"
	"github.com/platinummonkey/ehrops/pkg/rbac"
	"github.com/platinummonkey/ehrops/pkg/simulation"
	"github.com/platinummonkey/ehrops/pkg/storage/lock"
)

// Options wires an Engine. DB is required.
type Options struct {
	DB      *sql.DB
	Redis   *redis.Client
	Config  *config.Config
	Logger  *observability.Logger
	Metrics *observability.Metrics

	// Notifier overrides the notifier chosen from Config.Invitations
	Notifier invitations.Notifier

	// Clock overrides time.Now for every service
	Clock func() time.Time
}

// Engine is the authorization and access-control engine
type Engine struct {
	Store       *rbac.SQLStore
	Resolver    *rbac.Resolver
	RBAC        *rbac.Service
	Seeder      *rbac.Seeder
	Directory   *directory.SQLDirectory
	Access      *access.Service
	Invitations *invitations.Manager
	Simulator   *simulation.Simulator

	cfg    *config.Config
	logger *observability.Logger
	runner *async.Runner
}

// New builds an engine from opts
func New(opts Options) (*Engine, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("engine requires a database")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Config{Environment: config.EnvDevelopment}
	}
	logger := observability.OrNop(opts.Logger)

	dbAudit, err := audit.NewDBLogger(opts.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit logger: %w", err)
	}
	auditLog := audit.NewMultiLogger(dbAudit, audit.NewLogSink(logger))

	catalog, err := rbac.DefaultCatalog()
	if err != nil {
		return nil, fmt.Errorf("failed to load role catalog: %w", err)
	}

	var locker lock.Locker = lock.NoopLocker{}
	if opts.Redis != nil {
		locker = lock.NewRedisLocker(opts.Redis, cfg.Redis.SeedLockTTL)
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier, err = newNotifier(cfg.Invitations, logger)
		if err != nil {
			return nil, err
		}
	}

	var runner *async.Runner
	if cfg.Invitations.AsyncNotify {
		runner = async.NewRunner(logger)
	}

	store := rbac.NewStore(opts.DB)
	resolver := rbac.NewResolver(store, opts.Metrics)
	dir := directory.NewSQLDirectory(opts.DB)

	accessSvc := access.NewService(access.NewRuleStore(opts.DB), access.NewDeriver(dir), resolver, logger, opts.Metrics)

	manager, err := invitations.NewManager(invitations.Config{
		DB:                opts.DB,
		Notifier:          notifier,
		Authorizer:        resolver,
		Audit:             auditLog,
		Logger:            logger,
		Metrics:           opts.Metrics,
		Runner:            runner,
		DefaultExpiryDays: cfg.Invitations.DefaultExpiryDays,
		ResendExtension:   cfg.Invitations.ResendExtension,
		AcceptBaseURL:     cfg.Invitations.AcceptBaseURL,
	})
	if err != nil {
		return nil, err
	}

	e := &Engine{
		Store:       store,
		Resolver:    resolver,
		RBAC:        rbac.NewService(store, resolver, auditLog, logger),
		Seeder:      rbac.NewSeeder(store, catalog, locker, auditLog, logger, opts.Metrics),
		Directory:   dir,
		Access:      accessSvc,
		Invitations: manager,
		Simulator: simulation.NewSimulator(store, accessSvc, simulation.Options{
			Production: cfg.IsProduction(),
			CacheSize:  cfg.Simulation.CacheSize,
			CacheTTL:   cfg.Simulation.CacheTTL,
			Logger:     logger,
			Metrics:    opts.Metrics,
		}),
		cfg:    cfg,
		logger: logger,
		runner: runner,
	}

	if opts.Clock != nil {
		e.RBAC.WithClock(opts.Clock)
		e.Access.WithClock(opts.Clock)
		e.Invitations.WithClock(opts.Clock)
	}
	return e, nil
}

func newNotifier(cfg config.InvitationConfig, logger *observability.Logger) (invitations.Notifier, error) {
	if cfg.WebhookURL == "" {
		return invitations.NewLogNotifier(logger), nil
	}
	n, err := invitations.NewWebhookNotifier(cfg.WebhookURL, cfg.WebhookSecret, invitations.DefaultRetryConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure mail relay: %w", err)
	}
	return n, nil
}

// Initialize seeds the base catalog. A failed seed is logged and startup
// continues; authorization then degrades to no permissions.
func (e *Engine) Initialize(ctx context.Context) *rbac.SeedResult {
	result, err := e.Seeder.SeedBaseRolesAndPermissions(ctx)
	if err != nil {
		e.logger.WithError(err).Error("Failed to seed base roles and permissions, continuing without them")
		return result
	}
	e.logger.WithFields(map[string]interface{}{
		"status":  result.Status,
		"version": result.Version,
	}).Info("Base role catalog checked")
	return result
}

// Close drains background notifications
func (e *Engine) Close(timeout time.Duration) error {
	if e.runner == nil {
		return nil
	}
	return e.runner.Wait(timeout)
}

// Config returns the configuration the engine was built with
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// SeedBaseRolesAndPermissions runs the idempotent catalog seed
func (e *Engine) SeedBaseRolesAndPermissions(ctx context.Context) (*rbac.SeedResult, error) {
	result, err := e.Seeder.SeedBaseRolesAndPermissions(ctx)
	if err == nil && result.Status == rbac.SeedStatusSeeded {
		e.Simulator.Purge()
	}
	return result, err
}

// ListRoles lists roles matching filter
func (e *Engine) ListRoles(ctx context.Context, filter rbac.RoleFilter) ([]rbac.Role, error) {
	return e.RBAC.ListRoles(ctx, filter)
}

// CreateRole creates a custom role on behalf of actorID
func (e *Engine) CreateRole(ctx context.Context, actorID int64, req rbac.CreateRoleRequest) (*rbac.Role, error) {
	role, err := e.RBAC.CreateRole(ctx, actorID, req)
	if err == nil {
		e.Simulator.Purge()
	}
	return role, err
}

// UpdateRole applies req to role id
func (e *Engine) UpdateRole(ctx context.Context, actorID, id int64, req rbac.UpdateRoleRequest) (*rbac.Role, error) {
	role, err := e.RBAC.UpdateRole(ctx, actorID, id, req)
	if err == nil {
		e.Simulator.Purge()
	}
	return role, err
}

// DeleteRole deletes a custom role
func (e *Engine) DeleteRole(ctx context.Context, actorID, id int64) error {
	err := e.RBAC.DeleteRole(ctx, actorID, id)
	if err == nil {
		e.Simulator.Purge()
	}
	return err
}

// ListPermissions lists permissions matching filter
func (e *Engine) ListPermissions(ctx context.Context, filter rbac.PermissionFilter) ([]rbac.Permission, error) {
	return e.RBAC.ListPermissions(ctx, filter)
}

// SetRolePermissions replaces the permission set of roleID
func (e *Engine) SetRolePermissions(ctx context.Context, actorID, roleID int64, permissionIDs []int64) ([]rbac.RolePermission, error) {
	links, err := e.RBAC.SetRolePermissions(ctx, actorID, roleID, permissionIDs)
	if err == nil {
		e.Simulator.Purge()
	}
	return links, err
}

// AssignRoleToUser grants roleID to userID, globally or within projectID
func (e *Engine) AssignRoleToUser(ctx context.Context, actorID, userID, roleID int64, projectID *int64) (*rbac.RoleAssignment, error) {
	return e.RBAC.AssignRoleToUser(ctx, actorID, userID, roleID, projectID)
}

// RemoveRoleFromUser removes one role assignment
func (e *Engine) RemoveRoleFromUser(ctx context.Context, actorID, userID, roleID int64, projectID *int64) error {
	return e.RBAC.RemoveRoleFromUser(ctx, actorID, userID, roleID, projectID)
}

// GetEffectivePermissions returns the sorted permission names userID holds
func (e *Engine) GetEffectivePermissions(ctx context.Context, userID int64, projectID *int64) ([]string, error) {
	return e.Resolver.GetEffectivePermissions(ctx, userID, projectID)
}

// HasPermission reports whether userID holds permission
func (e *Engine) HasPermission(ctx context.Context, userID int64, permission string, projectID *int64) (bool, error) {
	return e.Resolver.HasPermission(ctx, userID, permission, projectID)
}

// GetAllAccessRules lists the access-rule catalog
func (e *Engine) GetAllAccessRules(ctx context.Context) ([]access.AccessRule, error) {
	return e.Access.GetAllAccessRules(ctx)
}

// CreateAccessRule adds an access rule
func (e *Engine) CreateAccessRule(ctx context.Context, actorID int64, req access.CreateRuleRequest) (*access.AccessRule, error) {
	rule, err := e.Access.CreateRule(ctx, actorID, req)
	if err == nil {
		e.Simulator.Purge()
	}
	return rule, err
}

// UpdateAccessRule applies req to rule id
func (e *Engine) UpdateAccessRule(ctx context.Context, actorID, id int64, req access.UpdateRuleRequest) (*access.AccessRule, error) {
	rule, err := e.Access.UpdateRule(ctx, actorID, id, req)
	if err == nil {
		e.Simulator.Purge()
	}
	return rule, err
}

// DeleteAccessRule removes rule id
func (e *Engine) DeleteAccessRule(ctx context.Context, actorID, id int64) error {
	err := e.Access.DeleteRule(ctx, actorID, id)
	if err == nil {
		e.Simulator.Purge()
	}
	return err
}

// RestrictionsForUser evaluates the rule catalog for userID, or for a guest when nil
func (e *Engine) RestrictionsForUser(ctx context.Context, userID *int64) (*access.UserAccess, error) {
	return e.Access.RestrictionsForUser(ctx, userID)
}

// CreateInvitation issues and sends an invitation
func (e *Engine) CreateInvitation(ctx context.Context, req invitations.CreateRequest) (*invitations.Invitation, error) {
	return e.Invitations.Create(ctx, req)
}

// ResendInvitation re-sends invitation id, extending it when expired
func (e *Engine) ResendInvitation(ctx context.Context, id, actorID int64) (*invitations.ResendResult, error) {
	return e.Invitations.Resend(ctx, id, actorID)
}

// RevokeInvitation revokes invitation id
func (e *Engine) RevokeInvitation(ctx context.Context, id, revokedBy int64, reason string) (*invitations.Invitation, error) {
	return e.Invitations.Revoke(ctx, id, revokedBy, reason)
}

// AcceptInvitation accepts the invitation for token on behalf of userID
func (e *Engine) AcceptInvitation(ctx context.Context, token string, userID int64) (*invitations.Invitation, error) {
	return e.Invitations.Accept(ctx, token, userID)
}

// ExpireOldInvitations marks overdue pending invitations expired
func (e *Engine) ExpireOldInvitations(ctx context.Context) (int64, error) {
	return e.Invitations.ExpireOldInvitations(ctx)
}

// GetUserByEmail looks a user up by normalized email
func (e *Engine) GetUserByEmail(ctx context.Context, email string) (*directory.User, error) {
	return e.Directory.GetUserByEmail(ctx, email)
}

// UpdateUserAccessStatus sets the access status of userID
func (e *Engine) UpdateUserAccessStatus(ctx context.Context, userID int64, status directory.AccessStatus) (*directory.User, error) {
	return e.Directory.UpdateUserAccessStatus(ctx, userID, status)
}

// Simulate previews a role. Refused in production.
func (e *Engine) Simulate(ctx context.Context, roleName string) (*simulation.Result, error) {
	return e.Simulator.Simulate(ctx, roleName)
}
