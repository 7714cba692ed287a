package rbac

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/ehrops/pkg/apperrors"
	"github.com/platinummonkey/ehrops/pkg/audit"
	"github.com/platinummonkey/ehrops/pkg/observability"
	"github.com/platinummonkey/ehrops/pkg/storage/lock"
)

//go:embed catalog.yaml
var catalogYAML []byte

// SeedMarkerKey identifies the base catalog in seed_markers
const SeedMarkerKey = "rbac.base_catalog"

const seedLockName = "rbac-seed"

// Seed outcomes
const (
	SeedStatusSeeded   = "seeded"
	SeedStatusUpToDate = "up_to_date"
	SeedStatusSkipped  = "skipped"
	SeedStatusFailed   = "failed"
)

// Catalog is the base set of permissions and roles created at startup
type Catalog struct {
	Version string          `yaml:"version"`
	Domains []CatalogDomain `yaml:"domains"`
	Roles   []CatalogRole   `yaml:"roles"`
}

// CatalogDomain groups the actions of one permission domain
type CatalogDomain struct {
	Name    string          `yaml:"name"`
	Actions []CatalogAction `yaml:"actions"`
}

// CatalogAction is one permission within a domain
type CatalogAction struct {
	Action      string `yaml:"action"`
	Description string `yaml:"description"`
}

// CatalogRole is a base role and the permissions it is created with
type CatalogRole struct {
	Name           string   `yaml:"name"`
	DisplayName    string   `yaml:"display_name"`
	Description    string   `yaml:"description"`
	AllPermissions bool     `yaml:"all_permissions"`
	Permissions    []string `yaml:"permissions"`
}

// PermissionNames lists every catalog permission in declaration order
func (c *Catalog) PermissionNames() []string {
	var names []string
	for _, d := range c.Domains {
		for _, a := range d.Actions {
			names = append(names, PermissionName(d.Name, a.Action))
		}
	}
	return names
}

// RolePermissions returns the permission names a base role is created with
func (c *Catalog) RolePermissions(role CatalogRole) []string {
	if role.AllPermissions {
		return c.PermissionNames()
	}
	return role.Permissions
}

// DefaultCatalog parses the embedded base catalog
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(catalogYAML)
}

// ParseCatalog parses and checks a catalog document
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if c.Version == "" {
		return nil, fmt.Errorf("catalog version is required")
	}

	known := make(map[string]bool)
	for _, name := range c.PermissionNames() {
		if _, _, err := ParsePermissionName(name); err != nil {
			return nil, err
		}
		if known[name] {
			return nil, fmt.Errorf("duplicate catalog permission %s", name)
		}
		known[name] = true
	}
	for _, r := range c.Roles {
		if r.Name == "" {
			return nil, fmt.Errorf("catalog role without name")
		}
		for _, p := range r.Permissions {
			if !known[p] {
				return nil, fmt.Errorf("role %s references unknown permission %s", r.Name, p)
			}
		}
	}
	return &c, nil
}

// SeedResult describes what a seed run did
type SeedResult struct {
	Status             string `json:"status"`
	Version            string `json:"version"`
	PermissionsCreated int    `json:"permissions_created"`
	RolesCreated       int    `json:"roles_created"`
	PermissionsLinked  int    `json:"permissions_linked"`
}

// Seeder creates the base catalog. Entries are matched by name. Permissions
// introduced by a newer catalog version are linked to the existing base roles
// that list them; no other existing link is touched, and custom roles are
// never modified. Each run commits as a whole or not at all.
type Seeder struct {
	store   Storage
	catalog *Catalog
	locker  lock.Locker
	audit   audit.Logger
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewSeeder creates a seeder for catalog. locker, auditLog, logger and metrics may be nil.
func NewSeeder(store Storage, catalog *Catalog, locker lock.Locker, auditLog audit.Logger, logger *observability.Logger, metrics *observability.Metrics) *Seeder {
	if locker == nil {
		locker = lock.NoopLocker{}
	}
	if auditLog == nil {
		auditLog = audit.NoopLogger{}
	}
	return &Seeder{
		store:   store,
		catalog: catalog,
		locker:  locker,
		audit:   auditLog,
		logger:  observability.OrNop(logger),
		metrics: metrics,
		now:     time.Now,
	}
}

// SeedBaseRolesAndPermissions creates missing catalog permissions and base roles.
// It is safe to call on every start: a persisted marker short-circuits runs
// for a catalog version that is already applied, and another instance holding
// the seed lock makes this call return SeedStatusSkipped.
func (s *Seeder) SeedBaseRolesAndPermissions(ctx context.Context) (result *SeedResult, err error) {
	result = &SeedResult{Version: s.catalog.Version}
	defer func() {
		if err != nil {
			*result = SeedResult{Version: s.catalog.Version, Status: SeedStatusFailed}
		}
		s.metrics.RecordSeedRun(result.Status)
	}()

	applied, err := s.store.GetSeedMarker(ctx, SeedMarkerKey)
	if err != nil {
		return result, err
	}
	if applied == s.catalog.Version {
		result.Status = SeedStatusUpToDate
		return result, nil
	}

	release, err := s.locker.Acquire(ctx, seedLockName)
	if errors.Is(err, lock.ErrNotAcquired) {
		s.logger.Info("Base catalog seed already running elsewhere, skipping")
		result.Status = SeedStatusSkipped
		return result, nil
	}
	if err != nil {
		return result, apperrors.Dependency("failed to acquire seed lock", err)
	}
	defer func() {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			s.logger.WithError(rerr).Warn("Failed to release seed lock")
		}
	}()

	err = s.store.RunInTx(ctx, func(tx Storage) error {
		// The marker may have been written between the first read and Acquire.
		applied, err := tx.GetSeedMarker(ctx, SeedMarkerKey)
		if err != nil {
			return err
		}
		if applied == s.catalog.Version {
			result.Status = SeedStatusUpToDate
			return nil
		}
		return s.apply(ctx, tx, result)
	})
	if err != nil {
		return result, err
	}
	if result.Status == SeedStatusUpToDate {
		return result, nil
	}
	result.Status = SeedStatusSeeded

	s.logger.WithFields(map[string]interface{}{
		"version":             s.catalog.Version,
		"permissions_created": result.PermissionsCreated,
		"roles_created":       result.RolesCreated,
		"permissions_linked":  result.PermissionsLinked,
	}).Info("Seeded base roles and permissions")

	audit.Record(ctx, s.audit, s.logger, &audit.Event{
		EventType:    audit.EventTypeSeed,
		ResourceType: audit.ResourceTypeCatalog,
		ResourceID:   s.catalog.Version,
		Message:      "base catalog seeded",
		Metadata: map[string]interface{}{
			"permissions_created": result.PermissionsCreated,
			"roles_created":       result.RolesCreated,
			"permissions_linked":  result.PermissionsLinked,
		},
	})
	return result, nil
}

// apply writes the catalog through tx and records the marker
func (s *Seeder) apply(ctx context.Context, tx Storage, result *SeedResult) error {
	now := s.now().UTC().Truncate(time.Microsecond)

	ids, added, err := s.seedPermissions(ctx, tx, now)
	if err != nil {
		return err
	}
	result.PermissionsCreated = len(added)

	if err := s.seedRoles(ctx, tx, ids, added, now, result); err != nil {
		return err
	}
	return tx.SetSeedMarker(ctx, SeedMarkerKey, s.catalog.Version, now)
}

// seedPermissions returns the id of every catalog permission and the set of
// names created by this run
func (s *Seeder) seedPermissions(ctx context.Context, tx Storage, now time.Time) (map[string]int64, map[string]bool, error) {
	ids := make(map[string]int64)
	added := make(map[string]bool)
	for _, d := range s.catalog.Domains {
		for _, a := range d.Actions {
			name := PermissionName(d.Name, a.Action)
			existing, err := tx.GetPermissionByName(ctx, name)
			if err == nil {
				ids[name] = existing.ID
				continue
			}
			if !apperrors.IsNotFound(err) {
				return nil, nil, err
			}

			perm := &Permission{
				Name:        name,
				Domain:      d.Name,
				Action:      a.Action,
				Description: a.Description,
				IsActive:    true,
				CreatedAt:   now,
			}
			if err := tx.CreatePermission(ctx, perm); err != nil {
				return nil, nil, err
			}
			ids[name] = perm.ID
			added[name] = true
		}
	}
	return ids, added, nil
}

func (s *Seeder) seedRoles(ctx context.Context, tx Storage, ids map[string]int64, added map[string]bool, now time.Time, result *SeedResult) error {
	for _, cr := range s.catalog.Roles {
		names := s.catalog.RolePermissions(cr)

		existing, err := tx.GetRoleByName(ctx, cr.Name)
		switch {
		case err == nil:
			if !existing.IsBase() {
				continue
			}
			var fresh []int64
			for _, name := range names {
				if added[name] {
					fresh = append(fresh, ids[name])
				}
			}
			if len(fresh) == 0 {
				continue
			}
			n, err := tx.AddRolePermissions(ctx, existing.ID, dedupeIDs(fresh), now)
			if err != nil {
				return err
			}
			result.PermissionsLinked += n
			continue
		case !apperrors.IsNotFound(err):
			return err
		}

		role := &Role{
			Name:        cr.Name,
			DisplayName: cr.DisplayName,
			Description: cr.Description,
			RoleType:    RoleTypeBase,
			IsActive:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.CreateRole(ctx, role); err != nil {
			return err
		}

		permIDs := make([]int64, 0, len(names))
		for _, name := range names {
			permIDs = append(permIDs, ids[name])
		}
		if _, err := tx.AddRolePermissions(ctx, role.ID, dedupeIDs(permIDs), now); err != nil {
			return err
		}
		result.RolesCreated++
	}
	return nil
}
