// Package rbac provides the role/permission model of the operations backend,
// the effective-permission resolver and boot-time seeding of base roles.
//
// # Model
//
// Permissions are "domain:action" names such as "hospitals:create". Roles are
// either base (seeded, never deletable) or custom (operator-defined, optionally
// scoped to one hospital). A role's permission set is always replaced as a
// whole. Users hold roles through assignments that are global (no project) or
// scoped to one project.
//
// # Resolution
//
// The Resolver computes the union of active permissions over every active role
// assigned to a user globally or for the requested project:
//
//	perms, err := resolver.GetEffectivePermissions(ctx, userID, &projectID)
//	ok, err := resolver.HasPermission(ctx, userID, "projects:edit", &projectID)
//
// Nothing in this path is cached; every call reads current state.
//
// # Seeding
//
// Seeder.SeedBaseRolesAndPermissions creates the embedded base catalog
// (catalog.yaml) by unique name, is safe to run on every start, and records a
// persisted marker so later starts skip the work.
package rbac
