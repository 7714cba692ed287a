package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/platinummonkey/ehrops/pkg/engine"
	"github.com/platinummonkey/ehrops/pkg/rbac"
)

func (a *app) newSeedCommand() *Command {
	cmd := a.command("seed", "Create the base roles and permissions")
	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		return a.withEngine(func(ctx context.Context, e *engine.Engine) error {
			result, err := e.SeedBaseRolesAndPermissions(ctx)
			if err != nil {
				return err
			}
			return a.printJSON(result)
		})
	}
	return cmd
}

func (a *app) newBootstrapAdminCommand() *Command {
	cmd := a.command("bootstrap-admin", "Grant the admin role to a user without an authorization check")
	user := cmd.Flags.Int64("user", 0, "User ID")
	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *user <= 0 {
			return fmt.Errorf("user is required")
		}
		return a.withEngine(func(ctx context.Context, e *engine.Engine) error {
			assignment, err := e.RBAC.BootstrapAdmin(ctx, *user)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "User %d is now an administrator (assignment %d)\n", assignment.UserID, assignment.ID)
			return nil
		})
	}
	return cmd
}

func (a *app) newRolesCommand() *Command {
	cmd := a.command("roles", "List roles")
	activeOnly := cmd.Flags.Bool("active", false, "Only list active roles")
	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		var filter rbac.RoleFilter
		if *activeOnly {
			active := true
			filter.IsActive = &active
		}
		return a.withEngine(func(ctx context.Context, e *engine.Engine) error {
			roles, err := e.ListRoles(ctx, filter)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTYPE\tACTIVE")
			for _, role := range roles {
				fmt.Fprintf(w, "%d\t%s\t%s\t%t\n", role.ID, role.Name, role.RoleType, role.IsActive)
			}
			return w.Flush()
		})
	}
	return cmd
}

func (a *app) newPermissionsCommand() *Command {
	cmd := a.command("permissions", "Show a user's effective permissions")
	user := cmd.Flags.Int64("user", 0, "User ID")
	project := cmd.Flags.Int64("project", 0, "Project ID (omit for global permissions only)")
	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *user <= 0 {
			return fmt.Errorf("user is required")
		}
		return a.withEngine(func(ctx context.Context, e *engine.Engine) error {
			perms, err := e.GetEffectivePermissions(ctx, *user, optionalID(*project))
			if err != nil {
				return err
			}
			for _, p := range perms {
				fmt.Fprintln(a.out, p)
			}
			return nil
		})
	}
	return cmd
}

func (a *app) newCheckCommand() *Command {
	cmd := a.command("check", "Check whether a user holds a permission")
	user := cmd.Flags.Int64("user", 0, "User ID")
	permission := cmd.Flags.String("permission", "", "Permission name (domain:action)")
	project := cmd.Flags.Int64("project", 0, "Project ID")
	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *user <= 0 || *permission == "" {
			return fmt.Errorf("user and permission are required")
		}
		return a.withEngine(func(ctx context.Context, e *engine.Engine) error {
			ok, err := e.HasPermission(ctx, *user, *permission, optionalID(*project))
			if err != nil {
				return err
			}
			if ok {
				fmt.Fprintln(a.out, "granted")
			} else {
				fmt.Fprintln(a.out, "denied")
			}
			return nil
		})
	}
	return cmd
}
