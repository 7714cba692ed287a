package cli

import (
	"context"
	"fmt"

	"github.com/platinummonkey/ehrops/pkg/engine"
)

func (a *app) newRestrictionsCommand() *Command {
	cmd := a.command("restrictions", "Show what the access rules hide from a user")
	user := cmd.Flags.Int64("user", 0, "User ID (omit to evaluate a guest)")
	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		return a.withEngine(func(ctx context.Context, e *engine.Engine) error {
			result, err := e.RestrictionsForUser(ctx, optionalID(*user))
			if err != nil {
				return err
			}
			return a.printJSON(result)
		})
	}
	return cmd
}

func (a *app) newSimulateCommand() *Command {
	cmd := a.command("simulate", "Preview the permissions and restrictions of a role")
	role := cmd.Flags.String("role", "", "Role name")
	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *role == "" {
			return fmt.Errorf("role is required")
		}
		return a.withEngine(func(ctx context.Context, e *engine.Engine) error {
			result, err := e.Simulate(ctx, *role)
			if err != nil {
				return err
			}
			return a.printJSON(result)
		})
	}
	return cmd
}
