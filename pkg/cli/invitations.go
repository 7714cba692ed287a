package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/ehrops/pkg/engine"
	"github.com/platinummonkey/ehrops/pkg/invitations"
)

func (a *app) newInviteCommand() *Command {
	cmd := a.command("invite", "Invite a user by email")
	email := cmd.Flags.String("email", "", "Invitee email")
	role := cmd.Flags.String("role", invitations.RoleConsultant, "Role granted on acceptance")
	by := cmd.Flags.Int64("by", 0, "Inviting user ID")
	days := cmd.Flags.Int("days", 0, "Days until expiry (default from configuration)")
	message := cmd.Flags.String("message", "", "Personal message")
	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *email == "" || *by <= 0 {
			return fmt.Errorf("email and by are required")
		}
		return a.withEngine(func(ctx context.Context, e *engine.Engine) error {
			inv, err := e.CreateInvitation(ctx, invitations.CreateRequest{
				Email:           *email,
				Role:            *role,
				InvitedByUserID: *by,
				Message:         *message,
				ExpiresInDays:   *days,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Invitation %d sent to %s, expires %s\n", inv.ID, inv.Email, inv.ExpiresAt.Format(time.RFC3339))
			if url := e.Invitations.AcceptURL(inv.Token); url != "" {
				fmt.Fprintf(a.out, "Accept at: %s\n", url)
			}
			return nil
		})
	}
	return cmd
}

func (a *app) newRevokeCommand() *Command {
	cmd := a.command("revoke", "Revoke an invitation and any access it granted")
	id := cmd.Flags.Int64("id", 0, "Invitation ID")
	by := cmd.Flags.Int64("by", 0, "Revoking user ID")
	reason := cmd.Flags.String("reason", "", "Reason recorded with the revocation")
	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *id <= 0 || *by <= 0 {
			return fmt.Errorf("id and by are required")
		}
		return a.withEngine(func(ctx context.Context, e *engine.Engine) error {
			inv, err := e.RevokeInvitation(ctx, *id, *by, *reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Invitation %d for %s is %s\n", inv.ID, inv.Email, inv.Status)
			return nil
		})
	}
	return cmd
}

func (a *app) newSweepCommand() *Command {
	cmd := a.command("sweep", "Expire pending invitations past their expiry")
	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		return a.withEngine(func(ctx context.Context, e *engine.Engine) error {
			n, err := e.ExpireOldInvitations(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Expired %d invitations\n", n)
			return nil
		})
	}
	return cmd
}
