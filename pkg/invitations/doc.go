// Package invitations manages how an email address becomes an authorized
// account.
//
// An invitation is issued with a 48 character single-use token and an expiry.
// At most one active (pending and unexpired) invitation exists per normalized
// email. Stale pending rows are expired lazily by Create and in bulk by
// ExpireOldInvitations, which the maintenance daemon runs on a schedule.
//
// Revoking an accepted invitation revokes the accepting user as well:
//
//	inv, err := manager.Revoke(ctx, id, adminID, "contract ended")
//	// users.access_status for inv.AcceptedByUserID is now "revoked"
//
// Notifications go through a Notifier. WebhookNotifier posts HMAC-signed JSON
// to a mail relay and retries transient failures with exponential backoff.
// Delivery failures are logged and counted but never undo the invitation.
package invitations
