// Package directory reads and updates the user records the access-control
// engine depends on but does not own: users, their hospital-staff link and the
// projects they are attached to.
//
// SQLDirectory runs against a *sql.DB; WithTx returns a copy bound to a
// transaction so a caller can update a user in the same transaction as its own
// rows:
//
//	tx, _ := db.BeginTx(ctx, nil)
//	_, err := dir.WithTx(tx).UpdateUserAccessStatus(ctx, userID, directory.AccessStatusRevoked)
package directory
