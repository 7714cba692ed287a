// Package cli provides the ehrops operator command-line interface.
//
// # Overview
//
// The CLI talks straight to the engine's database. It is meant for operators
// bootstrapping an environment or inspecting a user's access, not for
// day-to-day administration.
//
// # Commands
//
// seed: Create the base roles and permissions if missing
//
//	ehrops seed
//
// bootstrap-admin: Grant the admin role to the first operator
//
//	ehrops bootstrap-admin --user 42
//
// roles: List roles
//
//	ehrops roles --active
//
// permissions: Show a user's effective permissions
//
//	ehrops permissions --user 42 --project 7
//
// check: Check one permission
//
//	ehrops check --user 42 --permission projects:edit --project 7
//
// restrictions: Show the pages, features and APIs hidden from a user
//
//	ehrops restrictions --user 42
//
// simulate: Preview a role (refused in production)
//
//	ehrops simulate --role consultant
//
// invite, revoke, sweep: Invitation maintenance
//
//	ehrops invite --email new@example.com --role consultant --by 42
//	ehrops revoke --id 9 --by 42 --reason "contract ended"
//	ehrops sweep
//
// # Configuration
//
// The binary reads the same EHROPS_* environment variables as the
// maintenance daemon; a .env file in the working directory is loaded first.
package cli
