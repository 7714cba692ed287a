// Package access decides which pages, features and APIs a caller may reach.
//
// Access rules are evaluated against a Subject built from a closed RoleLevel
// enumeration. Deny lists win over allow lists, an empty allow list restricts
// nobody, and an unauthenticated caller is the explicit LevelGuest.
//
// The level of a signed-in user is derived, not read: a hospital-staff record
// makes the user hospital staff (or leadership), otherwise an admin stays admin
// and everyone else is a consultant. The same derivation yields the projects
// the user is scoped to.
package access
