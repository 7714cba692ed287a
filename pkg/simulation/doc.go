// Package simulation lets developers preview what a role would see without
// signing in as it. It is refused outright in production.
//
// Results are cached briefly in an expiring LRU. The cache only serves
// previews; real authorization always goes through rbac.Resolver.
package simulation
