// Package auth carries the caller identity resolved by the session gate.
//
// The password login and session cookies live outside this service. An upstream
// gateway authenticates the session and forwards the account, email and role; a
// Resolver turns that into an Identity once per request and handlers read it with
// IdentityFromContext. Role checks go through Identity capabilities rather than
// string comparisons at call sites.
package auth
