// Package cli implements arena-admin, the operator tool for the access-control
// database.
//
// # Commands
//
// migrate applies the rbac, events and audit migrations in that order:
//
//	arena-admin migrate
//
// seed loads the permission catalog and system roles. It is idempotent and
// never removes grants. -file replaces the built-in catalog:
//
//	arena-admin seed -file ./seed.yaml
//	arena-admin seed -dry-run
//
// catalog prints the built-in catalog as a seed document, a starting point
// for a custom seed file:
//
//	arena-admin catalog > seed.yaml
//
// token signs a bearer credential for an existing user:
//
//	arena-admin token -user 42 -ttl 30m
//
// check evaluates a permission code or policy name against the user's
// current roles:
//
//	arena-admin check -user 42 -requirement events.manage
package cli
