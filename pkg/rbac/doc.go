// Package rbac implements the platform's flat role-based access control.
//
// # Model
//
// Permissions are dotted codes such as "events.manage". Roles bundle
// permissions; users hold roles. A user's effective permission set is the
// distinct union over every role they hold, so two roles granting the same
// code contribute it once. A user with no roles has an empty set, which is
// not an error.
//
// # Decisions
//
// Decide is exact set membership: no wildcards, no hierarchy, and a malformed
// or empty code is always denied.
//
//	rbac.Decide(principal, "events.manage") // Allow or Deny
//
// Routes declare their requirement as a plain string and nothing is
// registered ahead of time. Any policy name containing a dot is treated as a
// permission requirement; other names only require authentication:
//
//	pm := rbac.NewPermissionMiddleware(metrics)
//	router.Handle("/rbac/roles", pm.Require("roles.view")(h)).Methods("GET")
//	router.Handle("/reports", pm.Policy("Authenticated")(h)).Methods("GET")
//
// # Resolution
//
// Resolver builds an *auth.Principal from the Store. An optional expiring
// LRU cache sits in front of the store; handlers that change the role graph
// invalidate the affected users. Concurrent resolves of the same user share
// one query.
//
// # Seeding
//
// Seed installs the permission catalog and the system roles (PlatformAdmin,
// Organizer, EventAdmin, Viewer). It can read a YAML document via
// LoadSeedFile and is safe to run repeatedly.
package rbac
