// Package api assembles the access-control HTTP server.
//
// NewServer builds the role-permission stores, the principal resolver, the
// event access gate and the invitation manager over one database handle and
// mounts their routes on a gorilla/mux router. Every route sits behind the
// same middleware chain:
//
//	request id -> logger -> audit sink -> panic recovery -> body limit
//	  -> prometheus metrics -> bearer authentication
//
// Authentication resolves the caller's principal from the role graph on each
// request; route-level permission checks and the event gate then read that
// principal. Invitation acceptance is additionally rate limited per caller,
// through Redis when a client is supplied and in process otherwise.
//
// HealthHandler serves the liveness, readiness and /metrics endpoints and is
// meant for a separate listener:
//
//	server, err := api.NewServer(ctx, api.Dependencies{
//		Config:  cfg,
//		DB:      db,
//		Logger:  logger,
//		Metrics: metrics,
//	})
//	if err != nil {
//		return err
//	}
//	go http.ListenAndServe(":9090", server.HealthHandler())
//	http.ListenAndServe(":8080", server.Handler())
package api
