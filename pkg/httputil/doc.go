// Package httputil provides HTTP utilities for standardized request/response handling.
//
// Handlers return domain errors and let WriteAppError choose the status:
//
//	if err := svc.Accept(ctx, principal, token); err != nil {
//		httputil.WriteAppError(w, r, err) // 404, 403, 409, 400 or 500
//		return
//	}
//
// Path parameters are read from gorilla/mux route variables:
//
//	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
//	publicID, err := httputil.ParsePathUUID(r, "public_id")
//
// RequestIDMiddleware, LoggerMiddleware, LoggingMiddleware and
// RecoveryMiddleware form the outer middleware stack of the API server.
package httputil
