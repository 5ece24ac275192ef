// Package httpapi exposes the Engine and the bookings service as JSON over
// HTTP on a chi router.
//
// Account routes carry the caller's credentials in the request body
// (auth_username, auth_token) so they stay compatible with existing
// clients. Booking routes are guarded by middleware.Guard and read them from
// the X-Auth-Username and Authorization headers instead.
//
// Every failure is answered with {"message": ..., "status_code": N} where N
// equals the HTTP status.
package httpapi
