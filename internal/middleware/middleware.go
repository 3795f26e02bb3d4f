// Package middleware provides the small HTTP middleware chain used by
// internal/httpserver (request id propagation, request metrics).
package middleware

import "net/http"

// Chain composes middleware in the order given, outermost first.
func Chain(h http.Handler, mw ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}
