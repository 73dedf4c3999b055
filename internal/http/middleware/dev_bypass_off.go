//go:build !devauth

package middleware

import "net/http"

func devBypassMiddleware() (func(http.Handler) http.Handler, bool) {
	return nil, false
}
