package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"grandgold-errcache/pkg/apierror"
	"grandgold-errcache/pkg/response"
)

// Recovery is a middleware that recovers from panics.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("panic in handler",
					"component", "Recovery",
					"request_id", GetRequestID(r.Context()),
					"path", r.URL.Path,
					"panic", err,
					"stack", string(debug.Stack()),
				)
				response.Error(w, apierror.InternalError("internal server error"))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
