package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/api/response"
	"github.com/TechnicallyShaun/nota-scribe/internal/scribe/logging"
)

// Recovery turns a handler panic into a 500 error envelope.
func Recovery(log logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.Error("panic recovered", fmt.Errorf("%v", rec),
						logging.String("stack", string(debug.Stack())),
						logging.String("method", r.Method),
						logging.String("path", r.URL.Path),
					)
					response.Error(w, http.StatusInternalServerError,
						response.CodeInternal, "An unexpected error occurred", nil)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
