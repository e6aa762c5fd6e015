package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/promotrack/promotrack/internal/apperror"
)

// Recoverer turns a handler panic into a 500 envelope. The panic value is
// logged with the stack but never written to the client. http.ErrAbortHandler
// is re-raised so net/http can drop the connection as intended.
func Recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rvr := recover()
				if rvr == nil {
					return
				}
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}

				logger.Error("panic recovered",
					slog.String("request_id", GetRequestID(r.Context())),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.Any("panic", rvr),
					slog.String("stack", string(debug.Stack())),
				)
				apperror.Write(w, apperror.Internal(fmt.Errorf("panic: %v", rvr)))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
