// ABOUTME: HTTP middleware for panic recovery and browser CORS
// ABOUTME: A panicking handler fails its own request with 500 and the process keeps serving

package bridge

import (
	"errors"
	"net/http"
	"runtime/debug"
	"slices"
)

// recoverer turns a handler panic into a 500 for that request only.
func (b *Bridge) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}
			b.logger.Error("handler panic",
				"method", r.Method,
				"path", r.URL.Path,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			b.sendJSONError(w, http.StatusInternalServerError, kindInternal, "internal server error")
		}()
		next.ServeHTTP(w, r)
	})
}

// cors adds CORS headers for configured origins and answers preflights.
func (b *Bridge) cors(next http.Handler) http.Handler {
	origins := b.cfg.CORSOrigins
	if len(origins) == 0 {
		return next
	}
	wildcard := slices.Contains(origins, "*")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (wildcard || slices.Contains(origins, origin)) {
			h := w.Header()
			if wildcard {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Last-Event-ID")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
