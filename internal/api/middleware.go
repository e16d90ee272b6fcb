package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"maze-rewards/internal/auth"
	"maze-rewards/internal/model"
)

type contextKey string

const (
	accountKey     contextKey = "account"
	requestInfoKey contextKey = "requestInfo"
)

const requestIDHeader = "X-Request-Id"

// requestInfo is filled in by inner middleware and read back by the
// request logger once the handler returns.
type requestInfo struct {
	uid string
}

// RequestID keeps a caller-supplied X-Request-Id or assigns a fresh UUID,
// echoes it and stores it where chimiddleware.GetReqID finds it.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), chimiddleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestLogger logs every request once it completes: 5xx at error, 4xx at
// warn, everything else at debug.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		info := &requestInfo{}
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), requestInfoKey, info)))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		var event *zerolog.Event
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		default:
			event = log.Debug()
		}
		if info.uid != "" {
			event = event.Str("uid", info.uid)
		}
		event.
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// PlayerAuth verifies the bearer token with the identity platform, bootstraps
// the account and stores it in the request context.
func PlayerAuth(verifier IdentityVerifier, accounts AccountService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				WriteError(w, http.StatusUnauthorized, "Authentication required", CodeAuthRequired)
				return
			}

			id, err := verifier.Verify(r.Context(), token)
			if err != nil {
				if !errors.Is(err, auth.ErrAuth) {
					log.Error().Err(err).Msg("Identity verification failed")
				}
				WriteError(w, http.StatusUnauthorized, "Authentication required", CodeAuthRequired)
				return
			}

			acc, err := accounts.EnsureAccount(r.Context(), id.UID, id.Username)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}

			if info, ok := r.Context().Value(requestInfoKey).(*requestInfo); ok {
				info.uid = acc.UID
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), accountKey, acc)))
		})
	}
}

// AccountFromContext returns the account stored by PlayerAuth.
func AccountFromContext(ctx context.Context) (*model.Account, bool) {
	acc, ok := ctx.Value(accountKey).(*model.Account)
	return acc, ok
}

// AdminOnly requires a valid admin session token.
func AdminOnly(tokens AdminAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				WriteError(w, http.StatusUnauthorized, "Admin authentication required", CodeAuthRequired)
				return
			}
			if _, err := tokens.ValidateToken(token); err != nil {
				if errors.Is(err, auth.ErrAdminDisabled) {
					WriteError(w, http.StatusForbidden, "Admin access is disabled", CodeAdminDisabled)
					return
				}
				WriteError(w, http.StatusUnauthorized, "Admin authentication required", CodeAuthRequired)
				return
			}
			if info, ok := r.Context().Value(requestInfoKey).(*requestInfo); ok {
				info.uid = "admin"
			}
			next.ServeHTTP(w, r)
		})
	}
}
