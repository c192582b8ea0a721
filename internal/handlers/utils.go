package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Fjallroth/matesrace/internal/services"
	"github.com/Fjallroth/matesrace/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
)

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
)

type contextKey string

const contextIdentityKey contextKey = "identity"

// ErrorResponse is the error payload of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func withIdentity(ctx context.Context, identity types.Identity) context.Context {
	return context.WithValue(ctx, contextIdentityKey, identity)
}

func identityFromContext(ctx context.Context) (types.Identity, error) {
	identity, ok := ctx.Value(contextIdentityKey).(types.Identity)
	if !ok || identity.UserID < 1 {
		return types.Identity{}, errors.New("missing identity")
	}
	return identity, nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, code services.Kind, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: string(code)})
}

// writeServiceError maps a service error kind to its HTTP status. Errors
// without a kind are logged and reported as internal.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var serviceErr *services.Error
	if !errors.As(err, &serviceErr) {
		slog.Error("request failed",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, services.KindInternal, "internal server error")
		return
	}

	if serviceErr.Kind == services.KindExternalServiceFailure {
		slog.Warn("upstream failure",
			"request_id", middleware.GetReqID(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeError(w, statusForKind(serviceErr.Kind), serviceErr.Kind, serviceErr.Message)
}

func statusForKind(kind services.Kind) int {
	switch kind {
	case services.KindAuthenticationRequired:
		return http.StatusUnauthorized
	case services.KindAuthorizationDenied, services.KindQuotaExceeded:
		return http.StatusForbidden
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindValidationFailed:
		return http.StatusBadRequest
	case services.KindConflict:
		return http.StatusConflict
	case services.KindExternalServiceFailure:
		return http.StatusBadGateway
	case services.KindDataIntegrityFailure:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func parsePagination(r *http.Request) (page, limit int, err error) {
	page = defaultPage
	limit = defaultLimit

	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, errors.New("invalid page")
		}
	}

	rawLimit := strings.TrimSpace(r.URL.Query().Get("limit"))
	if rawLimit == "" {
		rawLimit = strings.TrimSpace(r.URL.Query().Get("per_page"))
	}
	if rawLimit != "" {
		limit, err = strconv.Atoi(rawLimit)
		if err != nil || limit < 1 {
			return 0, 0, errors.New("invalid limit")
		}
	}

	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit, nil
}

func parseIDParam(r *http.Request, name, label string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id < 1 {
		return 0, errors.New("invalid " + label + " id")
	}
	return id, nil
}

// RateKeyByUser keys rate limits by the authenticated user, falling back to
// the client IP for anonymous requests.
func RateKeyByUser(r *http.Request) (string, error) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		return httprate.KeyByIP(r)
	}
	return "user:" + strconv.FormatInt(identity.UserID, 10), nil
}
