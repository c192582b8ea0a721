package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Fjallroth/matesrace/internal/services"
	"github.com/Fjallroth/matesrace/types"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultTokenTTL = 24 * time.Hour
	stateTTL        = 10 * time.Minute
	stateAudience   = "strava-oauth-state"
	sessionAudience = "matesrace-session"
)

// UserService is the part of services.UserService the auth endpoints use.
type UserService interface {
	LoginWithStrava(ctx context.Context, code string) (types.User, error)
	GetByID(ctx context.Context, id int64) (types.User, error)
}

// AuthCodeURLer builds the Strava consent page URL.
type AuthCodeURLer interface {
	AuthCodeURL(state string) string
}

// AuthHandler runs the Strava OAuth login and issues session tokens.
type AuthHandler struct {
	users       UserService
	oauth       AuthCodeURLer
	secret      []byte
	tokenTTL    time.Duration
	frontendURL string
}

func NewAuthHandler(users UserService, oauth AuthCodeURLer, jwtSecret string, tokenTTL time.Duration, frontendURL string) *AuthHandler {
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	return &AuthHandler{
		users:       users,
		oauth:       oauth,
		secret:      []byte(jwtSecret),
		tokenTTL:    tokenTTL,
		frontendURL: strings.TrimSpace(frontendURL),
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Get("/strava/login", handler.StravaLogin)
	r.Get("/strava/callback", handler.StravaCallback)
	r.With(authMiddleware).Get("/me", handler.Me)
}

// StravaLogin redirects to the Strava consent page with a signed state.
func (h *AuthHandler) StravaLogin(w http.ResponseWriter, r *http.Request) {
	state, err := issueState(h.secret)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	http.Redirect(w, r, h.oauth.AuthCodeURL(state), http.StatusFound)
}

// StravaCallback completes the login and hands out a session token, either
// by redirecting to the frontend or as JSON.
func (h *AuthHandler) StravaCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if reason := query.Get("error"); reason != "" {
		writeError(w, http.StatusUnauthorized, services.KindAuthenticationRequired, "strava authorization failed: "+reason)
		return
	}
	if err := verifyState(query.Get("state"), h.secret); err != nil {
		writeError(w, http.StatusBadRequest, services.KindValidationFailed, "invalid oauth state")
		return
	}

	user, err := h.users.LoginWithStrava(r.Context(), query.Get("code"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	token, err := IssueToken(user, h.secret, h.tokenTTL)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if h.frontendURL != "" {
		target, err := url.Parse(h.frontendURL)
		if err == nil {
			target.Fragment = "token=" + token
			http.Redirect(w, r, target.String(), http.StatusFound)
			return
		}
	}
	writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: user})
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, services.KindAuthenticationRequired, "unauthorized")
		return
	}

	user, err := h.users.GetByID(r.Context(), identity.UserID)
	if err != nil {
		if services.KindOf(err) == services.KindNotFound {
			writeError(w, http.StatusUnauthorized, services.KindAuthenticationRequired, "unauthorized")
			return
		}
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type AuthResponse struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

type sessionClaims struct {
	AthleteID int64 `json:"athlete_id"`
	jwt.RegisteredClaims
}

// RequireAuth enforces a session token and puts the caller's identity into
// the request context.
func RequireAuth(jwtSecret string) func(http.Handler) http.Handler {
	secret := []byte(jwtSecret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, services.KindAuthenticationRequired, "unauthorized")
				return
			}

			identity, err := parseSessionToken(tokenString, secret)
			if err != nil {
				writeError(w, http.StatusUnauthorized, services.KindAuthenticationRequired, "unauthorized")
				return
			}

			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
		})
	}
}

// IssueToken signs a session token for user.
func IssueToken(user types.User, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		AthleteID: user.StravaID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			Audience:  jwt.ClaimStrings{sessionAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func parseSessionToken(tokenString string, secret []byte) (types.Identity, error) {
	claims := sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, hmacKey(secret),
		jwt.WithAudience(sessionAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return types.Identity{}, err
	}
	if !token.Valid {
		return types.Identity{}, errors.New("invalid token")
	}

	userID, err := strconv.ParseInt(strings.TrimSpace(claims.Subject), 10, 64)
	if err != nil || userID < 1 {
		return types.Identity{}, errors.New("invalid subject")
	}
	return types.Identity{UserID: userID, StravaID: claims.AthleteID}, nil
}

func issueState(secret []byte) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Audience:  jwt.ClaimStrings{stateAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func verifyState(state string, secret []byte) error {
	if strings.TrimSpace(state) == "" {
		return errors.New("missing state")
	}
	_, err := jwt.ParseWithClaims(state, &jwt.RegisteredClaims{}, hmacKey(secret),
		jwt.WithAudience(stateAudience),
		jwt.WithExpirationRequired(),
	)
	return err
}

func hmacKey(secret []byte) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	}
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
