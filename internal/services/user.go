package services

import (
	"context"
	"errors"
	"strings"

	"github.com/Fjallroth/matesrace/internal/store"
	"github.com/Fjallroth/matesrace/internal/strava"
	"github.com/Fjallroth/matesrace/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (types.User, error)
	GetByStravaID(ctx context.Context, stravaID int64) (types.User, error)
	ListByIDs(ctx context.Context, ids []int64) ([]types.User, error)
	Upsert(ctx context.Context, user types.User) (types.User, error)
	UpdateTokens(ctx context.Context, user types.User) (types.User, error)
	SetPremium(ctx context.Context, stravaID int64, premium bool) error
}

// StravaAuthenticator completes the Strava OAuth handshake.
type StravaAuthenticator interface {
	Exchange(ctx context.Context, code string) (types.OAuthToken, error)
	FetchAthlete(ctx context.Context, accessToken string) (types.Athlete, error)
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo   UserRepository
	strava StravaAuthenticator
}

func NewUserService(repo UserRepository, strava StravaAuthenticator) *UserService {
	return &UserService{repo: repo, strava: strava}
}

// LoginWithStrava exchanges an authorization code and creates or refreshes
// the local user of the authenticated athlete.
func (s *UserService) LoginWithStrava(ctx context.Context, code string) (types.User, error) {
	if strings.TrimSpace(code) == "" {
		return types.User{}, newError(KindValidationFailed, "authorization code is required")
	}

	token, err := s.strava.Exchange(ctx, code)
	if err != nil {
		if errors.Is(err, strava.ErrTokenRejected) {
			return types.User{}, wrapError(KindAuthenticationRequired, "strava rejected the authorization code", err)
		}
		return types.User{}, wrapError(KindExternalServiceFailure, "strava token exchange failed", err)
	}

	athlete, err := s.strava.FetchAthlete(ctx, token.AccessToken)
	if err != nil {
		if errors.Is(err, strava.ErrUnauthorized) {
			return types.User{}, wrapError(KindAuthenticationRequired, "strava rejected the access token", err)
		}
		return types.User{}, wrapError(KindExternalServiceFailure, "failed to load strava athlete", err)
	}

	user, err := s.repo.Upsert(ctx, userFromAthlete(athlete, token))
	if err != nil {
		return types.User{}, err
	}
	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id int64) (types.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.User{}, notFound(err, "user not found")
	}
	return user, nil
}

// SetPremium grants or revokes elevated status for a Strava athlete.
func (s *UserService) SetPremium(ctx context.Context, stravaID int64, premium bool) error {
	if stravaID < 1 {
		return newError(KindValidationFailed, "strava id must be positive")
	}
	if err := s.repo.SetPremium(ctx, stravaID, premium); err != nil {
		return notFound(err, "no user with that strava id")
	}
	return nil
}

func userFromAthlete(athlete types.Athlete, token types.OAuthToken) types.User {
	picture := athlete.ProfileMedium
	if picture == "" {
		picture = athlete.Profile
	}
	return types.User{
		StravaID:       athlete.ID,
		DisplayName:    strings.TrimSpace(athlete.FirstName + " " + athlete.LastName),
		FirstName:      athlete.FirstName,
		LastName:       athlete.LastName,
		Sex:            athlete.Sex,
		City:           athlete.City,
		State:          athlete.State,
		Country:        athlete.Country,
		ProfilePicture: picture,
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
		TokenExpiresAt: token.Expiry,
	}
}

// notFound turns store.ErrNotFound into a NotFound service error and leaves
// other errors untouched.
func notFound(err error, message string) error {
	if errors.Is(err, store.ErrNotFound) {
		return wrapError(KindNotFound, message, err)
	}
	return err
}
