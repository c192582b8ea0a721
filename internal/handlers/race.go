package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Fjallroth/matesrace/internal/services"
	"github.com/Fjallroth/matesrace/types"
	"github.com/go-chi/chi/v5"
)

// RaceService is the race engine as seen by the HTTP layer.
type RaceService interface {
	Create(ctx context.Context, identity types.Identity, input types.RaceInput) (types.RaceView, error)
	Update(ctx context.Context, identity types.Identity, raceID int64, update types.RaceUpdate) (types.RaceView, error)
	Delete(ctx context.Context, identity types.Identity, raceID int64) error
	Join(ctx context.Context, identity types.Identity, raceID int64, password string) (types.RaceView, error)
	RemoveParticipant(ctx context.Context, identity types.Identity, raceID, participantID int64) error
	SubmitActivity(ctx context.Context, identity types.Identity, raceID, activityID int64) (types.RaceView, error)
	Get(ctx context.Context, identity types.Identity, raceID int64) (types.RaceView, error)
	List(ctx context.Context, identity types.Identity, page, limit int) (services.RacePage, error)
	ListParticipating(ctx context.Context, identity types.Identity) ([]types.RaceView, error)
	ListRaceActivities(ctx context.Context, identity types.Identity, raceID int64) ([]types.ActivitySummary, error)
	GetArchivedActivity(ctx context.Context, identity types.Identity, raceID, participantID int64) (json.RawMessage, error)
}

// RaceHandler provides HTTP handlers for races.
type RaceHandler struct {
	races RaceService
}

func NewRaceHandler(races RaceService) *RaceHandler {
	return &RaceHandler{races: races}
}

// RaceRouter registers race routes. Every route requires authentication;
// submitLimiter throttles result submissions.
func RaceRouter(
	r chi.Router,
	races RaceService,
	authMiddleware func(http.Handler) http.Handler,
	submitLimiter func(http.Handler) http.Handler,
) {
	handler := NewRaceHandler(races)

	r.Use(authMiddleware)
	r.Get("/", handler.ListRaces)
	r.Post("/", handler.CreateRace)
	r.Get("/participating", handler.ListParticipating)
	r.Route("/{raceID}", func(r chi.Router) {
		r.Get("/", handler.GetRace)
		r.Put("/", handler.UpdateRace)
		r.Delete("/", handler.DeleteRace)
		r.Post("/join", handler.JoinRace)
		r.Delete("/participants/{participantID}", handler.RemoveParticipant)
		r.Get("/participants/{participantID}/activity", handler.GetArchivedActivity)
		r.Get("/strava-activities", handler.ListStravaActivities)
		if submitLimiter != nil {
			r.With(submitLimiter).Post("/submit-activity", handler.SubmitActivity)
		} else {
			r.Post("/submit-activity", handler.SubmitActivity)
		}
	})
}

// CreateRaceRequest is the payload of POST /races. Races are always
// private, so is_private is accepted but ignored.
type CreateRaceRequest struct {
	Name                       string    `json:"name" validate:"required,min=3,max=120"`
	Info                       string    `json:"info" validate:"max=2000"`
	StartDate                  time.Time `json:"start_date" validate:"required"`
	EndDate                    time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
	SegmentIDs                 []int64   `json:"segment_ids" validate:"required,min=1,dive,gt=0"`
	Password                   string    `json:"password" validate:"required,min=4"`
	HideLeaderboardUntilFinish bool      `json:"hide_leaderboard_until_finish"`
	UseSexCategories           bool      `json:"use_sex_categories"`
	IsPrivate                  *bool     `json:"is_private"`
}

// UpdateRaceRequest is the payload of PUT /races/{raceID}. Absent fields are
// left unchanged and an empty password keeps the current one.
type UpdateRaceRequest struct {
	Name                       *string    `json:"name" validate:"omitempty,min=3,max=120"`
	Info                       *string    `json:"info" validate:"omitempty,max=2000"`
	StartDate                  *time.Time `json:"start_date"`
	EndDate                    *time.Time `json:"end_date"`
	SegmentIDs                 []int64    `json:"segment_ids" validate:"omitempty,dive,gt=0"`
	Password                   *string    `json:"password" validate:"omitempty,max=128"`
	HideLeaderboardUntilFinish *bool      `json:"hide_leaderboard_until_finish"`
	UseSexCategories           *bool      `json:"use_sex_categories"`
	IsPrivate                  *bool      `json:"is_private"`
}

type JoinRaceRequest struct {
	Password string `json:"password" validate:"max=128"`
}

type SubmitActivityRequest struct {
	ActivityID int64 `json:"activity_id" validate:"required,gt=0"`
}

// RaceListResponse is the paginated list response payload.
type RaceListResponse struct {
	Items []types.RaceView `json:"items"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
	Total int              `json:"total"`
}

func (h *RaceHandler) ListRaces(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	page, limit, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, services.KindValidationFailed, err.Error())
		return
	}

	result, err := h.races.List(r.Context(), identity, page, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RaceListResponse{
		Items: result.Races,
		Page:  result.Page,
		Limit: result.Limit,
		Total: result.Total,
	})
}

func (h *RaceHandler) ListParticipating(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	races, err := h.races.ListParticipating(r.Context(), identity)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, races)
}

func (h *RaceHandler) CreateRace(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req CreateRaceRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, services.KindValidationFailed, err.Error())
		return
	}

	view, err := h.races.Create(r.Context(), identity, types.RaceInput{
		Name:                       req.Name,
		Info:                       req.Info,
		StartDate:                  req.StartDate,
		EndDate:                    req.EndDate,
		SegmentIDs:                 req.SegmentIDs,
		Password:                   req.Password,
		HideLeaderboardUntilFinish: req.HideLeaderboardUntilFinish,
		UseSexCategories:           req.UseSexCategories,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *RaceHandler) GetRace(w http.ResponseWriter, r *http.Request) {
	identity, raceID, ok := identityAndRaceID(w, r)
	if !ok {
		return
	}
	view, err := h.races.Get(r.Context(), identity, raceID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *RaceHandler) UpdateRace(w http.ResponseWriter, r *http.Request) {
	identity, raceID, ok := identityAndRaceID(w, r)
	if !ok {
		return
	}
	var req UpdateRaceRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, services.KindValidationFailed, err.Error())
		return
	}

	view, err := h.races.Update(r.Context(), identity, raceID, types.RaceUpdate{
		Name:                       req.Name,
		Info:                       req.Info,
		StartDate:                  req.StartDate,
		EndDate:                    req.EndDate,
		SegmentIDs:                 req.SegmentIDs,
		Password:                   req.Password,
		HideLeaderboardUntilFinish: req.HideLeaderboardUntilFinish,
		UseSexCategories:           req.UseSexCategories,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *RaceHandler) DeleteRace(w http.ResponseWriter, r *http.Request) {
	identity, raceID, ok := identityAndRaceID(w, r)
	if !ok {
		return
	}
	if err := h.races.Delete(r.Context(), identity, raceID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RaceHandler) JoinRace(w http.ResponseWriter, r *http.Request) {
	identity, raceID, ok := identityAndRaceID(w, r)
	if !ok {
		return
	}
	var req JoinRaceRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, services.KindValidationFailed, err.Error())
		return
	}

	view, err := h.races.Join(r.Context(), identity, raceID, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *RaceHandler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	identity, raceID, ok := identityAndRaceID(w, r)
	if !ok {
		return
	}
	participantID, err := parseIDParam(r, "participantID", "participant")
	if err != nil {
		writeError(w, http.StatusBadRequest, services.KindValidationFailed, err.Error())
		return
	}

	if err := h.races.RemoveParticipant(r.Context(), identity, raceID, participantID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RaceHandler) GetArchivedActivity(w http.ResponseWriter, r *http.Request) {
	identity, raceID, ok := identityAndRaceID(w, r)
	if !ok {
		return
	}
	participantID, err := parseIDParam(r, "participantID", "participant")
	if err != nil {
		writeError(w, http.StatusBadRequest, services.KindValidationFailed, err.Error())
		return
	}

	raw, err := h.races.GetArchivedActivity(r.Context(), identity, raceID, participantID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, raw)
}

func (h *RaceHandler) ListStravaActivities(w http.ResponseWriter, r *http.Request) {
	identity, raceID, ok := identityAndRaceID(w, r)
	if !ok {
		return
	}
	activities, err := h.races.ListRaceActivities(r.Context(), identity, raceID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, activities)
}

func (h *RaceHandler) SubmitActivity(w http.ResponseWriter, r *http.Request) {
	identity, raceID, ok := identityAndRaceID(w, r)
	if !ok {
		return
	}
	var req SubmitActivityRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, services.KindValidationFailed, err.Error())
		return
	}

	view, err := h.races.SubmitActivity(r.Context(), identity, raceID, req.ActivityID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func requireIdentity(w http.ResponseWriter, r *http.Request) (types.Identity, bool) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, services.KindAuthenticationRequired, "unauthorized")
		return types.Identity{}, false
	}
	return identity, true
}

func identityAndRaceID(w http.ResponseWriter, r *http.Request) (types.Identity, int64, bool) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return types.Identity{}, 0, false
	}
	raceID, err := parseIDParam(r, "raceID", "race")
	if err != nil {
		writeError(w, http.StatusBadRequest, services.KindValidationFailed, err.Error())
		return types.Identity{}, 0, false
	}
	return identity, raceID, true
}
