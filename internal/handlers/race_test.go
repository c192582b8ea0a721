package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Fjallroth/matesrace/internal/services"
	"github.com/Fjallroth/matesrace/types"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type stubRaceService struct {
	err        error
	view       types.RaceView
	racePage   services.RacePage
	views      []types.RaceView
	activities []types.ActivitySummary
	raw        json.RawMessage

	identity      types.Identity
	raceID        int64
	participantID int64
	activityID    int64
	input         types.RaceInput
	update        types.RaceUpdate
	password      string
	page, limit   int
	called        string
}

func (s *stubRaceService) record(name string, identity types.Identity, raceID int64) {
	s.called = name
	s.identity = identity
	s.raceID = raceID
}

func (s *stubRaceService) Create(ctx context.Context, identity types.Identity, input types.RaceInput) (types.RaceView, error) {
	s.record("Create", identity, 0)
	s.input = input
	return s.view, s.err
}

func (s *stubRaceService) Update(ctx context.Context, identity types.Identity, raceID int64, update types.RaceUpdate) (types.RaceView, error) {
	s.record("Update", identity, raceID)
	s.update = update
	return s.view, s.err
}

func (s *stubRaceService) Delete(ctx context.Context, identity types.Identity, raceID int64) error {
	s.record("Delete", identity, raceID)
	return s.err
}

func (s *stubRaceService) Join(ctx context.Context, identity types.Identity, raceID int64, password string) (types.RaceView, error) {
	s.record("Join", identity, raceID)
	s.password = password
	return s.view, s.err
}

func (s *stubRaceService) RemoveParticipant(ctx context.Context, identity types.Identity, raceID, participantID int64) error {
	s.record("RemoveParticipant", identity, raceID)
	s.participantID = participantID
	return s.err
}

func (s *stubRaceService) SubmitActivity(ctx context.Context, identity types.Identity, raceID, activityID int64) (types.RaceView, error) {
	s.record("SubmitActivity", identity, raceID)
	s.activityID = activityID
	return s.view, s.err
}

func (s *stubRaceService) Get(ctx context.Context, identity types.Identity, raceID int64) (types.RaceView, error) {
	s.record("Get", identity, raceID)
	return s.view, s.err
}

func (s *stubRaceService) List(ctx context.Context, identity types.Identity, page, limit int) (services.RacePage, error) {
	s.record("List", identity, 0)
	s.page, s.limit = page, limit
	return s.racePage, s.err
}

func (s *stubRaceService) ListParticipating(ctx context.Context, identity types.Identity) ([]types.RaceView, error) {
	s.record("ListParticipating", identity, 0)
	return s.views, s.err
}

func (s *stubRaceService) ListRaceActivities(ctx context.Context, identity types.Identity, raceID int64) ([]types.ActivitySummary, error) {
	s.record("ListRaceActivities", identity, raceID)
	return s.activities, s.err
}

func (s *stubRaceService) GetArchivedActivity(ctx context.Context, identity types.Identity, raceID, participantID int64) (json.RawMessage, error) {
	s.record("GetArchivedActivity", identity, raceID)
	s.participantID = participantID
	return s.raw, s.err
}

func newRaceTestServer(t *testing.T, svc RaceService) (http.Handler, string) {
	t.Helper()
	router := chi.NewRouter()
	router.Route("/races", func(r chi.Router) {
		RaceRouter(r, svc, RequireAuth(testSecret), nil)
	})
	token, err := IssueToken(types.User{ID: 5, StravaID: 55}, []byte(testSecret), time.Hour)
	require.NoError(t, err)
	return router, token
}

func doRequest(handler http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

const validCreateBody = `{
	"name": "Sunday Hill Climb",
	"info": "Two climbs",
	"start_date": "2025-06-01T09:00:00Z",
	"end_date": "2025-06-08T09:00:00Z",
	"segment_ids": [229781, 229782],
	"password": "abcd",
	"hide_leaderboard_until_finish": true,
	"is_private": false
}`

func TestRaceRoutesRequireAuth(t *testing.T) {
	svc := &stubRaceService{}
	handler, _ := newRaceTestServer(t, svc)

	rec := doRequest(handler, http.MethodGet, "/races", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(services.KindAuthenticationRequired), decodeError(t, rec).Code)

	rec = doRequest(handler, http.MethodGet, "/races", "not-a-jwt", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, svc.called)
}

func TestCreateRace(t *testing.T) {
	svc := &stubRaceService{view: types.RaceView{ID: 9, Name: "Sunday Hill Climb", ParticipantCount: 1}}
	handler, token := newRaceTestServer(t, svc)

	rec := doRequest(handler, http.MethodPost, "/races", token, validCreateBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var view types.RaceView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, int64(9), view.ID)

	assert.Equal(t, types.Identity{UserID: 5, StravaID: 55}, svc.identity)
	assert.Equal(t, "Sunday Hill Climb", svc.input.Name)
	assert.Equal(t, []int64{229781, 229782}, svc.input.SegmentIDs)
	assert.True(t, svc.input.HideLeaderboardUntilFinish)
	assert.True(t, time.Date(2025, 6, 8, 9, 0, 0, 0, time.UTC).Equal(svc.input.EndDate))
}

func TestCreateRaceValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{
			name:    "malformed json",
			body:    `{"name":`,
			message: "invalid JSON body",
		},
		{
			name:    "unknown field",
			body:    strings.Replace(validCreateBody, `"info"`, `"colour": "red", "info"`, 1),
			message: "invalid JSON body",
		},
		{
			name:    "trailing data",
			body:    validCreateBody + `{}`,
			message: "invalid JSON body",
		},
		{
			name:    "short name",
			body:    strings.Replace(validCreateBody, `"Sunday Hill Climb"`, `"ab"`, 1),
			message: "name must be at least 3 characters",
		},
		{
			name:    "end before start",
			body:    strings.Replace(validCreateBody, `"2025-06-08T09:00:00Z"`, `"2025-05-30T09:00:00Z"`, 1),
			message: "end_date must be after start_date",
		},
		{
			name:    "missing segments",
			body:    strings.Replace(validCreateBody, `"segment_ids": [229781, 229782],`, ``, 1),
			message: "segment_ids is required",
		},
		{
			name:    "empty segments",
			body:    strings.Replace(validCreateBody, `[229781, 229782]`, `[]`, 1),
			message: "segment_ids needs at least 1 entries",
		},
		{
			name:    "non-positive segment",
			body:    strings.Replace(validCreateBody, `[229781, 229782]`, `[229781, 0]`, 1),
			message: "segment_ids[1] must be positive",
		},
		{
			name:    "short password",
			body:    strings.Replace(validCreateBody, `"abcd"`, `"abc"`, 1),
			message: "password must be at least 4 characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubRaceService{}
			handler, token := newRaceTestServer(t, svc)

			rec := doRequest(handler, http.MethodPost, "/races", token, tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, string(services.KindValidationFailed), resp.Code)
			assert.Equal(t, tt.message, resp.Error)
			assert.Empty(t, svc.called)
		})
	}
}

func TestServiceErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{&services.Error{Kind: services.KindAuthenticationRequired, Message: "log in"}, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED"},
		{&services.Error{Kind: services.KindAuthorizationDenied, Message: "no"}, http.StatusForbidden, "AUTHORIZATION_DENIED"},
		{&services.Error{Kind: services.KindNotFound, Message: "race not found"}, http.StatusNotFound, "NOT_FOUND"},
		{&services.Error{Kind: services.KindValidationFailed, Message: "bad"}, http.StatusBadRequest, "VALIDATION_FAILED"},
		{&services.Error{Kind: services.KindConflict, Message: "dup"}, http.StatusConflict, "CONFLICT"},
		{&services.Error{Kind: services.KindQuotaExceeded, Message: "full"}, http.StatusForbidden, "QUOTA_EXCEEDED"},
		{&services.Error{Kind: services.KindExternalServiceFailure, Message: "strava"}, http.StatusBadGateway, "EXTERNAL_SERVICE_FAILURE"},
		{&services.Error{Kind: services.KindDataIntegrityFailure, Message: "no efforts"}, http.StatusUnprocessableEntity, "DATA_INTEGRITY_FAILURE"},
		{errors.New("pq: connection refused"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			svc := &stubRaceService{err: tt.err}
			handler, token := newRaceTestServer(t, svc)

			rec := doRequest(handler, http.MethodGet, "/races/3", token, "")
			assert.Equal(t, tt.status, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tt.code, resp.Code)
			if tt.status == http.StatusInternalServerError {
				assert.Equal(t, "internal server error", resp.Error)
			}
		})
	}
}

func TestRaceIDValidation(t *testing.T) {
	svc := &stubRaceService{}
	handler, token := newRaceTestServer(t, svc)

	for _, path := range []string{"/races/abc", "/races/0", "/races/-1", "/races/3/participants/x"} {
		method := http.MethodGet
		if strings.Contains(path, "participants") {
			method = http.MethodDelete
		}
		rec := doRequest(handler, method, path, token, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
	assert.Empty(t, svc.called)
}

func TestRaceRoutes(t *testing.T) {
	svc := &stubRaceService{
		view:       types.RaceView{ID: 3},
		views:      []types.RaceView{{ID: 3}},
		activities: []types.ActivitySummary{{ID: 77, Type: "Ride"}},
		raw:        json.RawMessage(`{"id":1001}`),
		racePage:   services.RacePage{Races: []types.RaceView{{ID: 3}}, Total: 41, Page: 2, Limit: 20},
	}
	handler, token := newRaceTestServer(t, svc)

	t.Run("list", func(t *testing.T) {
		rec := doRequest(handler, http.MethodGet, "/races?page=2&per_page=20", token, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 2, svc.page)
		assert.Equal(t, 20, svc.limit)

		var resp RaceListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 41, resp.Total)
		assert.Len(t, resp.Items, 1)
	})

	t.Run("list rejects bad page", func(t *testing.T) {
		rec := doRequest(handler, http.MethodGet, "/races?page=0", token, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("participating", func(t *testing.T) {
		rec := doRequest(handler, http.MethodGet, "/races/participating", token, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ListParticipating", svc.called)
	})

	t.Run("update", func(t *testing.T) {
		rec := doRequest(handler, http.MethodPut, "/races/3", token, `{"name":"Renamed","password":""}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, int64(3), svc.raceID)
		require.NotNil(t, svc.update.Name)
		assert.Equal(t, "Renamed", *svc.update.Name)
		require.NotNil(t, svc.update.Password)
		assert.Empty(t, *svc.update.Password)
		assert.Nil(t, svc.update.StartDate)
	})

	t.Run("delete", func(t *testing.T) {
		rec := doRequest(handler, http.MethodDelete, "/races/3", token, "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "Delete", svc.called)
	})

	t.Run("join", func(t *testing.T) {
		rec := doRequest(handler, http.MethodPost, "/races/3/join", token, `{"password":"abcd"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "abcd", svc.password)
	})

	t.Run("remove participant", func(t *testing.T) {
		rec := doRequest(handler, http.MethodDelete, "/races/3/participants/12", token, "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, int64(12), svc.participantID)
	})

	t.Run("archived activity", func(t *testing.T) {
		rec := doRequest(handler, http.MethodGet, "/races/3/participants/12/activity", token, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"id":1001}`, rec.Body.String())
	})

	t.Run("strava activities", func(t *testing.T) {
		rec := doRequest(handler, http.MethodGet, "/races/3/strava-activities", token, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var activities []types.ActivitySummary
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &activities))
		require.Len(t, activities, 1)
		assert.Equal(t, int64(77), activities[0].ID)
	})

	t.Run("submit", func(t *testing.T) {
		rec := doRequest(handler, http.MethodPost, "/races/3/submit-activity", token, `{"activity_id":1001}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, int64(1001), svc.activityID)
	})

	t.Run("submit requires activity id", func(t *testing.T) {
		svc.called = ""
		rec := doRequest(handler, http.MethodPost, "/races/3/submit-activity", token, `{}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "activity_id is required", decodeError(t, rec).Error)
		assert.Empty(t, svc.called)
	})
}

func TestSubmitLimiterIsApplied(t *testing.T) {
	svc := &stubRaceService{}
	blocked := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}
	router := chi.NewRouter()
	router.Route("/races", func(r chi.Router) {
		RaceRouter(r, svc, RequireAuth(testSecret), blocked)
	})
	token, err := IssueToken(types.User{ID: 5, StravaID: 55}, []byte(testSecret), time.Hour)
	require.NoError(t, err)

	rec := doRequest(router, http.MethodPost, "/races/3/submit-activity", token, `{"activity_id":1}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = doRequest(router, http.MethodGet, "/races/3", token, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
