package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Fjallroth/matesrace/internal/services"
	"github.com/Fjallroth/matesrace/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantPage  int
		wantLimit int
		wantErr   bool
	}{
		{name: "defaults", query: "", wantPage: 1, wantLimit: 20},
		{name: "explicit", query: "?page=3&limit=5", wantPage: 3, wantLimit: 5},
		{name: "per_page alias", query: "?per_page=7", wantPage: 1, wantLimit: 7},
		{name: "limit wins over per_page", query: "?limit=4&per_page=9", wantPage: 1, wantLimit: 4},
		{name: "limit capped", query: "?limit=1000", wantPage: 1, wantLimit: 100},
		{name: "zero page", query: "?page=0", wantErr: true},
		{name: "text page", query: "?page=two", wantErr: true},
		{name: "negative limit", query: "?limit=-1", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/races"+tc.query, nil)
			page, limit, err := parsePagination(req)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantPage, page)
			assert.Equal(t, tc.wantLimit, limit)
		})
	}
}

func TestWriteServiceErrorHidesInternalErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/races", nil)
	rec := httptest.NewRecorder()

	writeServiceError(rec, req, errors.New("pq: relation \"races\" does not exist"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "internal server error", resp.Error)
	assert.Equal(t, string(services.KindInternal), resp.Code)
}

func TestRateKeyByUser(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/races/1/submit-activity", nil)
	req.RemoteAddr = "192.0.2.10:5555"

	key, err := RateKeyByUser(req)
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.10", key)

	req = req.WithContext(withIdentity(req.Context(), types.Identity{UserID: 42, StravaID: 4242}))
	key, err = RateKeyByUser(req)
	require.NoError(t, err)
	assert.Equal(t, "user:42", key)
}
