package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Fjallroth/matesrace/internal/storage"
	"github.com/Fjallroth/matesrace/internal/store"
	"github.com/Fjallroth/matesrace/types"
)

// memoryDB backs the in-memory repositories with the same semantics as the
// Postgres store: sentinel errors, cascade on race delete, unique
// (race, user) participation.
type memoryDB struct {
	mu           sync.Mutex
	users        map[int64]types.User
	races        map[int64]types.Race
	participants map[int64]types.Participant
	nextID       int64
	tick         time.Time
}

func newMemoryDB() *memoryDB {
	return &memoryDB{
		users:        map[int64]types.User{},
		races:        map[int64]types.Race{},
		participants: map[int64]types.Participant{},
		tick:         time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memoryDB) id() int64 {
	m.nextID++
	return m.nextID
}

// stamp returns strictly increasing timestamps so ordering is stable.
func (m *memoryDB) stamp() time.Time {
	m.tick = m.tick.Add(time.Second)
	return m.tick
}

func (m *memoryDB) addUser(user types.User) types.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.ID = m.id()
	user.CreatedAt = m.stamp()
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = user
	return user
}

type memoryUsers struct{ db *memoryDB }

func (r memoryUsers) GetByID(ctx context.Context, id int64) (types.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	user, ok := r.db.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r memoryUsers) GetByStravaID(ctx context.Context, stravaID int64) (types.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, user := range r.db.users {
		if user.StravaID == stravaID {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r memoryUsers) ListByIDs(ctx context.Context, ids []int64) ([]types.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var users []types.User
	for _, id := range ids {
		if user, ok := r.db.users[id]; ok {
			users = append(users, user)
		}
	}
	return users, nil
}

func (r memoryUsers) Upsert(ctx context.Context, user types.User) (types.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for id, existing := range r.db.users {
		if existing.StravaID != user.StravaID {
			continue
		}
		user.ID = id
		user.Premium = existing.Premium
		user.CreatedAt = existing.CreatedAt
		if user.RefreshToken == "" {
			user.RefreshToken = existing.RefreshToken
		}
		user.UpdatedAt = r.db.stamp()
		r.db.users[id] = user
		return user, nil
	}
	user.ID = r.db.id()
	user.CreatedAt = r.db.stamp()
	user.UpdatedAt = user.CreatedAt
	r.db.users[user.ID] = user
	return user, nil
}

func (r memoryUsers) UpdateTokens(ctx context.Context, user types.User) (types.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	existing, ok := r.db.users[user.ID]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	existing.AccessToken = user.AccessToken
	existing.RefreshToken = user.RefreshToken
	existing.TokenExpiresAt = user.TokenExpiresAt
	existing.UpdatedAt = r.db.stamp()
	r.db.users[user.ID] = existing
	return existing, nil
}

func (r memoryUsers) SetPremium(ctx context.Context, stravaID int64, premium bool) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for id, user := range r.db.users {
		if user.StravaID == stravaID {
			user.Premium = premium
			r.db.users[id] = user
			return nil
		}
	}
	return store.ErrNotFound
}

type memoryRaces struct{ db *memoryDB }

func (r memoryRaces) Get(ctx context.Context, id int64) (types.Race, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	race, ok := r.db.races[id]
	if !ok {
		return types.Race{}, store.ErrNotFound
	}
	return race, nil
}

func (r memoryRaces) List(ctx context.Context, offset, limit int) ([]types.Race, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	races := make([]types.Race, 0, len(r.db.races))
	for _, race := range r.db.races {
		races = append(races, race)
	}
	sort.Slice(races, func(i, j int) bool {
		if races[i].CreatedAt.Equal(races[j].CreatedAt) {
			return races[i].ID > races[j].ID
		}
		return races[i].CreatedAt.After(races[j].CreatedAt)
	})
	total := len(races)
	if offset >= total {
		return []types.Race{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return races[offset:end], total, nil
}

func (r memoryRaces) ListByParticipant(ctx context.Context, userID int64) ([]types.Race, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var races []types.Race
	for _, participant := range r.db.participants {
		if participant.UserID == userID {
			races = append(races, r.db.races[participant.RaceID])
		}
	}
	sort.Slice(races, func(i, j int) bool { return races[i].ID > races[j].ID })
	return races, nil
}

func (r memoryRaces) CountActiveByOrganiser(ctx context.Context, organiserID int64, now time.Time) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	count := 0
	for _, race := range r.db.races {
		if race.OrganiserID == organiserID && race.EndDate.After(now) {
			count++
		}
	}
	return count, nil
}

func (r memoryRaces) CreateWithOrganiser(ctx context.Context, race types.Race) (types.Race, types.Participant, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	race.ID = r.db.id()
	race.CreatedAt = r.db.stamp()
	race.UpdatedAt = race.CreatedAt
	r.db.races[race.ID] = race

	participant := types.Participant{
		ID:             r.db.id(),
		RaceID:         race.ID,
		UserID:         race.OrganiserID,
		SegmentResults: []types.SegmentResult{},
		CreatedAt:      race.CreatedAt,
		UpdatedAt:      race.CreatedAt,
	}
	r.db.participants[participant.ID] = participant
	return race, participant, nil
}

func (r memoryRaces) Update(ctx context.Context, race types.Race) (types.Race, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.races[race.ID]; !ok {
		return types.Race{}, store.ErrNotFound
	}
	race.UpdatedAt = r.db.stamp()
	r.db.races[race.ID] = race
	return race, nil
}

func (r memoryRaces) Delete(ctx context.Context, id int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.races[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.db.races, id)
	for pid, participant := range r.db.participants {
		if participant.RaceID == id {
			delete(r.db.participants, pid)
		}
	}
	return nil
}

type memoryParticipants struct{ db *memoryDB }

func (r memoryParticipants) Get(ctx context.Context, id int64) (types.Participant, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	participant, ok := r.db.participants[id]
	if !ok {
		return types.Participant{}, store.ErrNotFound
	}
	return participant, nil
}

func (r memoryParticipants) GetByRaceAndUser(ctx context.Context, raceID, userID int64) (types.Participant, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, participant := range r.db.participants {
		if participant.RaceID == raceID && participant.UserID == userID {
			return participant, nil
		}
	}
	return types.Participant{}, store.ErrNotFound
}

func (r memoryParticipants) ListByRace(ctx context.Context, raceID int64) ([]types.ParticipantDetail, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var details []types.ParticipantDetail
	for _, participant := range r.db.participants {
		if participant.RaceID == raceID {
			details = append(details, types.ParticipantDetail{
				Participant: participant,
				User:        r.db.users[participant.UserID],
			})
		}
	}
	sort.Slice(details, func(i, j int) bool { return details[i].Participant.ID < details[j].Participant.ID })
	return details, nil
}

func (r memoryParticipants) CountByRace(ctx context.Context, raceID int64) (int, error) {
	counts, _ := r.CountByRaces(ctx, []int64{raceID})
	return counts[raceID], nil
}

func (r memoryParticipants) CountByUser(ctx context.Context, userID int64) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	count := 0
	for _, participant := range r.db.participants {
		if participant.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (r memoryParticipants) CountByRaces(ctx context.Context, raceIDs []int64) (map[int64]int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	counts := make(map[int64]int, len(raceIDs))
	for _, id := range raceIDs {
		for _, participant := range r.db.participants {
			if participant.RaceID == id {
				counts[id]++
			}
		}
	}
	return counts, nil
}

// staleParticipants misses existing memberships on lookup, as a concurrent
// join does between the membership check and the insert.
type staleParticipants struct{ memoryParticipants }

func (r staleParticipants) GetByRaceAndUser(ctx context.Context, raceID, userID int64) (types.Participant, error) {
	return types.Participant{}, store.ErrNotFound
}

func (r memoryParticipants) Create(ctx context.Context, participant types.Participant) (types.Participant, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.participants {
		if existing.RaceID == participant.RaceID && existing.UserID == participant.UserID {
			return types.Participant{}, store.ErrDuplicate
		}
	}
	participant.ID = r.db.id()
	participant.SubmittedRide = false
	participant.SubmittedActivityID = nil
	participant.SegmentResults = []types.SegmentResult{}
	participant.CreatedAt = r.db.stamp()
	participant.UpdatedAt = participant.CreatedAt
	r.db.participants[participant.ID] = participant
	return participant, nil
}

func (r memoryParticipants) UpdateResults(ctx context.Context, participant types.Participant) (types.Participant, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	existing, ok := r.db.participants[participant.ID]
	if !ok {
		return types.Participant{}, store.ErrNotFound
	}
	existing.SubmittedRide = participant.SubmittedRide
	existing.SubmittedActivityID = participant.SubmittedActivityID
	existing.SegmentResults = append([]types.SegmentResult(nil), participant.SegmentResults...)
	existing.UpdatedAt = r.db.stamp()
	r.db.participants[participant.ID] = existing
	return existing, nil
}

func (r memoryParticipants) Delete(ctx context.Context, id int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.participants[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.db.participants, id)
	return nil
}

// fakeStrava stands in for the Strava API and OAuth endpoints.
type fakeStrava struct {
	activities   map[int64]types.ActivityDetail
	activityErr  error
	lastToken    string
	inRange      []types.ActivitySummary
	inRangeErr   error
	rangeAfter   time.Time
	rangeBefore  time.Time
	refresh      func(refreshToken string) (types.OAuthToken, error)
	refreshCalls int
	exchange     func(code string) (types.OAuthToken, error)
	athlete      types.Athlete
	athleteErr   error
}

func (f *fakeStrava) FetchActivityDetail(ctx context.Context, activityID int64, accessToken string) (types.ActivityDetail, error) {
	f.lastToken = accessToken
	if f.activityErr != nil {
		return types.ActivityDetail{}, f.activityErr
	}
	detail, ok := f.activities[activityID]
	if !ok {
		return types.ActivityDetail{}, fmt.Errorf("no activity %d", activityID)
	}
	return detail, nil
}

func (f *fakeStrava) FetchActivitiesInRange(ctx context.Context, accessToken string, after, before time.Time) ([]types.ActivitySummary, error) {
	f.lastToken = accessToken
	f.rangeAfter = after
	f.rangeBefore = before
	return f.inRange, f.inRangeErr
}

func (f *fakeStrava) Refresh(ctx context.Context, refreshToken string) (types.OAuthToken, error) {
	f.refreshCalls++
	if f.refresh == nil {
		return types.OAuthToken{}, fmt.Errorf("unexpected refresh")
	}
	return f.refresh(refreshToken)
}

func (f *fakeStrava) Exchange(ctx context.Context, code string) (types.OAuthToken, error) {
	return f.exchange(code)
}

func (f *fakeStrava) FetchAthlete(ctx context.Context, accessToken string) (types.Athlete, error) {
	f.lastToken = accessToken
	return f.athlete, f.athleteErr
}

type memoryArchive struct {
	objects map[string]json.RawMessage
	putErr  error
}

func newMemoryArchive() *memoryArchive {
	return &memoryArchive{objects: map[string]json.RawMessage{}}
}

func (a *memoryArchive) PutActivity(ctx context.Context, raceID, userID int64, raw json.RawMessage) error {
	if a.putErr != nil {
		return a.putErr
	}
	a.objects[storage.ActivityKey(raceID, userID)] = raw
	return nil
}

func (a *memoryArchive) GetActivity(ctx context.Context, raceID, userID int64) (json.RawMessage, error) {
	raw, ok := a.objects[storage.ActivityKey(raceID, userID)]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return raw, nil
}

func (a *memoryArchive) DeleteActivity(ctx context.Context, raceID, userID int64) error {
	key := storage.ActivityKey(raceID, userID)
	if _, ok := a.objects[key]; !ok {
		return storage.ErrObjectNotFound
	}
	delete(a.objects, key)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []types.RaceEvent
	err    error
}

func (p *recordingPublisher) PublishRaceEvent(ctx context.Context, event types.RaceEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) eventTypes() []types.RaceEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.RaceEventType, 0, len(p.events))
	for _, event := range p.events {
		out = append(out, event.Type)
	}
	return out
}

// effort renders a Strava segment effort payload.
func effort(segmentID int64, name string, elapsed int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"elapsed_time":%d,"segment":{"id":%d,"name":%q}}`, elapsed, segmentID, name))
}

func activityWithEfforts(id int64, efforts ...json.RawMessage) types.ActivityDetail {
	list := make([]json.RawMessage, 0, len(efforts))
	list = append(list, efforts...)
	raw, _ := json.Marshal(map[string]any{"id": id, "type": "Ride", "segment_efforts": list})
	return types.ActivityDetail{
		ID:                id,
		Name:              "Morning Ride",
		Type:              "Ride",
		HasSegmentEfforts: true,
		SegmentEfforts:    list,
		Raw:               raw,
	}
}
