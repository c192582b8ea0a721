package services

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Fjallroth/matesrace/internal/storage"
	"github.com/Fjallroth/matesrace/internal/store"
	"github.com/Fjallroth/matesrace/internal/strava"
	"github.com/Fjallroth/matesrace/types"
)

const (
	minRaceNameLength     = 3
	minRacePasswordLength = 4
	unnamedSegment        = "Unnamed Segment"

	// maxExactFloat is the largest integer a float64 holds exactly.
	maxExactFloat = 1 << 53
)

// RaceRepository defines persistence operations for races.
type RaceRepository interface {
	Get(ctx context.Context, id int64) (types.Race, error)
	List(ctx context.Context, offset, limit int) ([]types.Race, int, error)
	ListByParticipant(ctx context.Context, userID int64) ([]types.Race, error)
	CountActiveByOrganiser(ctx context.Context, organiserID int64, now time.Time) (int, error)
	CreateWithOrganiser(ctx context.Context, race types.Race) (types.Race, types.Participant, error)
	Update(ctx context.Context, race types.Race) (types.Race, error)
	Delete(ctx context.Context, id int64) error
}

// ParticipantRepository defines persistence operations for participants.
type ParticipantRepository interface {
	Get(ctx context.Context, id int64) (types.Participant, error)
	GetByRaceAndUser(ctx context.Context, raceID, userID int64) (types.Participant, error)
	ListByRace(ctx context.Context, raceID int64) ([]types.ParticipantDetail, error)
	CountByRace(ctx context.Context, raceID int64) (int, error)
	CountByUser(ctx context.Context, userID int64) (int, error)
	CountByRaces(ctx context.Context, raceIDs []int64) (map[int64]int, error)
	Create(ctx context.Context, participant types.Participant) (types.Participant, error)
	UpdateResults(ctx context.Context, participant types.Participant) (types.Participant, error)
	Delete(ctx context.Context, id int64) error
}

// ActivityFetcher reads athlete activities from Strava.
type ActivityFetcher interface {
	FetchActivityDetail(ctx context.Context, activityID int64, accessToken string) (types.ActivityDetail, error)
	FetchActivitiesInRange(ctx context.Context, accessToken string, after, before time.Time) ([]types.ActivitySummary, error)
}

// Limits are the quota ceilings. Premium users are exempt from
// MaxActiveOrganizedRaces and MaxJoinedRaces.
type Limits struct {
	MaxActiveOrganizedRaces int
	MaxJoinedRaces          int
	MaxParticipantsPerRace  int
}

// RacePage is one page of race summaries.
type RacePage struct {
	Races []types.RaceView `json:"races"`
	Total int              `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

// RaceService runs the race lifecycle: creation, membership, result
// ingestion and viewer-dependent projection.
type RaceService struct {
	races        RaceRepository
	participants ParticipantRepository
	users        UserRepository
	broker       *TokenBroker
	fetcher      ActivityFetcher
	limits       Limits

	archive ActivityArchive
	events  EventPublisher
	logger  *slog.Logger
	now     func() time.Time
}

type RaceServiceOption func(*RaceService)

// WithActivityArchive stores the raw activity behind every submission.
func WithActivityArchive(archive ActivityArchive) RaceServiceOption {
	return func(s *RaceService) { s.archive = archive }
}

// WithEventPublisher publishes race lifecycle events after each mutation.
func WithEventPublisher(events EventPublisher) RaceServiceOption {
	return func(s *RaceService) { s.events = events }
}

func WithLogger(logger *slog.Logger) RaceServiceOption {
	return func(s *RaceService) { s.logger = logger }
}

func WithClock(now func() time.Time) RaceServiceOption {
	return func(s *RaceService) { s.now = now }
}

func NewRaceService(
	races RaceRepository,
	participants ParticipantRepository,
	users UserRepository,
	broker *TokenBroker,
	fetcher ActivityFetcher,
	limits Limits,
	opts ...RaceServiceOption,
) *RaceService {
	s := &RaceService{
		races:        races,
		participants: participants,
		users:        users,
		broker:       broker,
		fetcher:      fetcher,
		limits:       limits,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create persists a new private race and enrolls its organiser.
func (s *RaceService) Create(ctx context.Context, identity types.Identity, input types.RaceInput) (types.RaceView, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := validateRaceInput(input); err != nil {
		return types.RaceView{}, err
	}

	organiser, err := s.users.GetByID(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.RaceView{}, wrapError(KindAuthenticationRequired, "user no longer exists", err)
		}
		return types.RaceView{}, fmt.Errorf("load organiser: %w", err)
	}

	now := s.now()
	if !organiser.Premium {
		active, err := s.races.CountActiveByOrganiser(ctx, organiser.ID, now)
		if err != nil {
			return types.RaceView{}, fmt.Errorf("count active races: %w", err)
		}
		if active >= s.limits.MaxActiveOrganizedRaces {
			return types.RaceView{}, newError(KindQuotaExceeded,
				fmt.Sprintf("you can organise at most %d active races", s.limits.MaxActiveOrganizedRaces))
		}
	}

	race, participant, err := s.races.CreateWithOrganiser(ctx, types.Race{
		Name:                       input.Name,
		Info:                       input.Info,
		StartDate:                  input.StartDate,
		EndDate:                    input.EndDate,
		SegmentIDs:                 input.SegmentIDs,
		OrganiserID:                organiser.ID,
		Password:                   input.Password,
		IsPrivate:                  true,
		HideLeaderboardUntilFinish: input.HideLeaderboardUntilFinish,
		UseSexCategories:           input.UseSexCategories,
	})
	if err != nil {
		return types.RaceView{}, fmt.Errorf("create race: %w", err)
	}

	s.publish(ctx, newRaceEvent(types.EventRaceCreated, race.ID, organiser.ID, now))

	participants := []types.ParticipantDetail{{Participant: participant, User: organiser}}
	return BuildRaceView(race, &organiser, participants, identity.UserID, now), nil
}

// Update applies a partial edit. Only the organiser may edit a race.
func (s *RaceService) Update(ctx context.Context, identity types.Identity, raceID int64, update types.RaceUpdate) (types.RaceView, error) {
	race, err := s.getRace(ctx, raceID)
	if err != nil {
		return types.RaceView{}, err
	}
	if race.OrganiserID != identity.UserID {
		return types.RaceView{}, newError(KindAuthorizationDenied, "only the organiser can edit this race")
	}

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if utf8.RuneCountInString(name) < minRaceNameLength {
			return types.RaceView{}, newError(KindValidationFailed, "name must be at least 3 characters")
		}
		race.Name = name
	}
	if update.Info != nil {
		race.Info = *update.Info
	}
	if update.StartDate != nil {
		race.StartDate = *update.StartDate
	}
	if update.EndDate != nil {
		race.EndDate = *update.EndDate
	}
	if update.SegmentIDs != nil {
		if err := validateSegmentIDs(update.SegmentIDs); err != nil {
			return types.RaceView{}, err
		}
		race.SegmentIDs = update.SegmentIDs
	}
	if update.Password != nil && *update.Password != "" {
		if utf8.RuneCountInString(*update.Password) < minRacePasswordLength {
			return types.RaceView{}, newError(KindValidationFailed, "password must be at least 4 characters")
		}
		race.Password = *update.Password
	}
	if update.HideLeaderboardUntilFinish != nil {
		race.HideLeaderboardUntilFinish = *update.HideLeaderboardUntilFinish
	}
	if update.UseSexCategories != nil {
		race.UseSexCategories = *update.UseSexCategories
	}
	if !race.EndDate.After(race.StartDate) {
		return types.RaceView{}, newError(KindValidationFailed, "end date must be after start date")
	}
	race.IsPrivate = true

	race, err = s.races.Update(ctx, race)
	if err != nil {
		return types.RaceView{}, notFound(err, "race not found")
	}

	s.publish(ctx, newRaceEvent(types.EventRaceUpdated, race.ID, identity.UserID, s.now()))
	return s.raceView(ctx, race, identity.UserID)
}

// Delete removes a race together with its participants.
func (s *RaceService) Delete(ctx context.Context, identity types.Identity, raceID int64) error {
	race, err := s.getRace(ctx, raceID)
	if err != nil {
		return err
	}
	if race.OrganiserID != identity.UserID {
		return newError(KindAuthorizationDenied, "only the organiser can delete this race")
	}

	participants, err := s.participants.ListByRace(ctx, race.ID)
	if err != nil {
		return fmt.Errorf("list participants: %w", err)
	}
	if err := s.races.Delete(ctx, race.ID); err != nil {
		return notFound(err, "race not found")
	}

	for _, detail := range participants {
		if detail.Participant.SubmittedRide {
			s.deleteArchived(ctx, race.ID, detail.Participant.UserID)
		}
	}
	s.publish(ctx, newRaceEvent(types.EventRaceDeleted, race.ID, identity.UserID, s.now()))
	return nil
}

// Join enrolls the caller in a race after the membership, quota and
// password checks pass, in that order.
func (s *RaceService) Join(ctx context.Context, identity types.Identity, raceID int64, password string) (types.RaceView, error) {
	race, err := s.getRace(ctx, raceID)
	if err != nil {
		return types.RaceView{}, err
	}

	_, err = s.participants.GetByRaceAndUser(ctx, race.ID, identity.UserID)
	switch {
	case err == nil:
		return types.RaceView{}, newError(KindConflict, "you have already joined this race")
	case !errors.Is(err, store.ErrNotFound):
		return types.RaceView{}, fmt.Errorf("load participation: %w", err)
	}

	user, err := s.users.GetByID(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.RaceView{}, wrapError(KindAuthenticationRequired, "user no longer exists", err)
		}
		return types.RaceView{}, fmt.Errorf("load user: %w", err)
	}

	if !user.Premium {
		joined, err := s.participants.CountByUser(ctx, user.ID)
		if err != nil {
			return types.RaceView{}, fmt.Errorf("count joined races: %w", err)
		}
		if joined >= s.limits.MaxJoinedRaces {
			return types.RaceView{}, newError(KindQuotaExceeded,
				fmt.Sprintf("you can join at most %d races", s.limits.MaxJoinedRaces))
		}
	}

	count, err := s.participants.CountByRace(ctx, race.ID)
	if err != nil {
		return types.RaceView{}, fmt.Errorf("count participants: %w", err)
	}
	if count >= s.limits.MaxParticipantsPerRace {
		return types.RaceView{}, newError(KindQuotaExceeded, "this race is full")
	}

	if race.IsPrivate && subtle.ConstantTimeCompare([]byte(password), []byte(race.Password)) != 1 {
		return types.RaceView{}, newError(KindAuthorizationDenied, "incorrect race password")
	}

	if _, err := s.participants.Create(ctx, types.Participant{RaceID: race.ID, UserID: user.ID}); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.RaceView{}, wrapError(KindConflict, "you have already joined this race", err)
		}
		return types.RaceView{}, fmt.Errorf("create participant: %w", err)
	}

	s.publish(ctx, newRaceEvent(types.EventParticipantJoined, race.ID, user.ID, s.now()))
	return s.raceView(ctx, race, identity.UserID)
}

// RemoveParticipant deletes a participation. The organiser may remove
// anyone; other participants may only remove themselves.
func (s *RaceService) RemoveParticipant(ctx context.Context, identity types.Identity, raceID, participantID int64) error {
	race, err := s.getRace(ctx, raceID)
	if err != nil {
		return err
	}
	participant, err := s.participants.Get(ctx, participantID)
	if err != nil {
		return notFound(err, "participant not found")
	}
	if participant.RaceID != race.ID {
		return newError(KindValidationFailed, "participant does not belong to this race")
	}
	if identity.UserID != race.OrganiserID && identity.UserID != participant.UserID {
		return newError(KindAuthorizationDenied, "only the organiser or the participant can remove a participant")
	}

	if err := s.participants.Delete(ctx, participant.ID); err != nil {
		return notFound(err, "participant not found")
	}

	if participant.SubmittedRide {
		s.deleteArchived(ctx, race.ID, participant.UserID)
	}
	s.publish(ctx, newRaceEvent(types.EventParticipantRemoved, race.ID, participant.UserID, s.now()))
	return nil
}

// SubmitActivity replaces the caller's results in a race with the efforts
// of one Strava activity on the race segments.
func (s *RaceService) SubmitActivity(ctx context.Context, identity types.Identity, raceID, activityID int64) (types.RaceView, error) {
	if activityID < 1 {
		return types.RaceView{}, newError(KindValidationFailed, "activity id must be positive")
	}

	accessToken, err := s.accessToken(ctx, identity.UserID)
	if err != nil {
		return types.RaceView{}, err
	}

	race, err := s.getRace(ctx, raceID)
	if err != nil {
		return types.RaceView{}, err
	}
	participant, err := s.participants.GetByRaceAndUser(ctx, race.ID, identity.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.RaceView{}, wrapError(KindAuthorizationDenied, "you must join the race before submitting an activity", err)
		}
		return types.RaceView{}, fmt.Errorf("load participation: %w", err)
	}

	detail, err := s.fetcher.FetchActivityDetail(ctx, activityID, accessToken)
	if err != nil {
		return types.RaceView{}, mapStravaError(err, "activity not found on strava", "failed to fetch activity from strava")
	}
	if !detail.HasSegmentEfforts {
		return types.RaceView{}, newError(KindDataIntegrityFailure, "activity has no segment efforts")
	}

	participant.SegmentResults = s.extractSegmentResults(race, activityID, detail.SegmentEfforts)
	participant.SubmittedRide = true
	participant.SubmittedActivityID = &activityID

	if _, err := s.participants.UpdateResults(ctx, participant); err != nil {
		return types.RaceView{}, notFound(err, "participant not found")
	}

	if s.archive != nil && len(detail.Raw) > 0 {
		if err := s.archive.PutActivity(ctx, race.ID, identity.UserID, detail.Raw); err != nil {
			s.logger.Warn("archive activity failed",
				"race_id", race.ID, "user_id", identity.UserID, "activity_id", activityID, "error", err)
		}
	}
	event := newRaceEvent(types.EventResultSubmitted, race.ID, identity.UserID, s.now())
	event.ActivityID = &activityID
	s.publish(ctx, event)

	return s.raceView(ctx, race, identity.UserID)
}

// Get returns the full race view. Only participants and the organiser may
// see a race.
func (s *RaceService) Get(ctx context.Context, identity types.Identity, raceID int64) (types.RaceView, error) {
	race, err := s.getRace(ctx, raceID)
	if err != nil {
		return types.RaceView{}, err
	}
	if race.OrganiserID != identity.UserID {
		if _, err := s.participants.GetByRaceAndUser(ctx, race.ID, identity.UserID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return types.RaceView{}, newError(KindAuthorizationDenied, "join the race to see it")
			}
			return types.RaceView{}, fmt.Errorf("load participation: %w", err)
		}
	}
	return s.raceView(ctx, race, identity.UserID)
}

// List returns one page of all races, newest first, without participants.
func (s *RaceService) List(ctx context.Context, identity types.Identity, page, limit int) (RacePage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	races, total, err := s.races.List(ctx, (page-1)*limit, limit)
	if err != nil {
		return RacePage{}, fmt.Errorf("list races: %w", err)
	}
	summaries, err := s.summaries(ctx, races, identity.UserID)
	if err != nil {
		return RacePage{}, err
	}
	return RacePage{Races: summaries, Total: total, Page: page, Limit: limit}, nil
}

// ListParticipating returns summaries of the races the caller belongs to.
func (s *RaceService) ListParticipating(ctx context.Context, identity types.Identity) ([]types.RaceView, error) {
	races, err := s.races.ListByParticipant(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("list participating races: %w", err)
	}
	return s.summaries(ctx, races, identity.UserID)
}

// ListRaceActivities lists the caller's Strava rides inside the race window.
func (s *RaceService) ListRaceActivities(ctx context.Context, identity types.Identity, raceID int64) ([]types.ActivitySummary, error) {
	race, err := s.getRace(ctx, raceID)
	if err != nil {
		return nil, err
	}
	accessToken, err := s.accessToken(ctx, identity.UserID)
	if err != nil {
		return nil, err
	}

	activities, err := s.fetcher.FetchActivitiesInRange(ctx, accessToken, race.StartDate, race.EndDate)
	if err != nil {
		return nil, mapStravaError(err, "strava athlete not found", "failed to fetch activities from strava")
	}

	rides := make([]types.ActivitySummary, 0, len(activities))
	for _, activity := range activities {
		if strings.EqualFold(activity.Type, "ride") {
			rides = append(rides, activity)
		}
	}
	return rides, nil
}

// GetArchivedActivity returns the raw Strava activity behind a participant's
// current results. The organiser and the participant may read it.
func (s *RaceService) GetArchivedActivity(ctx context.Context, identity types.Identity, raceID, participantID int64) (json.RawMessage, error) {
	if s.archive == nil {
		return nil, newError(KindNotFound, "activity archive is not enabled")
	}
	race, err := s.getRace(ctx, raceID)
	if err != nil {
		return nil, err
	}
	participant, err := s.participants.Get(ctx, participantID)
	if err != nil {
		return nil, notFound(err, "participant not found")
	}
	if participant.RaceID != race.ID {
		return nil, newError(KindValidationFailed, "participant does not belong to this race")
	}
	if identity.UserID != race.OrganiserID && identity.UserID != participant.UserID {
		return nil, newError(KindAuthorizationDenied, "only the organiser or the participant can read this activity")
	}
	if !participant.SubmittedRide {
		return nil, newError(KindNotFound, "no activity submitted")
	}

	raw, err := s.archive.GetActivity(ctx, race.ID, participant.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, wrapError(KindNotFound, "archived activity not found", err)
		}
		return nil, fmt.Errorf("read archived activity: %w", err)
	}
	return raw, nil
}

// accessToken resolves a Strava access token for the user and persists any
// token change the broker made.
func (s *RaceService) accessToken(ctx context.Context, userID int64) (string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", wrapError(KindAuthenticationRequired, "user no longer exists", err)
		}
		return "", fmt.Errorf("load user: %w", err)
	}

	result, tokenErr := s.broker.Token(ctx, user)
	if result.UserChanged {
		if _, err := s.users.UpdateTokens(ctx, result.User); err != nil {
			return "", fmt.Errorf("persist strava tokens: %w", err)
		}
		if tokenErr == nil {
			s.logger.Info("strava token refreshed", "user_id", user.ID)
		}
	}
	if tokenErr != nil {
		if errors.Is(tokenErr, ErrReauthRequired) {
			return "", wrapError(KindAuthenticationRequired, "strava authorization expired, please log in again", tokenErr)
		}
		return "", wrapError(KindExternalServiceFailure, "failed to refresh strava token", tokenErr)
	}
	return result.AccessToken, nil
}

// extractSegmentResults keeps the efforts on race segments. Efforts that
// cannot be read are skipped.
func (s *RaceService) extractSegmentResults(race types.Race, activityID int64, efforts []json.RawMessage) []types.SegmentResult {
	results := make([]types.SegmentResult, 0, len(efforts))
	for i, raw := range efforts {
		result, err := parseSegmentEffort(raw)
		if err != nil {
			s.logger.Warn("skipping segment effort",
				"race_id", race.ID, "activity_id", activityID, "index", i, "reason", err.Error())
			continue
		}
		if race.HasSegment(result.SegmentID) {
			results = append(results, result)
		}
	}
	return results
}

func parseSegmentEffort(raw json.RawMessage) (types.SegmentResult, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var effort map[string]any
	if err := decoder.Decode(&effort); err != nil || effort == nil {
		return types.SegmentResult{}, errors.New("effort is not an object")
	}

	segment, ok := effort["segment"].(map[string]any)
	if !ok {
		return types.SegmentResult{}, errors.New("missing segment")
	}
	segmentID, ok := integerValue(segment["id"])
	if !ok {
		return types.SegmentResult{}, errors.New("non-numeric segment id")
	}
	elapsed, ok := integerValue(effort["elapsed_time"])
	if !ok {
		return types.SegmentResult{}, errors.New("non-numeric elapsed time")
	}
	if elapsed < 0 {
		return types.SegmentResult{}, errors.New("negative elapsed time")
	}

	name, _ := segment["name"].(string)
	if strings.TrimSpace(name) == "" {
		name = unnamedSegment
	}
	return types.SegmentResult{
		SegmentID:          segmentID,
		SegmentName:        name,
		ElapsedTimeSeconds: int(elapsed),
	}, nil
}

func integerValue(value any) (int64, bool) {
	number, ok := value.(json.Number)
	if !ok {
		return 0, false
	}
	if n, err := number.Int64(); err == nil {
		return n, true
	}
	// Whole numbers written as floats ("615.0") are accepted; fractions and
	// values beyond exact float precision are not.
	f, err := number.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > maxExactFloat {
		return 0, false
	}
	return int64(f), true
}

func (s *RaceService) getRace(ctx context.Context, raceID int64) (types.Race, error) {
	race, err := s.races.Get(ctx, raceID)
	if err != nil {
		return types.Race{}, notFound(err, "race not found")
	}
	return race, nil
}

func (s *RaceService) raceView(ctx context.Context, race types.Race, viewerID int64) (types.RaceView, error) {
	participants, err := s.participants.ListByRace(ctx, race.ID)
	if err != nil {
		return types.RaceView{}, fmt.Errorf("list participants: %w", err)
	}
	organiser, err := s.organiser(ctx, race, participants)
	if err != nil {
		return types.RaceView{}, err
	}
	return BuildRaceView(race, organiser, participants, viewerID, s.now()), nil
}

func (s *RaceService) organiser(ctx context.Context, race types.Race, participants []types.ParticipantDetail) (*types.User, error) {
	for _, detail := range participants {
		if detail.User.ID == race.OrganiserID {
			user := detail.User
			return &user, nil
		}
	}
	user, err := s.users.GetByID(ctx, race.OrganiserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load organiser: %w", err)
	}
	return &user, nil
}

func (s *RaceService) summaries(ctx context.Context, races []types.Race, viewerID int64) ([]types.RaceView, error) {
	raceIDs := make([]int64, 0, len(races))
	organiserIDs := make([]int64, 0, len(races))
	seen := make(map[int64]bool, len(races))
	for _, race := range races {
		raceIDs = append(raceIDs, race.ID)
		if !seen[race.OrganiserID] {
			seen[race.OrganiserID] = true
			organiserIDs = append(organiserIDs, race.OrganiserID)
		}
	}

	counts, err := s.participants.CountByRaces(ctx, raceIDs)
	if err != nil {
		return nil, fmt.Errorf("count participants: %w", err)
	}
	organisers, err := s.users.ListByIDs(ctx, organiserIDs)
	if err != nil {
		return nil, fmt.Errorf("load organisers: %w", err)
	}
	byID := make(map[int64]types.User, len(organisers))
	for _, user := range organisers {
		byID[user.ID] = user
	}

	views := make([]types.RaceView, 0, len(races))
	for _, race := range races {
		var organiser *types.User
		if user, ok := byID[race.OrganiserID]; ok {
			organiser = &user
		}
		views = append(views, BuildRaceSummary(race, organiser, counts[race.ID], viewerID))
	}
	return views, nil
}

func (s *RaceService) publish(ctx context.Context, event types.RaceEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishRaceEvent(ctx, event); err != nil {
		s.logger.Warn("publish race event failed",
			"event_id", event.ID, "type", event.Type, "race_id", event.RaceID, "error", err)
	}
}

func (s *RaceService) deleteArchived(ctx context.Context, raceID, userID int64) {
	if s.archive == nil {
		return
	}
	if err := s.archive.DeleteActivity(ctx, raceID, userID); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		s.logger.Warn("delete archived activity failed", "race_id", raceID, "user_id", userID, "error", err)
	}
}

func validateRaceInput(input types.RaceInput) error {
	if utf8.RuneCountInString(input.Name) < minRaceNameLength {
		return newError(KindValidationFailed, "name must be at least 3 characters")
	}
	if input.StartDate.IsZero() || input.EndDate.IsZero() {
		return newError(KindValidationFailed, "start and end dates are required")
	}
	if !input.EndDate.After(input.StartDate) {
		return newError(KindValidationFailed, "end date must be after start date")
	}
	if err := validateSegmentIDs(input.SegmentIDs); err != nil {
		return err
	}
	if utf8.RuneCountInString(input.Password) < minRacePasswordLength {
		return newError(KindValidationFailed, "password must be at least 4 characters")
	}
	return nil
}

func validateSegmentIDs(segmentIDs []int64) error {
	if len(segmentIDs) == 0 {
		return newError(KindValidationFailed, "at least one segment is required")
	}
	for _, id := range segmentIDs {
		if id < 1 {
			return newError(KindValidationFailed, "segment ids must be positive")
		}
	}
	return nil
}

func mapStravaError(err error, notFoundMessage, failureMessage string) error {
	switch {
	case errors.Is(err, strava.ErrUnauthorized):
		return wrapError(KindAuthenticationRequired, "strava rejected the access token, please log in again", err)
	case errors.Is(err, strava.ErrNotFound):
		return wrapError(KindNotFound, notFoundMessage, err)
	default:
		return wrapError(KindExternalServiceFailure, failureMessage, err)
	}
}
