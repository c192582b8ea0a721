package services

import (
	"time"

	"github.com/Fjallroth/matesrace/types"
)

const viewTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// BuildRaceView projects a race and its participants for viewerID at now.
// Nothing it computes is ever stored: the visibility of passwords and times
// depends on both arguments.
func BuildRaceView(race types.Race, organiser *types.User, participants []types.ParticipantDetail, viewerID int64, now time.Time) types.RaceView {
	view := raceHeader(race, organiser, len(participants), viewerID)

	isOrganiser := viewerID == race.OrganiserID
	timesPublic := isOrganiser || race.Finished(now) || !race.HideLeaderboardUntilFinish

	view.Participants = make([]types.ParticipantView, 0, len(participants))
	for _, detail := range participants {
		showTimes := timesPublic || detail.Participant.UserID == viewerID
		view.Participants = append(view.Participants, participantView(detail, showTimes))
	}
	return view
}

// BuildRaceSummary projects a race without its participant list.
func BuildRaceSummary(race types.Race, organiser *types.User, participantCount int, viewerID int64) types.RaceView {
	return raceHeader(race, organiser, participantCount, viewerID)
}

func raceHeader(race types.Race, organiser *types.User, participantCount int, viewerID int64) types.RaceView {
	segmentIDs := make([]int64, len(race.SegmentIDs))
	copy(segmentIDs, race.SegmentIDs)

	view := types.RaceView{
		ID:                         race.ID,
		Name:                       race.Name,
		Info:                       race.Info,
		StartDate:                  race.StartDate.UTC().Format(viewTimeLayout),
		EndDate:                    race.EndDate.UTC().Format(viewTimeLayout),
		SegmentIDs:                 segmentIDs,
		IsPrivate:                  race.IsPrivate,
		HideLeaderboardUntilFinish: race.HideLeaderboardUntilFinish,
		UseSexCategories:           race.UseSexCategories,
		ParticipantCount:           participantCount,
	}
	if organiser != nil {
		view.Organiser = userSummary(*organiser)
	}
	if viewerID == race.OrganiserID {
		password := race.Password
		view.Password = &password
	}
	return view
}

func participantView(detail types.ParticipantDetail, showTimes bool) types.ParticipantView {
	participant := detail.Participant
	view := types.ParticipantView{
		ID:             participant.ID,
		User:           userSummary(detail.User),
		SubmittedRide:  participant.SubmittedRide,
		SegmentResults: make([]types.SegmentResultView, 0, len(participant.SegmentResults)),
	}
	if participant.SubmittedActivityID != nil {
		activityID := *participant.SubmittedActivityID
		view.SubmittedActivityID = &activityID
	}

	for _, result := range participant.SegmentResults {
		resultView := types.SegmentResultView{
			SegmentID:   result.SegmentID,
			SegmentName: result.SegmentName,
		}
		if showTimes {
			elapsed := result.ElapsedTimeSeconds
			resultView.ElapsedTimeSeconds = &elapsed
		}
		view.SegmentResults = append(view.SegmentResults, resultView)
	}
	return view
}

func userSummary(user types.User) *types.UserSummary {
	return &types.UserSummary{
		StravaID:       user.StravaID,
		DisplayName:    user.DisplayName,
		FirstName:      user.FirstName,
		LastName:       user.LastName,
		ProfilePicture: user.ProfilePicture,
		Sex:            user.Sex,
	}
}
