package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) DeleteParticipation(ctx context.Context, matchID string) (int64, error) {
	args := m.Called(ctx, matchID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) InsertParticipation(ctx context.Context, arg InsertParticipationParams) error {
	return m.Called(ctx, arg).Error(0)
}

func (m *mockStore) CountPlayedOn(ctx context.Context, arg CountPlayedOnParams) ([]PlayedCount, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).([]PlayedCount), args.Error(1)
}

func day(y int, mo time.Month, d int) pgtype.Date {
	return pgtype.Date{Time: time.Date(y, mo, d, 0, 0, 0, 0, time.UTC), Valid: true}
}

func TestRecordParticipationReplacesRows(t *testing.T) {
	store := new(mockStore)
	clk := clockwork.NewFakeClockAt(time.Date(2024, 3, 9, 22, 30, 0, 0, time.UTC))
	tracker := newTracker(store, TrackerOptions{Clock: clk}, zerolog.Nop())

	store.On("DeleteParticipation", mock.Anything, "m1").Return(int64(3), nil).Once()
	for _, id := range []string{"p1", "p2"} {
		store.On("InsertParticipation", mock.Anything, InsertParticipationParams{
			MatchID:       "m1",
			ParticipantID: id,
			Scope:         "liga-open",
			PlayedOn:      day(2024, 3, 9),
		}).Return(nil).Once()
	}

	require.NoError(t, tracker.RecordParticipation(context.Background(), "liga-open", "m1", []string{"p1", "p2"}))
	store.AssertExpectations(t)
}

func TestRecordParticipationUsesLocalDay(t *testing.T) {
	store := new(mockStore)
	loc := time.FixedZone("BRT", -3*60*60)
	// 01:30 UTC on the 10th is still the 9th in BRT
	clk := clockwork.NewFakeClockAt(time.Date(2024, 3, 10, 1, 30, 0, 0, time.UTC))
	tracker := newTracker(store, TrackerOptions{Clock: clk, Location: loc}, zerolog.Nop())

	store.On("DeleteParticipation", mock.Anything, "m1").Return(int64(0), nil)
	store.On("InsertParticipation", mock.Anything, mock.MatchedBy(func(p InsertParticipationParams) bool {
		return p.PlayedOn == day(2024, 3, 9)
	})).Return(nil)

	require.NoError(t, tracker.RecordParticipation(context.Background(), "s", "m1", []string{"p1"}))
	store.AssertExpectations(t)
}

func TestRecordParticipationRequiresMatchID(t *testing.T) {
	tracker := newTracker(new(mockStore), TrackerOptions{}, zerolog.Nop())
	assert.Error(t, tracker.RecordParticipation(context.Background(), "s", "", []string{"p1"}))
}

func TestRecordParticipationStopsOnInsertError(t *testing.T) {
	store := new(mockStore)
	tracker := newTracker(store, TrackerOptions{Clock: clockwork.NewFakeClock()}, zerolog.Nop())

	store.On("DeleteParticipation", mock.Anything, "m1").Return(int64(0), nil)
	store.On("InsertParticipation", mock.Anything, mock.Anything).Return(errors.New("boom")).Once()

	err := tracker.RecordParticipation(context.Background(), "s", "m1", []string{"p1", "p2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "p1")
	store.AssertNumberOfCalls(t, "InsertParticipation", 1)
}

func TestClearParticipation(t *testing.T) {
	store := new(mockStore)
	tracker := newTracker(store, TrackerOptions{}, zerolog.Nop())
	store.On("DeleteParticipation", mock.Anything, "m9").Return(int64(4), nil)

	require.NoError(t, tracker.ClearParticipation(context.Background(), "m9"))
	store.AssertExpectations(t)
}

func TestPlayedCountsTodayFillsZeros(t *testing.T) {
	store := new(mockStore)
	clk := clockwork.NewFakeClockAt(time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC))
	tracker := newTracker(store, TrackerOptions{Clock: clk}, zerolog.Nop())

	store.On("CountPlayedOn", mock.Anything, CountPlayedOnParams{
		Scope:          "liga-open",
		PlayedOn:       day(2024, 3, 9),
		ParticipantIDs: []string{"p1", "p2", "p3"},
	}).Return([]PlayedCount{{ParticipantID: "p2", Played: 3}}, nil)

	got, err := tracker.PlayedCountsToday(context.Background(), "liga-open", []string{"p1", "p2", "p3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"p1": 0, "p2": 3, "p3": 0}, got)
}

func TestPlayedCountsTodayEmptyInput(t *testing.T) {
	store := new(mockStore)
	tracker := newTracker(store, TrackerOptions{}, zerolog.Nop())

	got, err := tracker.PlayedCountsToday(context.Background(), "s", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	store.AssertNotCalled(t, "CountPlayedOn", mock.Anything, mock.Anything)
}
