package slots

import (
	"context"
	"errors"
	"testing"
	"time"

	"telecare/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore implements TemplateSource, OverrideSource and BookingChecker for testing.
type fakeStore struct {
	templates   []models.SessionTemplate
	blockedDays map[string]bool
	blockedSess map[string]struct{}
	booked      map[int64]struct{}
	err         error
}

func (f *fakeStore) ListSessionsByDay(_ context.Context, doctorID string, dayOfWeek int) ([]models.SessionTemplate, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.SessionTemplate
	for _, t := range f.templates {
		if t.DoctorID == doctorID && t.DayOfWeek == dayOfWeek {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) IsDayBlocked(_ context.Context, _, date string) (bool, error) {
	return f.blockedDays[date], nil
}

func (f *fakeStore) BlockedSessionIDs(context.Context, string, string) (map[string]struct{}, error) {
	if f.blockedSess == nil {
		return map[string]struct{}{}, nil
	}
	return f.blockedSess, nil
}

func (f *fakeStore) BookedStarts(_ context.Context, _ string, from, to time.Time) (map[int64]struct{}, error) {
	out := make(map[int64]struct{})
	for k := range f.booked {
		if k >= from.UnixMilli() && k < to.UnixMilli() {
			out[k] = struct{}{}
		}
	}
	return out, nil
}

var monday = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

func mondaySession(id, start, end string, duration int) models.SessionTemplate {
	return models.SessionTemplate{
		ID: id, DoctorID: "d1", DayOfWeek: int(time.Monday),
		StartTime: start, EndTime: end, DurationMinutes: duration, Fee: 500,
	}
}

func newGen(f *fakeStore) *Generator {
	return NewGenerator(f, f, f, time.UTC)
}

func TestGenerateTwentyMinuteSlots(t *testing.T) {
	store := &fakeStore{templates: []models.SessionTemplate{mondaySession("s1", "10:00", "12:00", 20)}}

	schedule, err := newGen(store).Generate(context.Background(), "d1", monday)
	require.NoError(t, err)
	require.Len(t, schedule.Sessions, 1)

	slots := schedule.Sessions[0].Slots
	require.Len(t, slots, 6)

	want := []string{"10:00", "10:20", "10:40", "11:00", "11:20", "11:40"}
	for i, slot := range slots {
		assert.Equal(t, want[i], slot.Start.Format("15:04"))
		assert.Equal(t, 20*time.Minute, slot.End.Sub(slot.Start))
		assert.Equal(t, models.SlotAvailable, slot.Status)
		assert.Equal(t, slot.Start.UnixMilli(), slot.Key)
		assert.Equal(t, "s1", slot.SessionID)
		assert.Equal(t, int64(500), slot.Fee)
		if i > 0 {
			assert.True(t, slot.Start.Equal(slots[i-1].End), "slots are contiguous")
		}
	}
	assert.True(t, slots[len(slots)-1].End.Equal(monday.Add(12*time.Hour)))
}

func TestGenerateMarksBookedSlot(t *testing.T) {
	bookedKey := monday.Add(10*time.Hour + 40*time.Minute).UnixMilli()
	store := &fakeStore{
		templates: []models.SessionTemplate{mondaySession("s1", "10:00", "12:00", 20)},
		booked:    map[int64]struct{}{bookedKey: {}},
	}

	schedule, err := newGen(store).Generate(context.Background(), "d1", monday)
	require.NoError(t, err)

	slots := schedule.Sessions[0].Slots
	for i, slot := range slots {
		if i == 2 {
			assert.Equal(t, models.SlotBooked, slot.Status)
			continue
		}
		assert.Equal(t, models.SlotAvailable, slot.Status)
	}
}

func TestGenerateDayOverride(t *testing.T) {
	store := &fakeStore{
		templates:   []models.SessionTemplate{mondaySession("s1", "10:00", "12:00", 20)},
		blockedDays: map[string]bool{"2025-03-03": true},
	}

	schedule, err := newGen(store).Generate(context.Background(), "d1", monday)
	require.NoError(t, err)
	assert.True(t, schedule.DayBlocked)
	assert.Empty(t, schedule.Sessions)
	assert.Empty(t, schedule.Blocked)

	// The following Monday is unaffected.
	schedule, err = newGen(store).Generate(context.Background(), "d1", monday.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.False(t, schedule.DayBlocked)
	assert.Len(t, schedule.Sessions, 1)
}

func TestGenerateSessionOverride(t *testing.T) {
	store := &fakeStore{
		templates: []models.SessionTemplate{
			mondaySession("s1", "10:00", "12:00", 20),
			mondaySession("s2", "14:00", "15:00", 30),
		},
		blockedSess: map[string]struct{}{"s1": {}},
	}

	schedule, err := newGen(store).Generate(context.Background(), "d1", monday)
	require.NoError(t, err)
	require.Len(t, schedule.Sessions, 1)
	assert.Equal(t, "s2", schedule.Sessions[0].Session.ID)
	assert.Len(t, schedule.Sessions[0].Slots, 2)
	require.Len(t, schedule.Blocked, 1)
	assert.Equal(t, "s1", schedule.Blocked[0].ID)
}

func TestGenerateEdgeCases(t *testing.T) {
	tests := []struct {
		name      string
		templates []models.SessionTemplate
		doctorID  string
		wantSlots []int
	}{
		{
			name:      "uneven window drops remainder",
			templates: []models.SessionTemplate{mondaySession("s1", "10:00", "11:00", 25)},
			doctorID:  "d1",
			wantSlots: []int{2},
		},
		{
			name:      "no templates",
			doctorID:  "d1",
			wantSlots: nil,
		},
		{
			name:      "unknown doctor",
			templates: []models.SessionTemplate{mondaySession("s1", "10:00", "11:00", 20)},
			doctorID:  "nobody",
			wantSlots: nil,
		},
		{
			name:      "non-positive duration yields no slots",
			templates: []models.SessionTemplate{mondaySession("s1", "10:00", "11:00", 0)},
			doctorID:  "d1",
			wantSlots: []int{0},
		},
		{
			name:      "window shorter than one slot",
			templates: []models.SessionTemplate{mondaySession("s1", "10:00", "10:15", 20)},
			doctorID:  "d1",
			wantSlots: []int{0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schedule, err := newGen(&fakeStore{templates: tt.templates}).Generate(context.Background(), tt.doctorID, monday)
			require.NoError(t, err)
			require.Len(t, schedule.Sessions, len(tt.wantSlots))
			for i, n := range tt.wantSlots {
				assert.Len(t, schedule.Sessions[i].Slots, n)
			}
		})
	}
}

func TestGenerateIsIdempotent(t *testing.T) {
	store := &fakeStore{
		templates: []models.SessionTemplate{mondaySession("s1", "10:00", "12:00", 20)},
		booked:    map[int64]struct{}{monday.Add(11 * time.Hour).UnixMilli(): {}},
	}
	gen := newGen(store)

	first, err := gen.Generate(context.Background(), "d1", monday)
	require.NoError(t, err)
	second, err := gen.Generate(context.Background(), "d1", monday.Add(15*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGenerateAnchorsInScheduleTimezone(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	store := &fakeStore{templates: []models.SessionTemplate{mondaySession("s1", "10:00", "11:00", 30)}}

	schedule, err := NewGenerator(store, store, store, ist).Generate(context.Background(), "d1", monday)
	require.NoError(t, err)
	require.Len(t, schedule.Sessions, 1)

	first := schedule.Sessions[0].Slots[0]
	assert.Equal(t, time.Date(2025, 3, 3, 4, 30, 0, 0, time.UTC).UnixMilli(), first.Key)
	assert.Equal(t, "2025-03-03", schedule.Date)
}

func TestGeneratePropagatesStoreErrors(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	_, err := newGen(store).Generate(context.Background(), "d1", monday)
	assert.Error(t, err)
}

func TestMarkPast(t *testing.T) {
	bookedKey := monday.Add(10 * time.Hour).UnixMilli()
	store := &fakeStore{
		templates: []models.SessionTemplate{mondaySession("s1", "10:00", "12:00", 20)},
		booked:    map[int64]struct{}{bookedKey: {}},
	}
	schedule, err := newGen(store).Generate(context.Background(), "d1", monday)
	require.NoError(t, err)

	MarkPast(schedule, monday.Add(10*time.Hour+30*time.Minute))

	slots := schedule.Sessions[0].Slots
	assert.Equal(t, models.SlotBooked, slots[0].Status, "booked stays booked")
	assert.Equal(t, models.SlotUnavailable, slots[1].Status)
	assert.Equal(t, models.SlotAvailable, slots[2].Status)
}

func TestFindSlot(t *testing.T) {
	store := &fakeStore{templates: []models.SessionTemplate{mondaySession("s1", "10:00", "12:00", 20)}}
	schedule, err := newGen(store).Generate(context.Background(), "d1", monday)
	require.NoError(t, err)

	key := monday.Add(11 * time.Hour).UnixMilli()
	slot, ok := FindSlot(schedule, "s1", key)
	require.True(t, ok)
	assert.Equal(t, "11:00", slot.Start.Format("15:04"))

	_, ok = FindSlot(schedule, "other", key)
	assert.False(t, ok)
	_, ok = FindSlot(schedule, "s1", key+1)
	assert.False(t, ok)
}
