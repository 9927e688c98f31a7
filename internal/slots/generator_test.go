package slots

import (
	"math/rand"
	"testing"
	"time"

	"salonbot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDay = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return time.Date(testDay.Year(), testDay.Month(), testDay.Day(), h, m, 0, 0, time.UTC)
}

func clockPtr(c models.Clock) *models.Clock { return &c }

func workday() *models.WorkSchedule {
	return &models.WorkSchedule{Day: "2", Start: models.NewClock(9, 0), End: models.NewClock(17, 0)}
}

func TestGenerate(t *testing.T) {
	lunch := workday()
	lunch.LunchStart = clockPtr(models.NewClock(13, 0))
	lunch.LunchEnd = clockPtr(models.NewClock(14, 0))

	badLunch := workday()
	badLunch.LunchStart = clockPtr(models.NewClock(14, 0))
	badLunch.LunchEnd = clockPtr(models.NewClock(13, 0))

	tests := []struct {
		name      string
		schedule  *models.WorkSchedule
		duration  time.Duration
		committed []models.Interval
		now       time.Time
		wantCount int
		wantFirst string
		wantLast  string
	}{
		{
			name:      "happy path",
			schedule:  workday(),
			duration:  time.Hour,
			now:       at(8, 0),
			wantCount: 29, // 09:00 .. 16:00 every 15 minutes
			wantFirst: "09:00",
			wantLast:  "16:00",
		},
		{
			name:      "closed day",
			schedule:  nil,
			duration:  time.Hour,
			now:       at(8, 0),
			wantCount: 0,
		},
		{
			name:      "lunch gap",
			schedule:  lunch,
			duration:  time.Hour,
			now:       at(8, 0),
			wantCount: 29 - 7, // 12:15 .. 13:45 collide with lunch
			wantFirst: "09:00",
			wantLast:  "16:00",
		},
		{
			name:      "malformed lunch is ignored",
			schedule:  badLunch,
			duration:  time.Hour,
			now:       at(8, 0),
			wantCount: 29,
		},
		{
			name:     "committed appointment",
			schedule: workday(),
			duration: time.Hour,
			committed: []models.Interval{
				{Start: at(10, 0), End: at(11, 0)},
			},
			now:       at(8, 0),
			wantCount: 29 - 7, // 09:15 .. 10:45
		},
		{
			name:      "past slots dropped",
			schedule:  workday(),
			duration:  time.Hour,
			now:       at(12, 7),
			wantCount: 16, // 12:15 .. 16:00
			wantFirst: "12:15",
			wantLast:  "16:00",
		},
		{
			name:      "service longer than the day",
			schedule:  workday(),
			duration:  9 * time.Hour,
			now:       at(8, 0),
			wantCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Generate(Input{
				Day:       testDay,
				Location:  time.UTC,
				Duration:  tt.duration,
				Schedule:  tt.schedule,
				Committed: tt.committed,
				Now:       tt.now,
			})

			require.Len(t, got, tt.wantCount)
			if tt.wantFirst != "" {
				assert.Equal(t, tt.wantFirst, got[0].Label)
			}
			if tt.wantLast != "" {
				assert.Equal(t, tt.wantLast, got[len(got)-1].Label)
			}
			for i := 1; i < len(got); i++ {
				assert.True(t, got[i-1].Start.Before(got[i].Start), "ascending order")
			}
		})
	}
}

func TestGenerate_LunchNeverOverlaps(t *testing.T) {
	ws := workday()
	ws.LunchStart = clockPtr(models.NewClock(13, 0))
	ws.LunchEnd = clockPtr(models.NewClock(14, 0))
	lunch := models.Interval{Start: at(13, 0), End: at(14, 0)}

	got := Generate(Input{Day: testDay, Location: time.UTC, Duration: time.Hour, Schedule: ws, Now: at(8, 0)})
	require.NotEmpty(t, got)
	for _, s := range got {
		assert.False(t, lunch.Overlaps(models.Interval{Start: s.Start, End: s.End}), "slot %s overlaps lunch", s.Label)
	}
	assert.True(t, Contains(got, "12:00"), "slot ending exactly at lunch start")
	assert.True(t, Contains(got, "14:00"), "slot starting exactly at lunch end")
}

func TestGenerate_DoesNotMutateCommitted(t *testing.T) {
	ws := workday()
	ws.LunchStart = clockPtr(models.NewClock(13, 0))
	ws.LunchEnd = clockPtr(models.NewClock(14, 0))

	committed := make([]models.Interval, 1, 4)
	committed[0] = models.Interval{Start: at(10, 0), End: at(11, 0)}

	first := Generate(Input{Day: testDay, Location: time.UTC, Duration: time.Hour, Schedule: ws, Committed: committed, Now: at(8, 0)})
	second := Generate(Input{Day: testDay, Location: time.UTC, Duration: time.Hour, Schedule: ws, Committed: committed, Now: at(8, 0)})

	assert.Equal(t, first, second)
	assert.Len(t, committed, 1)
}

func TestGenerate_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for iter := 0; iter < 300; iter++ {
		var committed []models.Interval
		for i := 0; i < rng.Intn(6); i++ {
			startMin := 8*60 + rng.Intn(10*60)
			length := 15 + rng.Intn(120)
			start := testDay.Add(time.Duration(startMin) * time.Minute)
			committed = append(committed, models.Interval{Start: start, End: start.Add(time.Duration(length) * time.Minute)})
		}
		duration := time.Duration(15*(1+rng.Intn(8))) * time.Minute
		now := testDay.Add(time.Duration(7*60+rng.Intn(11*60)) * time.Minute)

		in := Input{
			Day:       testDay,
			Location:  time.UTC,
			Duration:  duration,
			Schedule:  workday(),
			Committed: committed,
			Now:       now,
		}
		got := Generate(in)

		for _, s := range got {
			slot := models.Interval{Start: s.Start, End: s.End}
			for _, c := range committed {
				require.False(t, slot.Overlaps(c), "slot %s overlaps committed %v-%v", s.Label, c.Start, c.End)
			}
			require.False(t, s.Start.Before(now), "slot %s before now %v", s.Label, now)
			require.False(t, s.End.After(at(17, 0)), "slot %s ends after closing", s.Label)
		}
		require.Equal(t, got, Generate(in), "deterministic")
	}
}

func TestLabels(t *testing.T) {
	got := Generate(Input{Day: testDay, Location: time.UTC, Duration: 4 * time.Hour, Schedule: workday(), Now: at(12, 0)})
	assert.Equal(t, []string{"12:00", "12:15", "12:30", "12:45", "13:00"}, Labels(got))
}
