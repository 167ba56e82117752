package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uw-schedule-builder/internal/models"
)

const (
	monday = "YNNNNNN"
	friday = "NNNNYNN"
)

func TestFindAllSchedulesOverlapRejected(t *testing.T) {
	groups := []SessionGroup{
		group("MATH 135", models.ComponentLecture, mustOption(t, "1001", monday, "09:00", "10:00", "")),
		group("CS 135", models.ComponentLecture, mustOption(t, "2001", monday, "09:30", "10:30", "")),
	}

	assert.Empty(t, FindAllSchedules(groups))
}

func TestFindAllSchedulesTouchingIntervalsAllowed(t *testing.T) {
	groups := []SessionGroup{
		group("MATH 135", models.ComponentLecture, mustOption(t, "1001", monday, "09:00", "10:00", "")),
		group("CS 135", models.ComponentLecture, mustOption(t, "2001", monday, "10:00", "11:00", "")),
	}

	result := FindAllSchedules(groups)
	require.Len(t, result, 1)
	assert.Equal(t, []string{"1001", "2001"}, classNumbers(result[0]))
}

func TestFindAllSchedulesExamsOnDifferentDatesCoexist(t *testing.T) {
	groups := []SessionGroup{
		group("MATH 135", models.ComponentTest, mustOption(t, "1101", friday, "09:00", "11:00", "2026-04-10")),
		group("CS 135", models.ComponentTest, mustOption(t, "2101", friday, "09:00", "11:00", "2026-04-12")),
	}

	result := FindAllSchedules(groups)
	require.Len(t, result, 1)
	assert.Equal(t, []string{"1101", "2101"}, classNumbers(result[0]))
}

func TestFindAllSchedulesExamsOnSameDateConflict(t *testing.T) {
	groups := []SessionGroup{
		group("MATH 135", models.ComponentTest, mustOption(t, "1101", friday, "09:00", "11:00", "2026-04-10")),
		group("CS 135", models.ComponentTest, mustOption(t, "2101", friday, "09:00", "11:00", "2026-04-10")),
	}

	assert.Empty(t, FindAllSchedules(groups))
}

func TestFindAllSchedulesExamAgainstWeeklySessionConflicts(t *testing.T) {
	groups := []SessionGroup{
		group("MATH 135", models.ComponentTest, mustOption(t, "1101", friday, "09:00", "11:00", "2026-04-10")),
		group("CS 135", models.ComponentLecture, mustOption(t, "2001", friday, "10:00", "11:00", "")),
	}

	assert.Empty(t, FindAllSchedules(groups))
}

func TestFindAllSchedulesCountsNonConflictingCandidates(t *testing.T) {
	groups := []SessionGroup{
		group("MATH 135", models.ComponentLecture, mustOption(t, "1001", "YNYNYNN", "09:00", "10:00", "")),
		group("CS 135", models.ComponentLecture,
			mustOption(t, "2001", "YNNNNNN", "09:30", "10:20", ""),
			mustOption(t, "2002", "NYNYNNN", "09:30", "10:20", ""),
			mustOption(t, "2003", "NNNNYNN", "08:30", "09:20", ""),
			mustOption(t, "2004", "NNYNNNN", "10:00", "11:20", ""),
		),
	}

	result := FindAllSchedules(groups)
	require.Len(t, result, 2)
	assert.Equal(t, []string{"1001", "2002"}, classNumbers(result[0]))
	assert.Equal(t, []string{"1001", "2004"}, classNumbers(result[1]))
}

func TestFindAllSchedulesMultiDayConflictRejectsOnAllDays(t *testing.T) {
	groups := []SessionGroup{
		group("MATH 135", models.ComponentLecture, mustOption(t, "1001", "NNNNYNN", "13:00", "14:00", "")),
		group("CS 135", models.ComponentLecture, mustOption(t, "2001", "YNYNYNN", "13:30", "14:20", "")),
	}

	assert.Empty(t, FindAllSchedules(groups))
}

func TestFindAllSchedulesIsIdempotent(t *testing.T) {
	groups := randomGroups(rand.New(rand.NewSource(7)), 4, 4)

	first := FindAllSchedules(groups)
	second := FindAllSchedules(groups)
	assert.Equal(t, first, second)
}

func TestFindAllSchedulesMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 25; round++ {
		groups := randomGroups(rng, 1+rng.Intn(4), 1+rng.Intn(4))

		expected := bruteForce(groups)
		actual := FindAllSchedules(groups)

		require.Len(t, actual, len(expected), "round %d", round)
		for i := range expected {
			assert.Equal(t, classNumbers(expected[i]), classNumbers(actual[i]), "round %d result %d", round, i)
		}
	}
}

func TestFindAllSchedulesResultsArePairwiseConflictFree(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	groups := randomGroups(rng, 4, 5)
	byClass := make(map[string]Option)
	for _, g := range groups {
		for _, opt := range g.Options {
			byClass[opt.Session.ClassNumber] = opt
		}
	}

	for _, assignment := range FindAllSchedules(groups) {
		require.Len(t, assignment, len(groups))
		for i := 0; i < len(assignment); i++ {
			for j := i + 1; j < len(assignment); j++ {
				a := byClass[assignment[i].ClassNumber]
				b := byClass[assignment[j].ClassNumber]
				assert.False(t, Conflicts(a, b), "%s vs %s", a.Session.ClassNumber, b.Session.ClassNumber)
			}
		}
	}
}

func TestFindAllSchedulesEmptyGroupYieldsNothing(t *testing.T) {
	groups := []SessionGroup{
		group("MATH 135", models.ComponentLecture, mustOption(t, "1001", monday, "09:00", "10:00", "")),
		{Course: courseKey("CS 135"), Component: models.ComponentTutorial},
	}

	assert.Empty(t, FindAllSchedules(groups))
}

func TestFindAllSchedulesNoGroupsYieldsEmptyProduct(t *testing.T) {
	result := FindAllSchedules(nil)
	require.Len(t, result, 1)
	assert.Empty(t, result[0])
}

func TestSearchStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := Search(ctx, randomGroups(rand.New(rand.NewSource(1)), 3, 3), Limits{})
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, result.Truncated)
	assert.Empty(t, result.Schedules)
}

func TestSearchNodeBudget(t *testing.T) {
	groups := []SessionGroup{
		group("MATH 135", models.ComponentLecture,
			mustOption(t, "1001", monday, "08:00", "09:00", ""),
			mustOption(t, "1002", monday, "09:00", "10:00", ""),
		),
		group("CS 135", models.ComponentLecture,
			mustOption(t, "2001", "NYNNNNN", "08:00", "09:00", ""),
			mustOption(t, "2002", "NYNNNNN", "09:00", "10:00", ""),
		),
	}

	full, err := Search(context.Background(), groups, Limits{})
	require.NoError(t, err)
	assert.Len(t, full.Schedules, 4)
	assert.Equal(t, 7, full.Explored)

	partial, err := Search(context.Background(), groups, Limits{MaxNodes: 3})
	require.ErrorIs(t, err, ErrSearchBudgetExceeded)
	assert.True(t, partial.Truncated)
	assert.Len(t, partial.Schedules, 1)
}

func TestSearchResultBudget(t *testing.T) {
	groups := []SessionGroup{
		group("MATH 135", models.ComponentLecture,
			mustOption(t, "1001", monday, "08:00", "09:00", ""),
			mustOption(t, "1002", monday, "09:00", "10:00", ""),
			mustOption(t, "1003", monday, "10:00", "11:00", ""),
		),
	}

	result, err := Search(context.Background(), groups, Limits{MaxResults: 2})
	require.ErrorIs(t, err, ErrSearchBudgetExceeded)
	require.Len(t, result.Schedules, 2)
	assert.Equal(t, "1002", result.Schedules[1][0].ClassNumber)
}

func TestSearchResultCapEqualToTotalIsComplete(t *testing.T) {
	groups := []SessionGroup{
		group("MATH 135", models.ComponentLecture,
			mustOption(t, "1001", monday, "08:00", "09:00", ""),
			mustOption(t, "1002", monday, "09:00", "10:00", ""),
		),
	}
	total := len(FindAllSchedules(groups))
	require.Equal(t, 2, total)

	result, err := Search(context.Background(), groups, Limits{MaxResults: total})
	require.NoError(t, err)
	assert.False(t, result.Truncated)
	assert.Len(t, result.Schedules, total)
}

// --- Fixtures ---

func courseKey(label string) models.CourseKey {
	var subject, catalog string
	fmt.Sscanf(label, "%s %s", &subject, &catalog)
	return models.CourseKey{TermCode: "1261", SubjectCode: subject, CatalogNumber: catalog}
}

func group(course string, component models.Component, options ...Option) SessionGroup {
	key := courseKey(course)
	for i := range options {
		options[i].Session.SubjectCode = key.SubjectCode
		options[i].Session.CatalogNumber = key.CatalogNumber
		options[i].Session.Component = component
	}
	return SessionGroup{Course: key, Component: component, Options: options}
}

func mustOption(t *testing.T, classNumber, pattern, start, end, examDate string) Option {
	t.Helper()
	day := "2026-01-05"
	if examDate != "" {
		day = examDate
	}
	session := models.Session{
		TermCode:      "1261",
		ClassNumber:   classNumber,
		WeeklyPattern: pattern,
		StartTime:     day + "T" + start + ":00",
		EndTime:       day + "T" + end + ":00",
	}
	flags, err := WeeklyFlags(pattern)
	require.NoError(t, err)
	startMinute, err := EncodeTimeOfDay(session.StartTime)
	require.NoError(t, err)
	endMinute, err := EncodeTimeOfDay(session.EndTime)
	require.NoError(t, err)
	opt := Option{Session: session, Days: flags, StartMinute: startMinute, EndMinute: endMinute}
	if examDate != "" {
		opt.ExamDate, err = DateOf(session.StartTime)
		require.NoError(t, err)
	}
	return opt
}

func classNumbers(a Assignment) []string {
	out := make([]string, 0, len(a))
	for _, s := range a {
		out = append(out, s.ClassNumber)
	}
	return out
}

func randomGroups(rng *rand.Rand, groupCount, maxOptions int) []SessionGroup {
	examDates := []Date{{Year: 2026, Month: 4, Day: 10}, {Year: 2026, Month: 4, Day: 12}}
	groups := make([]SessionGroup, 0, groupCount)
	for g := 0; g < groupCount; g++ {
		size := 1 + rng.Intn(maxOptions)
		exam := rng.Intn(4) == 0
		options := make([]Option, 0, size)
		for o := 0; o < size; o++ {
			var days [DaysPerWeek]bool
			for d := 0; d < 5; d++ {
				days[d] = rng.Intn(3) == 0
			}
			days[rng.Intn(5)] = true
			start := (8 + rng.Intn(8)) * 60
			opt := Option{
				Session:     models.Session{ClassNumber: fmt.Sprintf("%d-%d", g, o)},
				Days:        days,
				StartMinute: start,
				EndMinute:   start + 50 + 30*rng.Intn(3),
			}
			if exam {
				opt.ExamDate = examDates[rng.Intn(len(examDates))]
			}
			options = append(options, opt)
		}
		groups = append(groups, SessionGroup{Course: models.CourseKey{SubjectCode: fmt.Sprintf("G%d", g)}, Options: options})
	}
	return groups
}

// bruteForce enumerates the Cartesian product in lexicographic index order and keeps the
// tuples whose options are pairwise conflict free.
func bruteForce(groups []SessionGroup) []Assignment {
	var out []Assignment
	indices := make([]int, len(groups))
	for {
		ok := true
		for i := 0; i < len(groups) && ok; i++ {
			for j := i + 1; j < len(groups); j++ {
				if Conflicts(groups[i].Options[indices[i]], groups[j].Options[indices[j]]) {
					ok = false
					break
				}
			}
		}
		if ok {
			picked := make(Assignment, len(groups))
			for i := range groups {
				picked[i] = groups[i].Options[indices[i]].Session
			}
			out = append(out, picked)
		}
		pos := len(groups) - 1
		for pos >= 0 {
			indices[pos]++
			if indices[pos] < len(groups[pos].Options) {
				break
			}
			indices[pos] = 0
			pos--
		}
		if pos < 0 {
			return out
		}
	}
}
