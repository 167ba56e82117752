package scheduler

import (
	"context"

	"github.com/noah-isme/uw-schedule-builder/internal/models"
)

// Assignment is one conflict-free pick per group, in group order.
type Assignment []models.Session

// Limits bounds a search. Zero values disable the corresponding bound.
type Limits struct {
	MaxNodes   int
	MaxResults int
}

// Result is the outcome of a search. Truncated is set when the search stopped early;
// Schedules then holds what was found before stopping.
type Result struct {
	Schedules []Assignment
	Explored  int
	Truncated bool
}

// FindAllSchedules returns every conflict-free assignment over groups.
func FindAllSchedules(groups []SessionGroup) []Assignment {
	result, _ := Search(context.Background(), groups, Limits{})
	return result.Schedules
}

// Search explores one option per group depth first. ctx is checked at every recursive call.
// The returned error is ctx.Err() or ErrSearchBudgetExceeded.
func Search(ctx context.Context, groups []SessionGroup, limits Limits) (Result, error) {
	s := newSearchState(ctx, groups, limits)
	err := s.descend(0)
	return Result{
		Schedules: s.results,
		Explored:  s.explored,
		Truncated: err != nil,
	}, err
}

type dayInterval struct {
	start int
	end   int
	exam  Date
}

type searchState struct {
	ctx      context.Context
	groups   []SessionGroup
	limits   Limits
	days     [DaysPerWeek][]dayInterval
	stack    []models.Session
	results  []Assignment
	explored int
}

func newSearchState(ctx context.Context, groups []SessionGroup, limits Limits) *searchState {
	s := &searchState{
		ctx:    ctx,
		groups: groups,
		limits: limits,
		stack:  make([]models.Session, 0, len(groups)),
	}
	for day := range s.days {
		s.days[day] = make([]dayInterval, 0, len(groups))
	}
	return s
}

func (s *searchState) descend(depth int) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	s.explored++
	if s.limits.MaxNodes > 0 && s.explored > s.limits.MaxNodes {
		return ErrSearchBudgetExceeded
	}
	if depth == len(s.groups) {
		// a schedule past the cap proves the list is incomplete.
		if s.limits.MaxResults > 0 && len(s.results) >= s.limits.MaxResults {
			return ErrSearchBudgetExceeded
		}
		picked := make(Assignment, len(s.stack))
		copy(picked, s.stack)
		s.results = append(s.results, picked)
		return nil
	}
	for i := range s.groups[depth].Options {
		option := &s.groups[depth].Options[i]
		if !s.admits(option) {
			continue
		}
		s.commit(option)
		err := s.descend(depth + 1)
		s.release(option)
		if err != nil {
			return err
		}
	}
	return nil
}

// admits reports whether the option fits next to every committed interval on each of its days.
func (s *searchState) admits(option *Option) bool {
	for day := 0; day < DaysPerWeek; day++ {
		if !option.Days[day] {
			continue
		}
		for _, committed := range s.days[day] {
			if option.EndMinute <= committed.start || option.StartMinute >= committed.end {
				continue
			}
			if !option.ExamDate.IsZero() && !committed.exam.IsZero() && option.ExamDate != committed.exam {
				continue
			}
			return false
		}
	}
	return true
}

func (s *searchState) commit(option *Option) {
	interval := dayInterval{start: option.StartMinute, end: option.EndMinute, exam: option.ExamDate}
	for day := 0; day < DaysPerWeek; day++ {
		if option.Days[day] {
			s.days[day] = append(s.days[day], interval)
		}
	}
	s.stack = append(s.stack, option.Session)
}

func (s *searchState) release(option *Option) {
	for day := 0; day < DaysPerWeek; day++ {
		if option.Days[day] {
			s.days[day] = s.days[day][:len(s.days[day])-1]
		}
	}
	s.stack = s.stack[:len(s.stack)-1]
}

// Conflicts reports whether two options clash on any shared weekday.
func Conflicts(a, b Option) bool {
	for day := 0; day < DaysPerWeek; day++ {
		if !a.Days[day] || !b.Days[day] {
			continue
		}
		if a.EndMinute <= b.StartMinute || a.StartMinute >= b.EndMinute {
			continue
		}
		if !a.ExamDate.IsZero() && !b.ExamDate.IsZero() && a.ExamDate != b.ExamDate {
			continue
		}
		return true
	}
	return false
}
