package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/uw-schedule-builder/internal/models"
)

// ExamPolicy decides how multiple exam sittings of one course are grouped.
type ExamPolicy string

const (
	// ExamPolicyFirst keeps only the first in-person exam sitting of each course.
	ExamPolicyFirst ExamPolicy = "FIRST"
	// ExamPolicyDistinct keeps every distinct (date, start, end) sitting as a candidate.
	ExamPolicyDistinct ExamPolicy = "DISTINCT"
)

// ParseExamPolicy falls back to ExamPolicyFirst for unknown values.
func ParseExamPolicy(raw string) ExamPolicy {
	if ExamPolicy(strings.ToUpper(strings.TrimSpace(raw))) == ExamPolicyDistinct {
		return ExamPolicyDistinct
	}
	return ExamPolicyFirst
}

// CourseSessions carries every fetched session of one course, in arrival order.
type CourseSessions struct {
	Course   models.CourseKey
	Sessions []models.Session
}

// Option is an encoded session ready for conflict checks.
type Option struct {
	Session     models.Session
	Days        [DaysPerWeek]bool
	StartMinute int
	EndMinute   int
	// ExamDate is set for exam sittings only.
	ExamDate Date
}

// SessionGroup holds the mutually exclusive options of one (course, component) pair.
type SessionGroup struct {
	Course    models.CourseKey
	Component models.Component
	Options   []Option
}

// Grouping is the output of a grouping pass.
type Grouping struct {
	Groups   []SessionGroup
	Warnings []*GroupingError
}

// Grouper turns fetched sessions into ordered session groups.
type Grouper struct {
	resolver *ExamDateResolver
	policy   ExamPolicy
	logger   *zap.Logger
}

// NewGrouper constructs a grouper. A nil resolver leaves exam dates untouched.
func NewGrouper(resolver *ExamDateResolver, policy ExamPolicy, logger *zap.Logger) *Grouper {
	if policy == "" {
		policy = ExamPolicyFirst
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Grouper{resolver: resolver, policy: policy, logger: logger}
}

// WithPolicy returns a copy of the grouper using another exam policy.
func (g *Grouper) WithPolicy(policy ExamPolicy) *Grouper {
	clone := *g
	if policy != "" {
		clone.policy = policy
	}
	return &clone
}

// Group buckets sessions per course and component. Malformed sessions are skipped and
// reported as warnings; the error is only set when ctx is done.
func (g *Grouper) Group(ctx context.Context, courses []CourseSessions) (Grouping, error) {
	var out Grouping
	for _, cs := range courses {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		groups, warnings, err := g.groupCourse(ctx, cs)
		out.Warnings = append(out.Warnings, warnings...)
		if err != nil {
			return out, err
		}
		out.Groups = append(out.Groups, groups...)
	}
	return out, nil
}

type examSlot struct {
	date  Date
	days  [DaysPerWeek]bool
	start int
	end   int
}

type courseBuckets struct {
	course models.CourseKey
	index  map[models.Component]int
	groups []SessionGroup
	seen   []models.Component
	known  map[models.Component]bool
}

func newCourseBuckets(course models.CourseKey) *courseBuckets {
	return &courseBuckets{
		course: course,
		index:  make(map[models.Component]int),
		known:  make(map[models.Component]bool),
	}
}

func (b *courseBuckets) observe(component models.Component) {
	if b.known[component] {
		return
	}
	b.known[component] = true
	b.seen = append(b.seen, component)
}

func (b *courseBuckets) add(component models.Component, option Option) {
	idx, ok := b.index[component]
	if !ok {
		idx = len(b.groups)
		b.index[component] = idx
		b.groups = append(b.groups, SessionGroup{Course: b.course, Component: component})
	}
	b.groups[idx].Options = append(b.groups[idx].Options, option)
}

func (g *Grouper) groupCourse(ctx context.Context, cs CourseSessions) ([]SessionGroup, []*GroupingError, error) {
	course := cs.Course
	if course == (models.CourseKey{}) && len(cs.Sessions) > 0 {
		course = cs.Sessions[0].Course()
	}
	buckets := newCourseBuckets(course)
	var warnings []*GroupingError
	warn := func(kind WarningKind, session models.Session, err error) {
		w := &GroupingError{Kind: kind, Course: course, Component: session.Component, ClassNumber: session.ClassNumber, Err: err}
		warnings = append(warnings, w)
		g.logger.Warn("grouping anomaly",
			zap.String("course", course.String()),
			zap.String("term", course.TermCode),
			zap.String("class_number", session.ClassNumber),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}

	var (
		examResolved bool
		examDate     Date
		examKept     bool
		examSeen     = make(map[examSlot]bool)
	)

	for _, session := range cs.Sessions {
		component := session.Component
		buckets.observe(component)

		flags, err := WeeklyFlags(session.WeeklyPattern)
		if err != nil {
			warn(WarningMalformedPattern, session, err)
			continue
		}
		if IsOnlineOnly(flags) {
			continue
		}
		if component.IsExam() && examKept && g.policy == ExamPolicyFirst {
			continue
		}

		start, err := EncodeTimeOfDay(session.StartTime)
		if err != nil {
			warn(WarningMalformedTimestamp, session, err)
			continue
		}
		end, err := EncodeTimeOfDay(session.EndTime)
		if err != nil {
			warn(WarningMalformedTimestamp, session, err)
			continue
		}
		if start >= end {
			warn(WarningMalformedTimestamp, session, fmt.Errorf("%w: ends at or before it starts", ErrMalformedTimestamp))
			continue
		}

		option := Option{Days: flags, StartMinute: start, EndMinute: end}
		if component.IsExam() {
			if !examResolved {
				examResolved = true
				examDate, err = g.resolveExam(ctx, course)
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, warnings, ctxErr
				}
				if err != nil {
					warn(WarningExamDateUnresolved, session, err)
				}
			}
			session, err = PatchExamSession(session, examDate)
			if err != nil {
				warn(WarningMalformedTimestamp, session, err)
				continue
			}
			option.ExamDate, err = DateOf(session.StartTime)
			if err != nil {
				warn(WarningMalformedTimestamp, session, err)
				continue
			}
			slot := examSlot{date: option.ExamDate, days: flags, start: start, end: end}
			if examSeen[slot] {
				g.logger.Debug("duplicate exam sitting skipped",
					zap.String("course", course.String()), zap.String("class_number", session.ClassNumber))
				continue
			}
			examSeen[slot] = true
			examKept = true
		}
		option.Session = session
		buckets.add(component, option)
	}

	for _, component := range buckets.seen {
		if _, ok := buckets.index[component]; ok {
			continue
		}
		w := &GroupingError{
			Kind:      WarningEmptyComponent,
			Course:    course,
			Component: component,
			Err:       errors.New("component has no in-person sessions and will not appear in any schedule"),
		}
		warnings = append(warnings, w)
		g.logger.Warn("component dropped from search", zap.String("course", course.String()), zap.String("component", string(component)))
	}
	return buckets.groups, warnings, nil
}

func (g *Grouper) resolveExam(ctx context.Context, course models.CourseKey) (Date, error) {
	if g.resolver == nil {
		return Date{}, nil
	}
	return g.resolver.Resolve(ctx, course)
}
