// Package termplan assigns every course of every program to Term 1 or
// Term 2, honouring explicit preferences, pairing groups, prerequisites and
// canonical alignment across programs.
package termplan

import (
	"fmt"
	"math"
	"sort"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/isbat-dev/timetable-core/internal/canonical"
	"github.com/isbat-dev/timetable-core/internal/models"
	appErrors "github.com/isbat-dev/timetable-core/pkg/errors"
)

// Decision records one migration performed by the alignment resolver.
type Decision struct {
	ProgramID   string `json:"program_id"`
	UnitKey     string `json:"unit_key"`
	CanonicalID string `json:"canonical_id,omitempty"`
	FromTerm    int    `json:"from_term"`
	ToTerm      int    `json:"to_term"`
	Reason      string `json:"reason"`
}

// Plan is the resulting course-to-term partition plus the decision log.
type Plan struct {
	// CourseTerm maps course id to 1 or 2 for every planned course.
	CourseTerm map[string]int `json:"course_term"`
	Decisions  []Decision     `json:"decisions"`
}

// CoursesFor returns the course ids of a program placed in the given term,
// in the program's course-list order.
func (p *Plan) CoursesFor(program *models.Program, term int) []string {
	var out []string
	for _, id := range program.Courses {
		if p.CourseTerm[id] == term {
			out = append(out, id)
		}
	}
	return out
}

// Planner computes term plans. Safe for reuse across runs.
type Planner struct {
	registry *canonical.Registry
	// ratios holds the per-semester Term 1 unit share; semesters without an
	// entry use the half-half default.
	ratios map[int]float64
	logger *zap.Logger
}

// NewPlanner builds a planner. ratios may be nil; logger may be nil.
func NewPlanner(registry *canonical.Registry, ratios map[int]float64, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{registry: registry, ratios: ratios, logger: logger}
}

// unit is a pairing group or a singleton course within one program. Units
// move between terms atomically.
type unit struct {
	key          string
	programID    string
	courses      []*models.Course
	forced       int
	foundational bool
	difficulty   int
	term         int
}

func (u *unit) canonicalIDs(reg *canonical.Registry) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, c := range u.courses {
		if id := reg.CourseCanonicalID(c); id != "" && !seen[id] {
			ids = append(ids, id)
			seen[id] = true
		}
	}
	return ids
}

// Plan partitions every course of every program into Term 1 or Term 2.
// Programs whose pairing constraints are contradictory contribute a
// TermSplitInfeasible to the aggregated error; all other programs are still
// planned so the caller can decide whether to fall back.
func (p *Planner) Plan(programs []*models.Program, courses map[string]*models.Course) (*Plan, error) {
	plan := &Plan{CourseTerm: make(map[string]int)}
	var failures error
	var allUnits []*unit

	for _, program := range programs {
		units, err := p.buildUnits(program, courses)
		if err != nil {
			failures = multierror.Append(failures, err)
			continue
		}
		p.fillTerms(program, units)
		if err := p.enforcePrerequisites(program, units, courses, plan); err != nil {
			failures = multierror.Append(failures, err)
			continue
		}
		allUnits = append(allUnits, units...)
	}

	p.alignCanonicalFamilies(allUnits, plan)

	for _, u := range allUnits {
		for _, c := range u.courses {
			plan.CourseTerm[c.ID] = u.term
		}
	}
	return plan, failures
}

// buildUnits groups the program's courses into pairing units and resolves
// each unit's forced term.
func (p *Planner) buildUnits(program *models.Program, courses map[string]*models.Course) ([]*unit, error) {
	byKey := make(map[string]*unit)
	var ordered []*unit

	for _, courseID := range program.Courses {
		course, ok := courses[courseID]
		if !ok {
			return nil, appErrors.Wrap(
				fmt.Errorf("course %s not found", courseID),
				appErrors.ErrPreconditionFailed.Code,
				appErrors.ErrPreconditionFailed.Severity,
				fmt.Sprintf("program %s references unknown course", program.ID),
			)
		}
		key := course.CourseGroup
		if key == "" {
			key = course.ID
		}
		u, exists := byKey[key]
		if !exists {
			u = &unit{key: key, programID: program.ID}
			byKey[key] = u
			ordered = append(ordered, u)
		}
		u.courses = append(u.courses, course)
		if course.Foundational {
			u.foundational = true
		}
		if course.Difficulty > u.difficulty {
			u.difficulty = course.Difficulty
		}
		if course.PreferredTerm != 0 {
			if u.forced != 0 && u.forced != course.PreferredTerm {
				return nil, appErrors.Clone(appErrors.ErrTermSplitInfeasible,
					fmt.Sprintf("program %s: pairing group %q forces both Term %d and Term %d",
						program.ID, key, u.forced, course.PreferredTerm))
			}
			u.forced = course.PreferredTerm
		}
	}
	return ordered, nil
}

// fillTerms buckets forced units and distributes the flexible remainder so
// Term 1 receives round(effectiveUnits * ratio) units, foundations first.
func (p *Planner) fillTerms(program *models.Program, units []*unit) {
	ratio := 0.5
	if r, ok := p.ratios[program.Semester]; ok && r > 0 && r < 1 {
		ratio = r
	}
	target1 := int(math.Round(float64(len(units)) * ratio))

	assigned1 := 0
	var flexible []*unit
	for _, u := range units {
		switch u.forced {
		case 1:
			u.term = 1
			assigned1++
		case 2:
			u.term = 2
		default:
			flexible = append(flexible, u)
		}
	}

	// Foundational units first, easier before harder, so foundations land
	// in Term 1 while capacity remains.
	sort.SliceStable(flexible, func(i, j int) bool {
		if flexible[i].foundational != flexible[j].foundational {
			return flexible[i].foundational
		}
		return flexible[i].difficulty < flexible[j].difficulty
	})
	for _, u := range flexible {
		if assigned1 < target1 {
			u.term = 1
			assigned1++
		} else {
			u.term = 2
		}
	}
}

// enforcePrerequisites moves a dependent unit to Term 2 when its
// prerequisite sits in Term 2 while it was placed in Term 1. A dependent
// hard-forced to Term 1 whose prerequisite is hard-forced to Term 2 is
// infeasible.
func (p *Planner) enforcePrerequisites(program *models.Program, units []*unit, courses map[string]*models.Course, plan *Plan) error {
	unitOf := make(map[string]*unit)
	for _, u := range units {
		for _, c := range u.courses {
			unitOf[c.ID] = u
		}
	}
	for _, u := range units {
		for _, c := range u.courses {
			for _, prereqID := range c.Prerequisites {
				pre, ok := unitOf[prereqID]
				if !ok || pre == u {
					continue
				}
				if pre.term <= u.term {
					continue
				}
				if u.forced == 1 && pre.forced == 2 {
					return appErrors.Clone(appErrors.ErrTermSplitInfeasible,
						fmt.Sprintf("program %s: course %s is forced to Term 1 but its prerequisite %s is forced to Term 2",
							program.ID, c.ID, prereqID))
				}
				from := u.term
				u.term = pre.term
				plan.Decisions = append(plan.Decisions, Decision{
					ProgramID: program.ID,
					UnitKey:   u.key,
					FromTerm:  from,
					ToTerm:    u.term,
					Reason:    fmt.Sprintf("prerequisite %s scheduled in Term %d", prereqID, pre.term),
				})
			}
		}
	}
	return nil
}

// alignCanonicalFamilies makes every program place a shared canonical family
// in the same term: the majority of explicit preferences decides, a tie
// between explicit votes goes to Term 1; with no explicit vote the majority
// of current placements decides (fewer migrations), ties going to Term 1.
func (p *Planner) alignCanonicalFamilies(units []*unit, plan *Plan) {
	type familyState struct {
		units   []*unit
		votes   map[int]int // explicit preference votes
		current map[int]int // current placements
	}
	families := make(map[string]*familyState)
	var order []string

	for _, u := range units {
		for _, id := range u.canonicalIDs(p.registry) {
			fs, ok := families[id]
			if !ok {
				fs = &familyState{votes: make(map[int]int), current: make(map[int]int)}
				families[id] = fs
				order = append(order, id)
			}
			fs.units = append(fs.units, u)
			if u.forced != 0 {
				fs.votes[u.forced]++
			}
			fs.current[u.term]++
		}
	}

	for _, id := range order {
		fs := families[id]
		if len(fs.units) < 2 {
			continue
		}
		chosen := chooseTerm(fs.votes, fs.current)
		for _, u := range fs.units {
			if u.term == chosen {
				continue
			}
			from := u.term
			u.term = chosen
			plan.Decisions = append(plan.Decisions, Decision{
				ProgramID:   u.programID,
				UnitKey:     u.key,
				CanonicalID: id,
				FromTerm:    from,
				ToTerm:      chosen,
				Reason:      fmt.Sprintf("canonical family %s aligned to Term %d", id, chosen),
			})
			p.logger.Info("canonical term alignment",
				zap.String("canonical_id", id),
				zap.String("program_id", u.programID),
				zap.String("unit", u.key),
				zap.Int("from_term", from),
				zap.Int("to_term", chosen))
		}
	}
}

func chooseTerm(votes, current map[int]int) int {
	// Explicit preferences dominate; placements only decide when no program
	// voiced a preference.
	if votes[1] > votes[2] {
		return 1
	}
	if votes[2] > votes[1] {
		return 2
	}
	if votes[1] != 0 {
		return 1
	}
	if current[1] >= current[2] {
		return 1
	}
	return 2
}
