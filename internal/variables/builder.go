package variables

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/isbat-dev/timetable-core/internal/canonical"
	"github.com/isbat-dev/timetable-core/internal/models"
	"github.com/isbat-dev/timetable-core/internal/termplan"
)

// Builder constructs the variable set for a term.
type Builder struct {
	registry *canonical.Registry
	logger   *zap.Logger
}

// NewBuilder wires a builder. logger may be nil.
func NewBuilder(registry *canonical.Registry, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{registry: registry, logger: logger}
}

// enrolment is one (program, course) demand for the term.
type enrolment struct {
	program *models.Program
	course  *models.Course
}

// Build enumerates the term's (program, course) pairs, collapses canonical
// groups into merged scheduling groups and emits one variable per required
// session.
func (b *Builder) Build(term int, programs []*models.Program, courses map[string]*models.Course, plan *termplan.Plan) *Set {
	set := &Set{
		Programs:          make(map[string]*models.Program),
		Courses:           make(map[string]*models.Course),
		MergedToOriginals: make(map[string][]string),
		OriginalToMerged:  make(map[string][]string),
		Pairs:             make(map[string][]string),
	}

	// Group enrolments by canonical id; non-canonical courses stay alone
	// under a synthetic per-(program, course) key.
	groups := make(map[string][]enrolment)
	var order []string
	for _, program := range programs {
		set.Programs[program.ID] = program
		for _, courseID := range plan.CoursesFor(program, term) {
			course, ok := courses[courseID]
			if !ok {
				continue
			}
			key := b.registry.CourseCanonicalID(course)
			if key == "" {
				key = fmt.Sprintf("%s|%s", program.ID, course.ID)
			}
			if _, seen := groups[key]; !seen {
				order = append(order, key)
			}
			groups[key] = append(groups[key], enrolment{program: program, course: course})
		}
	}

	varSeq := 0
	for _, key := range order {
		members := groups[key]
		if len(members) > 1 {
			b.buildMerged(term, key, members, set, &varSeq)
			continue
		}
		m := members[0]
		set.Courses[m.course.ID] = m.course
		b.emitVariables(term, m.program.ID, m.course, set, &varSeq)
	}
	return set
}

// buildMerged synthesises a merged scheduling group for a canonical family
// and emits its variables. Size sums unique enrolled programs: one program
// may carry several codes that fold into the same canonical id and must not
// be counted twice.
func (b *Builder) buildMerged(term int, canonicalID string, members []enrolment, set *Set, varSeq *int) {
	mergedID := fmt.Sprintf("MERGED_%s_T%d", canonicalID, term)

	seen := make(map[string]bool)
	size := 0
	var originals []string
	representative := members[0].course
	semester := members[0].program.Semester
	for _, m := range members {
		if !seen[m.program.ID] {
			seen[m.program.ID] = true
			size += m.program.Size
			originals = append(originals, m.program.ID)
			if m.program.Semester < semester {
				semester = m.program.Semester
			}
		}
		set.Courses[m.course.ID] = m.course
		// Prefer the course whose code leads the family's member list, so
		// exports name the unit consistently.
		if leads(b.registry.Members(canonicalID), m.course.Code, representative.Code) {
			representative = m.course
		}
	}
	sort.Strings(originals)

	merged := &models.Program{
		ID:       mergedID,
		Code:     canonicalID,
		Semester: semester,
		Size:     size,
		Merged:   true,
		Members:  originals,
	}
	for _, m := range members {
		merged.Courses = append(merged.Courses, m.course.ID)
	}
	set.Programs[mergedID] = merged
	set.MergedToOriginals[mergedID] = originals
	for _, orig := range originals {
		set.OriginalToMerged[orig] = append(set.OriginalToMerged[orig], mergedID)
	}

	b.logger.Info("canonical merge",
		zap.String("canonical_id", canonicalID),
		zap.String("merged_id", mergedID),
		zap.Strings("programs", originals),
		zap.Int("size", size))

	b.emitVariables(term, mergedID, representative, set, varSeq)
}

func (b *Builder) emitVariables(term int, programID string, course *models.Course, set *Set, varSeq *int) {
	sessions := course.SessionsRequired()
	for n := 1; n <= sessions; n++ {
		*varSeq++
		set.Variables = append(set.Variables, &models.Variable{
			ID:            fmt.Sprintf("VAR_%d", *varSeq),
			CourseID:      course.ID,
			ProgramID:     programID,
			Term:          term,
			SessionNumber: n,
			Sessions:      sessions,
		})
	}
}

func leads(family []string, candidate, incumbent string) bool {
	ci, ii := -1, -1
	for i, code := range family {
		if code == candidate {
			ci = i
		}
		if code == incumbent {
			ii = i
		}
	}
	return ci >= 0 && (ii < 0 || ci < ii)
}
