// Package variables turns term-planned programs into the CSP variable set:
// canonical merging of shared courses, session variables, pair links and
// per-variable domains.
package variables

import (
	"github.com/isbat-dev/timetable-core/internal/models"
)

// Set is the complete variable universe for one term.
type Set struct {
	Variables []*models.Variable

	// Programs indexes every scheduling group by id, including synthetic
	// merged groups.
	Programs map[string]*models.Program
	// Courses indexes the courses referenced by variables.
	Courses map[string]*models.Course

	// MergedToOriginals maps a merged group id to the original program ids
	// folded into it; OriginalToMerged is the inverse projection. Both are
	// plain maps rather than object references, so group graphs stay
	// acyclic.
	MergedToOriginals map[string][]string
	OriginalToMerged  map[string][]string

	// Pairs maps a variable id to the peer variable ids that must share its
	// (day, period).
	Pairs map[string][]string
}

// Projections returns the original program ids behind a scheduling group id:
// the members for a merged group, or the id itself.
func (s *Set) Projections(programID string) []string {
	if originals, ok := s.MergedToOriginals[programID]; ok {
		return originals
	}
	return []string{programID}
}

// VariableByID returns the variable with the given id, if present.
func (s *Set) VariableByID(id string) (*models.Variable, bool) {
	for _, v := range s.Variables {
		if v.ID == id {
			return v, true
		}
	}
	return nil, false
}

// GroupSize returns the (possibly merged) enrolment behind a group id.
func (s *Set) GroupSize(programID string) int {
	if p, ok := s.Programs[programID]; ok {
		return p.Size
	}
	return 0
}
