// Package verify walks a completed assignment list and produces a typed,
// categorised violation report plus the observed soft scores.
package verify

import (
	"fmt"
	"sort"
	"time"

	"github.com/isbat-dev/timetable-core/internal/constraint"
	"github.com/isbat-dev/timetable-core/internal/gga"
	"github.com/isbat-dev/timetable-core/internal/models"
)

// Report is the categorised verification outcome.
type Report struct {
	Timestamp       time.Time                           `json:"timestamp"`
	TotalViolations int                                 `json:"total_violations"`
	BySeverity      map[models.ViolationSeverity]int    `json:"by_severity"`
	ByConstraint    map[models.ConstraintName]int       `json:"by_constraint"`
	Violations      []models.Violation                  `json:"violations"`
	SoftScores      gga.Score                           `json:"soft_scores"`
}

// CriticalCount returns the number of critical violations.
func (r *Report) CriticalCount() int {
	return r.BySeverity[models.SeverityCritical]
}

// Verifier checks plans independently of the solver while applying the same
// canonical-merge excuses.
type Verifier struct {
	res       *constraint.Resources
	evaluator *gga.Evaluator
}

// New builds a verifier over the run's resources.
func New(res *constraint.Resources, weights gga.Weights) *Verifier {
	return &Verifier{res: res, evaluator: gga.NewEvaluator(res, weights)}
}

// Verify replays the assignments through a fresh constraint context,
// collecting every hard-constraint breach, and scores the soft metrics.
// Pure: verifying the same list twice yields the same report.
func (v *Verifier) Verify(assignments map[string]models.Assignment) *Report {
	report := &Report{
		Timestamp:    time.Now().UTC(),
		BySeverity:   make(map[models.ViolationSeverity]int),
		ByConstraint: make(map[models.ConstraintName]int),
	}

	ordered := make([]models.Assignment, 0, len(assignments))
	for _, a := range assignments {
		ordered = append(ordered, a)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].VariableID < ordered[j].VariableID })

	ctx := constraint.NewContext(v.res)
	for _, a := range ordered {
		for _, viol := range ctx.CheckAll(a) {
			report.add(viol)
		}
		if viol := v.checkPartTimeWindow(a); viol != nil {
			report.add(*viol)
		}
		ctx.Add(a)
	}

	report.SoftScores = v.evaluator.Evaluate(gga.NewChromosome(assignments))
	return report
}

// checkPartTimeWindow enforces that part-time lecturers only teach inside
// their declared availability; it is a domain-level rule for the solver but
// must still be audited here.
func (v *Verifier) checkPartTimeWindow(a models.Assignment) *models.Violation {
	lecturer := v.res.Lecturers[a.LecturerID]
	if lecturer == nil || lecturer.Role != models.LecturerRolePartTime || len(lecturer.Availability) == 0 {
		return nil
	}
	if lecturer.AvailableAt(string(a.Day), a.SlotKey) || lecturer.AvailableAt(string(a.Day), a.Period) {
		return nil
	}
	return &models.Violation{
		Constraint: models.ConstraintPartTimeWindow,
		Severity:   models.SeverityWarning,
		Message:    fmt.Sprintf("part-time lecturer %s teaches outside declared availability at %s", a.LecturerID, a.SlotKey),
		Variables:  []string{a.VariableID},
	}
}

func (r *Report) add(v models.Violation) {
	r.Violations = append(r.Violations, v)
	r.TotalViolations++
	r.BySeverity[v.Severity]++
	r.ByConstraint[v.Constraint]++
}
