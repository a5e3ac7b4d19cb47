// Package service orchestrates the scheduling pipeline: term planning,
// canonical merging, domain building, CSP search, genetic optimisation and
// verification.
package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/isbat-dev/timetable-core/internal/canonical"
	"github.com/isbat-dev/timetable-core/internal/constraint"
	"github.com/isbat-dev/timetable-core/internal/csp"
	"github.com/isbat-dev/timetable-core/internal/gga"
	"github.com/isbat-dev/timetable-core/internal/models"
	"github.com/isbat-dev/timetable-core/internal/termplan"
	"github.com/isbat-dev/timetable-core/internal/variables"
	"github.com/isbat-dev/timetable-core/internal/verify"
	"github.com/isbat-dev/timetable-core/pkg/config"
	appErrors "github.com/isbat-dev/timetable-core/pkg/errors"
)

type metricsRecorder interface {
	ObserveRun(term int, elapsed time.Duration, iterations, generations int, fitness float64, unassigned int, bestPartial bool)
}

// SchedulerService runs complete timetable generations.
type SchedulerService struct {
	cfg       *config.Config
	validator *validator.Validate
	logger    *zap.Logger
	metrics   metricsRecorder
}

// NewSchedulerService wires the scheduler dependencies.
func NewSchedulerService(cfg *config.Config, validate *validator.Validate, logger *zap.Logger, metrics metricsRecorder) *SchedulerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchedulerService{cfg: cfg, validator: validate, logger: logger, metrics: metrics}
}

// Request carries the parsed domain entities of one run.
type Request struct {
	Term              int                 `json:"term" validate:"required,oneof=1 2"`
	Lecturers         []*models.Lecturer  `json:"lecturers" validate:"required,min=1,dive,required"`
	Rooms             []*models.Room      `json:"rooms" validate:"required,min=1,dive,required"`
	Courses           []*models.Course    `json:"courses" validate:"required,min=1,dive,required"`
	Programs          []*models.Program   `json:"programs" validate:"required,min=1,dive,required"`
	CanonicalFamilies map[string][]string `json:"canonical_families"`
	Catalogue         []models.TimeSlot   `json:"time_slot_catalogue" validate:"omitempty,dive"`
}

// ExpandedAssignment is the per-original-group projection of an assignment,
// naming the canonical unit for merged groups.
type ExpandedAssignment struct {
	models.Assignment
	OriginalProgramID string `json:"original_program_id"`
	DisplayCourse     string `json:"display_course"`
	GroupSize         int    `json:"group_size"`
}

// Stats summarises a run.
type Stats struct {
	RunID             string            `json:"run_id"`
	Iterations        int               `json:"iterations"`
	Generations       int               `json:"generations"`
	Elapsed           time.Duration     `json:"elapsed"`
	FitnessTrajectory []float64         `json:"fitness_trajectory"`
	BestFitness       float64           `json:"best_fitness"`
	BestPartial       bool              `json:"best_partial"`
	Unassigned        []string          `json:"unassigned,omitempty"`
	UnassignedReasons map[string]string `json:"unassigned_reasons,omitempty"`
}

// Result is the complete outcome of one run.
type Result struct {
	Assignments    []models.Assignment  `json:"assignments"`
	Expanded       []ExpandedAssignment `json:"expanded"`
	Report         *verify.Report       `json:"report"`
	Plan           *termplan.Plan       `json:"plan"`
	Stats          Stats                `json:"stats"`
	TermPlanIssues []string             `json:"term_plan_issues,omitempty"`

	resources *constraint.Resources
}

// Run executes the full pipeline for one term. It terminates with a full
// plan, a best-effort partial plan with its unassigned variables
// enumerated, or a configuration error.
func (s *SchedulerService) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := s.logger.With(zap.String("run_id", runID), zap.Int("term", req.Term))

	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	catalogue := models.DefaultCatalogue()
	if len(req.Catalogue) > 0 {
		catalogue = models.NewCatalogue(req.Catalogue)
	}

	registry := canonical.NewRegistry(req.CanonicalFamilies)
	courses := make(map[string]*models.Course, len(req.Courses))
	for _, c := range req.Courses {
		courses[c.ID] = c
	}

	planner := termplan.NewPlanner(registry, s.cfg.TermPlan.Term1Ratios, logger)
	plan, planErr := planner.Plan(req.Programs, courses)
	var planIssues []string
	if planErr != nil {
		if merr, ok := planErr.(*multierror.Error); ok {
			for _, e := range merr.Errors {
				planIssues = append(planIssues, e.Error())
			}
		} else {
			planIssues = append(planIssues, planErr.Error())
		}
		if len(plan.CourseTerm) == 0 {
			return nil, appErrors.Wrap(planErr, appErrors.ErrTermSplitInfeasible.Code,
				appErrors.ErrTermSplitInfeasible.Severity, "no program could be term-planned")
		}
		logger.Warn("term planning failed for some programs", zap.Strings("issues", planIssues))
	}

	builder := variables.NewBuilder(registry, logger)
	set := builder.Build(req.Term, req.Programs, courses, plan)
	builder.LinkPairs(set)

	lecturerIndex := make(map[string]*models.Lecturer, len(req.Lecturers))
	for _, l := range req.Lecturers {
		lecturerIndex[l.ID] = l
	}
	roomIndex := make(map[string]*models.Room, len(req.Rooms))
	for _, r := range req.Rooms {
		roomIndex[r.ID] = r
	}
	builder.BuildDomains(set, req.Lecturers, req.Rooms, catalogue)

	res := &constraint.Resources{
		Lecturers:    lecturerIndex,
		Rooms:        roomIndex,
		Courses:      set.Courses,
		Catalogue:    catalogue,
		Registry:     registry,
		Set:          set,
		RelaxSameDay: !s.cfg.Solver.StrictSameDay,
	}

	solver := csp.New(res, csp.Config{
		MaxIterations:  s.cfg.Solver.MaxIterations,
		Timeout:        s.cfg.Solver.Timeout,
		StallThreshold: s.cfg.Solver.StallThreshold,
		Seed:           s.cfg.Solver.Seed,
	}, logger)
	cspResult := solver.Solve(ctx)
	logger.Info("constraint phase finished",
		zap.Bool("complete", cspResult.Complete),
		zap.Int("assigned", len(cspResult.Assignments)),
		zap.Int("unassigned", len(cspResult.Unassigned)),
		zap.Int("iterations", cspResult.Iterations),
		zap.Duration("elapsed", cspResult.Elapsed))

	final := cspResult.Assignments
	weights := s.fitnessWeights()
	generations := 0
	var trajectory []float64
	bestFitness := 0.0

	if s.cfg.Optimizer.Enabled && len(final) > 0 {
		engine := gga.NewEngine(res, gga.Config{
			PopulationSize:   s.cfg.Optimizer.PopulationSize,
			MaxGenerations:   s.cfg.Optimizer.MaxGenerations,
			EliteSize:        s.cfg.Optimizer.EliteSize,
			CrossoverRate:    s.cfg.Optimizer.CrossoverRate,
			MutationRate:     s.cfg.Optimizer.MutationRate,
			TargetFitness:    s.cfg.Optimizer.TargetFitness,
			StallLimit:       s.cfg.Optimizer.StallLimit,
			MaxAge:           s.cfg.Optimizer.MaxAge,
			MutationAttempts: s.cfg.Optimizer.MutationAttempts,
			Seed:             s.cfg.Solver.Seed,
			Weights:          weights,
		}, logger)
		outcome := engine.Optimize(ctx, final)
		final = outcome.Best.Assignments()
		generations = outcome.Generations
		trajectory = outcome.FitnessHistory
		bestFitness = outcome.Best.Fitness.Overall
		logger.Info("optimisation phase finished",
			zap.Int("generations", outcome.Generations),
			zap.Float64("fitness", bestFitness),
			zap.Duration("elapsed", outcome.Elapsed))
	}

	verifier := verify.New(res, weights)
	report := verifier.Verify(final)
	if bestFitness == 0 {
		bestFitness = report.SoftScores.Overall
	}

	result := &Result{
		Assignments:    sortedAssignments(final),
		Expanded:       s.expand(final, res),
		Report:         report,
		Plan:           plan,
		TermPlanIssues: planIssues,
		Stats: Stats{
			RunID:             runID,
			Iterations:        cspResult.Iterations,
			Generations:       generations,
			Elapsed:           time.Since(start),
			FitnessTrajectory: trajectory,
			BestFitness:       bestFitness,
			BestPartial:       !cspResult.Complete,
			Unassigned:        cspResult.Unassigned,
			UnassignedReasons: cspResult.Reasons,
		},
		resources: res,
	}

	if s.metrics != nil {
		s.metrics.ObserveRun(req.Term, result.Stats.Elapsed, result.Stats.Iterations,
			result.Stats.Generations, bestFitness, len(cspResult.Unassigned), result.Stats.BestPartial)
	}
	return result, nil
}

// validateRequest applies struct validation plus the initialisation checks
// that raise ConfigInvalid: even weekly hours, non-negative sizes and a
// well-formed slot catalogue.
func (s *SchedulerService) validateRequest(req Request) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Severity,
			"invalid scheduling request")
	}

	var issues error
	for _, c := range req.Courses {
		if c.WeeklyHours <= 0 || c.WeeklyHours%2 != 0 {
			issues = multierror.Append(issues,
				fmt.Errorf("course %s: weekly_hours must be a positive even integer, got %d", c.ID, c.WeeklyHours))
		}
	}
	for _, p := range req.Programs {
		if p.Size < 0 {
			issues = multierror.Append(issues, fmt.Errorf("program %s: negative size %d", p.ID, p.Size))
		}
	}
	seen := make(map[string]bool)
	for _, slot := range req.Catalogue {
		key := slot.Key()
		if seen[key] {
			issues = multierror.Append(issues, fmt.Errorf("catalogue: duplicate slot %s", key))
		}
		seen[key] = true
		if slot.Start == "" || slot.End == "" {
			issues = multierror.Append(issues, fmt.Errorf("catalogue: slot %s missing start or end time", key))
		}
	}
	if issues != nil {
		return appErrors.Wrap(issues, appErrors.ErrConfigInvalid.Code,
			appErrors.ErrConfigInvalid.Severity, "invalid scheduling inputs")
	}
	return nil
}

func (s *SchedulerService) fitnessWeights() gga.Weights {
	w := gga.Weights{
		StudentIdle:         s.cfg.Fitness.StudentIdle,
		LecturerBalance:     s.cfg.Fitness.LecturerBalance,
		RoomUtilization:     s.cfg.Fitness.RoomUtilization,
		WeekdayDistribution: s.cfg.Fitness.WeekdayDistribution,
		SlotPreference:      s.cfg.Fitness.SlotPreference,
	}
	if w == (gga.Weights{}) {
		return gga.DefaultWeights()
	}
	return w
}

// expand projects every assignment onto its original programs so merged
// rows export once per enrolled program, displaying the canonical unit.
func (s *SchedulerService) expand(assignments map[string]models.Assignment, res *constraint.Resources) []ExpandedAssignment {
	var out []ExpandedAssignment
	for _, a := range assignments {
		display := ""
		if course, ok := res.Courses[a.CourseID]; ok {
			display = course.Code
			if id := res.Registry.CourseCanonicalID(course); id != "" {
				display = id
			}
		}
		for _, original := range res.Set.Projections(a.ProgramID) {
			size := res.Set.GroupSize(a.ProgramID)
			if p, ok := res.Set.Programs[original]; ok {
				size = p.Size
			}
			out = append(out, ExpandedAssignment{
				Assignment:        a,
				OriginalProgramID: original,
				DisplayCourse:     display,
				GroupSize:         size,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OriginalProgramID != out[j].OriginalProgramID {
			return out[i].OriginalProgramID < out[j].OriginalProgramID
		}
		return out[i].VariableID < out[j].VariableID
	})
	return out
}

func sortedAssignments(assignments map[string]models.Assignment) []models.Assignment {
	out := make([]models.Assignment, 0, len(assignments))
	for _, a := range assignments {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VariableID < out[j].VariableID })
	return out
}
