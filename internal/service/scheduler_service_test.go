package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/isbat-dev/timetable-core/internal/models"
	"github.com/isbat-dev/timetable-core/pkg/config"
	appErrors "github.com/isbat-dev/timetable-core/pkg/errors"
)

type metricsStub struct {
	runs int
	term int
}

func (m *metricsStub) ObserveRun(term int, elapsed time.Duration, iterations, generations int, fitness float64, unassigned int, bestPartial bool) {
	m.runs++
	m.term = term
}

func testConfig() *config.Config {
	return &config.Config{
		Env: config.EnvDevelopment,
		Solver: config.SolverConfig{
			MaxIterations:  50000,
			Timeout:        10 * time.Second,
			StallThreshold: 1000,
			Seed:           42,
			StrictSameDay:  true,
		},
		Optimizer: config.OptimizerConfig{
			Enabled:          true,
			PopulationSize:   20,
			MaxGenerations:   10,
			EliteSize:        2,
			CrossoverRate:    0.8,
			MutationRate:     0.15,
			TargetFitness:    0.99,
			StallLimit:       10,
			MaxAge:           50,
			MutationAttempts: 5,
		},
		Fitness: config.FitnessWeights{
			StudentIdle:         0.27,
			LecturerBalance:     0.22,
			RoomUtilization:     0.14,
			WeekdayDistribution: 0.27,
			SlotPreference:      0.10,
		},
	}
}

func newService(m metricsRecorder) *SchedulerService {
	return NewSchedulerService(testConfig(), validator.New(), zap.NewNop(), m)
}

func TestRunTrivialFeasible(t *testing.T) {
	m := &metricsStub{}
	svc := newService(m)

	result, err := svc.Run(context.Background(), Request{
		Term: 1,
		Lecturers: []*models.Lecturer{
			{ID: "L1", Name: "Dr. Okello", Role: models.LecturerRoleFullTime, Specializations: []string{"C1"}},
		},
		Rooms: []*models.Room{
			{ID: "R1", Number: "B-101", Capacity: 30, Kind: models.RoomKindTheory, Available: true},
		},
		Courses: []*models.Course{
			{ID: "c1", Code: "C1", Name: "Foundations of Computing", WeeklyHours: 2, Credits: 3, PreferredRoomKind: models.RoomKindTheory, PreferredTerm: 1},
		},
		Programs: []*models.Program{
			{ID: "P1", Code: "BSCAIT", Semester: 1, Size: 20, Courses: []string{"c1"}},
		},
	})
	require.NoError(t, err)

	assert.Len(t, result.Assignments, 1)
	assert.False(t, result.Stats.BestPartial)
	assert.Zero(t, result.Report.CriticalCount())
	assert.Greater(t, result.Stats.BestFitness, 0.9)
	assert.Equal(t, 1, m.runs)
	assert.Equal(t, 1, m.term)
}

func TestRunForcedCanonicalMerge(t *testing.T) {
	svc := newService(nil)

	result, err := svc.Run(context.Background(), Request{
		Term: 1,
		Lecturers: []*models.Lecturer{
			{ID: "L1", Role: models.LecturerRoleFullTime, Specializations: []string{"CS_INTRO"}},
		},
		Rooms: []*models.Room{
			{ID: "R60", Number: "A-201", Capacity: 60, Kind: models.RoomKindTheory, Available: true},
			{ID: "R30", Number: "A-202", Capacity: 30, Kind: models.RoomKindTheory, Available: true},
		},
		Courses: []*models.Course{
			{ID: "ca", Code: "AIT101", Name: "Introduction to Computing", WeeklyHours: 2, PreferredRoomKind: models.RoomKindTheory, PreferredTerm: 1},
			{ID: "cb", Code: "BCS110", Name: "Introduction to Computing", WeeklyHours: 2, PreferredRoomKind: models.RoomKindTheory, PreferredTerm: 1},
		},
		Programs: []*models.Program{
			{ID: "A", Code: "BSCAIT", Semester: 1, Size: 30, Courses: []string{"ca"}},
			{ID: "B", Code: "BCS", Semester: 1, Size: 25, Courses: []string{"cb"}},
		},
		CanonicalFamilies: map[string][]string{"CS_INTRO": {"AIT101", "BCS110"}},
	})
	require.NoError(t, err)

	require.Len(t, result.Assignments, 1, "both programs fold into one merged assignment")
	merged := result.Assignments[0]
	assert.Equal(t, "R60", merged.RoomID, "only the large room fits the merged group")
	assert.False(t, result.Stats.BestPartial)

	require.Len(t, result.Expanded, 2, "one export row per original program")
	for _, e := range result.Expanded {
		assert.Equal(t, "CS_INTRO", e.DisplayCourse)
		assert.Contains(t, []string{"A", "B"}, e.OriginalProgramID)
	}
}

func TestRunPairLock(t *testing.T) {
	svc := newService(nil)

	result, err := svc.Run(context.Background(), Request{
		Term: 1,
		Lecturers: []*models.Lecturer{
			{ID: "L1", Role: models.LecturerRoleFullTime, Specializations: []string{"PROG_C_T"}},
			{ID: "L2", Role: models.LecturerRoleFullTime, Specializations: []string{"PROG_C_P"}},
		},
		Rooms: []*models.Room{
			{ID: "R_TH", Capacity: 40, Kind: models.RoomKindTheory, Available: true},
			{ID: "R_LAB", Capacity: 40, Kind: models.RoomKindLab, Available: true},
		},
		Courses: []*models.Course{
			{ID: "th", Code: "PROG_C_T", Name: "Programming in C", WeeklyHours: 2, CourseGroup: "PC", PreferredRoomKind: models.RoomKindTheory, PreferredTerm: 1},
			{ID: "pr", Code: "PROG_C_P", Name: "Programming in C Practical", WeeklyHours: 2, CourseGroup: "PC", PreferredRoomKind: models.RoomKindLab, PreferredTerm: 1},
		},
		Programs: []*models.Program{
			{ID: "P1", Code: "BCS", Semester: 1, Size: 25, Courses: []string{"th", "pr"}},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Assignments, 2)

	var theory, practical models.Assignment
	for _, a := range result.Assignments {
		if a.CourseID == "th" {
			theory = a
		} else {
			practical = a
		}
	}
	assert.Equal(t, theory.Day, practical.Day)
	assert.Equal(t, theory.Period, practical.Period)
	assert.Equal(t, "R_TH", theory.RoomID)
	assert.Equal(t, "R_LAB", practical.RoomID)
	assert.Zero(t, result.Report.CriticalCount())
}

func TestRunWeeklyCapBestPartial(t *testing.T) {
	svc := newService(nil)

	courses := []*models.Course{}
	courseIDs := []string{}
	specs := []string{}
	for _, code := range []string{"C1", "C2", "C3", "C4", "C5", "C6"} {
		courses = append(courses, &models.Course{
			ID: code, Code: code, WeeklyHours: 4, PreferredRoomKind: models.RoomKindTheory, PreferredTerm: 1,
		})
		courseIDs = append(courseIDs, code)
		specs = append(specs, code)
	}

	result, err := svc.Run(context.Background(), Request{
		Term: 1,
		Lecturers: []*models.Lecturer{
			{ID: "L1", Role: models.LecturerRoleFullTime, Specializations: specs},
		},
		Rooms: []*models.Room{
			{ID: "R1", Capacity: 40, Kind: models.RoomKindTheory, Available: true},
			{ID: "R2", Capacity: 40, Kind: models.RoomKindTheory, Available: true},
		},
		Courses:  courses,
		Programs: []*models.Program{{ID: "P1", Code: "BCS", Semester: 1, Size: 20, Courses: courseIDs}},
	})
	require.NoError(t, err)

	assert.True(t, result.Stats.BestPartial)
	assert.NotEmpty(t, result.Stats.Unassigned)
	for _, id := range result.Stats.Unassigned {
		assert.NotEmpty(t, result.Stats.UnassignedReasons[id])
	}
}

func TestRunPartTimeAvailability(t *testing.T) {
	svc := newService(nil)

	result, err := svc.Run(context.Background(), Request{
		Term: 1,
		Lecturers: []*models.Lecturer{{
			ID:              "PT",
			Role:            models.LecturerRolePartTime,
			Specializations: []string{"C1"},
			Availability: map[string][]string{
				"MON": {"MON_SLOT_1"},
				"WED": {"WED_SLOT_3"},
			},
		}},
		Rooms: []*models.Room{
			{ID: "R1", Capacity: 30, Kind: models.RoomKindTheory, Available: true},
		},
		Courses: []*models.Course{
			{ID: "c1", Code: "C1", WeeklyHours: 2, PreferredRoomKind: models.RoomKindTheory, PreferredTerm: 1},
		},
		Programs: []*models.Program{
			{ID: "P1", Code: "BIT", Semester: 1, Size: 20, Courses: []string{"c1"}},
		},
	})
	require.NoError(t, err)

	require.Len(t, result.Assignments, 1)
	assert.Contains(t, []string{"MON_SLOT_1", "WED_SLOT_3"}, result.Assignments[0].SlotKey)
	assert.Zero(t, result.Report.ByConstraint[models.ConstraintPartTimeWindow])
}

func TestRunCanonicalTermAlignment(t *testing.T) {
	svc := newService(nil)

	result, err := svc.Run(context.Background(), Request{
		Term: 1,
		Lecturers: []*models.Lecturer{
			{ID: "L1", Role: models.LecturerRoleFullTime, Specializations: []string{"FOM_STATS"}},
			{ID: "L2", Role: models.LecturerRoleFullTime, Specializations: []string{"FA", "FB"}},
		},
		Rooms: []*models.Room{
			{ID: "R1", Capacity: 80, Kind: models.RoomKindTheory, Available: true},
			{ID: "R2", Capacity: 80, Kind: models.RoomKindTheory, Available: true},
		},
		Courses: []*models.Course{
			{ID: "sa", Code: "STA_A", Name: "Statistics", WeeklyHours: 2, PreferredRoomKind: models.RoomKindTheory, PreferredTerm: 1},
			{ID: "fa", Code: "FA", Name: "Accounting", WeeklyHours: 2, PreferredRoomKind: models.RoomKindTheory},
			{ID: "sb", Code: "STA_B", Name: "Statistics", WeeklyHours: 2, PreferredRoomKind: models.RoomKindTheory},
			{ID: "fb", Code: "FB", Name: "Marketing", WeeklyHours: 2, PreferredRoomKind: models.RoomKindTheory},
		},
		Programs: []*models.Program{
			{ID: "A", Code: "BBA", Semester: 1, Size: 30, Courses: []string{"sa", "fa"}},
			{ID: "B", Code: "BPS", Semester: 1, Size: 25, Courses: []string{"sb", "fb"}},
		},
		CanonicalFamilies: map[string][]string{"FOM_STATS": {"STA_A", "STA_B"}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Plan.CourseTerm["sa"])
	assert.Equal(t, 1, result.Plan.CourseTerm["sb"],
		"family follows the explicit Term 1 preference of program A")
}

func TestRunRejectsOddWeeklyHours(t *testing.T) {
	svc := newService(nil)

	_, err := svc.Run(context.Background(), Request{
		Term: 1,
		Lecturers: []*models.Lecturer{
			{ID: "L1", Role: models.LecturerRoleFullTime, Specializations: []string{"C1"}},
		},
		Rooms: []*models.Room{
			{ID: "R1", Capacity: 30, Kind: models.RoomKindTheory, Available: true},
		},
		Courses: []*models.Course{
			{ID: "c1", Code: "C1", WeeklyHours: 3, PreferredRoomKind: models.RoomKindTheory},
		},
		Programs: []*models.Program{
			{ID: "P1", Code: "BIT", Semester: 1, Size: 20, Courses: []string{"c1"}},
		},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConfigInvalid))
}

func TestRunRejectsInvalidTerm(t *testing.T) {
	svc := newService(nil)

	_, err := svc.Run(context.Background(), Request{Term: 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestTimetableDatasetColumns(t *testing.T) {
	svc := newService(nil)

	result, err := svc.Run(context.Background(), Request{
		Term: 1,
		Lecturers: []*models.Lecturer{
			{ID: "L1", Name: "Dr. Nansubuga", Role: models.LecturerRoleFullTime, Specializations: []string{"C1"}},
		},
		Rooms: []*models.Room{
			{ID: "R1", Number: "B-101", Capacity: 30, Kind: models.RoomKindTheory, Building: "Block B", Campus: "Main", Available: true},
		},
		Courses: []*models.Course{
			{ID: "c1", Code: "C1", Name: "Discrete Mathematics", WeeklyHours: 2, Credits: 4, PreferredRoomKind: models.RoomKindTheory, PreferredTerm: 1},
		},
		Programs: []*models.Program{
			{ID: "P1", Code: "BSCAIT", Semester: 1, Size: 20, Courses: []string{"c1"}},
		},
	})
	require.NoError(t, err)

	dataset := svc.TimetableDataset(result)
	assert.Equal(t, timetableHeaders, dataset.Headers)
	require.Len(t, dataset.Rows, 1)
	row := dataset.Rows[0]
	assert.Equal(t, "C1", row["Course_Code"])
	assert.Equal(t, "Discrete Mathematics", row["Course_Name"])
	assert.Equal(t, "Dr. Nansubuga", row["Lecturer_Name"])
	assert.Equal(t, "B-101", row["Room_Number"])
	assert.Equal(t, "P1", row["Student_Group"])
	assert.Equal(t, "1", row["Term"])
	assert.Equal(t, "20", row["Group_Size"])
	assert.NotEmpty(t, row["Start_Time"])
}
