package csp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isbat-dev/timetable-core/internal/canonical"
	"github.com/isbat-dev/timetable-core/internal/constraint"
	"github.com/isbat-dev/timetable-core/internal/models"
	"github.com/isbat-dev/timetable-core/internal/termplan"
	"github.com/isbat-dev/timetable-core/internal/variables"
)

// buildResources runs the real preprocessing pipeline over a term-1 only
// fixture so solver tests see exactly what production runs see.
func buildResources(families map[string][]string, lecturers []*models.Lecturer, rooms []*models.Room, courses []*models.Course, programs []*models.Program) *constraint.Resources {
	registry := canonical.NewRegistry(families)
	courseIndex := make(map[string]*models.Course, len(courses))
	plan := &termplan.Plan{CourseTerm: make(map[string]int)}
	for _, c := range courses {
		courseIndex[c.ID] = c
		plan.CourseTerm[c.ID] = 1
	}

	builder := variables.NewBuilder(registry, nil)
	set := builder.Build(1, programs, courseIndex, plan)
	builder.LinkPairs(set)

	catalogue := models.DefaultCatalogue()
	builder.BuildDomains(set, lecturers, rooms, catalogue)

	lecturerIndex := make(map[string]*models.Lecturer, len(lecturers))
	for _, l := range lecturers {
		lecturerIndex[l.ID] = l
	}
	roomIndex := make(map[string]*models.Room, len(rooms))
	for _, r := range rooms {
		roomIndex[r.ID] = r
	}
	return &constraint.Resources{
		Lecturers: lecturerIndex,
		Rooms:     roomIndex,
		Courses:   set.Courses,
		Catalogue: catalogue,
		Registry:  registry,
		Set:       set,
	}
}

func testConfig(seed int64) Config {
	return Config{
		MaxIterations:  50000,
		Timeout:        10 * time.Second,
		StallThreshold: 2000,
		Seed:           seed,
	}
}

func TestSolveTrivialFeasible(t *testing.T) {
	res := buildResources(nil,
		[]*models.Lecturer{{ID: "L1", Role: models.LecturerRoleFullTime, Specializations: []string{"C1"}}},
		[]*models.Room{{ID: "R1", Capacity: 30, Kind: models.RoomKindTheory, Available: true}},
		[]*models.Course{{ID: "c1", Code: "C1", Name: "Intro", WeeklyHours: 2, PreferredRoomKind: models.RoomKindTheory}},
		[]*models.Program{{ID: "P1", Size: 20, Semester: 1, Courses: []string{"c1"}}},
	)

	result := New(res, testConfig(42), nil).Solve(context.Background())

	require.True(t, result.Complete)
	require.Len(t, result.Assignments, 1)
	assert.Empty(t, result.Unassigned)
	for _, a := range result.Assignments {
		assert.Equal(t, "L1", a.LecturerID)
		assert.Equal(t, "R1", a.RoomID)
		assert.True(t, res.Catalogue.Contains(a.SlotKey))
	}
}

func TestSolvePairLockSharesSlot(t *testing.T) {
	res := buildResources(nil,
		[]*models.Lecturer{
			{ID: "L1", Role: models.LecturerRoleFullTime, Specializations: []string{"PC_T"}},
			{ID: "L2", Role: models.LecturerRoleFullTime, Specializations: []string{"PC_P"}},
		},
		[]*models.Room{
			{ID: "R_TH", Capacity: 40, Kind: models.RoomKindTheory, Available: true},
			{ID: "R_LAB", Capacity: 40, Kind: models.RoomKindLab, Available: true},
		},
		[]*models.Course{
			{ID: "th", Code: "PC_T", Name: "Programming in C", WeeklyHours: 2, CourseGroup: "PC", PreferredRoomKind: models.RoomKindTheory},
			{ID: "pr", Code: "PC_P", Name: "Programming in C Lab", WeeklyHours: 2, CourseGroup: "PC", PreferredRoomKind: models.RoomKindLab},
		},
		[]*models.Program{{ID: "P1", Size: 25, Semester: 1, Courses: []string{"th", "pr"}}},
	)

	result := New(res, testConfig(7), nil).Solve(context.Background())

	require.True(t, result.Complete)
	require.Len(t, result.Assignments, 2)
	var theory, practical models.Assignment
	for _, a := range result.Assignments {
		if a.CourseID == "th" {
			theory = a
		} else {
			practical = a
		}
	}
	assert.Equal(t, theory.SlotKey, practical.SlotKey, "pair peers must share the time-slot")
	assert.Equal(t, "R_TH", theory.RoomID)
	assert.Equal(t, "R_LAB", practical.RoomID)
}

func TestSolveWeeklyCapReturnsBestPartial(t *testing.T) {
	// One full-time lecturer (22h cap, at most two sessions a day) is the
	// only qualified teacher for twelve sessions.
	courses := []*models.Course{
		{ID: "c1", Code: "C1", WeeklyHours: 4, PreferredRoomKind: models.RoomKindTheory},
		{ID: "c2", Code: "C2", WeeklyHours: 4, PreferredRoomKind: models.RoomKindTheory},
		{ID: "c3", Code: "C3", WeeklyHours: 4, PreferredRoomKind: models.RoomKindTheory},
		{ID: "c4", Code: "C4", WeeklyHours: 4, PreferredRoomKind: models.RoomKindTheory},
		{ID: "c5", Code: "C5", WeeklyHours: 4, PreferredRoomKind: models.RoomKindTheory},
		{ID: "c6", Code: "C6", WeeklyHours: 4, PreferredRoomKind: models.RoomKindTheory},
	}
	res := buildResources(nil,
		[]*models.Lecturer{{ID: "L1", Role: models.LecturerRoleFullTime,
			Specializations: []string{"C1", "C2", "C3", "C4", "C5", "C6"}}},
		[]*models.Room{
			{ID: "R1", Capacity: 40, Kind: models.RoomKindTheory, Available: true},
			{ID: "R2", Capacity: 40, Kind: models.RoomKindTheory, Available: true},
		},
		courses,
		[]*models.Program{{ID: "P1", Size: 20, Semester: 1, Courses: []string{"c1", "c2", "c3", "c4", "c5", "c6"}}},
	)

	cfg := testConfig(11)
	cfg.StallThreshold = 500
	result := New(res, cfg, nil).Solve(context.Background())

	assert.False(t, result.Complete)
	assert.NotEmpty(t, result.Unassigned)
	for _, id := range result.Unassigned {
		assert.NotEmpty(t, result.Reasons[id])
	}
	// Every retained assignment still holds the hard constraints.
	replay := constraint.NewContext(res)
	for _, v := range res.Set.Variables {
		a, ok := result.Assignments[v.ID]
		if !ok {
			continue
		}
		assert.Nil(t, replay.Check(a), "retained partial must be hard-valid")
		replay.Add(a)
	}
}

func TestSolvePartTimeAvailabilityRespected(t *testing.T) {
	res := buildResources(nil,
		[]*models.Lecturer{{
			ID:              "PT",
			Role:            models.LecturerRolePartTime,
			Specializations: []string{"C1"},
			Availability: map[string][]string{
				"MON": {"MON_SLOT_1"},
				"WED": {"WED_SLOT_3"},
			},
		}},
		[]*models.Room{{ID: "R1", Capacity: 30, Kind: models.RoomKindTheory, Available: true}},
		[]*models.Course{{ID: "c1", Code: "C1", WeeklyHours: 2, PreferredRoomKind: models.RoomKindTheory}},
		[]*models.Program{{ID: "P1", Size: 20, Semester: 1, Courses: []string{"c1"}}},
	)

	result := New(res, testConfig(3), nil).Solve(context.Background())

	require.True(t, result.Complete)
	for _, a := range result.Assignments {
		assert.Contains(t, []string{"MON_SLOT_1", "WED_SLOT_3"}, a.SlotKey)
	}
}

func TestSolveTimeoutZeroReturnsImmediately(t *testing.T) {
	res := buildResources(nil,
		[]*models.Lecturer{{ID: "L1", Role: models.LecturerRoleFullTime, Specializations: []string{"C1"}}},
		[]*models.Room{{ID: "R1", Capacity: 30, Kind: models.RoomKindTheory, Available: true}},
		[]*models.Course{{ID: "c1", Code: "C1", WeeklyHours: 2, PreferredRoomKind: models.RoomKindTheory}},
		[]*models.Program{{ID: "P1", Size: 20, Semester: 1, Courses: []string{"c1"}}},
	)

	cfg := testConfig(1)
	cfg.Timeout = 0
	result := New(res, cfg, nil).Solve(context.Background())

	assert.False(t, result.Complete)
	assert.Empty(t, result.Assignments)
	assert.Len(t, result.Unassigned, 1)
}

func TestSolveCancelledContextReturnsPartial(t *testing.T) {
	res := buildResources(nil,
		[]*models.Lecturer{{ID: "L1", Role: models.LecturerRoleFullTime, Specializations: []string{"C1"}}},
		[]*models.Room{{ID: "R1", Capacity: 30, Kind: models.RoomKindTheory, Available: true}},
		[]*models.Course{{ID: "c1", Code: "C1", WeeklyHours: 2, PreferredRoomKind: models.RoomKindTheory}},
		[]*models.Program{{ID: "P1", Size: 20, Semester: 1, Courses: []string{"c1"}}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := New(res, testConfig(5), nil).Solve(ctx)
	assert.False(t, result.Complete)
}

func TestSolveEmptyDomainRecordsDiagnostics(t *testing.T) {
	// No qualified lecturer exists, so the variable's domain is empty; the
	// solver completes with a best-partial rather than raising.
	res := buildResources(nil,
		[]*models.Lecturer{{ID: "L1", Role: models.LecturerRoleFullTime, Specializations: []string{"Botany"}}},
		[]*models.Room{{ID: "R1", Capacity: 30, Kind: models.RoomKindTheory, Available: true}},
		[]*models.Course{{ID: "c1", Code: "C1", Name: "Databases", WeeklyHours: 2, PreferredRoomKind: models.RoomKindTheory}},
		[]*models.Program{{ID: "P1", Size: 20, Semester: 1, Courses: []string{"c1"}}},
	)

	result := New(res, testConfig(9), nil).Solve(context.Background())

	assert.False(t, result.Complete)
	require.Len(t, result.Unassigned, 1)
	assert.NotEmpty(t, result.Reasons[result.Unassigned[0]])
}

func TestSolveSameSeedIsReproducible(t *testing.T) {
	build := func() *constraint.Resources {
		return buildResources(nil,
			[]*models.Lecturer{
				{ID: "L1", Role: models.LecturerRoleFullTime, Specializations: []string{"C1", "C2"}},
				{ID: "L2", Role: models.LecturerRoleFullTime, Specializations: []string{"C1", "C2"}},
			},
			[]*models.Room{
				{ID: "R1", Capacity: 40, Kind: models.RoomKindTheory, Available: true},
				{ID: "R2", Capacity: 40, Kind: models.RoomKindTheory, Available: true},
			},
			[]*models.Course{
				{ID: "c1", Code: "C1", WeeklyHours: 4, PreferredRoomKind: models.RoomKindTheory},
				{ID: "c2", Code: "C2", WeeklyHours: 4, PreferredRoomKind: models.RoomKindTheory},
			},
			[]*models.Program{{ID: "P1", Size: 20, Semester: 1, Courses: []string{"c1", "c2"}}},
		)
	}

	first := New(build(), testConfig(99), nil).Solve(context.Background())
	second := New(build(), testConfig(99), nil).Solve(context.Background())

	require.True(t, first.Complete)
	require.True(t, second.Complete)
	assert.Equal(t, first.Assignments, second.Assignments)
}
