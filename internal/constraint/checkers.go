package constraint

import (
	"fmt"

	"github.com/isbat-dev/timetable-core/internal/models"
)

// checker evaluates one hard constraint against a candidate assignment in
// the current context. A nil result means satisfied.
type checker func(c *Context, a models.Assignment) *models.Violation

// hardCheckers lists every hard constraint in evaluation order; the first
// failure rejects the candidate.
var hardCheckers = []struct {
	name  models.ConstraintName
	check checker
}{
	{models.ConstraintNoDoubleBooking, checkDoubleBooking},
	{models.ConstraintRoomCapacity, checkRoomCapacity},
	{models.ConstraintRoomKind, checkRoomKind},
	{models.ConstraintSpecialization, checkSpecialization},
	{models.ConstraintPairing, checkPairing},
	{models.ConstraintDailyLimit, checkDailyLimit},
	{models.ConstraintWeeklyLimit, checkWeeklyLimit},
	{models.ConstraintSameDayRepeat, checkSameDayRepeat},
	{models.ConstraintTeachingBlocks, checkTeachingBlocks},
	{models.ConstraintMergingCapacity, checkMergingCapacity},
	{models.ConstraintSplitting, checkSplitting},
}

// criticalSet names the constraints a GGA candidate chromosome must hold;
// limit violations are tolerated under penalty.
var criticalSet = map[models.ConstraintName]bool{
	models.ConstraintNoDoubleBooking: true,
	models.ConstraintRoomCapacity:    true,
	models.ConstraintRoomKind:        true,
	models.ConstraintSameDayRepeat:   true,
	models.ConstraintPairing:         true,
	models.ConstraintMergingCapacity: true,
	models.ConstraintTeachingBlocks:  true,
}

// Check evaluates all hard constraints in order and returns the first
// violation, or nil when the candidate is admissible.
func (c *Context) Check(a models.Assignment) *models.Violation {
	for _, hc := range hardCheckers {
		if v := hc.check(c, a); v != nil {
			return v
		}
	}
	return nil
}

// CheckAll evaluates every hard constraint and returns all violations.
func (c *Context) CheckAll(a models.Assignment) []models.Violation {
	var out []models.Violation
	for _, hc := range hardCheckers {
		if v := hc.check(c, a); v != nil {
			out = append(out, *v)
		}
	}
	return out
}

// CheckCritical evaluates only the critical constraints.
func (c *Context) CheckCritical(a models.Assignment) *models.Violation {
	for _, hc := range hardCheckers {
		if !criticalSet[hc.name] {
			continue
		}
		if v := hc.check(c, a); v != nil {
			return v
		}
	}
	return nil
}

// excused reports whether every existing conflicting assignment is either a
// pair peer of the candidate or a member of the same canonical family with
// the same session number. Such co-occupancy is a legitimate merge, not a
// clash.
func (c *Context) excused(candidate models.Assignment, existingIDs []string) bool {
	if len(existingIDs) == 0 {
		return true
	}
	peers := make(map[string]bool)
	for _, id := range c.res.Set.Pairs[candidate.VariableID] {
		peers[id] = true
	}
	candidateCourse := c.res.Courses[candidate.CourseID]

	for _, id := range existingIDs {
		if id == candidate.VariableID || peers[id] {
			continue
		}
		existing, ok := c.assignments[id]
		if !ok {
			continue
		}
		if candidateCourse != nil && existing.SessionNumber == candidate.SessionNumber {
			if other := c.res.Courses[existing.CourseID]; other != nil && c.res.Registry.SameFamily(candidateCourse, other) {
				continue
			}
		}
		return false
	}
	return true
}

func violation(name models.ConstraintName, severity models.ViolationSeverity, a models.Assignment, format string, args ...any) *models.Violation {
	return &models.Violation{
		Constraint: name,
		Severity:   severity,
		Message:    fmt.Sprintf(format, args...),
		Variables:  []string{a.VariableID},
	}
}

func checkDoubleBooking(c *Context, a models.Assignment) *models.Violation {
	if booked := c.lecturerSchedule[a.LecturerID][a.SlotKey]; !c.excused(a, booked) {
		return violation(models.ConstraintNoDoubleBooking, models.SeverityCritical, a,
			"lecturer %s already booked at %s", a.LecturerID, a.SlotKey)
	}
	if booked := c.roomSchedule[a.RoomID][a.SlotKey]; !c.excused(a, booked) {
		return violation(models.ConstraintNoDoubleBooking, models.SeverityCritical, a,
			"room %s already booked at %s", a.RoomID, a.SlotKey)
	}
	for _, original := range c.res.Set.Projections(a.ProgramID) {
		if booked := c.groupSchedule[original][a.SlotKey]; !c.excused(a, booked) {
			return violation(models.ConstraintNoDoubleBooking, models.SeverityCritical, a,
				"group %s already booked at %s", original, a.SlotKey)
		}
	}
	return nil
}

func checkRoomCapacity(c *Context, a models.Assignment) *models.Violation {
	room := c.res.Rooms[a.RoomID]
	if room == nil {
		return violation(models.ConstraintRoomCapacity, models.SeverityCritical, a, "unknown room %s", a.RoomID)
	}
	size := c.res.Set.GroupSize(a.ProgramID)
	if size > room.Capacity {
		// Upstream-split groups are handled by the splitting safety net.
		if p, ok := c.res.Set.Programs[a.ProgramID]; ok && p.IsSplit() {
			return nil
		}
		return violation(models.ConstraintRoomCapacity, models.SeverityCritical, a,
			"group %s (%d students) exceeds room %s capacity %d", a.ProgramID, size, a.RoomID, room.Capacity)
	}
	return nil
}

func checkRoomKind(c *Context, a models.Assignment) *models.Violation {
	room := c.res.Rooms[a.RoomID]
	course := c.res.Courses[a.CourseID]
	if room == nil || course == nil {
		return nil
	}
	if room.Kind == course.PreferredRoomKind {
		return nil
	}
	// A recorded pre-solver downgrade is feasibility, not a violation; it
	// may only relax Lab down to Theory.
	if a.RoomKindFallback && course.PreferredRoomKind == models.RoomKindLab && room.Kind == models.RoomKindTheory {
		return nil
	}
	return violation(models.ConstraintRoomKind, models.SeverityCritical, a,
		"room %s kind %s does not match course %s preference %s", a.RoomID, room.Kind, course.Code, course.PreferredRoomKind)
}

func checkSpecialization(c *Context, a models.Assignment) *models.Violation {
	lecturer := c.res.Lecturers[a.LecturerID]
	course := c.res.Courses[a.CourseID]
	if lecturer == nil || course == nil {
		return violation(models.ConstraintSpecialization, models.SeverityCritical, a,
			"unknown lecturer %s or course %s", a.LecturerID, a.CourseID)
	}
	if !c.res.Registry.Qualifies(lecturer, course) {
		return violation(models.ConstraintSpecialization, models.SeverityCritical, a,
			"lecturer %s is not qualified for course %s", a.LecturerID, course.Code)
	}
	return nil
}

// checkPairing validates co-placement against already-assigned peers only;
// peers still unassigned are presumed fine, and the last peer placed
// completes the full check.
func checkPairing(c *Context, a models.Assignment) *models.Violation {
	for _, peerID := range c.res.Set.Pairs[a.VariableID] {
		peer, ok := c.assignments[peerID]
		if !ok {
			continue
		}
		if !peer.SameSlot(a) {
			return violation(models.ConstraintPairing, models.SeverityCritical, a,
				"paired variable %s sits at %s, not %s", peerID, peer.SlotKey, a.SlotKey)
		}
	}
	return nil
}

func checkDailyLimit(c *Context, a models.Assignment) *models.Violation {
	if c.lecturerDaily[a.LecturerID][a.Day] >= 2 {
		return violation(models.ConstraintDailyLimit, models.SeverityWarning, a,
			"lecturer %s already teaches twice on %s", a.LecturerID, a.Day)
	}
	if c.isAfternoon(a.SlotKey) {
		if c.lecturerAfternoon[a.LecturerID][a.Day] {
			return violation(models.ConstraintDailyLimit, models.SeverityWarning, a,
				"lecturer %s already has an afternoon session on %s", a.LecturerID, a.Day)
		}
	} else if c.lecturerMorning[a.LecturerID][a.Day] {
		return violation(models.ConstraintDailyLimit, models.SeverityWarning, a,
			"lecturer %s already has a morning session on %s", a.LecturerID, a.Day)
	}
	return nil
}

func checkWeeklyLimit(c *Context, a models.Assignment) *models.Violation {
	lecturer := c.res.Lecturers[a.LecturerID]
	if lecturer == nil {
		return nil
	}
	limit := lecturer.WeeklyHourCap()
	if limit == 0 {
		// Part-time lecturers are bounded by availability, not hours.
		return nil
	}
	if c.lecturerWeekly[a.LecturerID]+2 > limit {
		return violation(models.ConstraintWeeklyLimit, models.SeverityWarning, a,
			"lecturer %s would exceed weekly cap of %d hours", a.LecturerID, limit)
	}
	return nil
}

func checkSameDayRepeat(c *Context, a models.Assignment) *models.Violation {
	if !c.unitDaily[unitKey(a.ProgramID, a.CourseID)][a.Day] {
		return nil
	}
	if c.res.RelaxSameDay && c.consecutiveLabExcuse(a) {
		return nil
	}
	return violation(models.ConstraintSameDayRepeat, models.SeverityCritical, a,
		"course %s already meets group %s on %s", a.CourseID, a.ProgramID, a.Day)
}

// consecutiveLabExcuse reports whether every existing same-day session of
// the unit is a lab period directly adjacent to the candidate.
func (c *Context) consecutiveLabExcuse(a models.Assignment) bool {
	course := c.res.Courses[a.CourseID]
	if course == nil || course.PreferredRoomKind != models.RoomKindLab {
		return false
	}
	candidate := c.periodIndex(a.SlotKey)
	if candidate < 0 {
		return false
	}
	found := false
	for _, existing := range c.assignments {
		if existing.ProgramID != a.ProgramID || existing.CourseID != a.CourseID || existing.Day != a.Day {
			continue
		}
		idx := c.periodIndex(existing.SlotKey)
		if idx < 0 || abs(idx-candidate) != 1 {
			return false
		}
		found = true
	}
	return found
}

// periodIndex returns the position of the slot within its day's ordered
// periods, or -1.
func (c *Context) periodIndex(slotKey string) int {
	slot, ok := c.res.Catalogue.Lookup(slotKey)
	if !ok {
		return -1
	}
	idx := 0
	for _, s := range c.res.Catalogue.Slots() {
		if s.Day != slot.Day {
			continue
		}
		if s.Period == slot.Period {
			return idx
		}
		idx++
	}
	return -1
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func checkTeachingBlocks(c *Context, a models.Assignment) *models.Violation {
	if !c.res.Catalogue.Contains(a.SlotKey) {
		return violation(models.ConstraintTeachingBlocks, models.SeverityCritical, a,
			"slot %s is not in the teaching-block catalogue", a.SlotKey)
	}
	return nil
}

// checkMergingCapacity ensures all groups sharing a (room, slot) cell fit
// the room together. A cell with no other occupant is left to the capacity
// and splitting checks.
func checkMergingCapacity(c *Context, a models.Assignment) *models.Violation {
	room := c.res.Rooms[a.RoomID]
	if room == nil {
		return nil
	}
	groups := map[string]bool{a.ProgramID: true}
	occupied := false
	for _, id := range c.roomSchedule[a.RoomID][a.SlotKey] {
		if existing, ok := c.assignments[id]; ok {
			groups[existing.ProgramID] = true
			occupied = true
		}
	}
	if !occupied {
		return nil
	}
	total := 0
	for g := range groups {
		total += c.res.Set.GroupSize(g)
	}
	if total > room.Capacity {
		return violation(models.ConstraintMergingCapacity, models.SeverityCritical, a,
			"combined occupancy %d exceeds room %s capacity %d", total, a.RoomID, room.Capacity)
	}
	return nil
}

// checkSplitting is the safety net for groups larger than every room:
// splitting happens upstream, and an oversized group is only acceptable
// when its id carries the split marker.
func checkSplitting(c *Context, a models.Assignment) *models.Violation {
	room := c.res.Rooms[a.RoomID]
	p, ok := c.res.Set.Programs[a.ProgramID]
	if room == nil || !ok {
		return nil
	}
	if p.Size > room.Capacity && !p.IsSplit() {
		return violation(models.ConstraintSplitting, models.SeverityCritical, a,
			"group %s (%d students) requires upstream splitting", a.ProgramID, p.Size)
	}
	return nil
}
