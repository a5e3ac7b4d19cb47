// Package constraint owns the incremental booking state of a scheduling run
// and the hard-constraint checkers evaluated against candidate assignments.
package constraint

import (
	"fmt"

	"github.com/isbat-dev/timetable-core/internal/canonical"
	"github.com/isbat-dev/timetable-core/internal/models"
	"github.com/isbat-dev/timetable-core/internal/variables"
)

// Resources bundles the read-only tables a context consults. Shared across
// contexts; never mutated by them.
type Resources struct {
	Lecturers map[string]*models.Lecturer
	Rooms     map[string]*models.Room
	Courses   map[string]*models.Course
	Catalogue *models.Catalogue
	Registry  *canonical.Registry
	Set       *variables.Set

	// RelaxSameDay excuses consecutive-period lab sessions from the
	// same-day-repeat rule. The zero value keeps the rule strict.
	RelaxSameDay bool
}

// Context is the stateful index of who and what is booked where. It is
// rebuilt at every phase boundary and torn down with the run.
type Context struct {
	res *Resources

	lecturerSchedule map[string]map[string][]string
	roomSchedule     map[string]map[string][]string
	// groupSchedule is keyed by original program id: merged groups are
	// projected onto every underlying member so unrelated merged groups
	// sharing a member still see each other's bookings.
	groupSchedule map[string]map[string][]string

	lecturerDaily     map[string]map[models.Weekday]int
	lecturerMorning   map[string]map[models.Weekday]bool
	lecturerAfternoon map[string]map[models.Weekday]bool
	lecturerWeekly    map[string]int // accumulated hours, 2 per session

	unitDaily map[string]map[models.Weekday]bool // (program, course) -> day

	assignments map[string]models.Assignment
}

// NewContext builds an empty context over the run's resources.
func NewContext(res *Resources) *Context {
	return &Context{
		res:               res,
		lecturerSchedule:  make(map[string]map[string][]string),
		roomSchedule:      make(map[string]map[string][]string),
		groupSchedule:     make(map[string]map[string][]string),
		lecturerDaily:     make(map[string]map[models.Weekday]int),
		lecturerMorning:   make(map[string]map[models.Weekday]bool),
		lecturerAfternoon: make(map[string]map[models.Weekday]bool),
		lecturerWeekly:    make(map[string]int),
		unitDaily:         make(map[string]map[models.Weekday]bool),
		assignments:       make(map[string]models.Assignment),
	}
}

// Resources exposes the read-only tables.
func (c *Context) Resources() *Resources { return c.res }

// Assignments returns the live assignment map. Callers must treat it as
// read-only; use models.CopyAssignments for snapshots.
func (c *Context) Assignments() map[string]models.Assignment { return c.assignments }

// Assigned reports whether the variable currently holds an assignment.
func (c *Context) Assigned(variableID string) bool {
	_, ok := c.assignments[variableID]
	return ok
}

func unitKey(programID, courseID string) string {
	return fmt.Sprintf("%s|%s", programID, courseID)
}

// Add indexes an assignment into every schedule table.
func (c *Context) Add(a models.Assignment) {
	c.assignments[a.VariableID] = a

	appendTo(c.lecturerSchedule, a.LecturerID, a.SlotKey, a.VariableID)
	appendTo(c.roomSchedule, a.RoomID, a.SlotKey, a.VariableID)
	for _, original := range c.res.Set.Projections(a.ProgramID) {
		appendTo(c.groupSchedule, original, a.SlotKey, a.VariableID)
	}

	if c.lecturerDaily[a.LecturerID] == nil {
		c.lecturerDaily[a.LecturerID] = make(map[models.Weekday]int)
	}
	c.lecturerDaily[a.LecturerID][a.Day]++
	c.lecturerWeekly[a.LecturerID] += 2

	if c.isAfternoon(a.SlotKey) {
		setFlag(c.lecturerAfternoon, a.LecturerID, a.Day)
	} else {
		setFlag(c.lecturerMorning, a.LecturerID, a.Day)
	}

	uk := unitKey(a.ProgramID, a.CourseID)
	if c.unitDaily[uk] == nil {
		c.unitDaily[uk] = make(map[models.Weekday]bool)
	}
	c.unitDaily[uk][a.Day] = true
}

// Remove withdraws a variable's assignment and restores every index.
// Morning/afternoon flags and the unit-daily table are disjunctions, so
// they are recomputed from the remaining assignments instead of
// decremented.
func (c *Context) Remove(variableID string) {
	a, ok := c.assignments[variableID]
	if !ok {
		return
	}
	delete(c.assignments, variableID)

	removeFrom(c.lecturerSchedule, a.LecturerID, a.SlotKey, variableID)
	removeFrom(c.roomSchedule, a.RoomID, a.SlotKey, variableID)
	for _, original := range c.res.Set.Projections(a.ProgramID) {
		removeFrom(c.groupSchedule, original, a.SlotKey, variableID)
	}

	if daily := c.lecturerDaily[a.LecturerID]; daily != nil {
		if daily[a.Day] > 1 {
			daily[a.Day]--
		} else {
			delete(daily, a.Day)
		}
	}
	if c.lecturerWeekly[a.LecturerID] >= 2 {
		c.lecturerWeekly[a.LecturerID] -= 2
	}

	c.recomputeHalfDayFlags(a.LecturerID, a.Day)

	uk := unitKey(a.ProgramID, a.CourseID)
	delete(c.unitDaily[uk], a.Day)
	for _, other := range c.assignments {
		if other.ProgramID == a.ProgramID && other.CourseID == a.CourseID && other.Day == a.Day {
			c.unitDaily[uk][a.Day] = true
			break
		}
	}
}

func (c *Context) recomputeHalfDayFlags(lecturerID string, day models.Weekday) {
	morning, afternoon := false, false
	for _, a := range c.assignments {
		if a.LecturerID != lecturerID || a.Day != day {
			continue
		}
		if c.isAfternoon(a.SlotKey) {
			afternoon = true
		} else {
			morning = true
		}
	}
	storeFlag(c.lecturerMorning, lecturerID, day, morning)
	storeFlag(c.lecturerAfternoon, lecturerID, day, afternoon)
}

func (c *Context) isAfternoon(slotKey string) bool {
	if slot, ok := c.res.Catalogue.Lookup(slotKey); ok {
		return slot.Afternoon
	}
	return false
}

// LecturerWeeklyHours returns the accumulated teaching hours of a lecturer.
func (c *Context) LecturerWeeklyHours(lecturerID string) int {
	return c.lecturerWeekly[lecturerID]
}

// SlotUsage counts how many assignments occupy the slot key, across all
// resources. Used by the value-ordering balance bias.
func (c *Context) SlotUsage(slotKey string) int {
	n := 0
	for _, a := range c.assignments {
		if a.SlotKey == slotKey {
			n++
		}
	}
	return n
}

// RoomSlotVariables returns the variable ids currently booked in a
// (room, slot) cell.
func (c *Context) RoomSlotVariables(roomID, slotKey string) []string {
	return c.roomSchedule[roomID][slotKey]
}

func appendTo(index map[string]map[string][]string, key, slotKey, variableID string) {
	if index[key] == nil {
		index[key] = make(map[string][]string)
	}
	index[key][slotKey] = append(index[key][slotKey], variableID)
}

func removeFrom(index map[string]map[string][]string, key, slotKey, variableID string) {
	slots := index[key]
	if slots == nil {
		return
	}
	list := slots[slotKey]
	for i, id := range list {
		if id == variableID {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(slots, slotKey)
	} else {
		slots[slotKey] = list
	}
}

func setFlag(index map[string]map[models.Weekday]bool, key string, day models.Weekday) {
	if index[key] == nil {
		index[key] = make(map[models.Weekday]bool)
	}
	index[key][day] = true
}

func storeFlag(index map[string]map[models.Weekday]bool, key string, day models.Weekday, value bool) {
	if index[key] == nil {
		if !value {
			return
		}
		index[key] = make(map[models.Weekday]bool)
	}
	if value {
		index[key][day] = true
	} else {
		delete(index[key], day)
	}
}
