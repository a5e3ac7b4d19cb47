package variables

import (
	"sort"

	"go.uber.org/zap"

	"github.com/isbat-dev/timetable-core/internal/models"
)

// smallDomainThreshold flags variables that are likely to stall the solver.
const smallDomainThreshold = 10

// BuildDomains computes, for every variable in the set, its admissible
// time-slots, canonically qualified lecturers (with per-lecturer slot
// subsets for part-time availability) and capacity/kind-compatible rooms.
// Lab courses with no lab of sufficient capacity are downgraded to theory
// rooms, recorded on the variable; theory courses never receive lab rooms.
func (b *Builder) BuildDomains(set *Set, lecturers []*models.Lecturer, rooms []*models.Room, catalogue *models.Catalogue) {
	slotKeys := make([]string, 0, catalogue.Len())
	for _, s := range catalogue.Slots() {
		slotKeys = append(slotKeys, s.Key())
	}

	for _, v := range set.Variables {
		course := set.Courses[v.CourseID]
		if course == nil {
			continue
		}
		v.TimeSlots = append([]string(nil), slotKeys...)
		v.Lecturers, v.LecturerSlots = b.lecturerDomain(course, lecturers, catalogue)
		v.Rooms, v.RoomKindFallback = roomDomain(course, set.GroupSize(v.ProgramID), rooms)
		if v.RoomKindFallback {
			b.logger.Warn("room kind fallback",
				zap.String("variable", v.ID),
				zap.String("course", course.Code),
				zap.Int("group_size", set.GroupSize(v.ProgramID)))
		}
	}
	b.reportDomainDiagnostics(set)
}

func (b *Builder) lecturerDomain(course *models.Course, lecturers []*models.Lecturer, catalogue *models.Catalogue) ([]string, map[string]map[string]bool) {
	var ids []string
	slots := make(map[string]map[string]bool)
	for _, l := range lecturers {
		if !b.registry.Qualifies(l, course) {
			continue
		}
		ids = append(ids, l.ID)
		if l.Role != models.LecturerRolePartTime || len(l.Availability) == 0 {
			continue // full slot set; nil entry means unrestricted
		}
		admitted := make(map[string]bool)
		for _, s := range catalogue.Slots() {
			if l.AvailableAt(string(s.Day), s.Key()) || l.AvailableAt(string(s.Day), s.Period) {
				admitted[s.Key()] = true
			}
		}
		slots[l.ID] = admitted
	}
	if len(slots) == 0 {
		return ids, nil
	}
	return ids, slots
}

// roomDomain selects rooms of the preferred kind with sufficient capacity.
// The fallback order for lab courses is: sufficient labs, then sufficient
// theory rooms (downgrade recorded), then all theory rooms largest-first as
// a last resort for upstream-split groups.
func roomDomain(course *models.Course, groupSize int, rooms []*models.Room) ([]string, bool) {
	pick := func(kind models.RoomKind, minCapacity int) []*models.Room {
		var out []*models.Room
		for _, r := range rooms {
			if !r.Available || r.Kind != kind {
				continue
			}
			if minCapacity >= 0 && r.Capacity < minCapacity {
				continue
			}
			out = append(out, r)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Capacity > out[j].Capacity })
		return out
	}
	ids := func(list []*models.Room) []string {
		out := make([]string, 0, len(list))
		for _, r := range list {
			out = append(out, r.ID)
		}
		return out
	}

	if course.PreferredRoomKind == models.RoomKindLab {
		if fitting := pick(models.RoomKindLab, groupSize); len(fitting) > 0 {
			return ids(fitting), false
		}
		if fitting := pick(models.RoomKindTheory, groupSize); len(fitting) > 0 {
			return ids(fitting), true
		}
		return ids(pick(models.RoomKindTheory, -1)), true
	}

	if fitting := pick(models.RoomKindTheory, groupSize); len(fitting) > 0 {
		return ids(fitting), false
	}
	return ids(pick(models.RoomKindTheory, -1)), false
}

// reportDomainDiagnostics logs variables with empty or small accurate
// domains and courses covered by fewer than two lecturers. Empty domains do
// not abort the run; the solver records them and returns best-partial.
func (b *Builder) reportDomainDiagnostics(set *Set) {
	courseLecturers := make(map[string]int)
	for _, v := range set.Variables {
		size := v.AccurateDomainSize()
		switch {
		case size == 0:
			b.logger.Warn("variable has empty domain",
				zap.String("variable", v.ID),
				zap.String("course", v.CourseID),
				zap.String("program", v.ProgramID),
				zap.Int("time_slots", len(v.TimeSlots)),
				zap.Int("lecturers", len(v.Lecturers)),
				zap.Int("rooms", len(v.Rooms)))
		case size < smallDomainThreshold:
			b.logger.Debug("variable has small domain",
				zap.String("variable", v.ID),
				zap.Int("domain_size", size))
		}
		if _, seen := courseLecturers[v.CourseID]; !seen {
			courseLecturers[v.CourseID] = len(v.Lecturers)
		}
	}
	for courseID, count := range courseLecturers {
		if count < 2 {
			b.logger.Info("low lecturer coverage",
				zap.String("course", courseID),
				zap.Int("qualified_lecturers", count))
		}
	}
}
