package csp

import (
	"sort"

	"github.com/isbat-dev/timetable-core/internal/models"
)

// candidate is one (slot, lecturer, room) triple with its LCV score.
// Lower scores are tried first.
type candidate struct {
	slotKey    string
	lecturerID string
	roomID     string
	score      float64
}

// Ordering biases, tuned so room-kind fit and canonical merges dominate the
// softer balance terms.
const (
	roomKindMatchBonus     = -1000.0
	roomKindMismatchCost   = 1000.0
	specializationBonus    = -200.0
	specializationMismatch = 50.0
	slotUsageWeight        = 10.0
	capacityWasteWeight    = 0.1
	roomTooSmallCost       = 10000.0
	canonicalMergeBonus    = -1000.0
	maxOrderedCandidates   = 100
)

// orderDomainValues enumerates the variable's admissible triples scored by
// least-constraining-value with the documented biases, ascending. Within
// equal scores the order is shuffled for solution diversity, and domains
// larger than the cap are truncated after sorting.
func (s *Solver) orderDomainValues(v *models.Variable, unassigned []*models.Variable) []candidate {
	course := s.res.Courses[v.CourseID]
	groupSize := s.res.Set.GroupSize(v.ProgramID)

	var out []candidate
	for _, slotKey := range v.TimeSlots {
		usage := float64(s.ctx.SlotUsage(slotKey))
		for _, lecturerID := range v.Lecturers {
			if !v.LecturerAdmits(lecturerID, slotKey) {
				continue
			}
			specScore := specializationMismatch
			if s.directSpecialization(lecturerID, course) {
				specScore = specializationBonus
			}
			for _, roomID := range v.Rooms {
				room := s.res.Rooms[roomID]
				if room == nil {
					continue
				}
				score := specScore + slotUsageWeight*usage

				if course != nil && course.PreferredRoomKind == models.RoomKindLab {
					if room.Kind == models.RoomKindLab {
						score += roomKindMatchBonus
					} else {
						score += roomKindMismatchCost
					}
				}
				if room.Capacity < groupSize {
					score += roomTooSmallCost
				} else {
					score += capacityWasteWeight * float64(room.Capacity-groupSize)
				}
				if s.mergeOpportunity(v, course, roomID, slotKey, groupSize, room.Capacity) {
					score += canonicalMergeBonus
				}
				score += float64(s.unassignedConflicts(v, lecturerID, roomID, slotKey, unassigned))

				out = append(out, candidate{
					slotKey:    slotKey,
					lecturerID: lecturerID,
					roomID:     roomID,
					score:      score,
				})
			}
		}
	}

	s.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	sort.SliceStable(out, func(i, j int) bool { return out[i].score < out[j].score })
	if len(out) > maxOrderedCandidates {
		out = out[:maxOrderedCandidates]
	}
	return out
}

// directSpecialization reports an exact token match on the course code or
// id, a stronger signal than the canonical qualification every candidate
// already has.
func (s *Solver) directSpecialization(lecturerID string, course *models.Course) bool {
	lecturer := s.res.Lecturers[lecturerID]
	if lecturer == nil || course == nil {
		return false
	}
	for _, spec := range lecturer.Specializations {
		if spec == course.Code || spec == course.ID {
			return true
		}
	}
	return false
}

// mergeOpportunity reports whether placing into an occupied (room, slot)
// would fold the variable into an existing canonical equivalent with the
// combined groups still fitting the room.
func (s *Solver) mergeOpportunity(v *models.Variable, course *models.Course, roomID, slotKey string, groupSize, capacity int) bool {
	if course == nil {
		return false
	}
	occupants := s.ctx.RoomSlotVariables(roomID, slotKey)
	if len(occupants) == 0 {
		return false
	}
	total := groupSize
	merged := false
	seen := map[string]bool{v.ProgramID: true}
	for _, id := range occupants {
		a, ok := s.ctx.Assignments()[id]
		if !ok {
			return false
		}
		other := s.res.Courses[a.CourseID]
		if other == nil || a.SessionNumber != v.SessionNumber || !s.res.Registry.SameFamily(course, other) {
			return false
		}
		merged = true
		if !seen[a.ProgramID] {
			seen[a.ProgramID] = true
			total += s.res.Set.GroupSize(a.ProgramID)
		}
	}
	return merged && total <= capacity
}

// unassignedConflicts counts still-unassigned variables that compete for
// the same lecturer or room at this slot, or belong to the same group.
// Fewer shared resources leave more room for the remaining search.
func (s *Solver) unassignedConflicts(v *models.Variable, lecturerID, roomID, slotKey string, unassigned []*models.Variable) int {
	count := 0
	for _, other := range unassigned {
		if other.ID == v.ID || !slotInDomain(other, slotKey) {
			continue
		}
		if other.ProgramID == v.ProgramID {
			count++
			continue
		}
		if containsString(other.Lecturers, lecturerID) || containsString(other.Rooms, roomID) {
			count++
		}
	}
	return count
}

func slotInDomain(v *models.Variable, slotKey string) bool {
	return containsString(v.TimeSlots, slotKey)
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
