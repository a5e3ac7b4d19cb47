// Package canonical maps equivalent course codes across programs onto
// stable canonical ids and answers lecturer-qualification queries through
// that mapping.
package canonical

import (
	"sort"
	"strings"
	"sync"

	"github.com/isbat-dev/timetable-core/internal/models"
)

// Registry holds the canonical-id <-> course-code mapping for a run. Each
// course code belongs to at most one canonical family.
type Registry struct {
	members map[string][]string // canonical id -> ordered member codes
	byCode  map[string]string   // course code -> canonical id

	mu    sync.RWMutex
	cache map[matchKey]bool
}

type matchKey struct {
	lecturerID string
	courseID   string
}

// NewRegistry builds a registry from canonical-id -> member-code lists.
// Member order is preserved; codes claimed by an earlier family are not
// reassigned.
func NewRegistry(families map[string][]string) *Registry {
	r := &Registry{
		members: make(map[string][]string, len(families)),
		byCode:  make(map[string]string),
		cache:   make(map[matchKey]bool),
	}
	ids := make([]string, 0, len(families))
	for id := range families {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		codes := families[id]
		kept := make([]string, 0, len(codes))
		for _, code := range codes {
			if _, taken := r.byCode[code]; taken {
				continue
			}
			r.byCode[code] = id
			kept = append(kept, code)
		}
		r.members[id] = kept
	}
	return r
}

// CanonicalID returns the family id for a course code, if any.
func (r *Registry) CanonicalID(code string) (string, bool) {
	id, ok := r.byCode[code]
	return id, ok
}

// Members returns the ordered member codes of a family.
func (r *Registry) Members(canonicalID string) []string {
	return r.members[canonicalID]
}

// CourseCanonicalID resolves the family of a course, preferring the
// explicitly assigned id over the code lookup.
func (r *Registry) CourseCanonicalID(course *models.Course) string {
	if course.CanonicalID != "" {
		return course.CanonicalID
	}
	if id, ok := r.byCode[course.Code]; ok {
		return id
	}
	return ""
}

// SameFamily reports whether two courses belong to one canonical family.
func (r *Registry) SameFamily(a, b *models.Course) bool {
	ca := r.CourseCanonicalID(a)
	return ca != "" && ca == r.CourseCanonicalID(b)
}

// Qualifies reports whether any of the lecturer's specialisation tokens
// matches the course. A token matches when it equals the course code, the
// course id, the canonical id, any member code of the course's family, or
// is a case-insensitive substring of the display name. Pure with respect to
// its inputs; results are memoised per (lecturer, course).
func (r *Registry) Qualifies(lecturer *models.Lecturer, course *models.Course) bool {
	key := matchKey{lecturerID: lecturer.ID, courseID: course.ID}
	r.mu.RLock()
	if hit, ok := r.cache[key]; ok {
		r.mu.RUnlock()
		return hit
	}
	r.mu.RUnlock()

	result := Matches(course, lecturer.Specializations, r)

	r.mu.Lock()
	r.cache[key] = result
	r.mu.Unlock()
	return result
}

// Matches is the pure specialisation-matching function behind Qualifies.
func Matches(course *models.Course, specializations []string, registry *Registry) bool {
	canonicalID := ""
	var family []string
	if registry != nil {
		canonicalID = registry.CourseCanonicalID(course)
		if canonicalID != "" {
			family = registry.Members(canonicalID)
		}
	}
	loweredName := strings.ToLower(course.Name)

	for _, spec := range specializations {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		if spec == course.Code || spec == course.ID {
			return true
		}
		if canonicalID != "" && spec == canonicalID {
			return true
		}
		for _, member := range family {
			if spec == member {
				return true
			}
		}
		if loweredName != "" && strings.Contains(loweredName, strings.ToLower(spec)) {
			return true
		}
	}
	return false
}
