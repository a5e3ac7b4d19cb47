package models

// Course represents a teaching unit required by one or more programs.
// Immutable during a run.
type Course struct {
	ID   string `json:"id" validate:"required"`
	Code string `json:"code" validate:"required"`
	Name string `json:"name"`
	// WeeklyHours must be a positive even integer; every session spans two
	// hours, so SessionsRequired is WeeklyHours/2.
	WeeklyHours       int      `json:"weekly_hours" validate:"required,gt=0"`
	Credits           int      `json:"credits"`
	PreferredRoomKind RoomKind `json:"preferred_room_kind" validate:"required,oneof=THEORY LAB"`
	// CourseGroup ties theory and practical companions together; companions
	// must share a time-slot.
	CourseGroup string `json:"course_group,omitempty"`
	// PreferredTerm is 1 or 2 when explicitly requested, 0 when flexible.
	PreferredTerm int `json:"preferred_term,omitempty" validate:"gte=0,lte=2"`
	// CanonicalID is assigned by the canonical registry when the course
	// belongs to a cross-program family.
	CanonicalID   string   `json:"canonical_id,omitempty"`
	Foundational  bool     `json:"foundational,omitempty"`
	Prerequisites []string `json:"prerequisites,omitempty"`
	Difficulty    int      `json:"difficulty,omitempty"`
}

// SessionsRequired returns the number of 2-hour sessions per week.
func (c *Course) SessionsRequired() int {
	return c.WeeklyHours / 2
}
