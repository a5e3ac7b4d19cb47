package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isbat-dev/timetable-core/internal/models"
)

func TestRegistryCanonicalLookup(t *testing.T) {
	reg := NewRegistry(map[string][]string{
		"CS_INTRO": {"BSCAIT101", "BCS110"},
		"FOM_STATS": {"STA101"},
	})

	id, ok := reg.CanonicalID("BCS110")
	require.True(t, ok)
	assert.Equal(t, "CS_INTRO", id)

	_, ok = reg.CanonicalID("UNKNOWN")
	assert.False(t, ok)
	assert.Equal(t, []string{"BSCAIT101", "BCS110"}, reg.Members("CS_INTRO"))
}

func TestRegistryFirstFamilyWinsOnCodeCollision(t *testing.T) {
	reg := NewRegistry(map[string][]string{
		"A_FAMILY": {"SHARED"},
		"B_FAMILY": {"SHARED", "OTHER"},
	})

	id, ok := reg.CanonicalID("SHARED")
	require.True(t, ok)
	assert.Equal(t, "A_FAMILY", id)
	assert.Equal(t, []string{"OTHER"}, reg.Members("B_FAMILY"))
}

func TestQualifiesMatchModes(t *testing.T) {
	reg := NewRegistry(map[string][]string{
		"CS_INTRO": {"BSCAIT101", "BCS110"},
	})
	course := &models.Course{
		ID:   "crs-1",
		Code: "BSCAIT101",
		Name: "Programming in C",
	}

	cases := []struct {
		name string
		spec string
		want bool
	}{
		{"course code", "BSCAIT101", true},
		{"course id", "crs-1", true},
		{"canonical id", "CS_INTRO", true},
		{"sibling member code", "BCS110", true},
		{"name substring case-insensitive", "programming", true},
		{"unrelated token", "Quantum Entanglement", false},
		{"blank token", "   ", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lect := &models.Lecturer{ID: "lec-" + tc.name, Specializations: []string{tc.spec}}
			assert.Equal(t, tc.want, reg.Qualifies(lect, course))
		})
	}
}

func TestQualifiesMemoised(t *testing.T) {
	reg := NewRegistry(nil)
	course := &models.Course{ID: "crs-2", Code: "NET201", Name: "Computer Networks"}
	lect := &models.Lecturer{ID: "lec-9", Specializations: []string{"networks"}}

	first := reg.Qualifies(lect, course)
	second := reg.Qualifies(lect, course)
	assert.True(t, first)
	assert.Equal(t, first, second)
}

func TestSameFamily(t *testing.T) {
	reg := NewRegistry(map[string][]string{"CS_INTRO": {"A1", "B1"}})
	a := &models.Course{ID: "a", Code: "A1"}
	b := &models.Course{ID: "b", Code: "B1"}
	c := &models.Course{ID: "c", Code: "C1"}

	assert.True(t, reg.SameFamily(a, b))
	assert.False(t, reg.SameFamily(a, c))
	// Unregistered courses never form a family, even with themselves.
	assert.False(t, reg.SameFamily(c, c))
}
