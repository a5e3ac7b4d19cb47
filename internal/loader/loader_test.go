package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isbat-dev/timetable-core/internal/models"
	appErrors "github.com/isbat-dev/timetable-core/pkg/errors"
)

const sampleDataset = `{
  "lecturers": [
    {"id": "L1", "name": "Dr. Auma", "role": "FULL_TIME", "specializations": ["AIT101"]},
    {"id": "L2", "name": "Mr. Ssewanyana", "role": "PART_TIME",
     "availability": {"MON": ["MON_SLOT_1"]}, "specializations": ["BCS110"]}
  ],
  "rooms": [
    {"id": "R1", "number": "B-101", "capacity": 60, "kind": "THEORY", "available": true}
  ],
  "courses": [
    {"id": "c1", "code": "AIT101", "name": "Introduction to Computing",
     "weekly_hours": 4, "credits": 3, "preferred_room_kind": "THEORY", "preferred_term": 1}
  ],
  "programs": [
    {"id": "P1", "code": "BSCAIT", "batch": "2025", "semester": 1, "size": 35, "courses": ["c1"]}
  ],
  "canonical_families": {"CS_INTRO": ["AIT101", "BCS110"]},
  "time_slot_catalogue": [
    {"period": "SLOT_1", "day": "MON", "start": "09:00", "end": "11:00", "is_afternoon": false}
  ]
}`

func TestLoadDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleDataset), 0o644))

	ds, err := Load(path)
	require.NoError(t, err)

	require.Len(t, ds.Lecturers, 2)
	assert.Equal(t, models.LecturerRolePartTime, ds.Lecturers[1].Role)
	assert.Equal(t, []string{"MON_SLOT_1"}, ds.Lecturers[1].Availability["MON"])
	require.Len(t, ds.Courses, 1)
	assert.Equal(t, 2, ds.Courses[0].SessionsRequired())
	assert.Equal(t, []string{"AIT101", "BCS110"}, ds.CanonicalFamilies["CS_INTRO"])
	require.Len(t, ds.Catalogue, 1)
	assert.Equal(t, "MON_SLOT_1", ds.Catalogue[0].Key())

	req := ds.Request(2)
	assert.Equal(t, 2, req.Term)
	assert.Len(t, req.Programs, 1)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConfigInvalid))
}

func TestLoadMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConfigInvalid))
}
