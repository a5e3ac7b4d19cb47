// Package loader reads a scheduling dataset from JSON so the CLI can feed
// the core without any storage backend.
package loader

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/isbat-dev/timetable-core/internal/models"
	"github.com/isbat-dev/timetable-core/internal/service"
	appErrors "github.com/isbat-dev/timetable-core/pkg/errors"
)

// Dataset is the on-disk input document.
type Dataset struct {
	Lecturers         []*models.Lecturer  `json:"lecturers"`
	Rooms             []*models.Room      `json:"rooms"`
	Courses           []*models.Course    `json:"courses"`
	Programs          []*models.Program   `json:"programs"`
	CanonicalFamilies map[string][]string `json:"canonical_families"`
	Catalogue         []models.TimeSlot   `json:"time_slot_catalogue"`
}

// Load parses the dataset file.
func Load(path string) (*Dataset, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConfigInvalid.Code,
			appErrors.ErrConfigInvalid.Severity, fmt.Sprintf("read dataset %s", path))
	}
	var ds Dataset
	if err := json.Unmarshal(content, &ds); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConfigInvalid.Code,
			appErrors.ErrConfigInvalid.Severity, fmt.Sprintf("parse dataset %s", path))
	}
	return &ds, nil
}

// Request shapes the dataset into a scheduler request for one term.
func (d *Dataset) Request(term int) service.Request {
	return service.Request{
		Term:              term,
		Lecturers:         d.Lecturers,
		Rooms:             d.Rooms,
		Courses:           d.Courses,
		Programs:          d.Programs,
		CanonicalFamilies: d.CanonicalFamilies,
		Catalogue:         d.Catalogue,
	}
}
