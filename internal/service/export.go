package service

import (
	"fmt"
	"strconv"

	"github.com/isbat-dev/timetable-core/pkg/export"
)

// timetableHeaders are the columns of the complete timetable export, one
// row per scheduled session per original program.
var timetableHeaders = []string{
	"Session_ID", "Day", "Time_Slot", "Start_Time", "End_Time",
	"Course_Code", "Course_Name", "Course_Type", "Credits",
	"Lecturer_ID", "Lecturer_Name", "Lecturer_Role",
	"Room_Number", "Room_Type", "Room_Capacity", "Room_Building", "Room_Campus",
	"Student_Group", "Semester", "Term", "Group_Size",
}

// TimetableDataset renders the run result as the complete timetable table.
func (s *SchedulerService) TimetableDataset(result *Result) export.Dataset {
	res := result.resources
	rows := make([]map[string]string, 0, len(result.Expanded))
	for _, e := range result.Expanded {
		row := map[string]string{
			"Session_ID":    fmt.Sprintf("%s_S%d", e.VariableID, e.SessionNumber),
			"Day":           string(e.Day),
			"Time_Slot":     e.Period,
			"Student_Group": e.OriginalProgramID,
			"Term":          strconv.Itoa(e.Term),
			"Group_Size":    strconv.Itoa(e.GroupSize),
			"Course_Code":   e.DisplayCourse,
		}
		if slot, ok := res.Catalogue.Lookup(e.SlotKey); ok {
			row["Start_Time"] = slot.Start
			row["End_Time"] = slot.End
		}
		if course, ok := res.Courses[e.CourseID]; ok {
			row["Course_Name"] = course.Name
			row["Course_Type"] = string(course.PreferredRoomKind)
			row["Credits"] = strconv.Itoa(course.Credits)
		}
		if lecturer, ok := res.Lecturers[e.LecturerID]; ok {
			row["Lecturer_ID"] = lecturer.ID
			row["Lecturer_Name"] = lecturer.Name
			row["Lecturer_Role"] = string(lecturer.Role)
		}
		if room, ok := res.Rooms[e.RoomID]; ok {
			row["Room_Number"] = room.Number
			row["Room_Type"] = string(room.Kind)
			row["Room_Capacity"] = strconv.Itoa(room.Capacity)
			row["Room_Building"] = room.Building
			row["Room_Campus"] = room.Campus
		}
		if p, ok := res.Set.Programs[e.OriginalProgramID]; ok {
			row["Semester"] = strconv.Itoa(p.Semester)
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: timetableHeaders, Rows: rows}
}

// TimetableFileName names the CSV artefact for a term.
func TimetableFileName(term int) string {
	return fmt.Sprintf("TIMETABLE_TERM%d_COMPLETE.csv", term)
}

// ViolationsFileName names the violations artefact for a term.
func ViolationsFileName(term int) string {
	return fmt.Sprintf("violations_term%d.json", term)
}
