package variables

// LinkPairs populates Set.Pairs: companion variables that must share a
// (day, period). Two variables are linked when their courses share a
// course_group and they carry the same session number, or when their courses
// share a canonical family and the same session number.
func (b *Builder) LinkPairs(set *Set) {
	type linkKey struct {
		group   string
		session int
	}
	byGroup := make(map[linkKey][]string)
	byFamily := make(map[linkKey][]string)

	for _, v := range set.Variables {
		course, ok := set.Courses[v.CourseID]
		if !ok {
			continue
		}
		if course.CourseGroup != "" {
			k := linkKey{group: course.CourseGroup, session: v.SessionNumber}
			byGroup[k] = append(byGroup[k], v.ID)
		}
		if id := b.registry.CourseCanonicalID(course); id != "" {
			k := linkKey{group: id, session: v.SessionNumber}
			byFamily[k] = append(byFamily[k], v.ID)
		}
	}

	link := func(ids []string) {
		if len(ids) < 2 {
			return
		}
		for _, id := range ids {
			for _, peer := range ids {
				if peer == id || contains(set.Pairs[id], peer) {
					continue
				}
				set.Pairs[id] = append(set.Pairs[id], peer)
			}
		}
	}
	for _, ids := range byGroup {
		link(ids)
	}
	for _, ids := range byFamily {
		link(ids)
	}
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
