package services

import "students-timetable/internal/domain"

// Diff сравнивает новый день с последним днем сохраненного снимка.
// Чистая функция без побочных эффектов.
//
// Пустой previous (первый запуск) или день без групп в previous дают полную замену.
// Группы, пропавшие из candidate, не отмечаются.
func Diff(candidate domain.DaySnapshot, previous domain.TimetableSnapshot) domain.ChangeSet {
	last, ok := previous.Latest()
	if !ok || last.Groups == nil {
		return fullReplace(candidate)
	}

	changed := make(map[string]struct{})
	for _, groupID := range candidate.GroupIDs() {
		if groupChanged(candidate.Groups[groupID], last.Groups, groupID) {
			changed[groupID] = struct{}{}
		}
	}

	return domain.ChangeSet{ChangedGroupIDs: changed}
}

func fullReplace(candidate domain.DaySnapshot) domain.ChangeSet {
	all := make(map[string]struct{}, len(candidate.Groups))
	for groupID := range candidate.Groups {
		all[groupID] = struct{}{}
	}
	return domain.ChangeSet{ChangedGroupIDs: all, IsFullReplace: true}
}

func groupChanged(next domain.GroupSchedule, previous map[string]domain.GroupSchedule, groupID string) bool {
	prev, ok := previous[groupID]
	if !ok || len(prev.Lessons) != len(next.Lessons) {
		return true
	}
	for i := range next.Lessons {
		if !next.Lessons[i].Equal(prev.Lessons[i]) {
			return true
		}
	}
	return false
}
