package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLesson_Equal(t *testing.T) {
	t.Run("GroupID не участвует в сравнении", func(t *testing.T) {
		a := Lesson{Slot: 1, Subject: "Math", Cabinet: "204", GroupID: "A"}
		b := Lesson{Slot: 1, Subject: "Math", Cabinet: "204", GroupID: "B"}
		assert.True(t, a.Equal(b))
		assert.Equal(t, a.Hash(), b.Hash())
	})

	t.Run("кабинет участвует в сравнении", func(t *testing.T) {
		a := Lesson{Slot: 1, Subject: "Math", Cabinet: "204"}
		b := Lesson{Slot: 1, Subject: "Math", Cabinet: "205"}
		assert.False(t, a.Equal(b))
	})

	t.Run("номер пары участвует в сравнении", func(t *testing.T) {
		a := Lesson{Slot: 1, Subject: "Math"}
		b := Lesson{Slot: 2, Subject: "Math"}
		assert.False(t, a.Equal(b))
	})

	t.Run("разделитель не дает склеить поля", func(t *testing.T) {
		a := Lesson{Slot: 1, Subject: "ab", Cabinet: "c"}
		b := Lesson{Slot: 1, Subject: "a", Cabinet: "bc"}
		assert.False(t, a.Equal(b))
	})
}

func TestPlaceholder(t *testing.T) {
	p := Placeholder(3, "53")
	assert.True(t, p.IsPlaceholder())
	assert.Equal(t, 3, p.Slot)
	assert.Equal(t, "53", p.GroupID)
	assert.False(t, Lesson{Slot: 1, Subject: "Art"}.IsPlaceholder())
}

func TestTimetableSnapshot_WithDay(t *testing.T) {
	day := func(date string) DaySnapshot {
		return DaySnapshot{Date: date, Groups: map[string]GroupSchedule{}}
	}

	t.Run("пустой снимок", func(t *testing.T) {
		var s TimetableSnapshot
		assert.True(t, s.IsEmpty())
		_, ok := s.Latest()
		assert.False(t, ok)

		next := s.WithDay(day("01.09"), 1)
		require.Len(t, next.Days, 1)
		assert.True(t, s.IsEmpty(), "исходный снимок не должен меняться")
	})

	t.Run("день с той же датой заменяется", func(t *testing.T) {
		s := TimetableSnapshot{Days: []DaySnapshot{day("01.09")}}
		replacement := day("01.09")
		replacement.Groups["53"] = GroupSchedule{GroupID: "53"}

		next := s.WithDay(replacement, 3)
		require.Len(t, next.Days, 1)
		assert.Contains(t, next.Days[0].Groups, "53")
		assert.NotContains(t, s.Days[0].Groups, "53")
	})

	t.Run("старые дни отбрасываются", func(t *testing.T) {
		s := TimetableSnapshot{Days: []DaySnapshot{day("01.09"), day("02.09")}}
		next := s.WithDay(day("03.09"), 2)
		require.Len(t, next.Days, 2)
		assert.Equal(t, "02.09", next.Days[0].Date)
		latest, ok := next.Latest()
		require.True(t, ok)
		assert.Equal(t, "03.09", latest.Date)
	})
}

func TestChangeSet(t *testing.T) {
	cs := ChangeSet{ChangedGroupIDs: map[string]struct{}{"54": {}, "53": {}}}
	assert.True(t, cs.Has("53"))
	assert.False(t, cs.Has("55"))
	assert.Equal(t, []string{"53", "54"}, cs.IDs())
	assert.False(t, cs.IsEmpty())
	assert.True(t, ChangeSet{}.IsEmpty())
	assert.False(t, ChangeSet{IsFullReplace: true}.IsEmpty())
}

func TestSubscriberFilter_Match(t *testing.T) {
	enabled := Subscriber{UserID: 1, Groups: []string{"53"}, NotificationsEnabled: true}
	disabled := Subscriber{UserID: 2, Groups: []string{"53"}}

	tests := []struct {
		name   string
		filter SubscriberFilter
		sub    Subscriber
		want   bool
	}{
		{"пустой фильтр", SubscriberFilter{}, disabled, true},
		{"только включенные", SubscriberFilter{OnlyEnabled: true}, disabled, false},
		{"совпадение группы", SubscriberFilter{Groups: []string{"54", "53"}}, enabled, true},
		{"нет совпадения группы", SubscriberFilter{Groups: []string{"54"}}, enabled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(tt.sub))
		})
	}
}
