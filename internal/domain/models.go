package domain

import (
	"crypto/sha256"
	"fmt"
	"sort"
)

// Source определяет страницу, с которой берутся сырые данные.
type Source string

const (
	SourceDay  Source = "day"
	SourceWeek Source = "week"
)

// RawLessonRow представляет одну строку таблицы группы в том виде, в котором её отдал источник.
type RawLessonRow struct {
	SlotLabel   string `json:"slot"`
	SubjectText string `json:"subject"`
	CabinetText string `json:"cabinet"`
}

// RawGroupFragment представляет сырой фрагмент расписания одной группы.
type RawGroupFragment struct {
	GroupLabel string         `json:"label"`
	LessonRows []RawLessonRow `json:"rows"`
}

// RawBatch представляет результат одного обращения к источнику.
type RawBatch struct {
	Source      Source             `json:"-"`
	Date        string             `json:"date"`
	Interval    string             `json:"interval,omitempty"`
	Fragments   []RawGroupFragment `json:"groups"`
	Fingerprint string             `json:"-"`
}

// Lesson - одна пара. Значение неизменяемо после создания.
// GroupID является контекстом и не участвует в сравнении.
type Lesson struct {
	Slot    int    `json:"slot"`
	Subject string `json:"subject"`
	Cabinet string `json:"cabinet"`
	GroupID string `json:"group_id"`
}

// Placeholder создает пустую пару для заполнения пропуска в нумерации.
func Placeholder(slot int, groupID string) Lesson {
	return Lesson{Slot: slot, GroupID: groupID}
}

// IsPlaceholder сообщает, что у пары нет предмета.
func (l Lesson) IsPlaceholder() bool {
	return l.Subject == ""
}

// Hash возвращает структурный хеш пары по (номер, предмет, кабинет).
func (l Lesson) Hash() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d\x00%s\x00%s", l.Slot, l.Subject, l.Cabinet)))
	return fmt.Sprintf("%x", sum)
}

// Equal сравнивает пары структурно, без учета GroupID.
func (l Lesson) Equal(other Lesson) bool {
	return l.Hash() == other.Hash()
}

// GroupSchedule - нормализованное расписание группы на день.
// Lessons отсортированы по Slot, без дубликатов и без пустых пар по краям.
type GroupSchedule struct {
	GroupID string   `json:"group_id"`
	Date    string   `json:"date"`
	Lessons []Lesson `json:"lessons"`
}

// DaySnapshot - данные одного цикла обновления.
type DaySnapshot struct {
	Date   string                   `json:"date"`
	Groups map[string]GroupSchedule `json:"groups"`
}

// GroupIDs возвращает отсортированный список групп дня.
func (d DaySnapshot) GroupIDs() []string {
	ids := make([]string, 0, len(d.Groups))
	for id := range d.Groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TimetableSnapshot - упорядоченная последовательность дней, от старого к новому.
type TimetableSnapshot struct {
	Days []DaySnapshot `json:"days"`
}

// IsEmpty сообщает, что в снимке нет ни одного дня.
func (s TimetableSnapshot) IsEmpty() bool {
	return len(s.Days) == 0
}

// Latest возвращает самый свежий день.
func (s TimetableSnapshot) Latest() (DaySnapshot, bool) {
	if len(s.Days) == 0 {
		return DaySnapshot{}, false
	}
	return s.Days[len(s.Days)-1], true
}

// WithDay возвращает новый снимок с добавленным днем. День с той же датой заменяется,
// старые дни сверх retain отбрасываются. Исходный снимок не изменяется.
func (s TimetableSnapshot) WithDay(day DaySnapshot, retain int) TimetableSnapshot {
	if retain <= 0 {
		retain = 1
	}
	days := make([]DaySnapshot, 0, len(s.Days)+1)
	days = append(days, s.Days...)
	if n := len(days); n > 0 && days[n-1].Date == day.Date {
		days[n-1] = day
	} else {
		days = append(days, day)
	}
	if len(days) > retain {
		days = days[len(days)-retain:]
	}
	return TimetableSnapshot{Days: days}
}

// ChangeSet - результат сравнения снимков. Живет один цикл.
type ChangeSet struct {
	ChangedGroupIDs map[string]struct{}
	IsFullReplace   bool
}

// Has сообщает, изменилась ли группа.
func (c ChangeSet) Has(groupID string) bool {
	_, ok := c.ChangedGroupIDs[groupID]
	return ok
}

// IsEmpty сообщает, что изменений нет.
func (c ChangeSet) IsEmpty() bool {
	return !c.IsFullReplace && len(c.ChangedGroupIDs) == 0
}

// IDs возвращает отсортированный список измененных групп.
func (c ChangeSet) IDs() []string {
	ids := make([]string, 0, len(c.ChangedGroupIDs))
	for id := range c.ChangedGroupIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Subscriber - пользователь бота. Ядро только читает эти данные.
type Subscriber struct {
	UserID               int64    `json:"user_id"`
	Username             string   `json:"username,omitempty"`
	FirstName            string   `json:"first_name,omitempty"`
	LastName             string   `json:"last_name,omitempty"`
	Groups               []string `json:"groups"`
	NotificationsEnabled bool     `json:"notifications"`
}

// HasGroup сообщает, подписан ли пользователь на группу.
func (s Subscriber) HasGroup(groupID string) bool {
	for _, g := range s.Groups {
		if g == groupID {
			return true
		}
	}
	return false
}

// SubscriberFilter ограничивает выборку подписчиков.
type SubscriberFilter struct {
	OnlyEnabled bool
	// Groups - если не пусто, выбираются только пользователи хотя бы с одной из групп.
	Groups []string
}

// Match проверяет подписчика по фильтру.
func (f SubscriberFilter) Match(s Subscriber) bool {
	if f.OnlyEnabled && !s.NotificationsEnabled {
		return false
	}
	if len(f.Groups) == 0 {
		return true
	}
	for _, g := range f.Groups {
		if s.HasGroup(g) {
			return true
		}
	}
	return false
}
