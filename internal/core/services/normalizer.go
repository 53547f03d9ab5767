package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"students-timetable/internal/domain"
	"students-timetable/internal/metrics"
	"students-timetable/internal/ports"
)

// ErrNormalizationFailed - ни одну группу пакета не удалось разобрать.
var ErrNormalizationFailed = errors.New("normalization failed for every group")

// markupRegexp вырезает остатки HTML-разметки из текста ячеек.
var markupRegexp = regexp.MustCompile(`<[^>]+>|&nbsp;`)

// GroupError описывает сбой разбора одной группы.
type GroupError struct {
	GroupID string
	Err     error
}

func (e GroupError) Error() string {
	return fmt.Sprintf("group %s: %v", e.GroupID, e.Err)
}

func (e GroupError) Unwrap() error {
	return e.Err
}

// NormalizerOption - функциональная опция для Normalizer.
type NormalizerOption func(*Normalizer)

// WithAllowedGroups ограничивает разбор перечисленными группами. Пустой список - все группы.
func WithAllowedGroups(groups []string) NormalizerOption {
	return func(n *Normalizer) {
		if len(groups) == 0 {
			n.allowed = nil
			return
		}
		n.allowed = make(map[string]struct{}, len(groups))
		for _, g := range groups {
			n.allowed[g] = struct{}{}
		}
	}
}

// WithNormalizerLogger устанавливает логгер.
func WithNormalizerLogger(l *slog.Logger) NormalizerOption {
	return func(n *Normalizer) {
		if l != nil {
			n.log = l
		}
	}
}

// WithNormalizerAdmin устанавливает канал для сообщений об ошибках групп.
func WithNormalizerAdmin(a ports.AdminChannel) NormalizerOption {
	return func(n *Normalizer) {
		n.admin = a
	}
}

// Normalizer превращает сырые фрагменты в канонический DaySnapshot.
// Сбой одной группы не прерывает разбор остальных.
type Normalizer struct {
	allowed map[string]struct{}
	admin   ports.AdminChannel
	log     *slog.Logger
}

// NewNormalizer создает Normalizer с опциями.
func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{log: slog.Default()}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize разбирает пакет. Возвращает ErrNormalizationFailed, только если
// были группы для разбора и ни одна из них не разобралась.
func (n *Normalizer) Normalize(ctx context.Context, batch *domain.RawBatch) (domain.DaySnapshot, []GroupError, error) {
	day := domain.DaySnapshot{
		Date:   batch.Date,
		Groups: make(map[string]domain.GroupSchedule, len(batch.Fragments)),
	}

	var groupErrs []GroupError
	attempted := 0

	for _, fragment := range batch.Fragments {
		groupID := GroupIDFromLabel(fragment.GroupLabel)
		if groupID != "" && !n.isAllowed(groupID) {
			continue
		}
		attempted++

		var (
			schedule domain.GroupSchedule
			err      error
		)
		switch {
		case groupID == "":
			err = fmt.Errorf("cannot read group id from label %q", fragment.GroupLabel)
			groupID = fragment.GroupLabel
		case hasGroup(day, groupID):
			err = errors.New("duplicate group fragment")
		default:
			schedule, err = normalizeGroup(groupID, batch.Date, fragment)
		}

		if err != nil {
			ge := GroupError{GroupID: groupID, Err: err}
			groupErrs = append(groupErrs, ge)
			n.reportGroupError(ctx, ge)
			continue
		}
		day.Groups[groupID] = schedule
	}

	if attempted > 0 && len(day.Groups) == 0 {
		return day, groupErrs, ErrNormalizationFailed
	}
	return day, groupErrs, nil
}

func (n *Normalizer) isAllowed(groupID string) bool {
	if n.allowed == nil {
		return true
	}
	_, ok := n.allowed[groupID]
	return ok
}

func (n *Normalizer) reportGroupError(ctx context.Context, ge GroupError) {
	n.log.Error("failed to normalize group", slog.String("group", ge.GroupID), "error", ge.Err)
	metrics.GetMetrics().GroupErrorsTotal.Inc()
	if n.admin != nil {
		n.admin.Notify(ctx, fmt.Sprintf("Ошибка дневного расписания в группе: %s: %v", ge.GroupID, ge.Err))
	}
}

func hasGroup(day domain.DaySnapshot, groupID string) bool {
	_, ok := day.Groups[groupID]
	return ok
}

// normalizeGroup разбирает фрагмент одной группы. Паника превращается в ошибку.
func normalizeGroup(groupID, date string, fragment domain.RawGroupFragment) (schedule domain.GroupSchedule, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	lessons := make([]domain.Lesson, 0, len(fragment.LessonRows))
	for i, row := range fragment.LessonRows {
		slot, err := parseSlot(row.SlotLabel)
		if err != nil {
			return domain.GroupSchedule{}, fmt.Errorf("row %d: %w", i+1, err)
		}
		lessons = append(lessons, domain.Lesson{
			Slot:    slot,
			Subject: CleanText(row.SubjectText),
			Cabinet: CleanText(row.CabinetText),
			GroupID: groupID,
		})
	}

	return domain.GroupSchedule{
		GroupID: groupID,
		Date:    date,
		Lessons: NormalizeLessons(groupID, lessons),
	}, nil
}

// NormalizeLessons приводит список пар к каноническому виду: сортировка,
// слияние одинаковых номеров, обрезка пустых пар по краям, заполнение пропусков с первой пары.
func NormalizeLessons(groupID string, lessons []domain.Lesson) []domain.Lesson {
	sorted := make([]domain.Lesson, len(lessons))
	copy(sorted, lessons)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Slot < sorted[j].Slot })

	merged := mergeSameSlot(sorted)

	// хвост обрезается на развернутом списке, затем порядок восстанавливается
	reverse(merged)
	merged = trimLeadingPlaceholders(merged)
	reverse(merged)
	merged = trimLeadingPlaceholders(merged)

	if len(merged) == 0 {
		return []domain.Lesson{}
	}

	filled := make([]domain.Lesson, 0, merged[len(merged)-1].Slot)
	next := 1
	for _, l := range merged {
		for ; next < l.Slot; next++ {
			filled = append(filled, domain.Placeholder(next, groupID))
		}
		filled = append(filled, l)
		next = l.Slot + 1
	}

	sort.SliceStable(filled, func(i, j int) bool { return filled[i].Slot < filled[j].Slot })
	return filled
}

func mergeSameSlot(sorted []domain.Lesson) []domain.Lesson {
	out := make([]domain.Lesson, 0, len(sorted))
	for _, l := range sorted {
		last := len(out) - 1
		if last < 0 || out[last].Slot != l.Slot {
			out = append(out, l)
			continue
		}
		prev := out[last]
		out[last] = domain.Lesson{
			Slot:    prev.Slot,
			Subject: joinNonEmpty(prev.Subject, l.Subject),
			Cabinet: joinNonEmpty(prev.Cabinet, l.Cabinet),
			GroupID: prev.GroupID,
		}
	}
	return out
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "" || a == b:
		return a
	default:
		return a + " / " + b
	}
}

func trimLeadingPlaceholders(lessons []domain.Lesson) []domain.Lesson {
	i := 0
	for i < len(lessons) && lessons[i].IsPlaceholder() {
		i++
	}
	return lessons[i:]
}

func reverse(lessons []domain.Lesson) {
	for i, j := 0, len(lessons)-1; i < j; i, j = i+1, j-1 {
		lessons[i], lessons[j] = lessons[j], lessons[i]
	}
}

func parseSlot(label string) (int, error) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(CleanText(label), "№", ""))
	slot, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0, fmt.Errorf("invalid lesson number %q: %w", label, err)
	}
	if slot <= 0 {
		return 0, fmt.Errorf("lesson number must be positive, got %d", slot)
	}
	return slot, nil
}

// GroupIDFromLabel берет номер группы из подписи вида "53 - ПОИТ".
func GroupIDFromLabel(label string) string {
	head, _, _ := strings.Cut(CleanText(label), "-")
	return strings.TrimSpace(head)
}

// CleanText убирает разметку и лишние пробелы.
func CleanText(s string) string {
	return strings.Join(strings.Fields(markupRegexp.ReplaceAllString(s, " ")), " ")
}
