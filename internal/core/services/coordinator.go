package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"students-timetable/internal/domain"
	"students-timetable/internal/metrics"
	"students-timetable/internal/ports"
	"students-timetable/internal/snapshot"
)

var (
	// ErrRefreshInProgress - запрос отброшен, так как цикл уже выполняется.
	ErrRefreshInProgress = errors.New("refresh already in progress")
	// ErrExtractionFailed - источник не отдал данные дневного расписания.
	ErrExtractionFailed = errors.New("extraction failed")
)

// State - состояние координатора.
type State int32

const (
	StateIdle State = iota
	StateExtracting
	StateNormalizing
	StateDiffing
	StateCommitting
	StateNotifying
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateExtracting:
		return "extracting"
	case StateNormalizing:
		return "normalizing"
	case StateDiffing:
		return "diffing"
	case StateCommitting:
		return "committing"
	case StateNotifying:
		return "notifying"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Outcome - итог цикла.
type Outcome string

const (
	OutcomeCommitted Outcome = "committed"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeEmpty     Outcome = "empty"
	OutcomeAborted   Outcome = "aborted"
	OutcomeDropped   Outcome = "dropped"
)

// CycleReport описывает один завершенный цикл.
type CycleReport struct {
	ID            string         `json:"id"`
	Outcome       Outcome        `json:"outcome"`
	Date          string         `json:"date,omitempty"`
	ChangedGroups []string       `json:"changed_groups,omitempty"`
	FullReplace   bool           `json:"full_replace"`
	WeekChanged   bool           `json:"week_changed"`
	Version       uint64         `json:"version"`
	Delivery      DeliveryReport `json:"delivery"`
	GroupErrors   []string       `json:"group_errors,omitempty"`
	Error         string         `json:"error,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
}

// Notifier - часть Dispatcher, которую использует координатор.
type Notifier interface {
	Notify(ctx context.Context, changes domain.ChangeSet, snapshot domain.TimetableSnapshot) (DeliveryReport, error)
	Broadcast(ctx context.Context, text string) (DeliveryReport, error)
}

// CoordinatorOption - функциональная опция для Coordinator.
type CoordinatorOption func(*Coordinator)

// WithInterval задает период таймера.
func WithInterval(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithRunOnStart запускает первый цикл сразу при старте Run.
func WithRunOnStart(v bool) CoordinatorOption {
	return func(c *Coordinator) {
		c.runOnStart = v
	}
}

// WithRetainDays задает число хранимых дней.
func WithRetainDays(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.retainDays = n
		}
	}
}

// WithWeekSource включает обработку недельного расписания.
func WithWeekSource(v bool) CoordinatorOption {
	return func(c *Coordinator) {
		c.weekEnabled = v
	}
}

// WithCoordinatorAdmin задает служебный канал.
func WithCoordinatorAdmin(a ports.AdminChannel) CoordinatorOption {
	return func(c *Coordinator) {
		c.admin = a
	}
}

// WithCoordinatorLogger устанавливает логгер.
func WithCoordinatorLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// WithReportHook вызывается после каждого завершенного цикла.
func WithReportHook(fn func(CycleReport)) CoordinatorOption {
	return func(c *Coordinator) {
		c.onReport = fn
	}
}

// Coordinator - конечный автомат цикла обновления. Одновременно выполняется не более
// одного цикла, лишние запуски отбрасываются без очереди.
type Coordinator struct {
	source     ports.ExtractionAdapter
	normalizer *Normalizer
	store      *snapshot.Store
	notifier   Notifier
	renderer   ports.Renderer
	admin      ports.AdminChannel

	state      atomic.Int32
	lastReport atomic.Pointer[CycleReport]

	interval    time.Duration
	runOnStart  bool
	retainDays  int
	weekEnabled bool
	onReport    func(CycleReport)
	log         *slog.Logger
}

// NewCoordinator создает координатор.
func NewCoordinator(source ports.ExtractionAdapter, normalizer *Normalizer, store *snapshot.Store, notifier Notifier, renderer ports.Renderer, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		source:     source,
		normalizer: normalizer,
		store:      store,
		notifier:   notifier,
		renderer:   renderer,
		interval:   1000 * time.Second,
		retainDays: 1,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State возвращает текущее состояние.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// LastReport возвращает отчет последнего завершенного цикла.
func (c *Coordinator) LastReport() (CycleReport, bool) {
	r := c.lastReport.Load()
	if r == nil {
		return CycleReport{}, false
	}
	return *r, true
}

// Cycle - захваченный цикл. Run должен быть вызван ровно один раз.
type Cycle struct {
	ID   string
	c    *Coordinator
	once sync.Once
}

// Begin атомарно переводит координатор из Idle в Extracting.
// Возвращает false, если цикл уже выполняется.
func (c *Coordinator) Begin() (*Cycle, bool) {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateExtracting)) {
		metrics.GetMetrics().CyclesTotal.WithLabelValues(string(OutcomeDropped)).Inc()
		return nil, false
	}
	return &Cycle{ID: uuid.NewString(), c: c}, true
}

// Run выполняет захваченный цикл и всегда возвращает координатор в Idle.
func (cy *Cycle) Run(ctx context.Context) CycleReport {
	var report CycleReport
	ran := false
	cy.once.Do(func() {
		ran = true
		report = cy.c.runCycle(ctx, cy.ID)
	})
	if !ran {
		return CycleReport{ID: cy.ID, Outcome: OutcomeDropped, Error: "cycle already executed"}
	}
	return report
}

// TriggerRefresh выполняет цикл синхронно. Если цикл уже идет, возвращает ErrRefreshInProgress.
func (c *Coordinator) TriggerRefresh(ctx context.Context) (CycleReport, error) {
	cycle, ok := c.Begin()
	if !ok {
		c.log.Debug("refresh dropped, another cycle is running", slog.String("state", c.State().String()))
		return CycleReport{Outcome: OutcomeDropped}, ErrRefreshInProgress
	}
	return cycle.Run(ctx), nil
}

// Run запускает таймер. Каждый тик стартует цикл в отдельной горутине, поэтому
// зависший цикл не мешает таймеру; тики во время цикла отбрасываются.
func (c *Coordinator) Run(ctx context.Context) {
	var wg conc.WaitGroup
	defer wg.Wait()

	tick := func() {
		wg.Go(func() {
			if _, err := c.TriggerRefresh(ctx); err != nil {
				c.log.Info("scheduled refresh skipped", "error", err)
			}
		})
	}

	if c.runOnStart {
		tick()
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.log.Info("refresh timer started", slog.Duration("interval", c.interval))
	for {
		select {
		case <-ctx.Done():
			c.log.Info("refresh timer stopped")
			return
		case <-ticker.C:
			tick()
		}
	}
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
}

// runCycle проходит стадии Extracting -> Normalizing -> Diffing -> Committing -> Notifying.
func (c *Coordinator) runCycle(ctx context.Context, id string) (report CycleReport) {
	logger := c.log.With(slog.String("cycle_id", id))
	report = CycleReport{ID: id, StartedAt: time.Now()}

	defer func() {
		if r := recover(); r != nil {
			c.setState(StateAborted)
			report.Outcome = OutcomeAborted
			report.Error = fmt.Sprintf("panic: %v", r)
			logger.Error("refresh cycle panicked", "panic", r)
		}
		report.FinishedAt = time.Now()
		c.finish(report)
		c.setState(StateIdle)
	}()

	// Extracting
	c.setState(StateExtracting)
	week := c.fetchWeek(ctx, logger)

	day, err := c.source.FetchRaw(ctx, domain.SourceDay)
	if err != nil {
		return c.abort(ctx, logger, report, fmt.Errorf("%w: %v", ErrExtractionFailed, err))
	}

	dayChanged := day.Fingerprint == "" || day.Fingerprint != c.store.Fingerprint(domain.SourceDay)
	if !dayChanged && week == nil {
		logger.Debug("source fingerprint unchanged, cycle short-circuited")
		report.Outcome = OutcomeUnchanged
		return report
	}

	next := c.store.State()
	var (
		changes         domain.ChangeSet
		snapshotChanged bool
	)

	if dayChanged && len(day.Fragments) == 0 {
		logger.Info("day source has no groups, nothing to normalize")
		dayChanged = false
		report.Outcome = OutcomeEmpty
	}

	var (
		candidate domain.DaySnapshot
		previous  domain.TimetableSnapshot
	)
	if dayChanged {
		// Normalizing
		c.setState(StateNormalizing)
		var groupErrs []GroupError
		candidate, groupErrs, err = c.normalizer.Normalize(ctx, day)
		for _, ge := range groupErrs {
			report.GroupErrors = append(report.GroupErrors, ge.Error())
		}
		if err != nil {
			return c.abort(ctx, logger, report, err)
		}
		report.Date = candidate.Date

		previous = c.store.Read()
		carryForward(&candidate, previous, groupErrs)
		if len(candidate.Groups) == 0 {
			logger.Info("no groups left after normalization, snapshot kept")
			dayChanged = false
			report.Outcome = OutcomeEmpty
		}
	}

	if dayChanged {
		// Diffing
		c.setState(StateDiffing)
		changes = Diff(candidate, previous)
		report.FullReplace = changes.IsFullReplace
		report.ChangedGroups = changes.IDs()

		if changes.IsFullReplace {
			next.Snapshot = domain.TimetableSnapshot{Days: []domain.DaySnapshot{candidate}}
		} else {
			next.Snapshot = previous.WithDay(candidate, c.retainDays)
		}
		next.Fingerprints[domain.SourceDay] = day.Fingerprint
		snapshotChanged = true
	}

	if week != nil {
		next.Fingerprints[domain.SourceWeek] = week.Fingerprint
		if week.Interval != "" {
			report.WeekChanged = next.WeekInterval != "" && next.WeekInterval != week.Interval
			next.WeekInterval = week.Interval
		}
	}

	if !snapshotChanged && week == nil {
		return report
	}

	// Committing
	c.setState(StateCommitting)
	report.Version = c.store.Commit(next)
	if report.Outcome == "" {
		report.Outcome = OutcomeUnchanged
		if snapshotChanged && !changes.IsEmpty() {
			report.Outcome = OutcomeCommitted
		}
	}
	logger.Info("snapshot committed",
		slog.Uint64("version", report.Version),
		slog.Bool("full_replace", changes.IsFullReplace),
		slog.Any("changed_groups", report.ChangedGroups),
	)

	// Notifying. Ошибки этой стадии не откатывают коммит.
	c.setState(StateNotifying)
	if snapshotChanged && !changes.IsEmpty() {
		c.reportChanges(ctx, changes)
		delivery, err := c.notifier.Notify(ctx, changes, c.store.Read())
		if err != nil {
			logger.Error("notification stage failed", "error", err)
			report.Error = err.Error()
		}
		report.Delivery = delivery
	}
	if report.WeekChanged {
		delivery, err := c.notifier.Broadcast(ctx, c.renderer.RenderWeekAnnouncement(next.WeekInterval))
		if err != nil {
			logger.Error("week announcement failed", "error", err)
		} else {
			logger.Info("week announcement sent", slog.Int("delivered", delivery.Delivered))
		}
	}

	return report
}

// fetchWeek возвращает пакет недельного расписания, только если его отпечаток изменился.
// Ошибки недельного источника не прерывают цикл.
func (c *Coordinator) fetchWeek(ctx context.Context, logger *slog.Logger) *domain.RawBatch {
	if !c.weekEnabled {
		return nil
	}
	week, err := c.source.FetchRaw(ctx, domain.SourceWeek)
	if err != nil {
		logger.Warn("failed to fetch week source", "error", err)
		c.notifyAdmin(ctx, fmt.Sprintf("Ошибка получения недельного расписания: %v", err))
		return nil
	}
	if week.Fingerprint != "" && week.Fingerprint == c.store.Fingerprint(domain.SourceWeek) {
		return nil
	}
	return week
}

func (c *Coordinator) reportChanges(ctx context.Context, changes domain.ChangeSet) {
	if changes.IsFullReplace {
		c.notifyAdmin(ctx, fmt.Sprintf("Timetable loaded: %d groups", len(changes.ChangedGroupIDs)))
		return
	}
	c.notifyAdmin(ctx, "There's been a schedule change with the groups: "+strings.Join(changes.IDs(), ", "))
}

func (c *Coordinator) abort(ctx context.Context, logger *slog.Logger, report CycleReport, err error) CycleReport {
	c.setState(StateAborted)
	logger.Error("refresh cycle aborted", "error", err)
	report.Outcome = OutcomeAborted
	report.Error = err.Error()
	if errors.Is(err, ErrExtractionFailed) {
		c.notifyAdmin(ctx, fmt.Sprintf("Ошибка получения расписания: %v", err))
	} else {
		c.notifyAdmin(ctx, fmt.Sprintf("Цикл обновления прерван: %v", err))
	}
	return report
}

func (c *Coordinator) finish(report CycleReport) {
	m := metrics.GetMetrics()
	m.CyclesTotal.WithLabelValues(string(report.Outcome)).Inc()
	m.CycleDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())

	c.lastReport.Store(&report)
	if c.onReport != nil {
		c.runReportHook(report)
	}
}

// carryForward возвращает в кандидата прошлое расписание групп, которые не
// удалось разобрать в этом цикле. Иначе сбой одной группы стирает ее из
// снимка, а после восстановления подписчики получают повторное уведомление.
func carryForward(candidate *domain.DaySnapshot, previous domain.TimetableSnapshot, groupErrs []GroupError) {
	if len(groupErrs) == 0 {
		return
	}
	latest, ok := previous.Latest()
	if !ok || latest.Date != candidate.Date {
		return
	}
	if candidate.Groups == nil {
		candidate.Groups = make(map[string]domain.GroupSchedule)
	}
	for _, ge := range groupErrs {
		if _, parsed := candidate.Groups[ge.GroupID]; parsed {
			continue
		}
		if prev, ok := latest.Groups[ge.GroupID]; ok {
			candidate.Groups[ge.GroupID] = prev
		}
	}
}

// runReportHook изолирует панику хука, иначе координатор не вернется в Idle.
func (c *Coordinator) runReportHook(report CycleReport) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("report hook panicked", slog.String("cycle_id", report.ID), "panic", r)
		}
	}()
	c.onReport(report)
}

func (c *Coordinator) notifyAdmin(ctx context.Context, text string) {
	if c.admin != nil {
		c.admin.Notify(ctx, text)
	}
}
