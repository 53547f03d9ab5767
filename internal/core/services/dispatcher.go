package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"students-timetable/internal/domain"
	"students-timetable/internal/metrics"
	"students-timetable/internal/ports"
)

// DeliveryReport - итог одной рассылки.
type DeliveryReport struct {
	Selected  int `json:"selected"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Excluded  int `json:"excluded"`
	Messages  int `json:"messages"`
}

// DispatcherOption - функциональная опция для Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithWorkers задает число одновременных отправок.
func WithWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithSendLimiter задает общий лимит скорости отправки.
func WithSendLimiter(l *rate.Limiter) DispatcherOption {
	return func(d *Dispatcher) {
		d.limiter = l
	}
}

// WithAbuseFilter исключает из рассылки пользователей из спам-листа.
func WithAbuseFilter(f ports.AbuseFilter) DispatcherOption {
	return func(d *Dispatcher) {
		d.abuse = f
	}
}

// WithDispatcherAdmin задает канал для итогового отчета.
func WithDispatcherAdmin(a ports.AdminChannel) DispatcherOption {
	return func(d *Dispatcher) {
		d.admin = a
	}
}

// WithDispatcherLogger устанавливает логгер.
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// Dispatcher рассылает изменения подписчикам. Доставка best-effort:
// не более одной попытки на сообщение, без очереди повторов.
type Dispatcher struct {
	directory ports.SubscriberDirectory
	transport ports.Transport
	renderer  ports.Renderer
	abuse     ports.AbuseFilter
	admin     ports.AdminChannel
	limiter   *rate.Limiter
	workers   int
	log       *slog.Logger
}

// NewDispatcher создает Dispatcher.
func NewDispatcher(directory ports.SubscriberDirectory, transport ports.Transport, renderer ports.Renderer, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		directory: directory,
		transport: transport,
		renderer:  renderer,
		workers:   4,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// delivery - подписчик и тексты, которые он должен получить.
type delivery struct {
	userID   int64
	messages []string
}

// Notify отправляет каждому затронутому подписчику по сообщению на каждую его измененную группу.
// Возвращает ошибку, только если не удалось получить список подписчиков.
func (d *Dispatcher) Notify(ctx context.Context, changes domain.ChangeSet, snapshot domain.TimetableSnapshot) (DeliveryReport, error) {
	day, ok := snapshot.Latest()
	if !ok || changes.IsEmpty() {
		return DeliveryReport{}, nil
	}

	filter := domain.SubscriberFilter{OnlyEnabled: true}
	if !changes.IsFullReplace {
		filter.Groups = changes.IDs()
	}
	subscribers, err := d.directory.ListSubscribers(ctx, filter)
	if err != nil {
		return DeliveryReport{}, fmt.Errorf("failed to list subscribers: %w", err)
	}

	var report DeliveryReport
	deliveries := make([]delivery, 0, len(subscribers))
	for _, sub := range subscribers {
		if !sub.NotificationsEnabled || len(sub.Groups) == 0 {
			continue
		}
		if d.abuse != nil && d.abuse.IsBlocked(sub.UserID) {
			report.Excluded++
			continue
		}

		var messages []string
		for _, groupID := range sub.Groups {
			group, exists := day.Groups[groupID]
			if !exists || (!changes.IsFullReplace && !changes.Has(groupID)) {
				continue
			}
			messages = append(messages, d.renderer.RenderGroupDay(day.Date, group))
		}
		if len(messages) > 0 {
			deliveries = append(deliveries, delivery{userID: sub.UserID, messages: messages})
		}
	}

	report = d.fanOut(ctx, deliveries, report)

	if d.admin != nil {
		d.admin.Notify(ctx, fmt.Sprintf("%s:%d notifications sent", day.Date, report.Delivered))
	}
	return report, nil
}

// Broadcast отправляет один текст всем подписчикам с включенными уведомлениями и выбранной группой.
func (d *Dispatcher) Broadcast(ctx context.Context, text string) (DeliveryReport, error) {
	subscribers, err := d.directory.ListSubscribers(ctx, domain.SubscriberFilter{OnlyEnabled: true})
	if err != nil {
		return DeliveryReport{}, fmt.Errorf("failed to list subscribers: %w", err)
	}

	var report DeliveryReport
	deliveries := make([]delivery, 0, len(subscribers))
	for _, sub := range subscribers {
		if !sub.NotificationsEnabled || len(sub.Groups) == 0 {
			continue
		}
		if d.abuse != nil && d.abuse.IsBlocked(sub.UserID) {
			report.Excluded++
			continue
		}
		deliveries = append(deliveries, delivery{userID: sub.UserID, messages: []string{text}})
	}

	return d.fanOut(ctx, deliveries, report), nil
}

// fanOut отправляет сообщения ограниченным пулом и ждет завершения всех отправок.
// Подписчик считается доставленным, только если ушли все его сообщения.
func (d *Dispatcher) fanOut(ctx context.Context, deliveries []delivery, report DeliveryReport) DeliveryReport {
	report.Selected = len(deliveries)
	if len(deliveries) == 0 {
		return report
	}

	var delivered, failed, sent atomic.Int64
	m := metrics.GetMetrics()

	p := pool.New().WithMaxGoroutines(d.workers)
	for _, dl := range deliveries {
		p.Go(func() {
			logger := d.log.With(slog.Int64("user_id", dl.userID))
			ok := true
			for _, text := range dl.messages {
				if err := d.send(ctx, dl.userID, text); err != nil {
					ok = false
					m.NotificationsTotal.WithLabelValues("failed").Inc()
					logger.Warn("failed to send notification", "error", err)
					continue
				}
				sent.Add(1)
				m.NotificationsTotal.WithLabelValues("sent").Inc()
			}
			if ok {
				delivered.Add(1)
			} else {
				failed.Add(1)
			}
		})
	}
	p.Wait()

	report.Delivered = int(delivered.Load())
	report.Failed = int(failed.Load())
	report.Messages = int(sent.Load())
	return report
}

func (d *Dispatcher) send(ctx context.Context, userID int64, text string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("send throttle: %w", err)
		}
	}
	return d.transport.Send(ctx, userID, text)
}
