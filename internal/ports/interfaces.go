package ports

import (
	"context"
	"io"

	"students-timetable/internal/domain"
)

// DataSource определяет интерфейс для получения сырых байтов страницы.
type DataSource interface {
	// Fetch загружает данные источника и возвращает их в виде байтового среза.
	Fetch(ctx context.Context, source domain.Source) ([]byte, error)
}

// Parser определяет интерфейс для разбора сырых байтов в пакет фрагментов.
type Parser interface {
	Parse(data []byte) (*domain.RawBatch, error)
}

// ExtractionAdapter отдает сырые фрагменты групп и отпечаток страницы.
// Должен выдерживать повторные вызовы.
type ExtractionAdapter interface {
	FetchRaw(ctx context.Context, source domain.Source) (*domain.RawBatch, error)
}

// SubscriberDirectory - источник подписчиков только для чтения.
type SubscriberDirectory interface {
	ListSubscribers(ctx context.Context, filter domain.SubscriberFilter) ([]domain.Subscriber, error)
}

// SubscriberStore расширяет справочник операциями записи, которые использует бот.
type SubscriberStore interface {
	SubscriberDirectory
	Get(ctx context.Context, userID int64) (domain.Subscriber, error)
	Upsert(ctx context.Context, sub domain.Subscriber) error
	SetGroups(ctx context.Context, userID int64, groups []string) error
	SetNotifications(ctx context.Context, userID int64, enabled bool) error
}

// Transport доставляет одно сообщение одному пользователю.
type Transport interface {
	Send(ctx context.Context, userID int64, text string) error
}

// AdminChannel принимает служебные сообщения. Ошибки доставки поглощаются.
type AdminChannel interface {
	Notify(ctx context.Context, text string)
}

// AbuseFilter сообщает, находится ли пользователь в спам-листе.
type AbuseFilter interface {
	IsBlocked(userID int64) bool
}

// Renderer превращает расписание в текст сообщения.
type Renderer interface {
	RenderGroupDay(date string, group domain.GroupSchedule) string
	RenderWeekAnnouncement(interval string) string
}

// SnapshotReader - путь чтения текущего снимка.
type SnapshotReader interface {
	Read() domain.TimetableSnapshot
	Version() uint64
	Group(groupID string) (domain.GroupSchedule, bool)
}

// Exporter выгружает снимок расписания в writer.
type Exporter interface {
	Export(w io.Writer, snapshot domain.TimetableSnapshot) error
}
