package antispam

import (
	"context"
	"sync"
	"time"

	"students-timetable/internal/metrics"
)

// DefaultBanDuration - время нахождения пользователя в спам-листе.
const DefaultBanDuration = 2 * time.Minute

// SpamList хранит пользователей, временно исключенных из общения с ботом и из рассылок.
type SpamList struct {
	entries map[int64]time.Time
	ttl     time.Duration
	now     func() time.Time
	mutex   sync.RWMutex
}

// NewSpamList создает спам-лист с заданным временем бана.
func NewSpamList(ttl time.Duration) *SpamList {
	if ttl <= 0 {
		ttl = DefaultBanDuration
	}
	return &SpamList{
		entries: make(map[int64]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Add помещает пользователя в спам-лист. Повторное добавление продлевает бан.
func (sl *SpamList) Add(userID int64) {
	sl.mutex.Lock()
	defer sl.mutex.Unlock()

	sl.entries[userID] = sl.now().Add(sl.ttl)
	metrics.GetMetrics().SpamListSize.Set(float64(len(sl.entries)))
}

// IsBlocked сообщает, что бан пользователя еще действует.
func (sl *SpamList) IsBlocked(userID int64) bool {
	sl.mutex.RLock()
	defer sl.mutex.RUnlock()

	expiresAt, exists := sl.entries[userID]
	return exists && sl.now().Before(expiresAt)
}

// Len возвращает количество записей, включая просроченные, но еще не очищенные.
func (sl *SpamList) Len() int {
	sl.mutex.RLock()
	defer sl.mutex.RUnlock()
	return len(sl.entries)
}

// TTL возвращает время бана.
func (sl *SpamList) TTL() time.Duration {
	return sl.ttl
}

// CleanupExpired удаляет истекшие баны.
func (sl *SpamList) CleanupExpired() {
	sl.mutex.Lock()
	defer sl.mutex.Unlock()

	now := sl.now()
	for userID, expiresAt := range sl.entries {
		if !now.Before(expiresAt) {
			delete(sl.entries, userID)
		}
	}
	metrics.GetMetrics().SpamListSize.Set(float64(len(sl.entries)))
}

// StartCleanupTicker запускает периодическую очистку до отмены контекста.
func (sl *SpamList) StartCleanupTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sl.CleanupExpired()
			}
		}
	}()
}
