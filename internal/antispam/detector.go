package antispam

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Detector считает обновления от каждого пользователя и отправляет в спам-лист
// тех, кто превысил лимит maxUpdates за window.
type Detector struct {
	list       *SpamList
	limit      rate.Limit
	burst      int
	limiters   map[int64]*rate.Limiter
	lastSeen   map[int64]time.Time
	idleExpiry time.Duration
	mutex      sync.Mutex
}

// NewDetector создает детектор поверх спам-листа.
func NewDetector(list *SpamList, maxUpdates int, window time.Duration) *Detector {
	if maxUpdates <= 0 {
		maxUpdates = 5
	}
	if window <= 0 {
		window = 10 * time.Second
	}
	return &Detector{
		list:       list,
		limit:      rate.Every(window / time.Duration(maxUpdates)),
		burst:      maxUpdates,
		limiters:   make(map[int64]*rate.Limiter),
		lastSeen:   make(map[int64]time.Time),
		idleExpiry: window * 2,
	}
}

// Observe регистрирует обновление пользователя. Возвращает true, если пользователь
// только что попал в спам-лист.
func (d *Detector) Observe(userID int64) bool {
	if d.list.IsBlocked(userID) {
		return false
	}

	d.mutex.Lock()
	limiter, ok := d.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(d.limit, d.burst)
		d.limiters[userID] = limiter
	}
	d.lastSeen[userID] = time.Now()
	allowed := limiter.Allow()
	if !allowed {
		// после бана счет начинается заново
		delete(d.limiters, userID)
		delete(d.lastSeen, userID)
	}
	d.mutex.Unlock()

	if allowed {
		return false
	}
	d.list.Add(userID)
	return true
}

// IsBlocked делегирует проверку спам-листу.
func (d *Detector) IsBlocked(userID int64) bool {
	return d.list.IsBlocked(userID)
}

// BanDuration возвращает срок бана спам-листа.
func (d *Detector) BanDuration() time.Duration {
	return d.list.TTL()
}

// Forget удаляет лимитеры пользователей, которые давно не писали.
func (d *Detector) Forget() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	cutoff := time.Now().Add(-d.idleExpiry)
	for userID, seen := range d.lastSeen {
		if seen.Before(cutoff) {
			delete(d.limiters, userID)
			delete(d.lastSeen, userID)
		}
	}
}

// StartCleanupTicker очищает спам-лист и забытые лимитеры с заданным интервалом.
func (d *Detector) StartCleanupTicker(ctx context.Context, interval time.Duration) {
	d.list.StartCleanupTicker(ctx, interval)

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.Forget()
			}
		}
	}()
}
