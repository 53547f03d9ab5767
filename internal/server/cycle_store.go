package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"students-timetable/internal/core/services"
)

// ErrCycleNotFound возвращается, если цикла нет в хранилище или он уже просрочен.
var ErrCycleNotFound = errors.New("cycle not found")

// CycleStatus - статус цикла, запущенного через API.
type CycleStatus string

const (
	CycleStatusRunning   CycleStatus = "running"
	CycleStatusCompleted CycleStatus = "completed"
	CycleStatusFailed    CycleStatus = "failed"
)

// CycleRecord - запись о цикле, запущенном через API.
type CycleRecord struct {
	ID        string                `json:"cycle_id"`
	Status    CycleStatus           `json:"status"`
	Report    *services.CycleReport `json:"report,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
	ExpiresAt time.Time             `json:"expires_at"`
}

// CycleStore хранит записи о циклах ограниченное время.
type CycleStore struct {
	cycles map[string]*CycleRecord
	mutex  sync.RWMutex
	ttl    time.Duration
	now    func() time.Time
}

// NewCycleStore создает хранилище с заданным временем жизни записей.
func NewCycleStore(ttl time.Duration) *CycleStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CycleStore{
		cycles: make(map[string]*CycleRecord),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Start регистрирует цикл со статусом running.
func (cs *CycleStore) Start(cycleID string) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	now := cs.now()
	cs.cycles[cycleID] = &CycleRecord{
		ID:        cycleID,
		Status:    CycleStatusRunning,
		CreatedAt: now,
		ExpiresAt: now.Add(cs.ttl),
	}
}

// Finish сохраняет отчет цикла. Прерванный цикл получает статус failed.
func (cs *CycleStore) Finish(report services.CycleReport) error {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	rec, ok := cs.cycles[report.ID]
	if !ok {
		return ErrCycleNotFound
	}

	rec.Status = CycleStatusCompleted
	if report.Outcome == services.OutcomeAborted {
		rec.Status = CycleStatusFailed
	}
	rec.Report = &report
	rec.ExpiresAt = cs.now().Add(cs.ttl)
	return nil
}

// Get возвращает копию записи.
func (cs *CycleStore) Get(cycleID string) (CycleRecord, error) {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	rec, ok := cs.cycles[cycleID]
	if !ok || cs.now().After(rec.ExpiresAt) {
		return CycleRecord{}, ErrCycleNotFound
	}
	return *rec, nil
}

// CleanupExpired удаляет просроченные записи.
func (cs *CycleStore) CleanupExpired() int {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	now := cs.now()
	removed := 0
	for id, rec := range cs.cycles {
		if now.After(rec.ExpiresAt) {
			delete(cs.cycles, id)
			removed++
		}
	}
	return removed
}

// StartCleanupTicker периодически чистит хранилище до отмены контекста.
func (cs *CycleStore) StartCleanupTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cs.CleanupExpired()
			}
		}
	}()
}
