package bot

import (
	"sync"
	"time"
)

// PendingStore - потокобезопасное in-memory хранилище чатов, от которых бот
// ждет номер группы следующим сообщением.
type PendingStore struct {
	mu      sync.Mutex
	pending map[int64]time.Time // map[chatID]момент запроса
	ttl     time.Duration
	now     func() time.Time
}

// NewPendingStore создает новый экземпляр PendingStore.
// Ожидание старше ttl считается забытым.
func NewPendingStore(ttl time.Duration) *PendingStore {
	return &PendingStore{
		pending: make(map[int64]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Set отмечает, что чат должен прислать номер группы.
func (s *PendingStore) Set(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[chatID] = s.now()
}

// Take снимает отметку и сообщает, была ли она актуальна.
func (s *PendingStore) Take(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.pending[chatID]
	if !ok {
		return false
	}
	delete(s.pending, chatID)
	return s.ttl <= 0 || s.now().Sub(at) <= s.ttl
}

// Delete удаляет отметку для указанного chatID.
func (s *PendingStore) Delete(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, chatID)
}
