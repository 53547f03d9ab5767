package render

import (
	"strings"

	lru "github.com/hashicorp/golang-lru"

	"students-timetable/internal/domain"
	"students-timetable/internal/ports"
)

// DefaultCacheSize - число сообщений, которые держит CachedRenderer.
const DefaultCacheSize = 512

// CachedRenderer запоминает готовые сообщения групп. Ключ строится по содержимому,
// поэтому после изменения расписания старые записи просто не находятся.
type CachedRenderer struct {
	next  ports.Renderer
	cache *lru.Cache
}

// NewCachedRenderer оборачивает рендерер LRU-кэшем.
func NewCachedRenderer(next ports.Renderer, size int) (*CachedRenderer, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &CachedRenderer{next: next, cache: cache}, nil
}

// RenderGroupDay возвращает сообщение из кэша или формирует новое.
func (c *CachedRenderer) RenderGroupDay(date string, group domain.GroupSchedule) string {
	key := cacheKey(date, group)
	if v, ok := c.cache.Get(key); ok {
		return v.(string)
	}
	text := c.next.RenderGroupDay(date, group)
	c.cache.Add(key, text)
	return text
}

// RenderWeekAnnouncement не кэшируется.
func (c *CachedRenderer) RenderWeekAnnouncement(interval string) string {
	return c.next.RenderWeekAnnouncement(interval)
}

// Len возвращает количество записей в кэше.
func (c *CachedRenderer) Len() int {
	return c.cache.Len()
}

func cacheKey(date string, group domain.GroupSchedule) string {
	var sb strings.Builder
	sb.WriteString(date)
	sb.WriteByte(0)
	sb.WriteString(group.GroupID)
	for _, l := range group.Lessons {
		sb.WriteByte(0)
		sb.WriteString(l.Hash())
	}
	return sb.String()
}
