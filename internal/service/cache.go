// Пакет service — бизнес-логика Drive Module.
// CacheService — LRU-кэш записей файлов с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/drive-module/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dm_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш записей файлов.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dm_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша записей файлов.",
	})
)

// CacheService — LRU-кэш записей drive_files с автоматическим TTL.
// Кэшируются только записи (включая tombstone), байты файлов — никогда.
// TTL ограничивает окно, в котором удаление файла ещё не видно доставке.
type CacheService struct {
	cache *expirable.LRU[string, *model.DriveFile]
}

// NewCacheService создаёт LRU-кэш с указанным максимальным размером и TTL.
func NewCacheService(maxSize int, ttl time.Duration) *CacheService {
	cache := expirable.NewLRU[string, *model.DriveFile](maxSize, nil, ttl)
	return &CacheService{cache: cache}
}

// Get возвращает DriveFile из кэша по fileID.
// Обновляет Prometheus-метрики hit/miss.
func (c *CacheService) Get(fileID string) (*model.DriveFile, bool) {
	val, ok := c.cache.Get(fileID)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет или обновляет запись в кэше.
func (c *CacheService) Set(fileID string, file *model.DriveFile) {
	c.cache.Add(fileID, file)
}

// Delete удаляет запись из кэша.
func (c *CacheService) Delete(fileID string) {
	c.cache.Remove(fileID)
}
