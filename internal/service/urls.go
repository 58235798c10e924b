package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bigkaa/goartstore/drive-module/internal/repository"
	"github.com/bigkaa/goartstore/drive-module/internal/urlresolver"
)

// FileURLs — URL доставки файла, вычисленные URL Resolver.
// Пустая строка — URL не определён (external-файл без URL).
type FileURLs struct {
	FileID       string
	URL          string
	ThumbnailURL string
	// OriginalURL содержит ключ доступа; заполняется только по явному запросу
	OriginalURL string
}

// URLService — вычисление URL доставки по идентификатору файла.
type URLService struct {
	lookup   fileLookup
	resolver *urlresolver.Resolver
	logger   *slog.Logger
}

// NewURLService создаёт сервис URL.
func NewURLService(
	fileRepo repository.FileRepository,
	cache *CacheService,
	resolver *urlresolver.Resolver,
	logger *slog.Logger,
) *URLService {
	return &URLService{
		lookup:   fileLookup{fileRepo: fileRepo, cache: cache},
		resolver: resolver,
		logger:   logger.With(slog.String("component", "url_service")),
	}
}

// Resolve возвращает URL файла. withOriginal добавляет URL оригинала
// (с ключом доступа) — только для операторских инструментов.
// Ошибки: ErrInvalidIdentifier, ErrNotFound, ErrGone.
func (s *URLService) Resolve(ctx context.Context, rawID string, withOriginal bool) (*FileURLs, error) {
	file, err := s.lookup.get(ctx, rawID)
	if err != nil {
		return nil, err
	}
	if file.IsDeleted() {
		return nil, ErrGone
	}

	urls := &FileURLs{FileID: file.ID}
	urls.URL, _ = s.resolver.Resolve(file, false)
	urls.ThumbnailURL, _ = s.resolver.Resolve(file, true)

	if withOriginal {
		urls.OriginalURL, err = s.resolver.ResolveOriginal(file)
		if err != nil {
			return nil, fmt.Errorf("URL оригинала: %w", err)
		}
	}

	s.logger.Debug("URL файла вычислены",
		slog.String("file_id", file.ID),
		slog.Bool("external", file.IsExternal()),
	)
	return urls, nil
}
