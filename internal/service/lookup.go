package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bigkaa/goartstore/drive-module/internal/domain/model"
	"github.com/bigkaa/goartstore/drive-module/internal/repository"
)

// Ошибки сервисного слоя.
var (
	// ErrInvalidIdentifier — идентификатор файла в запросе некорректен.
	ErrInvalidIdentifier = errors.New("некорректный идентификатор файла")
	// ErrNotFound — запись файла не найдена.
	ErrNotFound = errors.New("файл не найден")
	// ErrGone — файл удалён (tombstone).
	ErrGone = errors.New("файл удалён")
	// ErrMissingRepresentation — производное представление отсутствует.
	// Наружу не выходит: приводит к отдаче оригинала.
	ErrMissingRepresentation = errors.New("представление файла отсутствует")
)

// fileLookup — получение записи файла из кэша или БД.
type fileLookup struct {
	fileRepo repository.FileRepository
	cache    *CacheService
}

// get валидирует идентификатор и возвращает запись файла.
// Tombstone-запись возвращается без ошибки: решение принимает вызывающий.
func (l *fileLookup) get(ctx context.Context, rawID string) (*model.DriveFile, error) {
	fileID, err := model.ParseFileID(rawID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIdentifier, err)
	}

	if file, ok := l.cache.Get(fileID); ok {
		return file, nil
	}

	file, err := l.fileRepo.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение записи файла: %w", err)
	}

	l.cache.Set(fileID, file)
	return file, nil
}

// representation ищет производное представление вида kind.
// Отсутствие записи возвращается как ErrMissingRepresentation.
func (l *fileLookup) representation(
	ctx context.Context, kind model.RepresentationKind, fileID string,
) (*model.Representation, error) {
	var (
		rep *model.Representation
		err error
	)
	switch kind {
	case model.RepresentationThumbnail:
		rep, err = l.fileRepo.GetThumbnail(ctx, fileID)
	case model.RepresentationWebpublic:
		rep, err = l.fileRepo.GetWebpublic(ctx, fileID)
	default:
		return nil, fmt.Errorf("вид представления %q не поддерживается", kind)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMissingRepresentation
		}
		return nil, fmt.Errorf("получение представления %s: %w", kind, err)
	}
	return rep, nil
}
