package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/drive-module/internal/domain/model"
)

// fileColumns — список столбцов таблицы drive_files для SELECT-запросов.
const fileColumns = `id::text, content_type, hosting_mode, external_url,
	external_webpublic_url, external_thumbnail_url, access_key, deleted_at, created_at`

// FileRepository — интерфейс доступа к записям файлов и их представлениям.
type FileRepository interface {
	// GetByID возвращает запись файла по UUID (в том числе tombstone).
	GetByID(ctx context.Context, fileID string) (*model.DriveFile, error)
	// GetThumbnail возвращает последнюю миниатюру файла.
	GetThumbnail(ctx context.Context, originalFileID string) (*model.Representation, error)
	// GetWebpublic возвращает последнюю web-версию файла.
	GetWebpublic(ctx context.Context, originalFileID string) (*model.Representation, error)
}

// fileRepo — реализация FileRepository через pgx.
type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий файлов.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

// GetByID возвращает файл по UUID или ErrNotFound.
func (r *fileRepo) GetByID(ctx context.Context, fileID string) (*model.DriveFile, error) {
	query := fmt.Sprintf(`SELECT %s FROM drive_files WHERE id = $1::uuid`, fileColumns)

	f := &model.DriveFile{}
	var hostingMode string
	err := r.db.QueryRow(ctx, query, fileID).Scan(
		&f.ID, &f.ContentType, &hostingMode, &f.ExternalURL,
		&f.ExternalWebpublicURL, &f.ExternalThumbnailURL, &f.AccessKey, &f.DeletedAt, &f.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения файла: %w", err)
	}

	f.HostingMode = model.HostingMode(hostingMode)
	if !f.HostingMode.Valid() {
		return nil, fmt.Errorf("файл %s: неизвестный hosting_mode %q", f.ID, hostingMode)
	}
	return f, nil
}

// GetThumbnail возвращает миниатюру или ErrNotFound.
func (r *fileRepo) GetThumbnail(ctx context.Context, originalFileID string) (*model.Representation, error) {
	return r.getRepresentation(ctx, model.RepresentationThumbnail, originalFileID)
}

// GetWebpublic возвращает web-версию или ErrNotFound.
func (r *fileRepo) GetWebpublic(ctx context.Context, originalFileID string) (*model.Representation, error) {
	return r.getRepresentation(ctx, model.RepresentationWebpublic, originalFileID)
}

// getRepresentation выбирает самую свежую запись представления.
// Имя таблицы берётся только из representationTable (whitelist).
func (r *fileRepo) getRepresentation(
	ctx context.Context, kind model.RepresentationKind, originalFileID string,
) (*model.Representation, error) {
	table, err := representationTable(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id::text, original_file_id::text, created_at
		FROM %s
		WHERE original_file_id = $1::uuid
		ORDER BY created_at DESC
		LIMIT 1`, table)

	rep := &model.Representation{Kind: kind}
	err = r.db.QueryRow(ctx, query, originalFileID).Scan(&rep.ID, &rep.OriginalFileID, &rep.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения представления %s: %w", kind, err)
	}
	return rep, nil
}

// representationTable возвращает таблицу для вида представления.
func representationTable(kind model.RepresentationKind) (string, error) {
	switch kind {
	case model.RepresentationThumbnail:
		return "drive_file_thumbnails", nil
	case model.RepresentationWebpublic:
		return "drive_file_webpublics", nil
	default:
		return "", fmt.Errorf("вид представления %q не хранится в реестре", kind)
	}
}
