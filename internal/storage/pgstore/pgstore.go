// Пакет pgstore — chunked blob store в PostgreSQL (DM_BLOB_BACKEND=postgres).
// Объект описывается строкой blob_objects, байты лежат в blob_chunks
// по одной строке на чанк. Чтение идёт по одному чанку на запрос.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/drive-module/internal/storage/blobstore"
	"github.com/bigkaa/goartstore/drive-module/internal/storage/chunk"
)

// DB — часть pgxpool.Pool, нужная хранилищу.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store — blob store поверх PostgreSQL.
type Store struct {
	db        DB
	chunkSize int
}

// New создаёт Store. chunkSize <= 0 — размер по умолчанию.
func New(db DB, chunkSize int) *Store {
	if chunkSize <= 0 {
		chunkSize = chunk.DefaultSize
	}
	return &Store{db: db, chunkSize: chunkSize}
}

// Open читает manifest объекта и возвращает поток чтения чанков.
func (s *Store) Open(ctx context.Context, bucket blobstore.Bucket, id string) (*blobstore.Blob, error) {
	query := `
		SELECT length, chunk_size, chunk_count
		FROM blob_objects
		WHERE bucket = $1 AND id = $2::uuid`

	var m chunk.Manifest
	err := s.db.QueryRow(ctx, query, string(bucket), id).Scan(&m.Length, &m.ChunkSize, &m.ChunkCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s/%s: %w", bucket, id, blobstore.ErrBlobNotFound)
		}
		return nil, fmt.Errorf("ошибка получения manifest %s/%s: %w", bucket, id, err)
	}

	src := &rowSource{db: s.db, bucket: bucket, id: id}
	return &blobstore.Blob{Size: m.Length, Body: chunk.NewReader(ctx, src, m, nil)}, nil
}

// Put записывает объект в одной транзакции, заменяя предыдущую версию.
func (s *Store) Put(ctx context.Context, bucket blobstore.Bucket, id, contentType string, r io.Reader) (int64, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM blob_chunks WHERE bucket = $1 AND object_id = $2::uuid`, string(bucket), id); err != nil {
		return 0, fmt.Errorf("ошибка удаления предыдущих чанков: %w", err)
	}

	insertChunk := `
		INSERT INTO blob_chunks (bucket, object_id, n, compression, raw_size, hash, data)
		VALUES ($1, $2::uuid, $3, $4, $5, $6, $7)`

	m, err := chunk.Split(r, s.chunkSize, chunk.PreferredCompression(contentType), func(n int, enc chunk.Encoded) error {
		_, execErr := tx.Exec(ctx, insertChunk,
			string(bucket), id, n, int16(enc.Compression), enc.RawSize, enc.Hash[:], enc.Data)
		if execErr != nil {
			return fmt.Errorf("ошибка записи чанка %d: %w", n, execErr)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	upsertObject := `
		INSERT INTO blob_objects (bucket, id, content_type, length, chunk_size, chunk_count)
		VALUES ($1, $2::uuid, $3, $4, $5, $6)
		ON CONFLICT (bucket, id) DO UPDATE
		SET content_type = EXCLUDED.content_type,
			length = EXCLUDED.length,
			chunk_size = EXCLUDED.chunk_size,
			chunk_count = EXCLUDED.chunk_count,
			uploaded_at = now()`

	if _, err := tx.Exec(ctx, upsertObject, string(bucket), id, contentType, m.Length, m.ChunkSize, m.ChunkCount); err != nil {
		return 0, fmt.Errorf("ошибка записи manifest: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return m.Length, nil
}

// rowSource — chunk.Source поверх таблицы blob_chunks.
type rowSource struct {
	db     DB
	bucket blobstore.Bucket
	id     string
}

func (s *rowSource) Fetch(ctx context.Context, n int) (chunk.Encoded, error) {
	query := `
		SELECT compression, raw_size, hash, data
		FROM blob_chunks
		WHERE bucket = $1 AND object_id = $2::uuid AND n = $3`

	var (
		compression int16
		hash        []byte
		enc         chunk.Encoded
	)
	err := s.db.QueryRow(ctx, query, string(s.bucket), s.id, n).Scan(&compression, &enc.RawSize, &hash, &enc.Data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return chunk.Encoded{}, fmt.Errorf("строка чанка отсутствует: %w", blobstore.ErrBlobNotFound)
		}
		return chunk.Encoded{}, fmt.Errorf("ошибка чтения чанка: %w", err)
	}
	if len(hash) != chunk.HashSize {
		return chunk.Encoded{}, fmt.Errorf("некорректная длина хэша чанка: %d", len(hash))
	}

	enc.Compression = chunk.Compression(compression) //nolint:gosec // значение ограничено CHECK в схеме
	copy(enc.Hash[:], hash)
	return enc, nil
}

var _ blobstore.Store = (*Store)(nil)
