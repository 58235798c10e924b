// Пакет blobstore — контракт chunked blob store Drive Module.
// Три логически независимых bucket-а: original, webpublic, thumbnail.
// Реализации: pgstore (PostgreSQL) и filestore (локальный диск).
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Bucket — логическое хранилище blob-ов.
type Bucket string

const (
	// BucketOriginal — исходные байты файлов.
	BucketOriginal Bucket = "original"
	// BucketWebpublic — web-оптимизированные версии.
	BucketWebpublic Bucket = "webpublic"
	// BucketThumbnail — миниатюры.
	BucketThumbnail Bucket = "thumbnail"
)

// Valid проверяет, что bucket известен.
func (b Bucket) Valid() bool {
	switch b {
	case BucketOriginal, BucketWebpublic, BucketThumbnail:
		return true
	}
	return false
}

// ParseBucket преобразует строку в Bucket.
func ParseBucket(s string) (Bucket, error) {
	b := Bucket(s)
	if !b.Valid() {
		return "", fmt.Errorf("неизвестный bucket %q, допустимые: original, webpublic, thumbnail", s)
	}
	return b, nil
}

// ErrBlobNotFound — blob отсутствует в bucket.
var ErrBlobNotFound = errors.New("blob не найден")

// Blob — открытый поток чтения объекта.
// Вызывающий код ОБЯЗАН закрыть Body.
type Blob struct {
	// Size — размер объекта в байтах
	Size int64
	// Body — поток байтов, читается чанк за чанком
	Body io.ReadCloser
}

// Store — chunked blob store. Реализации безопасны для конкурентного чтения.
type Store interface {
	// Open открывает поток чтения blob-а. ErrBlobNotFound, если объекта нет.
	// Чтение Body выполняется в рамках ctx: отмена прерывает поток.
	Open(ctx context.Context, bucket Bucket, id string) (*Blob, error)
	// Put записывает объект целиком, разбивая на чанки. Повторная запись
	// с тем же id заменяет объект. Используется инструментами загрузки и тестами.
	Put(ctx context.Context, bucket Bucket, id, contentType string, r io.Reader) (int64, error)
}
