// Пакет model — доменные модели Drive Module.
// DriveFile — маппинг таблицы drive_files (owned by upload pipeline).
package model

import "time"

// HostingMode — способ хранения байтов файла.
type HostingMode string

const (
	// HostingChunked — байты лежат в chunked blob store этого сервиса.
	HostingChunked HostingMode = "chunked"
	// HostingExternal — байты лежат по внешнему URL, локальной копии нет.
	HostingExternal HostingMode = "external"
)

// Valid проверяет, что режим хостинга известен.
func (m HostingMode) Valid() bool {
	return m == HostingChunked || m == HostingExternal
}

// DriveFile — запись файла в реестре drive_files.
// Drive Module использует модель только для чтения.
type DriveFile struct {
	// ID — UUID файла в каноническом виде (неизменяем)
	ID string
	// ContentType — MIME-тип оригинальных байтов
	ContentType string
	// HostingMode — chunked или external (неизменяем после создания)
	HostingMode HostingMode
	// ExternalURL — URL оригинала (только для external)
	ExternalURL *string
	// ExternalWebpublicURL — URL web-версии (только для external)
	ExternalWebpublicURL *string
	// ExternalThumbnailURL — URL миниатюры (только для external)
	ExternalThumbnailURL *string
	// AccessKey — ключ доступа к оригиналу chunked-файла (опционально)
	AccessKey *string
	// DeletedAt — время удаления; установленное значение никогда не сбрасывается
	DeletedAt *time.Time
	// CreatedAt — время создания записи
	CreatedAt time.Time
}

// IsDeleted сообщает, является ли запись tombstone.
func (f *DriveFile) IsDeleted() bool {
	return f.DeletedAt != nil
}

// IsExternal сообщает, что байты файла хранятся вне сервиса.
func (f *DriveFile) IsExternal() bool {
	return f.HostingMode == HostingExternal
}

// HasAccessKey сообщает, защищён ли оригинал ключом доступа.
// Пустая строка в БД трактуется как отсутствие ключа.
func (f *DriveFile) HasAccessKey() bool {
	return f.AccessKey != nil && *f.AccessKey != ""
}

// RepresentationKind — вид производного представления файла.
type RepresentationKind string

const (
	// RepresentationOriginal — исходные байты (не производное, используется в метриках и заголовках).
	RepresentationOriginal RepresentationKind = "original"
	// RepresentationWebpublic — web-оптимизированная версия.
	RepresentationWebpublic RepresentationKind = "webpublic"
	// RepresentationThumbnail — миниатюра.
	RepresentationThumbnail RepresentationKind = "thumbnail"
)

// Representation — запись производного представления (thumbnail / webpublic).
// Не принадлежит DriveFile: может отсутствовать даже у chunked-файла.
type Representation struct {
	// ID — идентификатор blob с байтами представления
	ID string
	// Kind — вид представления
	Kind RepresentationKind
	// OriginalFileID — обратная ссылка на DriveFile (только для поиска)
	OriginalFileID string
	// CreatedAt — время создания представления
	CreatedAt time.Time
}

// StrPtr возвращает указатель на копию строки.
func StrPtr(s string) *string {
	return &s
}
