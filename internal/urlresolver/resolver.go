// Пакет urlresolver — вычисление URL доставки файла без обращения к хранилищам.
// Используется другими частями продукта, чтобы не делать лишний запрос
// к Drive Module. Формы URL — контракт с endpoint доставки:
//
//	{base}/{id}?thumbnail
//	{base}/{id}?web
//	{base}/{id}
//	{base}/{id}?original={accessKey}
package urlresolver

import (
	"errors"
	"net/url"
	"strings"

	"github.com/bigkaa/goartstore/drive-module/internal/domain/model"
)

// Query-дискриминаторы, которые разбирает endpoint доставки.
const (
	QueryThumbnail = "thumbnail"
	QueryWeb       = "web"
	QueryDownload  = "download"
	QueryOriginal  = "original"
)

// ErrInvalidArgument — ResolveOriginal вызван без записи файла.
var ErrInvalidArgument = errors.New("urlresolver: запись файла обязательна")

// Resolver строит URL доставки относительно базового URL (DM_DRIVE_URL).
type Resolver struct {
	baseURL string
}

// New создаёт Resolver. Trailing slash в baseURL отбрасывается.
func New(baseURL string) *Resolver {
	return &Resolver{baseURL: strings.TrimRight(baseURL, "/")}
}

// Resolve возвращает URL для показа файла: миниатюры (wantThumbnail) или web-версии.
// Второе значение false, если файла нет или у external-файла не задан ни один URL.
func (r *Resolver) Resolve(file *model.DriveFile, wantThumbnail bool) (string, bool) {
	if file == nil {
		return "", false
	}

	if file.IsExternal() {
		if wantThumbnail {
			return firstPresent(file.ExternalThumbnailURL, file.ExternalWebpublicURL, file.ExternalURL)
		}
		return firstPresent(file.ExternalWebpublicURL, file.ExternalURL)
	}

	if wantThumbnail {
		return r.local(file.ID) + "?" + QueryThumbnail, true
	}
	return r.local(file.ID) + "?" + QueryWeb, true
}

// ResolveOriginal возвращает URL оригинала. Для внешнего файла — ExternalURL
// как есть, иначе локальный URL с ?original={accessKey}, если ключ задан.
// External-файл без ExternalURL тоже получает локальный URL: endpoint доставки
// ответит на него 204.
func (r *Resolver) ResolveOriginal(file *model.DriveFile) (string, error) {
	if file == nil {
		return "", ErrInvalidArgument
	}

	if file.ExternalURL != nil && *file.ExternalURL != "" {
		return *file.ExternalURL, nil
	}

	u := r.local(file.ID)
	if file.HasAccessKey() {
		u += "?" + QueryOriginal + "=" + url.QueryEscape(*file.AccessKey)
	}
	return u, nil
}

// local — {base}/{id}.
func (r *Resolver) local(fileID string) string {
	return r.baseURL + "/" + fileID
}

// firstPresent возвращает первое непустое значение в порядке приоритета.
func firstPresent(candidates ...*string) (string, bool) {
	for _, c := range candidates {
		if c != nil && *c != "" {
			return *c, true
		}
	}
	return "", false
}
