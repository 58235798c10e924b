// delivery.go — pipeline доставки файла по HTTP-запросу.
// Запрос: идентификатор + флаги thumbnail/web/download + значение original.
// Результат: одно из терминальных состояний (Outcome) и, для OK, поток байтов.
//
// Порядок проверок:
//  1. Идентификатор (UUID) → InvalidID
//  2. Запись файла (кэш/БД) → NotFound
//  3. Tombstone → Gone (независимо от query)
//  4. External-файл → NoContent
//  5. thumbnail / web → производное представление, при отсутствии — оригинал
//  6. Оригинал: проверка ключа доступа → Forbidden, затем поток из bucket original
package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/drive-module/internal/domain/model"
	"github.com/bigkaa/goartstore/drive-module/internal/repository"
	"github.com/bigkaa/goartstore/drive-module/internal/storage/blobstore"
	"github.com/bigkaa/goartstore/drive-module/internal/urlresolver"
)

// Outcome — терминальное состояние доставки.
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeInvalidID   Outcome = "invalid_id"
	OutcomeNotFound    Outcome = "not_found"
	OutcomeGone        Outcome = "gone"
	OutcomeNoContent   Outcome = "no_content"
	OutcomeForbidden   Outcome = "forbidden"
	OutcomeServerError Outcome = "server_error"
)

// ThumbnailContentType — миниатюры всегда хранятся в JPEG.
const ThumbnailContentType = "image/jpeg"

// defaultContentType — для записей без MIME-типа.
const defaultContentType = "application/octet-stream"

// streamBufferSize — буфер копирования потока в ответ.
const streamBufferSize = 32 * 1024

// Prometheus-метрики доставки.
var (
	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dm_deliveries_total",
		Help: "Общее количество запросов доставки (по терминальному состоянию).",
	}, []string{"outcome"})

	deliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dm_delivery_duration_seconds",
		Help:    "Длительность доставки (от запроса до завершения streaming).",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	})

	deliveryBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dm_delivery_bytes_total",
		Help: "Общее количество переданных байт (по представлению).",
	}, []string{"representation"})

	activeDeliveries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dm_active_deliveries",
		Help: "Количество активных (in-progress) передач.",
	})

	streamFaultsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dm_stream_faults_total",
		Help: "Количество ошибок ввода-вывода во время передачи.",
	})

	representationFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dm_representation_fallbacks_total",
		Help: "Количество отдач оригинала вместо отсутствующего представления.",
	}, []string{"representation"})
)

// DeliveryQuery — разобранные query-параметры запроса доставки.
type DeliveryQuery struct {
	// Thumbnail — флаг ?thumbnail
	Thumbnail bool
	// Web — флаг ?web
	Web bool
	// Download — флаг ?download (Content-Disposition: attachment)
	Download bool
	// Original — значение ?original, сравнивается с ключом доступа
	Original string
}

// ParseDeliveryQuery разбирает query-параметры URL доставки.
// Флаги учитываются по наличию ключа, значение не важно.
func ParseDeliveryQuery(values url.Values) DeliveryQuery {
	return DeliveryQuery{
		Thumbnail: values.Has(urlresolver.QueryThumbnail),
		Web:       values.Has(urlresolver.QueryWeb),
		Download:  values.Has(urlresolver.QueryDownload),
		Original:  values.Get(urlresolver.QueryOriginal),
	}
}

// DeliveryResult — итог pipeline доставки.
// Body не nil только для OutcomeOK; его закрывает Stream или Discard.
type DeliveryResult struct {
	Outcome Outcome
	// FileID — канонический идентификатор (пуст для InvalidID)
	FileID string

	// ContentType — MIME-тип отдаваемых байтов
	ContentType string
	// Attachment — добавить Content-Disposition: attachment
	Attachment bool
	// Served — какое представление отдаётся
	Served model.RepresentationKind
	// Fallback — запрошенное представление отсутствовало, отдаётся оригинал
	Fallback bool
	// Size — размер потока в байтах
	Size int64
	Body io.ReadCloser

	// Err — причина для InvalidID и ServerError
	Err error

	started time.Time
}

// StreamFault — ошибка ввода-вывода после начала передачи.
// Частично отданный поток не повторяется.
type StreamFault struct {
	FileID         string
	Representation model.RepresentationKind
	// Written — сколько байт ушло клиенту до ошибки
	Written int64
	Err     error
}

func (f *StreamFault) Error() string {
	return fmt.Sprintf("ошибка передачи файла %s (%s) после %d байт: %v",
		f.FileID, f.Representation, f.Written, f.Err)
}

func (f *StreamFault) Unwrap() error {
	return f.Err
}

// DeliveryService — доставка байтов файла из blob store.
type DeliveryService struct {
	lookup fileLookup
	blobs  blobstore.Store
	logger *slog.Logger
}

// NewDeliveryService создаёт сервис доставки.
func NewDeliveryService(
	fileRepo repository.FileRepository,
	cache *CacheService,
	blobs blobstore.Store,
	logger *slog.Logger,
) *DeliveryService {
	return &DeliveryService{
		lookup: fileLookup{fileRepo: fileRepo, cache: cache},
		blobs:  blobs,
		logger: logger.With(slog.String("component", "delivery_service")),
	}
}

// Deliver проходит pipeline и возвращает терминальное состояние.
// Никогда не возвращает nil.
func (ds *DeliveryService) Deliver(ctx context.Context, rawID string, q DeliveryQuery) *DeliveryResult {
	started := time.Now()

	res := ds.deliver(ctx, rawID, q)
	res.started = started

	deliveriesTotal.WithLabelValues(string(res.Outcome)).Inc()
	// Для OK длительность фиксирует Stream или Discard
	if res.Outcome != OutcomeOK {
		deliveryDuration.Observe(time.Since(started).Seconds())
	}
	return res
}

func (ds *DeliveryService) deliver(ctx context.Context, rawID string, q DeliveryQuery) *DeliveryResult {
	file, err := ds.lookup.get(ctx, rawID)
	switch {
	case errors.Is(err, ErrInvalidIdentifier):
		ds.logger.Debug("Некорректный идентификатор файла", slog.String("error", err.Error()))
		return &DeliveryResult{Outcome: OutcomeInvalidID, Err: err}
	case errors.Is(err, ErrNotFound):
		ds.logger.Debug("Файл не найден", slog.String("file_id", rawID))
		return &DeliveryResult{Outcome: OutcomeNotFound}
	case err != nil:
		ds.logger.Error("Ошибка получения записи файла",
			slog.String("file_id", rawID),
			slog.String("error", err.Error()),
		)
		return &DeliveryResult{Outcome: OutcomeServerError, Err: err}
	}

	if file.IsDeleted() {
		ds.logger.Debug("Файл удалён", slog.String("file_id", file.ID))
		return &DeliveryResult{Outcome: OutcomeGone, FileID: file.ID}
	}

	if file.IsExternal() {
		// Байтов нет: клиент использует внешний URL из URL Resolver
		return &DeliveryResult{Outcome: OutcomeNoContent, FileID: file.ID}
	}

	var requested model.RepresentationKind
	switch {
	case q.Thumbnail:
		requested = model.RepresentationThumbnail
	case q.Web:
		requested = model.RepresentationWebpublic
	}

	if requested != "" {
		res, err := ds.serveRepresentation(ctx, file, requested)
		if err == nil {
			return res
		}
		if !errors.Is(err, ErrMissingRepresentation) {
			ds.logger.Error("Ошибка получения представления файла",
				slog.String("file_id", file.ID),
				slog.String("representation", string(requested)),
				slog.String("error", err.Error()),
			)
			return &DeliveryResult{Outcome: OutcomeServerError, FileID: file.ID, Err: err}
		}
		representationFallbacksTotal.WithLabelValues(string(requested)).Inc()
	}

	res := ds.serveOriginal(ctx, file, q)
	res.Fallback = requested != "" && res.Outcome == OutcomeOK
	return res
}

// serveRepresentation открывает поток производного представления.
// ErrMissingRepresentation — нет записи или её blob-а.
func (ds *DeliveryService) serveRepresentation(
	ctx context.Context, file *model.DriveFile, kind model.RepresentationKind,
) (*DeliveryResult, error) {
	rep, err := ds.lookup.representation(ctx, kind, file.ID)
	if err != nil {
		return nil, err
	}

	blob, err := ds.blobs.Open(ctx, blobstore.Bucket(kind), rep.ID)
	if err != nil {
		if errors.Is(err, blobstore.ErrBlobNotFound) {
			ds.logger.Warn("Запись представления есть, blob отсутствует",
				slog.String("file_id", file.ID),
				slog.String("representation", string(kind)),
			)
			return nil, ErrMissingRepresentation
		}
		return nil, fmt.Errorf("открытие blob %s: %w", kind, err)
	}

	contentType := file.ContentType
	if kind == model.RepresentationThumbnail {
		contentType = ThumbnailContentType
	}

	return &DeliveryResult{
		Outcome:     OutcomeOK,
		FileID:      file.ID,
		ContentType: orDefaultContentType(contentType),
		Served:      kind,
		Size:        blob.Size,
		Body:        blob.Body,
	}, nil
}

// serveOriginal проверяет ключ доступа и открывает поток оригинала.
func (ds *DeliveryService) serveOriginal(ctx context.Context, file *model.DriveFile, q DeliveryQuery) *DeliveryResult {
	if file.HasAccessKey() && !keyMatches(*file.AccessKey, q.Original) {
		ds.logger.Debug("Доступ к оригиналу запрещён", slog.String("file_id", file.ID))
		return &DeliveryResult{Outcome: OutcomeForbidden, FileID: file.ID}
	}

	blob, err := ds.blobs.Open(ctx, blobstore.BucketOriginal, file.ID)
	if err != nil {
		if errors.Is(err, blobstore.ErrBlobNotFound) {
			// Запись в кэше могла устареть: следующий запрос перечитает её из БД
			ds.lookup.cache.Delete(file.ID)
		}
		ds.logger.Error("Ошибка открытия оригинала",
			slog.String("file_id", file.ID),
			slog.String("error", err.Error()),
		)
		return &DeliveryResult{Outcome: OutcomeServerError, FileID: file.ID, Err: err}
	}

	return &DeliveryResult{
		Outcome:     OutcomeOK,
		FileID:      file.ID,
		ContentType: orDefaultContentType(file.ContentType),
		Attachment:  q.Download,
		Served:      model.RepresentationOriginal,
		Size:        blob.Size,
		Body:        blob.Body,
	}
}

// Stream копирует поток результата в w и закрывает его.
// Возвращает число записанных байт. Ошибка ввода-вывода оформляется как
// *StreamFault (логируется и считается); отмена ctx клиентом — как ошибка ctx.
func (ds *DeliveryService) Stream(ctx context.Context, w io.Writer, res *DeliveryResult) (int64, error) {
	if res == nil || res.Outcome != OutcomeOK || res.Body == nil {
		return 0, errors.New("результат доставки не содержит потока")
	}

	activeDeliveries.Inc()
	defer activeDeliveries.Dec()
	defer res.Body.Close()

	cw := &countingWriter{w: w}
	_, err := io.CopyBuffer(cw, res.Body, make([]byte, streamBufferSize))

	deliveryBytesTotal.WithLabelValues(string(res.Served)).Add(float64(cw.n))
	duration := time.Since(res.started)
	deliveryDuration.Observe(duration.Seconds())

	if err != nil {
		if ctx.Err() != nil {
			ds.logger.Debug("Передача прервана клиентом",
				slog.String("file_id", res.FileID),
				slog.Int64("bytes_written", cw.n),
			)
			return cw.n, fmt.Errorf("передача прервана: %w", ctx.Err())
		}

		fault := &StreamFault{
			FileID:         res.FileID,
			Representation: res.Served,
			Written:        cw.n,
			Err:            err,
		}
		ds.reportFault(fault)
		return cw.n, fault
	}

	ds.logger.Debug("Передача завершена",
		slog.String("file_id", res.FileID),
		slog.String("representation", string(res.Served)),
		slog.Bool("fallback", res.Fallback),
		slog.Int64("bytes", cw.n),
		slog.Duration("duration", duration),
	)
	return cw.n, nil
}

// Discard закрывает поток без передачи (HEAD-запросы).
func (ds *DeliveryService) Discard(res *DeliveryResult) {
	if res == nil || res.Body == nil {
		return
	}
	if !res.started.IsZero() {
		deliveryDuration.Observe(time.Since(res.started).Seconds())
	}
	if err := res.Body.Close(); err != nil {
		ds.logger.Warn("Ошибка закрытия потока",
			slog.String("file_id", res.FileID),
			slog.String("error", err.Error()),
		)
	}
}

// reportFault фиксирует StreamFault в логах и метриках.
func (ds *DeliveryService) reportFault(f *StreamFault) {
	streamFaultsTotal.Inc()
	ds.logger.Error("Ошибка передачи файла",
		slog.String("file_id", f.FileID),
		slog.String("representation", string(f.Representation)),
		slog.Int64("bytes_written", f.Written),
		slog.String("error", f.Err.Error()),
	)
}

// keyMatches сравнивает ключ доступа со значением из запроса.
func keyMatches(accessKey, provided string) bool {
	return subtle.ConstantTimeCompare([]byte(accessKey), []byte(provided)) == 1
}

func orDefaultContentType(ct string) string {
	if ct == "" {
		return defaultContentType
	}
	return ct
}

// countingWriter считает байты, записанные в ответ.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
