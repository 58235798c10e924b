package chunk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// DefaultSize — размер чанка по умолчанию (255 KiB, как у GridFS).
const DefaultSize = 255 * 1024

// ErrClosed — чтение из закрытого Reader.
var ErrClosed = errors.New("чтение из закрытого потока чанков")

// Manifest — описание объекта, разбитого на чанки.
type Manifest struct {
	// Length — общий размер объекта в байтах
	Length int64 `json:"length"`
	// ChunkSize — номинальный размер чанка
	ChunkSize int `json:"chunk_size"`
	// ChunkCount — количество чанков
	ChunkCount int `json:"chunk_count"`
}

// Source — источник чанков одного объекта. Fetch возвращает чанк с номером n
// (нумерация с нуля). Реализации: pgstore (таблица blob_chunks), filestore (файлы).
type Source interface {
	Fetch(ctx context.Context, n int) (Encoded, error)
}

// Reader — потоковое чтение объекта чанк за чанком.
// В памяти одновременно находится не больше одного распакованного чанка.
// Перед каждым обращением к Source проверяется контекст запроса, поэтому
// отключение клиента освобождает источник за время одного чанка.
type Reader struct {
	ctx      context.Context
	src      Source
	manifest Manifest

	mu      sync.Mutex
	next    int
	buf     []byte
	read    int64
	closed  bool
	onClose func() error
}

// NewReader создаёт Reader. onClose (может быть nil) вызывается один раз при Close.
func NewReader(ctx context.Context, src Source, manifest Manifest, onClose func() error) *Reader {
	return &Reader{
		ctx:      ctx,
		src:      src,
		manifest: manifest,
		onClose:  onClose,
	}
}

// Size возвращает размер объекта из manifest.
func (r *Reader) Size() int64 {
	return r.manifest.Length
}

// Read реализует io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	for len(r.buf) == 0 {
		if r.next >= r.manifest.ChunkCount {
			if r.read != r.manifest.Length {
				return 0, fmt.Errorf("объект усечён: прочитано %d байт из %d", r.read, r.manifest.Length)
			}
			return 0, io.EOF
		}
		if err := r.ctx.Err(); err != nil {
			return 0, err
		}

		enc, err := r.src.Fetch(r.ctx, r.next)
		if err != nil {
			return 0, fmt.Errorf("чанк %d: %w", r.next, err)
		}
		data, err := Decode(enc)
		if err != nil {
			return 0, fmt.Errorf("чанк %d: %w", r.next, err)
		}
		r.next++
		r.buf = data
	}

	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	r.read += int64(n)
	if r.read > r.manifest.Length {
		return n, fmt.Errorf("объект длиннее manifest: %d байт при ожидаемых %d", r.read, r.manifest.Length)
	}
	return n, nil
}

// Close освобождает источник. Повторный вызов — no-op.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.buf = nil
	if r.onClose != nil {
		return r.onClose()
	}
	return nil
}

// Split читает reader и вызывает emit для каждого закодированного чанка.
// Возвращает manifest записанного объекта. Используется writer-ами хранилищ.
func Split(reader io.Reader, chunkSize int, preferred Compression, emit func(n int, enc Encoded) error) (Manifest, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultSize
	}

	manifest := Manifest{ChunkSize: chunkSize}
	buf := make([]byte, chunkSize)

	for {
		n, err := io.ReadFull(reader, buf)
		if n > 0 {
			// Encode может вернуть исходный срез, поэтому передаём копию
			data := make([]byte, n)
			copy(data, buf[:n])

			enc, encErr := Encode(data, preferred)
			if encErr != nil {
				return Manifest{}, fmt.Errorf("кодирование чанка %d: %w", manifest.ChunkCount, encErr)
			}
			if emitErr := emit(manifest.ChunkCount, enc); emitErr != nil {
				return Manifest{}, emitErr
			}
			manifest.ChunkCount++
			manifest.Length += int64(n)
		}

		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return manifest, nil
		}
		if err != nil {
			return Manifest{}, fmt.Errorf("чтение данных: %w", err)
		}
	}
}
