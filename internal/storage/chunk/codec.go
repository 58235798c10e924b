// Пакет chunk — формат чанков blob store: сжатие, контроль целостности
// и потоковое чтение объекта чанк за чанком.
package chunk

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"
)

// Compression — алгоритм сжатия чанка. Значения хранятся в БД и в файлах
// чанков, менять их нельзя.
type Compression uint8

const (
	// CompressionNone — данные без сжатия (уже сжатые форматы: JPEG, PNG, видео).
	CompressionNone Compression = 0
	// CompressionLZ4 — блочный LZ4, по умолчанию для бинарных данных.
	CompressionLZ4 Compression = 1
	// CompressionZstd — zstd, для текстовых типов.
	CompressionZstd Compression = 2
)

// String возвращает имя алгоритма.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// HashSize — размер BLAKE3-хэша чанка.
const HashSize = 32

// Ошибки формата чанков.
var (
	// ErrChecksumMismatch — хэш распакованных данных не совпал с сохранённым.
	ErrChecksumMismatch = errors.New("контрольная сумма чанка не совпадает")
	// errIncompressible — сжатие не уменьшило размер, чанк хранится как есть.
	errIncompressible = errors.New("данные не сжимаются")
)

// Encoded — чанк в формате хранения.
type Encoded struct {
	// Compression — алгоритм сжатия Data
	Compression Compression
	// RawSize — размер данных до сжатия
	RawSize int
	// Hash — BLAKE3 распакованных данных
	Hash [HashSize]byte
	// Data — payload в формате хранения
	Data []byte
}

// zstd.Encoder и zstd.Decoder безопасны для конкурентного использования.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("chunk: инициализация zstd encoder: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("chunk: инициализация zstd decoder: " + err.Error())
	}
}

// PreferredCompression выбирает алгоритм по MIME-типу: zstd для текстовых
// форматов, none для заведомо сжатых медиа, lz4 для остального.
func PreferredCompression(contentType string) Compression {
	ct := strings.ToLower(contentType)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}

	switch {
	case strings.HasPrefix(ct, "text/"),
		ct == "application/json",
		ct == "application/xml",
		ct == "application/javascript",
		ct == "image/svg+xml",
		strings.HasSuffix(ct, "+json"),
		strings.HasSuffix(ct, "+xml"):
		return CompressionZstd
	case ct == "image/jpeg", ct == "image/png", ct == "image/webp", ct == "image/gif", ct == "image/avif",
		strings.HasPrefix(ct, "video/"),
		strings.HasPrefix(ct, "audio/"),
		ct == "application/zip", ct == "application/gzip", ct == "application/x-7z-compressed":
		return CompressionNone
	default:
		return CompressionLZ4
	}
}

// Encode сжимает чанк выбранным алгоритмом и считает хэш.
// Если данные не сжимаются, чанк сохраняется без сжатия.
func Encode(data []byte, preferred Compression) (Encoded, error) {
	enc := Encoded{
		Compression: CompressionNone,
		RawSize:     len(data),
		Hash:        blake3.Sum256(data),
		Data:        data,
	}

	var (
		compressed []byte
		err        error
	)
	switch preferred {
	case CompressionNone:
		return enc, nil
	case CompressionLZ4:
		compressed, err = compressLZ4(data)
	case CompressionZstd:
		compressed, err = compressZstd(data)
	default:
		return Encoded{}, fmt.Errorf("неподдерживаемый алгоритм сжатия: %s", preferred)
	}

	if errors.Is(err, errIncompressible) {
		return enc, nil
	}
	if err != nil {
		return Encoded{}, err
	}

	enc.Compression = preferred
	enc.Data = compressed
	return enc, nil
}

// Decode распаковывает чанк и проверяет BLAKE3-хэш.
func Decode(enc Encoded) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch enc.Compression {
	case CompressionNone:
		if len(enc.Data) != enc.RawSize {
			return nil, fmt.Errorf("чанк без сжатия: размер %d, ожидался %d", len(enc.Data), enc.RawSize)
		}
		data = enc.Data
	case CompressionLZ4:
		data, err = decompressLZ4(enc.Data, enc.RawSize)
	case CompressionZstd:
		data, err = decompressZstd(enc.Data, enc.RawSize)
	default:
		return nil, fmt.Errorf("неподдерживаемый алгоритм сжатия: %s", enc.Compression)
	}
	if err != nil {
		return nil, err
	}

	sum := blake3.Sum256(data)
	if !bytes.Equal(sum[:], enc.Hash[:]) {
		return nil, ErrChecksumMismatch
	}
	return data, nil
}

func compressLZ4(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock возвращает 0 для несжимаемых данных
	if n == 0 || n >= len(data) {
		return nil, errIncompressible
	}
	return dst[:n], nil
}

func decompressLZ4(compressed []byte, rawSize int) ([]byte, error) {
	dst := make([]byte, rawSize)
	n, err := lz4.UncompressBlock(compressed, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if n != rawSize {
		return nil, fmt.Errorf("lz4 decompress: получено %d байт, ожидалось %d", n, rawSize)
	}
	return dst, nil
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, rawSize int) ([]byte, error) {
	data, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, rawSize))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(data) != rawSize {
		return nil, fmt.Errorf("zstd decompress: получено %d байт, ожидалось %d", len(data), rawSize)
	}
	return data, nil
}
