// Пакет filestore — chunked blob store на локальном диске (DM_BLOB_BACKEND=fs).
// Раскладка: {dataDir}/{bucket}/{id} — symlink на версию .{id}.v-{uuid},
// внутри версии manifest.json и {n}.chunk. Запись создаёт новую версию
// (чанки + fsync) и атомарно переставляет symlink через rename.
// Предыдущая версия живёт до следующей замены: начатые чтения её дочитывают.
package filestore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/drive-module/internal/storage/blobstore"
	"github.com/bigkaa/goartstore/drive-module/internal/storage/chunk"
)

const (
	manifestName = "manifest.json"
	chunkSuffix  = ".chunk"
	// Заголовок файла чанка: compression (1) + raw size (4, BE) + BLAKE3 (32).
	chunkHeaderSize = 1 + 4 + chunk.HashSize
)

// FileStore — blob store на локальном диске.
type FileStore struct {
	// dataDir — корневая директория хранения (DM_BLOB_DATA_DIR)
	dataDir   string
	chunkSize int
}

// New создаёт FileStore. Проверяет и создаёт директории bucket-ов.
func New(dataDir string, chunkSize int) (*FileStore, error) {
	for _, b := range []blobstore.Bucket{blobstore.BucketOriginal, blobstore.BucketWebpublic, blobstore.BucketThumbnail} {
		if err := os.MkdirAll(filepath.Join(dataDir, string(b)), 0o750); err != nil {
			return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
		}
	}
	if chunkSize <= 0 {
		chunkSize = chunk.DefaultSize
	}
	return &FileStore{dataDir: dataDir, chunkSize: chunkSize}, nil
}

// DataDir возвращает путь к директории данных.
func (fs *FileStore) DataDir() string {
	return fs.dataDir
}

// CheckReady проверяет, что директории bucket-ов доступны.
// Реализует handlers.ReadinessChecker.
func (fs *FileStore) CheckReady() (status, message string) {
	for _, b := range []blobstore.Bucket{blobstore.BucketOriginal, blobstore.BucketWebpublic, blobstore.BucketThumbnail} {
		info, err := os.Stat(filepath.Join(fs.dataDir, string(b)))
		if err != nil {
			return "fail", err.Error()
		}
		if !info.IsDir() {
			return "fail", fmt.Sprintf("%s не является директорией", b)
		}
	}
	return "ok", ""
}

// Open открывает поток чтения объекта. Поток привязан к версии,
// актуальной в момент Open, и не видит последующих замен.
func (fs *FileStore) Open(ctx context.Context, bucket blobstore.Bucket, id string) (*blobstore.Blob, error) {
	dir, err := fs.objectDir(bucket, id)
	if err != nil {
		return nil, err
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s/%s: %w", bucket, id, blobstore.ErrBlobNotFound)
		}
		return nil, fmt.Errorf("ошибка открытия объекта %s/%s: %w", bucket, id, err)
	}

	manifest, err := readManifest(root)
	if err != nil {
		root.Close()
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s/%s: %w", bucket, id, blobstore.ErrBlobNotFound)
		}
		return nil, fmt.Errorf("manifest %s/%s: %w", bucket, id, err)
	}

	reader := chunk.NewReader(ctx, &dirSource{root: root}, manifest, root.Close)
	return &blobstore.Blob{Size: manifest.Length, Body: reader}, nil
}

// Put записывает объект с разбиением на чанки. Замена существующего
// объекта атомарна: Open видит либо старую, либо новую версию целиком.
func (fs *FileStore) Put(_ context.Context, bucket blobstore.Bucket, id, contentType string, r io.Reader) (int64, error) {
	dir, err := fs.objectDir(bucket, id)
	if err != nil {
		return 0, err
	}
	parent, base := filepath.Dir(dir), filepath.Base(dir)

	versionDir, err := os.MkdirTemp(parent, versionPrefix(base))
	if err != nil {
		return 0, fmt.Errorf("ошибка создания директории версии: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(versionDir)
		}
	}()

	manifest, err := chunk.Split(r, fs.chunkSize, chunk.PreferredCompression(contentType), func(n int, enc chunk.Encoded) error {
		return writeChunkFile(filepath.Join(versionDir, strconv.Itoa(n)+chunkSuffix), enc)
	})
	if err != nil {
		return 0, err
	}

	raw, err := json.Marshal(manifest)
	if err != nil {
		return 0, fmt.Errorf("ошибка сериализации manifest: %w", err)
	}
	if err := writeFileSync(filepath.Join(versionDir, manifestName), raw); err != nil {
		return 0, err
	}

	// Текущая версия остаётся на диске до следующей замены
	previous, _ := os.Readlink(dir)

	link := filepath.Join(parent, "."+base+".link-"+uuid.NewString())
	if err := os.Symlink(filepath.Base(versionDir), link); err != nil {
		return 0, fmt.Errorf("ошибка создания symlink версии: %w", err)
	}
	if err := os.Rename(link, dir); err != nil {
		os.Remove(link)
		return 0, fmt.Errorf("ошибка атомарной замены %s/%s: %w", bucket, id, err)
	}
	committed = true

	fs.removeStaleVersions(parent, base, filepath.Base(versionDir), previous)
	return manifest.Length, nil
}

// removeStaleVersions удаляет версии объекта, кроме текущей и предыдущей.
func (fs *FileStore) removeStaleVersions(parent, base string, keep ...string) {
	versions, err := filepath.Glob(filepath.Join(parent, versionPrefix(base)+"*"))
	if err != nil {
		return
	}
	for _, v := range versions {
		if !slices.Contains(keep, filepath.Base(v)) {
			os.RemoveAll(v)
		}
	}
}

func versionPrefix(base string) string {
	return "." + base + ".v-"
}

// objectDir возвращает директорию объекта. id обязан быть UUID,
// что исключает выход за пределы dataDir.
func (fs *FileStore) objectDir(bucket blobstore.Bucket, id string) (string, error) {
	if !bucket.Valid() {
		return "", fmt.Errorf("неизвестный bucket %q", bucket)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("некорректный id blob-а %q: %w", id, err)
	}
	return filepath.Join(fs.dataDir, string(bucket), parsed.String()), nil
}

// dirSource — chunk.Source поверх открытой директории версии.
type dirSource struct {
	root *os.Root
}

func (s *dirSource) Fetch(_ context.Context, n int) (chunk.Encoded, error) {
	raw, err := readRootFile(s.root, strconv.Itoa(n)+chunkSuffix)
	if err != nil {
		if os.IsNotExist(err) {
			return chunk.Encoded{}, fmt.Errorf("файл чанка отсутствует: %w", blobstore.ErrBlobNotFound)
		}
		return chunk.Encoded{}, fmt.Errorf("ошибка чтения чанка: %w", err)
	}
	return decodeChunkFile(raw)
}

func readManifest(root *os.Root) (chunk.Manifest, error) {
	var manifest chunk.Manifest
	raw, err := readRootFile(root, manifestName)
	if err != nil {
		return manifest, err
	}
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return manifest, fmt.Errorf("повреждённый manifest: %w", err)
	}
	return manifest, nil
}

func readRootFile(root *os.Root, name string) ([]byte, error) {
	f, err := root.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// writeChunkFile записывает чанк: заголовок + payload, с fsync.
func writeChunkFile(path string, enc chunk.Encoded) error {
	buf := make([]byte, chunkHeaderSize+len(enc.Data))
	buf[0] = byte(enc.Compression)
	binary.BigEndian.PutUint32(buf[1:5], uint32(enc.RawSize)) //nolint:gosec // размер чанка ограничен DM_BLOB_CHUNK_SIZE
	copy(buf[5:chunkHeaderSize], enc.Hash[:])
	copy(buf[chunkHeaderSize:], enc.Data)
	return writeFileSync(path, buf)
}

// decodeChunkFile разбирает файл чанка.
func decodeChunkFile(raw []byte) (chunk.Encoded, error) {
	if len(raw) < chunkHeaderSize {
		return chunk.Encoded{}, errors.New("файл чанка короче заголовка")
	}
	enc := chunk.Encoded{
		Compression: chunk.Compression(raw[0]),
		RawSize:     int(binary.BigEndian.Uint32(raw[1:5])),
		Data:        raw[chunkHeaderSize:],
	}
	copy(enc.Hash[:], raw[5:chunkHeaderSize])
	return enc, nil
}

// writeFileSync создаёт файл, записывает данные и выполняет fsync.
func writeFileSync(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("ошибка создания файла %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("ошибка записи данных: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("ошибка fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}
	return nil
}

var _ blobstore.Store = (*FileStore)(nil)
