package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bigkaa/goartstore/drive-module/internal/domain/model"
)

// --- Mock DBTX ---

// fakeRow — pgx.Row, возвращающий заранее заданные значения или ошибку.
type fakeRow struct {
	values []any
	err    error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case **string:
			*p, _ = r.values[i].(*string)
		case *time.Time:
			*p = r.values[i].(time.Time)
		case **time.Time:
			*p, _ = r.values[i].(*time.Time)
		default:
			return errors.New("неподдерживаемый тип назначения")
		}
	}
	return nil
}

// mockDB — DBTX с перехватом QueryRow.
type mockDB struct {
	queryRowFn func(sql string, args ...any) pgx.Row
	lastSQL    string
}

func (m *mockDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("не используется")
}

func (m *mockDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("не используется")
}

func (m *mockDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	m.lastSQL = sql
	return m.queryRowFn(sql, args...)
}

const testFileID = "0b7c4f7e-2a1d-4c8e-9f3a-5d6e7f8a9b0c"

// TestGetByID_Found проверяет маппинг столбцов в DriveFile.
func TestGetByID_Found(t *testing.T) {
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	db := &mockDB{queryRowFn: func(_ string, args ...any) pgx.Row {
		if args[0] != testFileID {
			t.Errorf("аргумент = %v, ожидался %s", args[0], testFileID)
		}
		return &fakeRow{values: []any{
			testFileID, "image/png", "chunked", (*string)(nil),
			(*string)(nil), (*string)(nil), model.StrPtr("k1"), (*time.Time)(nil), created,
		}}
	}}

	f, err := NewFileRepository(db).GetByID(context.Background(), testFileID)
	if err != nil {
		t.Fatalf("GetByID ошибка: %v", err)
	}
	if f.HostingMode != model.HostingChunked {
		t.Errorf("HostingMode = %q, ожидался chunked", f.HostingMode)
	}
	if !f.HasAccessKey() || *f.AccessKey != "k1" {
		t.Error("ожидался ключ доступа k1")
	}
	if f.IsDeleted() {
		t.Error("файл не должен быть удалён")
	}
	if !f.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, ожидался %v", f.CreatedAt, created)
	}
	if !strings.Contains(db.lastSQL, "FROM drive_files") {
		t.Errorf("запрос %q не обращается к drive_files", db.lastSQL)
	}
}

// TestGetByID_NotFound проверяет маппинг pgx.ErrNoRows в ErrNotFound.
func TestGetByID_NotFound(t *testing.T) {
	db := &mockDB{queryRowFn: func(string, ...any) pgx.Row {
		return &fakeRow{err: pgx.ErrNoRows}
	}}

	_, err := NewFileRepository(db).GetByID(context.Background(), testFileID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ошибка = %v, ожидалась ErrNotFound", err)
	}
}

// TestGetByID_DBError проверяет, что ошибка БД не маскируется под ErrNotFound.
func TestGetByID_DBError(t *testing.T) {
	dbErr := errors.New("connection reset")
	db := &mockDB{queryRowFn: func(string, ...any) pgx.Row {
		return &fakeRow{err: dbErr}
	}}

	_, err := NewFileRepository(db).GetByID(context.Background(), testFileID)
	if !errors.Is(err, dbErr) || errors.Is(err, ErrNotFound) {
		t.Errorf("ошибка = %v, ожидалась обёрнутая ошибка БД", err)
	}
}

// TestGetByID_UnknownHostingMode проверяет отказ на неизвестном hosting_mode.
func TestGetByID_UnknownHostingMode(t *testing.T) {
	db := &mockDB{queryRowFn: func(string, ...any) pgx.Row {
		return &fakeRow{values: []any{
			testFileID, "image/png", "local", (*string)(nil),
			(*string)(nil), (*string)(nil), (*string)(nil), (*time.Time)(nil), time.Now(),
		}}
	}}

	if _, err := NewFileRepository(db).GetByID(context.Background(), testFileID); err == nil {
		t.Error("ожидалась ошибка для hosting_mode = local")
	}
}

// TestGetRepresentation_Tables проверяет выбор таблицы по виду представления.
func TestGetRepresentation_Tables(t *testing.T) {
	tests := []struct {
		name  string
		call  func(FileRepository) (*model.Representation, error)
		table string
		kind  model.RepresentationKind
	}{
		{
			name: "thumbnail",
			call: func(r FileRepository) (*model.Representation, error) {
				return r.GetThumbnail(context.Background(), testFileID)
			},
			table: "drive_file_thumbnails",
			kind:  model.RepresentationThumbnail,
		},
		{
			name: "webpublic",
			call: func(r FileRepository) (*model.Representation, error) {
				return r.GetWebpublic(context.Background(), testFileID)
			},
			table: "drive_file_webpublics",
			kind:  model.RepresentationWebpublic,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &mockDB{queryRowFn: func(string, ...any) pgx.Row {
				return &fakeRow{values: []any{"rep-id", testFileID, time.Now()}}
			}}

			rep, err := tt.call(NewFileRepository(db))
			if err != nil {
				t.Fatalf("ошибка: %v", err)
			}
			if rep.Kind != tt.kind || rep.ID != "rep-id" || rep.OriginalFileID != testFileID {
				t.Errorf("представление = %+v", rep)
			}
			if !strings.Contains(db.lastSQL, "FROM "+tt.table) {
				t.Errorf("запрос %q не обращается к %s", db.lastSQL, tt.table)
			}
			if !strings.Contains(db.lastSQL, "ORDER BY created_at DESC") {
				t.Errorf("запрос %q не выбирает последнюю запись", db.lastSQL)
			}
		})
	}
}

// TestGetThumbnail_NotFound проверяет ErrNotFound при отсутствии представления.
func TestGetThumbnail_NotFound(t *testing.T) {
	db := &mockDB{queryRowFn: func(string, ...any) pgx.Row {
		return &fakeRow{err: pgx.ErrNoRows}
	}}

	_, err := NewFileRepository(db).GetThumbnail(context.Background(), testFileID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ошибка = %v, ожидалась ErrNotFound", err)
	}
}

// TestRepresentationTable_Original проверяет, что для original таблицы нет.
func TestRepresentationTable_Original(t *testing.T) {
	if _, err := representationTable(model.RepresentationOriginal); err == nil {
		t.Error("ожидалась ошибка для original")
	}
}
