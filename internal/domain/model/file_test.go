package model

import (
	"errors"
	"testing"
	"time"
)

// TestParseFileID проверяет валидацию идентификаторов.
func TestParseFileID(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"canonical", "3f2b8c1e-9d4a-4c6b-8e2f-1a2b3c4d5e6f", "3f2b8c1e-9d4a-4c6b-8e2f-1a2b3c4d5e6f", false},
		{"uppercase нормализуется", "3F2B8C1E-9D4A-4C6B-8E2F-1A2B3C4D5E6F", "3f2b8c1e-9d4a-4c6b-8e2f-1a2b3c4d5e6f", false},
		{"пустая строка", "", "", true},
		{"без дефисов", "3f2b8c1e9d4a4c6b8e2f1a2b3c4d5e6f", "", true},
		{"фигурные скобки", "{3f2b8c1e-9d4a-4c6b-8e2f-1a2b3c4d5e6f}", "", true},
		{"object id", "5c1f4a8e9b7d3a0012345678", "", true},
		{"мусор нужной длины", "zzzzzzzz-zzzz-zzzz-zzzz-zzzzzzzzzzzz", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFileID(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidFileID) {
					t.Fatalf("ошибка = %v, ожидалась ErrInvalidFileID", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("неожиданная ошибка: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseFileID(%q) = %q, ожидался %q", tt.raw, got, tt.want)
			}
		})
	}
}

// TestDriveFile_Predicates проверяет вспомогательные предикаты записи.
func TestDriveFile_Predicates(t *testing.T) {
	now := time.Now()
	f := &DriveFile{HostingMode: HostingChunked}

	if f.IsDeleted() || f.IsExternal() || f.HasAccessKey() {
		t.Fatal("пустая chunked-запись не должна быть удалённой, внешней или защищённой")
	}

	f.AccessKey = StrPtr("")
	if f.HasAccessKey() {
		t.Error("пустой ключ доступа не должен защищать оригинал")
	}

	f.AccessKey = StrPtr("abc")
	f.DeletedAt = &now
	f.HostingMode = HostingExternal
	if !f.IsDeleted() || !f.IsExternal() || !f.HasAccessKey() {
		t.Error("ожидались IsDeleted, IsExternal и HasAccessKey = true")
	}

	if HostingMode("gridfs").Valid() {
		t.Error("неизвестный режим хостинга не должен быть валидным")
	}
}
