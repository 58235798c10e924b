package model

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrInvalidFileID — идентификатор не соответствует формату blob store.
var ErrInvalidFileID = errors.New("некорректный идентификатор файла")

// uuidCanonicalLen — длина UUID в форме xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx.
const uuidCanonicalLen = 36

// ParseFileID проверяет идентификатор файла и возвращает его каноническую форму.
// Принимается только форма из 36 символов: uuid.Parse допускает также
// urn:uuid:, фигурные скобки и форму без дефисов, которые в URL не используются.
func ParseFileID(raw string) (string, error) {
	if len(raw) != uuidCanonicalLen {
		return "", fmt.Errorf("%w: ожидалось %d символов", ErrInvalidFileID, uuidCanonicalLen)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidFileID, err)
	}
	return id.String(), nil
}
