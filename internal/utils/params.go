package utils

import (
	"errors"
	"strconv"
	"strings"
)

var ErrInvalidID = errors.New("invalid id")

// ParseID parses a positive integer path or query parameter.
func ParseID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, ErrInvalidID
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidID
	}

	return id, nil
}

func FormatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
