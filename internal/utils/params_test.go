package utils

import (
	"errors"
	"testing"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{"1", 1, false},
		{" 42 ", 42, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"abc", 0, true},
		{"1.5", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseID(tt.raw)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidID) {
				t.Fatalf("ParseID(%q): expected ErrInvalidID, got %v", tt.raw, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("ParseID(%q) = %d, %v; want %d", tt.raw, got, err, tt.want)
		}
	}
}
