package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithParseTime(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"user:pass@tcp(db:3306)/bot", "user:pass@tcp(db:3306)/bot?parseTime=true"},
		{"user:pass@tcp(db:3306)/bot?charset=utf8mb4", "user:pass@tcp(db:3306)/bot?charset=utf8mb4&parseTime=true"},
		{"user:pass@tcp(db:3306)/bot?parseTime=false", "user:pass@tcp(db:3306)/bot?parseTime=false"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, withParseTime(tt.dsn))
	}
}
