package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructDatabaseURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		dbName  string
		want    string
	}{
		{
			name:    "no database name",
			baseURL: "postgres://u:p@localhost:5432",
			want:    "postgres://u:p@localhost:5432",
		},
		{
			name:    "plain base",
			baseURL: "postgres://u:p@localhost:5432/",
			dbName:  "queuebot",
			want:    "postgres://u:p@localhost:5432/queuebot?sslmode=disable",
		},
		{
			name:    "existing query",
			baseURL: "postgres://u:p@localhost:5432?connect_timeout=5",
			dbName:  "queuebot",
			want:    "postgres://u:p@localhost:5432/queuebot?connect_timeout=5&sslmode=disable",
		},
		{
			name:    "explicit sslmode kept",
			baseURL: "postgres://u:p@db:5432?sslmode=require",
			dbName:  "queuebot",
			want:    "postgres://u:p@db:5432/queuebot?sslmode=require",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConstructDatabaseURL(tt.baseURL, tt.dbName))
		})
	}
}
