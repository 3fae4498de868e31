package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublicURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		key  string
		want string
	}{
		{"plain", "https://cdn.example.com", "logos/a.png", "https://cdn.example.com/logos/a.png"},
		{"trailing slash", "https://cdn.example.com/", "logos/a.png", "https://cdn.example.com/logos/a.png"},
		{"leading slash key", "https://cdn.example.com", "/logos/a.png", "https://cdn.example.com/logos/a.png"},
		{"dot segments", "https://cdn.example.com", "logos/../logos/./a.png", "https://cdn.example.com/logos/a.png"},
		{"bucket path", "https://acct.r2.cloudflarestorage.com/games", "logos/b.webp", "https://acct.r2.cloudflarestorage.com/games/logos/b.webp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PublicURL(tt.base, tt.key))
		})
	}
}
