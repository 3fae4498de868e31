package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCertificates(t *testing.T) {
	tests := []struct {
		badges int64
		want   int64
	}{
		{badges: 0, want: 0},
		{badges: 1, want: 0},
		{badges: 2, want: 0},
		{badges: 3, want: 1},
		{badges: 5, want: 1},
		{badges: 6, want: 2},
		{badges: 9, want: 3},
		{badges: -4, want: 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Certificates(tt.badges), "badges=%d", tt.badges)
	}

	for b := int64(0); b < 100; b++ {
		assert.Equal(t, b/3, Certificates(b))
	}
}
