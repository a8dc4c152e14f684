package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeOrigin(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://Xalvion.Example", "https://xalvion.example", true},
		{"http://localhost:3000/path?q=1", "http://localhost:3000", true},
		{"localhost:3000", "", false},
		{"/relative", "", false},
	}
	for _, tt := range tests {
		got, ok := normalizeOrigin(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestOriginAllowed(t *testing.T) {
	t.Cleanup(func() { SetConfig(nil) })

	cfg := NewConfig()
	cfg.AllowedOrigins = []string{"https://xalvion.example"}
	SetConfig(cfg)

	assert.True(t, originAllowed("https://xalvion.example"))
	assert.True(t, originAllowed("https://XALVION.example"))
	assert.False(t, originAllowed("http://xalvion.example"))
	assert.False(t, originAllowed(""))

	cfg.AllowedOrigins = []string{"*"}
	SetConfig(cfg)

	assert.True(t, originAllowed("https://anything.example"))
	assert.False(t, originAllowed(""))
	assert.False(t, originAllowed("garbage"))
}
