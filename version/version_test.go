package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	info := Get()
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.String(), "jobd")
}

func TestShort(t *testing.T) {
	assert.Equal(t, "abcdef1", Info{CommitHash: "abcdef1234"}.Short())
	assert.Equal(t, "dev", Info{CommitHash: "dev"}.Short())
}

func TestCheckCompatible(t *testing.T) {
	tests := []struct {
		client, server string
		compatible     bool
	}{
		{"1.2.3", "1.9.0", true},
		{"1.2.3", "1.0.0", true},
		{"1.2.3", "2.0.0", false},
		{"2.0.0", "1.9.9", false},
		{"0.5.0", "0.5.7", true},
		{"0.5.0", "0.6.0", false},
		{"v1.4.0", "1.4.1", true},
		{"dev", "3.0.0", true},
		{"1.0.0", "dev", true},
		{"1.0.0", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.client+" vs "+tt.server, func(t *testing.T) {
			err := CheckCompatible(tt.client, tt.server)
			if tt.compatible {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}

	t.Run("garbage versions", func(t *testing.T) {
		require.Error(t, CheckCompatible("banana", "1.0.0"))
		require.Error(t, CheckCompatible("1.0.0", "banana"))
	})
}
