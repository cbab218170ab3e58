package constants_test

import (
	"errors"
	"testing"

	"github.com/cadracks/cad2web/internal/constants"
	"github.com/stretchr/testify/assert"
)

func TestGetDefaultConfigPath(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		baseDir func() (string, error)

		want string
	}{
		"Base directory": {
			baseDir: func() (string, error) { return "abc/def", nil },
			want:    "abc/def/cad2web",
		},

		"Error on base directory falls back to relative path": {
			baseDir: func() (string, error) { return "", errors.New("error") },
			want:    "cad2web",
		},
		"Error on base directory ignores partial result": {
			baseDir: func() (string, error) { return "abc", errors.New("error") },
			want:    "cad2web",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got := constants.GetDefaultConfigPath(constants.WithUserConfigDir(tc.baseDir))
			assert.Equal(t, tc.want, got)
		})
	}
}
