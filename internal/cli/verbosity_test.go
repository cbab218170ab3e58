package cli_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/cadracks/cad2web/internal/cli"
	"github.com/cadracks/cad2web/internal/constants"
	"github.com/stretchr/testify/assert"
)

// Copy of the default logger, restored between cases.
var defaultLogger = *slog.Default()

func TestSetVerbosity(t *testing.T) {
	tests := map[string]struct {
		counts []int

		wantLevel slog.Level
	}{
		"No flag keeps warnings only": {counts: []int{0}, wantLevel: constants.DefaultLogLevel},
		"One flag enables info":       {counts: []int{1}, wantLevel: slog.LevelInfo},
		"Two flags enable debug":      {counts: []int{2}, wantLevel: slog.LevelDebug},
		"More flags stay at debug":    {counts: []int{5}, wantLevel: slog.LevelDebug},

		"Lowering after info":                   {counts: []int{1, 0}, wantLevel: constants.DefaultLogLevel},
		"Raising from info to debug":            {counts: []int{1, 2}, wantLevel: slog.LevelDebug},
		"Config file resets command line value": {counts: []int{2, 0}, wantLevel: constants.DefaultLogLevel},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			slog.SetDefault(&defaultLogger)
			t.Cleanup(func() { slog.SetDefault(&defaultLogger) })

			for _, c := range tc.counts {
				cli.SetVerbosity(c)
			}

			ctx := context.Background()
			assert.True(t, slog.Default().Enabled(ctx, tc.wantLevel), "Level %s should be enabled", tc.wantLevel)
			assert.False(t, slog.Default().Enabled(ctx, tc.wantLevel-1), "Level below %s should be disabled", tc.wantLevel)
		})
	}
}
