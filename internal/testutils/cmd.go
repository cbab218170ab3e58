// Package testutils provides helper functions for testing
package testutils

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
)

// CmdTestCase describes the expected shape of one cobra flag.
type CmdTestCase struct {
	Name           string
	Short          string
	Required       bool
	Dirname        bool
	FilenameExts   []string
	PersistentFlag bool
	BaseCmd        *cobra.Command
}

// FlagTestHelper checks that the flag described by testCase is declared on its command
// with the expected shorthand and shell completion annotations.
func FlagTestHelper(t *testing.T, testCase CmdTestCase) {
	t.Helper()

	var flag *pflag.Flag
	if testCase.PersistentFlag {
		flag = testCase.BaseCmd.PersistentFlags().Lookup(testCase.Name)
	} else {
		flag = testCase.BaseCmd.Flags().Lookup(testCase.Name)
	}
	if !assert.NotNil(t, flag, "Flag %q should be declared on %q", testCase.Name, testCase.BaseCmd.Name()) {
		return
	}
	assert.Equal(t, testCase.Short, flag.Shorthand, "Unexpected shorthand")

	if testCase.Required {
		assert.Equal(t, []string{"true"}, flag.Annotations[cobra.BashCompOneRequiredFlag], "Flag should be required")
	} else {
		assert.Nil(t, flag.Annotations[cobra.BashCompOneRequiredFlag], "Flag should not be required")
	}

	if testCase.Dirname {
		assert.Equal(t, []string{}, flag.Annotations[cobra.BashCompSubdirsInDir], "Flag should complete directories")
	} else {
		assert.Nil(t, flag.Annotations[cobra.BashCompSubdirsInDir], "Flag should not complete directories")
	}

	if testCase.FilenameExts != nil {
		assert.Equal(t, testCase.FilenameExts, flag.Annotations[cobra.BashCompFilenameExt], "Unexpected file completion")
	} else {
		assert.Nil(t, flag.Annotations[cobra.BashCompFilenameExt], "Flag should not complete files")
	}
}
