package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmdRegistersDataDirAndVerboseFlags(t *testing.T) {
	cmd := rootCmd()

	require.NotNil(t, cmd.Flags().Lookup("data-dir"), "expected --data-dir flag to be registered")
	verbose := cmd.Flags().Lookup("verbose")
	require.NotNil(t, verbose, "expected -v/--verbose flag to be registered")
	assert.Equal(t, "v", verbose.Shorthand)
}
