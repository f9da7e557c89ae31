package cmd

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagOnlyScanCmd() *cobra.Command {
	c := &cobra.Command{Use: "scan"}
	c.Flags().StringArray("exclude", nil, "")
	c.Flags().Bool("json", false, "")
	return c
}

func TestRunScan_RejectsInvalidExcludePattern(t *testing.T) {
	c := newFlagOnlyScanCmd()
	require.NoError(t, c.ParseFlags([]string{"--exclude", "("}))

	err := runScan(c, nil)
	assert.Error(t, err)
}
