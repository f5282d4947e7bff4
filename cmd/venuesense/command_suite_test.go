package main

import (
	"bytes"
	"context"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/venuesense/internal/testutils"
	"github.com/stretchr/testify/suite"
)

const venuesYAML = `
venues:
  - id: stadium
    name: Riverside Stadium
    latitude: 40.4468
    longitude: -80.0158
    radius_meters: 250
    beacon:
      proximity_uuid: f7826da6-4fa2-4e98-8024-bc5b71e0893e
      major: 100
  - id: arena
    name: Downtown Arena
    latitude: 40.4395
    longitude: -79.9892
`

// CommandTestSuite provides command execution helpers for cmd/venuesense suites.
type CommandTestSuite struct {
	suite.Suite

	helper  *testutils.TestHelper
	noColor bool
}

func (s *CommandTestSuite) SetupSuite() {
	s.noColor = color.NoColor
	color.NoColor = true
}

func (s *CommandTestSuite) TearDownSuite() {
	color.NoColor = s.noColor
}

func (s *CommandTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())

	// persistent flags keep their values between Execute calls
	for _, name := range []string{"config", "log-level"} {
		s.Require().NoError(rootCmd.PersistentFlags().Set(name, ""))
	}
	s.Require().NoError(rootCmd.PersistentFlags().Set("verbose", "false"))
}

// ExecuteCommand runs the root command with args, returns output and error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	}()
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// newFlagCommand returns a bare command carrying the root's global flags.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("log-level", "", "")
	cmd.Flags().Bool("verbose", false, "")
	cmd.Flags().String("config", "", "")
	return cmd
}
