package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/venuesense/internal/beacon"
)

var parseCmd = &cobra.Command{
	Use:   "parse <hex>",
	Short: "Decode iBeacon manufacturer data",
	Long: `Decode iBeacon manufacturer data and estimate the beacon distance.

The hex may include the little-endian company identifier (4c00...) or start
directly at the iBeacon frame (0215...). Spaces, colons and a 0x prefix are
accepted.`,
	Example: `  venuesense parse 4c000215f7826da64fa24e988024bc5b71e0893e00640001c5 --rssi -70`,
	Args:    cobra.ExactArgs(1),
	RunE:    runParse,
}

var parseRSSI int

func init() {
	parseCmd.Flags().IntVar(&parseRSSI, "rssi", 0, "Measured RSSI in dBm, used for the distance estimate")
}

func runParse(cmd *cobra.Command, args []string) error {
	raw, err := decodeHex(args[0])
	if err != nil {
		return fmt.Errorf("invalid hex data: %w", err)
	}

	cmd.SilenceUsage = true

	obs, err := decodeIBeacon(raw, parseRSSI)
	if err != nil {
		return err
	}
	printObservation(cmd.OutOrStdout(), obs)
	return nil
}

// decodeHex accepts "4c00...", "4c 00 ...", "4c:00:..." and "0x4c00..."
func decodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.NewReplacer(" ", "", ":", "", "-", "").Replace(s)
	if s == "" {
		return nil, fmt.Errorf("empty input")
	}
	return hex.DecodeString(s)
}

// decodeIBeacon parses manufacturer data with or without the company id
func decodeIBeacon(raw []byte, rssi int) (beacon.Observation, error) {
	at := time.Now()

	companyID := beacon.AppleCompanyID
	if beacon.HasIBeaconPrefix(raw) {
		companyID = beacon.UnknownCompanyID
	}

	obs, ok, err := beacon.ParseManufacturerData(companyID, raw, rssi, at)
	if err != nil {
		return beacon.Observation{}, err
	}
	if !ok {
		return beacon.Observation{}, fmt.Errorf("not an iBeacon frame (%d bytes)", len(raw))
	}
	return obs, nil
}

func printObservation(w io.Writer, obs beacon.Observation) {
	label := color.New(color.FgCyan).SprintFunc()

	fmt.Fprintf(w, "%s %s\n", label("UUID:    "), obs.ProximityUUID)
	fmt.Fprintf(w, "%s %d\n", label("Major:   "), obs.Major)
	fmt.Fprintf(w, "%s %d\n", label("Minor:   "), obs.Minor)
	fmt.Fprintf(w, "%s %d dBm\n", label("TxPower: "), obs.TxPower)

	if !obs.HasDistance() {
		fmt.Fprintf(w, "%s unknown\n", label("Distance:"))
		return
	}
	fmt.Fprintf(w, "%s %.2f m (RSSI %d dBm)\n", label("Distance:"), obs.Distance, obs.RSSI)
}
