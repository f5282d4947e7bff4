package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/srg/venuesense/geofence"
	"github.com/srg/venuesense/pkg/config"
	"github.com/srg/venuesense/venue"
)

var venuesCmd = &cobra.Command{
	Use:   "venues",
	Short: "Validate and list the configured venues",
	Long: `Load the venues file, validate every entry and list the registry in
file order with the geofence radius that would be registered.`,
	Args: cobra.NoArgs,
	RunE: runVenues,
}

var venuesFile string

func init() {
	venuesCmd.Flags().StringVar(&venuesFile, "venues", "", "Venues YAML file (defaults to the config value)")
}

func runVenues(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	registry, err := loadRegistry(pickVenuesFile(venuesFile, cfg))
	if err != nil {
		return err
	}
	printVenues(cmd.OutOrStdout(), registry, cfg.Geofence.RadiusMeters)
	return nil
}

func pickVenuesFile(flag string, cfg *config.Config) string {
	if flag != "" {
		return flag
	}
	return cfg.VenuesFile
}

// loadRegistry reads and validates a venues file into a fresh registry
func loadRegistry(path string) (*venue.Registry, error) {
	venues, err := venue.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if len(venues) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoVenues)
	}

	registry := venue.NewRegistry()
	if err := registry.Replace(venues); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return registry, nil
}

func printVenues(w io.Writer, registry *venue.Registry, defaultRadius float64) {
	if defaultRadius <= 0 {
		defaultRadius = geofence.DefaultRadiusMeters
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tLATITUDE\tLONGITUDE\tRADIUS\tBEACON")
	for _, v := range registry.All() {
		fmt.Fprintf(tw, "%s\t%s\t%.6f\t%.6f\t%.0fm\t%s\n",
			v.ID, v.Name, v.Latitude, v.Longitude, v.EffectiveRadius(defaultRadius), describeBeacon(v.Beacon))
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d venue(s)\n", registry.Len())
}

func describeBeacon(b *venue.BeaconIdentity) string {
	if b == nil {
		return "-"
	}
	if b.Major == nil {
		return b.ProximityUUID.String()
	}
	return fmt.Sprintf("%s/%d", b.ProximityUUID, *b.Major)
}
