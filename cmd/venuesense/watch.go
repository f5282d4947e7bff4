package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/venuesense/geofence"
	"github.com/srg/venuesense/internal/groutine"
	"github.com/srg/venuesense/internal/mqttpub"
	"github.com/srg/venuesense/pkg/config"
	"github.com/srg/venuesense/presence"
	"github.com/srg/venuesense/scanner"
	"github.com/srg/venuesense/venue"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Monitor venues and print presence changes",
	Long: `Register a geofence per venue, feed it with location fixes and scan for
the venue's beacon network while inside. Every presence change is printed.

Location fixes are JSON lines, one per fix:

  {"latitude": 40.4468, "longitude": -80.0158, "timestamp": "2026-10-04T19:00:00Z"}

A missing timestamp means "now". Press Ctrl+C to stop monitoring.`,
	Example: `  venuesense watch --venues venues.yaml --fixes track.jsonl
  gpspipe -w | jq -c '{latitude: .lat, longitude: .lon}' | venuesense watch --fixes -`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var (
	watchVenuesFile  string
	watchFixes       string
	watchFormat      string
	watchMQTTBroker  string
	watchVenuesWatch bool
)

func init() {
	watchCmd.Flags().StringVar(&watchVenuesFile, "venues", "", "Venues YAML file (defaults to the config value)")
	watchCmd.Flags().StringVar(&watchFixes, "fixes", "-", "JSON-lines location fixes file, - for stdin")
	watchCmd.Flags().StringVarP(&watchFormat, "format", "f", "text", "Output format (text, json)")
	watchCmd.Flags().StringVar(&watchMQTTBroker, "mqtt-broker", "", "Publish presence to this MQTT broker (enables MQTT)")
	watchCmd.Flags().BoolVar(&watchVenuesWatch, "watch-venues", false, "Reload venues when the file changes")
}

// pipeline is the wired presence stack: a software geofence evaluator feeding
// the geofence source, which drives the engine.
type pipeline struct {
	evaluator *geofence.Evaluator
	source    *geofence.Source
	engine    *presence.Engine
}

func newPipeline(cfg *config.Config, beacons presence.BeaconScanner, logger *logrus.Logger) (*pipeline, error) {
	var source *geofence.Source
	evaluator := geofence.NewEvaluator(func(d *geofence.Delivery) {
		source.Deliver(d)
	}, logger)

	source = geofence.NewSource(evaluator,
		geofence.WithLogger(logger),
		geofence.WithDefaults(geofence.Defaults{
			RadiusMeters: cfg.Geofence.RadiusMeters,
			Expiration:   cfg.Geofence.Expiration,
			LoiterDelay:  cfg.Geofence.LoiterDelay,
		}),
	)

	opts := []presence.Option{
		presence.WithLogger(logger),
		presence.WithInboxSize(cfg.Engine.InboxSize),
		presence.WithNearThreshold(cfg.Beacon.NearThresholdMeters),
	}
	network, err := cfg.ParsedNetworkUUID()
	if err != nil {
		return nil, err
	}
	if network != nil {
		opts = append(opts, presence.WithNetworkUUID(*network))
	}

	engine := presence.NewEngine(nil, source, beacons, opts...)
	source.SetHandler(engine.HandleTransition)

	return &pipeline{evaluator: evaluator, source: source, engine: engine}, nil
}

func runWatch(cmd *cobra.Command, _ []string) error {
	if watchFormat != "text" && watchFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [text json]", watchFormat)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	if watchMQTTBroker != "" {
		cfg.MQTT.Enabled = true
		cfg.MQTT.Broker = watchMQTTBroker
	}
	if cmd.Flags().Changed("watch-venues") {
		cfg.WatchVenues = watchVenuesWatch
	}
	path := pickVenuesFile(watchVenuesFile, cfg)

	venues, err := venue.LoadFile(path)
	if err != nil {
		return err
	}
	if len(venues) == 0 {
		return fmt.Errorf("%s: %w", path, ErrNoVenues)
	}

	fixes, closeFixes, err := openFixes(watchFixes, cmd.InOrStdin())
	if err != nil {
		return err
	}
	defer closeFixes()

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	p, err := newPipeline(cfg, scanner.NewSession(scanner.WithLogger(logger)), logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Listen for Ctrl+C to stop monitoring
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(cmd.ErrOrStderr(), "\nCtrl+C pressed, stopping monitoring...")
			cancel()
		case <-ctx.Done():
		}
	}()

	sub := p.engine.Subscribe()
	defer sub.Close()

	if cfg.MQTT.Enabled {
		pub, err := mqttpub.Connect(mqttpub.Config{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			QoS:      cfg.MQTT.QoS,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		}, cfg.Beacon.NearThresholdMeters, logger)
		if err != nil {
			return err
		}
		defer pub.Close()

		mqttSub := p.engine.Subscribe()
		defer mqttSub.Close()
		groutine.Go(ctx, "mqtt-publisher", func(ctx context.Context) {
			pub.Run(ctx, mqttSub)
		})
	}

	if err := p.engine.StartMonitoring(ctx, venues); err != nil {
		return err
	}

	reloader := &venueReloader{engine: p.engine, logger: logger}
	var watcherDone <-chan struct{}
	if cfg.WatchVenues {
		watcher := venue.NewWatcher(path, func(vs []venue.Venue) {
			reloader.apply(ctx, vs)
		}, logger, venue.DefaultReloadDelay)
		watcherDone = groutine.Go(ctx, "venue-watcher", func(ctx context.Context) {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).Warn("Venue file watching stopped")
			}
		})
	}
	defer func() {
		// no reload may restart the engine once it is stopped
		cancel()
		reloader.stop()
		if watcherDone != nil {
			<-watcherDone
		}
		if err := p.engine.StopMonitoring(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to stop monitoring cleanly")
		}
	}()

	fixesErr := make(chan error, 1)
	groutine.Go(ctx, "location-fixes", func(ctx context.Context) {
		fixesErr <- feedFixes(ctx, fixes, p.evaluator, logger)
	})

	out := cmd.OutOrStdout()
	threshold := p.engine.NearThreshold()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-fixesErr:
			if err != nil {
				return fmt.Errorf("reading location fixes: %w", err)
			}
			logger.Info("Location fixes exhausted, waiting for Ctrl+C")
		case pres, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := printPresence(out, pres, threshold, watchFormat); err != nil {
				return err
			}
		}
	}
}

// venueReloader applies reloaded venue sets to the engine until stopped
type venueReloader struct {
	mu      sync.Mutex
	stopped bool
	engine  *presence.Engine
	logger  *logrus.Logger
}

func (r *venueReloader) apply(ctx context.Context, venues []venue.Venue) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		r.logger.Debug("Ignoring venue reload after shutdown")
		return
	}
	if err := r.engine.StartMonitoring(ctx, venues); err != nil {
		r.logger.WithError(err).Warn("Failed to apply reloaded venues")
	}
}

// stop waits for an in-flight reload and rejects later ones
func (r *venueReloader) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
}

// openFixes opens the fixes file; "-" and "" read from stdin
func openFixes(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening location fixes: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// feedFixes decodes JSON-lines location fixes into the evaluator. Blank lines
// and lines starting with '#' are skipped; malformed lines are logged and skipped.
func feedFixes(ctx context.Context, r io.Reader, evaluator *geofence.Evaluator, logger *logrus.Logger) error {
	lines := bufio.NewScanner(r)
	lineNo := 0
	for lines.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}
		lineNo++

		line := strings.TrimSpace(lines.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var loc geofence.Location
		if err := json.Unmarshal([]byte(line), &loc); err != nil {
			logger.WithError(err).WithField("line", lineNo).Warn("Skipping malformed location fix")
			continue
		}
		evaluator.Update(loc)
	}
	return lines.Err()
}

func printPresence(w io.Writer, p presence.Presence, threshold float64, format string) error {
	if format == "json" {
		b, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encoding presence: %w", err)
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	}
	_, err := fmt.Fprintln(w, formatPresence(p, threshold))
	return err
}

// formatPresence renders one snapshot as a single status line
func formatPresence(p presence.Presence, threshold float64) string {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow, color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	var b strings.Builder
	if !p.InVenue() {
		b.WriteString(dim("outside"))
	} else {
		b.WriteString(green("in " + p.VenueID))
		if p.Venue != nil && p.Venue.Name != "" {
			fmt.Fprintf(&b, " (%s)", p.Venue.Name)
		}
	}

	if p.BeaconScanning {
		b.WriteString(" | scanning")
	}
	if d := p.NearestBeaconDistance; d != nil {
		fmt.Fprintf(&b, " | nearest %.1fm", *d)
		if p.IsNear(threshold) {
			b.WriteString(" " + yellow("NEAR"))
		}
	}
	if ev := describeEvent(p.LastEvent); ev != "" {
		b.WriteString(" | last " + ev)
	}
	return b.String()
}

func describeEvent(ev presence.Event) string {
	switch {
	case ev.Transition != nil:
		t := ev.Transition
		return fmt.Sprintf("%s %s at %s", t.Kind, t.VenueID, t.Timestamp.UTC().Format("15:04:05"))
	case ev.Observation != nil:
		o := ev.Observation
		if !o.HasDistance() {
			return fmt.Sprintf("beacon %d/%d", o.Major, o.Minor)
		}
		return fmt.Sprintf("beacon %d/%d at %.1fm", o.Major, o.Minor, o.Distance)
	}
	return ""
}
