// Package presence fuses geofence transitions and beacon observations into
// one venue presence snapshot.
//
// An Engine runs a single worker goroutine that owns the presence state and
// processes transitions and observations strictly in arrival order. The
// worker starts a beacon scan on ENTER and stops it on EXIT; a scan failure
// only clears BeaconScanning, geofence presence is kept. Consumers read
// snapshots through Current or a latest-value Subscription.
//
//	eng := presence.NewEngine(registry, source, session)
//	source.SetHandler(eng.HandleTransition)
//	if err := eng.StartMonitoring(ctx, venues); err != nil {
//	    return err
//	}
//	defer eng.StopMonitoring(context.Background())
//
//	sub := eng.Subscribe()
//	for p := range sub.C() {
//	    fmt.Println(p.VenueID, p.BeaconScanning)
//	}
package presence
