// Package geofence turns platform geofence callbacks into typed transitions.
//
// Source owns the platform registration set: it registers venues from a
// venue.Registry with a LocationService, validates raw deliveries and
// forwards one Transition per triggering venue to a handler. Evaluator is
// a software LocationService for hosts with no platform geofencing; it is
// fed location fixes and delivers through the same Delivery shape.
package geofence
