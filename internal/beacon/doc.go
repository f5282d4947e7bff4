// Package beacon decodes iBeacon advertisements and estimates beacon distance.
//
// Everything here is pure: no I/O, no clocks (callers pass the receive time).
package beacon
