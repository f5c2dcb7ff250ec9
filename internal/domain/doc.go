// Package domain models historical tsunami events, the stations that watch
// for them, and the pure computations the playback engine runs on every
// evaluation: distance, wave arrival, synthetic wave heights and severity.
//
// # Seismic Events
//
// Events come from a fixed catalog (see [Catalog]). Each event carries its
// epicenter, moment magnitude, hypocenter depth, and the UTC instant it
// historically occurred. Simulated time is measured in minutes since that
// instant.
//
// # Wave Propagation
//
// Arrival time is great-circle distance divided by a single deep-ocean
// propagation speed (12 km/min, about 720 km/h). Every caller in the
// service uses the same [WaveModel], so the map, the status feed and the
// CLI agree on when a wave reaches a station.
//
// Heights are synthetic:
//
//	background:  1.0 m ± 0.1 m, 60 minute sinusoid
//	signal:      three pulses at arrival + {0, 15, 35} min
//	             amplitude (M - 7) × 2.5 m / (1 + d / 500 km)
//	             relative {1.0, 0.6, 0.35}, decay {60, 75, 90} min
//	noise floor: signals under 5 cm are reported as zero
//
// # Severity Classification
//
// A trailing window of heights maps to a four-level ordered scale:
//
//	Critical: current > 7 m (emergency above 10 m)
//	High:     current > 4 m, or > 2.5 m while rising more than 30%
//	Medium:   current > 2.5 m, or rising more than 20%,
//	          or trailing mean > 2 m on a non-decreasing trend
//	Normal:   otherwise
//
// The percent change divides by max(previous, 0.5 m) so the background
// wobble near 1 m never reads as a surge.
package domain
