// Package acquire drives one imaging device through exposure cycles.
//
// A Session is the process-wide device state: exposure time, gain, and
// the frame sequence counter. A Controller runs one acquisition from
// trigger to encoded FITS bytes, choosing its strategy from the device:
// poll-driven single-shot readout for cameras with an exposure cycle,
// or stacking of continuously delivered frames for cameras that push
// from a capture thread.
//
// Exactly one exposure runs at a time. The controller holds an explicit
// exposure lock and rejects a request that arrives while another is in
// flight, rather than letting two clients interleave accumulator
// resets.
package acquire
