// Package stack accumulates background-corrected sensor frames into a
// single image.
//
// A Store owns the shared accumulator that sits between the capture
// goroutine (delivering frames as the device produces them) and the
// acquisition controller (waiting out the exposure window and collapsing
// the accumulator into a final pixel buffer). Each delivered frame has
// its median pixel value subtracted as a background estimate before it
// is folded into the running sum. Finalizing an exposure subtracts the
// accumulator-wide minimum so the corrected output has a floor of zero.
//
// All accumulator state is guarded by a single mutex; a condition
// variable wakes the controller as frames arrive.
package stack
