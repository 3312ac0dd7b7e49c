// Package device defines the boundary to vendor camera SDKs.
//
// A Capability is everything the acquisition controller needs from a
// camera: open/initialize/configure, exposure and gain controls, trigger,
// status polling, and pixel readout. Devices that push frames from their
// own capture thread additionally implement FrameSource; the acquisition
// controller stacks those frames instead of polling for a single readout.
//
// The package ships one concrete implementation, Webcam, built on gocv,
// used on the bench to exercise the full pipeline without observatory
// hardware. Real vendor SDKs plug in behind the same interfaces.
package device
