// Package registry is the client for the site-wide configuration and
// telemetry store.
//
// The store is hierarchical and live: paths like /i/camd/etime hold the
// current value of a parameter, and other systems publish telemetry
// (dome azimuth, enclosure weather) the same way. It is carried over
// MQTT retained messages — a put is a retained publish on the topic
// matching the path, a get reads the retained value with a bounded
// wait, and a touch (re)creates the topic so monitoring tools see it
// before the first real write.
//
// Connecting retries indefinitely with a fixed backoff; the daemon is
// not useful without the registry, and the original operational policy
// is to wait for it rather than fail.
package registry
