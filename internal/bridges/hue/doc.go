// Package hue is the bridge adapter: it talks to a local lighting bridge
// over its CLIP v2 REST API and follows the bridge's server-sent event
// stream for push updates.
//
// REST calls go through github.com/openhue/openhue-go. The event stream is
// read directly because the client library has no streaming support.
//
// Session lifecycle:
//
//	Connect ──► credential lookup ──► reconnect.Machine
//	                                     │ dial: list lights, open /eventstream/clip/v2
//	                                     │ serve: read events until the stream drops
//	                                     ▼
//	                                  eventbus.Stream ──► bus subscribers
//
// Writes are split into one PUT per field group (on, brightness, color,
// color_temperature) so a bridge rejecting one group does not lose the
// others.
package hue
