// Package audit relays client audit events to a sink off the caller's
// goroutine.
//
//   - [Event]: one operation with its component, principal, organization,
//     request id and error code.
//   - [Sink]: event consumer. [JSONWriterSink] writes JSON lines,
//     [ChannelSink] feeds a channel, [FilterSink] narrows another sink.
//   - [Dispatcher]: bounded queue with drop-if-full or blocking emit and a
//     time-bounded drain on Close.
//
// The package does not decide which events exist; the goTenant components
// emit them. It must not import goTenant or sibling internal packages.
package audit
