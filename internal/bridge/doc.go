// Package bridge runs a bidirectional RPC peer over a native messaging
// stream.
//
// The browser extension and the host exchange [Envelope] values. Requests
// flow in both directions:
//
//   - The extension sends "request" envelopes (organize, cancelTask, ...)
//     which the host answers with a "response" carrying the same id.
//   - The host sends "call" envelopes (tabs.query, tabGroups.update, ...)
//     which the extension answers with a "result" carrying the same id.
//   - The host pushes "event" envelopes for task state changes. Events
//     are never answered.
//
// Incoming requests are handled concurrently so that a cancelTask request
// can be served while an organize request is still in flight.
package bridge
