// Package realtime fans out live updates to WebSocket clients.
//
// Every connection receives file_update events. Connections join
// (topic, targetId) rooms, for example chatgroup-42, to receive
// room-scoped events such as new_message. Each connection has a bounded send
// buffer; a client that falls behind is disconnected rather than slowing the
// publisher. Updates are hints: clients re-read the file record for truth.
package realtime
