// Package signaling implements the relay's WebSocket surface: rooms of up to
// four participants exchanging opaque WebRTC negotiation blobs.
//
// The relay is a rendezvous and fan-out point only. It never parses a signal
// payload and never touches media; clients negotiate peer-to-peer paths among
// themselves using the connection ids the relay hands out.
package signaling
