// Package server implements the chat gateway: the WebSocket endpoint, the
// hub that applies every inbound event to rooms and sessions, and the HTTP
// surface around it.
//
// The implementation is organized into specialized files for configuration,
// the hub, clients and their session state machine, routing, and HTTP
// handlers. Domain state lives in the registry, rooms, router and presence
// packages; this package only wires them to the transport.
package server
