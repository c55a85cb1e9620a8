// Package server provides the HTTP surface of the hub.
//
// One websocket handshake endpoint (origin check, connection limits, identity
// attributes from query parameters) plus health and Prometheus metrics. After
// upgrade the handler goroutine becomes the connection's read pump.
package server
