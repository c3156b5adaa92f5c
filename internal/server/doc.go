// Package server turns raw WebSocket connections into a typed message
// protocol and keeps a registry of the live ones.
//
// Every message is a JSON object whose string "type" field selects the
// listeners it is dispatched to. Conn wraps one transport and owns its read
// and write pumps. Server upgrades HTTP requests, tracks the resulting
// connections, and fires connection and disconnect events. Configuration,
// origin checks, rate limiting, metrics and the HTTP router live alongside
// them in this package.
package server
