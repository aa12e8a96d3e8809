// File: internal/session/doc.go
// Package session
// Author: momentics <momentics@gmail.com>
//
// High-performance, cross-platform session and context management for hioload-ws.
// Provides thread-safe session and context storage with explicit
// cancellation, TTLs, and key/value propagation; sessions live in sharded
// maps with no NUMA placement. Works on Linux and Windows.
package session
