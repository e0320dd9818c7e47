// Package rpc contains everything that talks to a ServerQuery endpoint.
//
// The package is organized into several subpackages:
//
//   - common: Configuration structures and the logging setup shared by all packages.
//
//   - transport: The line transport abstraction with pluggable implementations
//     (tcp, unix, ssh).
//
//   - engine: The query engine: greeting, FIFO command queue, flood control retry,
//     keepalive and notification events.
//
//   - client: A high level client combining the engine with the node cache, a handle
//     registry and convenience commands.
//
//   - filetransfer: Uploads and downloads over the separate file transfer port.
//
//   - testserver: A scripted query server used by the package tests.
package rpc
