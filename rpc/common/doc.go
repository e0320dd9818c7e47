// Package common provides the configuration and logging shared by all parts
// of the ServerQuery client.
//
// The package focuses on:
//   - Configuration structures for the transport and the query session
//   - Custom logging implementation integrated with Dragonboat's logger facade
//
// Key Components:
//
//   - ClientConfig: Connection parameters (protocol, endpoint, credentials), session
//     preparation (virtual server, nickname), timeouts and keepalive interval.
//     Provides Validate and a readable String representation.
//
//   - ClientTransportConfig: Selects the transport (raw, ssh, unix) and carries socket,
//     TCP and SSH tuning. Endpoint derives the address including protocol default ports.
//
//   - Logger: Custom ILogger implementation registered as Dragonboat's logger factory,
//     so every package logs through `logger.GetLogger(name)` with consistent formatting.
//     InitLoggers sets the level of all package loggers at once.
package common
