// Package testserver provides a scripted ServerQuery server for tests. It is
// not a server implementation of the protocol: it greets, records what it
// receives and answers with canned lines.
//
// Key Components:
//
//   - Server: Accepts connections on tcp or unix sockets, sends the greeting,
//     records every received line (keepalives are counted separately) and can push
//     notifications to, or drop, all sessions.
//
//   - Script: Answers commands by verb with queued responses, so tests can describe
//     a sequence of server states.
//
// Lines are terminated with "\n\r" like a real server does.
package testserver
