// Package codec implements the wire format of the ServerQuery protocol.
//
// The package focuses on:
//   - Escaping and unescaping of the reserved character set
//   - Building and encoding commands (options, repeated option groups, flags)
//   - Decoding data, terminator and notification lines into typed, ordered records
//
// Key Components:
//
//   - Value: A typed scalar (absent, string, int, float, int list). The unescaped wire
//     text is kept so that decoded values render exactly as received.
//
//   - Record: An insertion ordered key/value mapping. One record per pipe separated
//     segment of a line. Records decode independently of each other.
//
//   - Command: A builder for one command line. Encoding happens once, after that the
//     command is immutable so it can be resent verbatim (flood control).
//
// Wire grammar:
//
//	command     = verb *( " " key[=value] ) [ " " group *( "|" group ) ] *( " -" flag )
//	data line   = record *( "|" record )
//	terminator  = "error id=" int " msg=" text [ " extra_msg=" text ] [ " failed_permid=" int ]
//	event line  = "notify" name " " record *( "|" record )
//
// All functions are pure: there is no I/O and no shared state.
package codec
