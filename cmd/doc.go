// Package cmd implements the command-line interface of sqc, the ServerQuery
// client. It provides a hierarchical command structure for executing query
// commands, watching notifications and transferring files.
//
// The package is organized into several subpackages:
//
//   - query: Commands executed on one session (exec, whoami, version, the
//     cached lists, message, move, perf)
//   - watch: Registers for notifications and prints them until interrupted
//   - ft: File uploads and downloads through the file transfer port
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set through the environment with the SQC_ prefix
// (e.g. SQC_HOST, SQC_SERVER_ID), including .env and .env.local files.
//
// See sqc -help for a list of all commands.
package cmd
