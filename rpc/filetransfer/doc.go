// Package filetransfer moves file contents over the separate file transfer
// connection of a query server.
//
// A transfer is prepared on the query connection (ftinitupload or
// ftinitdownload), which answers with a key and a port. The contents then
// travel over a fresh TCP connection to that port: the client writes the key,
// followed by the raw bytes for an upload, or reads the raw bytes for a
// download. No line protocol is involved.
//
// Key Components:
//
//   - Ticket: The key, port and size of one prepared transfer, built from the
//     decoded answer of the init command with TicketFromRecord.
//
//   - Upload and Download: Stream exactly the announced number of bytes. A peer
//     that closes early results in io.ErrUnexpectedEOF. Cancelling the context
//     aborts the transfer by closing the connection.
package filetransfer
