// Package worker implements a landmark provider that delegates face mesh
// inference to an external process.
//
// Every message on the worker's stdin and stdout is a 4-byte big-endian
// length followed by a msgpack document. The daemon writes a Request per
// frame and expects exactly one Response with the same sequence number.
// Worker diagnostics go to stderr and end up in the daemon log.
package worker
