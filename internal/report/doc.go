// Package report reads and writes the persistent search report: an
// append-only text file with one line per flushed batch,
//
//	<schedule-repr>\tconv=<seconds>\tdata=<seconds>\tkernel=<seconds>
//
// where <schedule-repr> is schedule.Params.String(). Lines are independent, so
// the file stays greppable and can be read back while a search appends to it.
package report
