// Package afpacket captures from a single Linux interface through a TPACKET_V3
// memory-mapped ring. On other platforms the package registers nothing.
package afpacket
