// Package internal contains the core implementation packages for plctool.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - textcodec: BOM detection, UTF-8/UTF-16 decoding and atomic writes
//   - plc: the library declaration model shared by every format
//   - lexer: the tokenizer behind the header and .pll parsers
//   - header: C header parsing into a library
//   - pll: .pll parsing and writing
//   - plclib: .plclib descriptor writing
//   - project: byte-exact synchronization of linked libraries in projects
//   - convert: batch conversion of headers and libraries
//   - watcher: debounced file change notification
//   - config, logging, errors, version: ambient support
//
// # Data Flow
//
//	.h   --header-->  plc.Library  --pll-->     .pll
//	.pll --pll------>  plc.Library  --plclib--> .plclib
//	.pll/.plclib + project --project--> synchronized project
//
// Every run reports one errors.Outcome per unit; issues never stop a unit,
// a fatal error stops only its own unit.
package internal
