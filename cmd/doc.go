// # Available Commands
//
//   - convert: convert C headers and .pll libraries into .pll and .plclib
//   - update: embed the current content of linked libraries into a project
//   - watch: re-run update whenever the project or a linked library changes
//   - version: show build information
//
// # Command Examples
//
//	// Convert a header into both library formats
//	plctool convert registers.h -o out/
//
//	// Convert a library into a sorted .plclib indented with two spaces
//	plctool convert motion.pll -o motion.plclib -p sort,plclib-indent:2
//
//	// Synchronize a project and print a JSON report
//	plctool update machine.ppjs -o build/machine.ppjs -r json
//
// # Exit Status
//
// 0 when every unit succeeded, 1 when at least one completed with issues and
// none failed, 2 when any unit hit a fatal error or the command line was
// invalid.
package cmd
