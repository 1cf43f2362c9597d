// Package output renders retrostate-cli results.
//
//   - table.go: aligned text tables, the default
//   - json.go / yaml.go: machine-readable formats
//   - hexdump.go: memory ranges with absolute addresses
package output
