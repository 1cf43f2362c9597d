// Package connection is the retrostate-cli HTTP client.
//
// Admin and health calls use the JSON envelope. State uploads and downloads
// travel as protobuf; memory ranges arrive as raw bytes.
package connection
