// Package statev1 implements the version 1 wire format of RetroState.
//
// Messages follow system_state.proto and are encoded with
// google.golang.org/protobuf/encoding/protowire directly, so the package
// needs no generated code. The same encoding is used for:
//
//   - application/x-protobuf request and response bodies
//   - values stored in the persistent key-value engine
//   - state files read and written by retrostate-cli
//
// Unknown fields are skipped on decode. Zero-valued scalars are omitted on
// encode, but every memory region is always emitted so region count and
// order survive a round trip.
package statev1
