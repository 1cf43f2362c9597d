// Package redisserver serves system states over the Redis RESP protocol.
//
// Any Redis client can upload and read states without an HTTP stack:
//
//	STATE.PUT <protobuf SystemState>        -> :<token>
//	STATE.GET <token> [NODATA]              -> $<protobuf SystemState>
//	STATE.RANGE <token> <start> <length>    -> $<exactly length bytes>
//	STATE.GC                                -> :<states removed>
//	DBSIZE, INFO, PING [msg], ECHO msg, QUIT
//
// Errors are RESP errors whose first word is the domain error code,
// e.g. "-RS-STAT-4040 unknown state token".
package redisserver
