// Package localserver provides a Unix socket for local management.
//
// Access is controlled by the socket's file permissions (0600), so it is
// meant for operators on the host. The protocol is line based: each
// request line is a command and its arguments, each reply is a single
// line starting with "OK" or "ERR".
//
//	status            -> OK {"states":..,"state_bytes":..,...}
//	gc                -> OK removed=<n>
//	loglevel [level]  -> OK level=<level>
//	shutdown          -> OK shutting down
//	quit              -> OK bye
package localserver
