// Package tests holds end-to-end tests that run the HTTP API, the RESP
// front end and the durable storage engine together.
//
// They are slower than package tests and are skipped with -short.
package tests
