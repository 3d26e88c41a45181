// Package restapi exposes the query executor over HTTP using Gin: create
// and list databases, select the engine's active one, and run one statement
// at a time against it — the same executor the REPL drives, wrapped in
// JSON instead of a terminal prompt.
package restapi
