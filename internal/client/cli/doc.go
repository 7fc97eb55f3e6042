// Package cli provides the interactive intake command-line client.
//
// It wires configuration, the HTTP API client and an upload orchestrator
// into a REPL. Typical flow: pick a form with "new", fill its fields with
// "set", attach files with "add", "addfolder" or "drop", watch them with
// "list" and "tree", then "submit".
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App and runREPL for details.
package cli
