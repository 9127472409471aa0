// Package main hosts the metapub CLI entrypoint and command graph.
//
// The Cobra command tree resolves configuration once, builds the structured
// logger, and hands off to the pipeline package for ingest and processing.
// Run history is read straight from the SQLite ledger.
package main
