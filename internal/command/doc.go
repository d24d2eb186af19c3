// Package command defines the structured command exchanged with the engine.
//
// A Command is a name plus a parameter mapping. Parameters are restricted to
// JSON-shaped values (scalars, sequences, string-keyed mappings) so they can be
// framed for the control endpoint without surprises.
//
// The Catalog lists the commands the engine is known to accept. It is built
// from a built-in list and, optionally, from markdown tool documentation:
//
//	catalog, err := command.Load("/path/to/Docs/Tools")
//
// Catalog.Render produces the deterministic listing embedded in LLM prompts,
// and Catalog.Check validates translated commands against it.
package command
