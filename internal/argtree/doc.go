// Package argtree models the nested parameter structures that describe how a
// generated script calls into a calculator or optimizer, and renders them as
// call-argument text.
//
// A tree is built from a closed set of node types: String, Expr, Number,
// Bool and None scalars, *Mapping, Sequence and Invocation. An Invocation is
// an explicit node, created when a loader meets a mapping carrying the
// FunctionKey marker, so the renderer never has to guess from shape.
//
// Mappings are immutable. Edits (With, Without, SetPath) return a new mapping
// and leave the receiver untouched, which lets the same parameter tree be
// shared across retries without aliasing surprises.
package argtree
