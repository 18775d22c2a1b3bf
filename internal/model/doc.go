// Package model is the reactive record layer.
//
// A Registry holds one Controller per entity type. A Controller constructs
// Records, is itself the Collection of every live Record of its type, and
// owns the type's identity Cache. Each Record exposes its declared fields as
// Cells and keeps a single Snapshot of their values, which Collections hold
// by reference. Writing a field updates the Snapshot in place and runs the
// change cascade: member Collections are told, the redraw decision is
// OR-reduced over the collection, instance, type and global levels, and the
// registry's redraw hook runs at most once.
//
// Reference fields store the referenced Record's Snapshot rather than the
// Record itself. Reading a reference field resolves the Snapshot back to its
// owning Record; copying a Record replaces references with nested copies or
// bare identities, so cyclic graphs serialize without recursion.
//
// Misuse (a disposed Record, an undeclared field, a Record of the wrong type
// in a reference field) panics with a *ContractViolationError. Failures that
// belong to the caller's control flow (missing identity, Store errors) are
// returned.
package model
