// Package migrate moves a device's configuration onto another device in
// the vendor store.
//
// A transfer runs in stages. Extract reads the rows a device owns, and
// the identifiers embedded in their payloads, into a Graph. Retarget
// compares the source and target graphs and produces a Plan without
// touching the store. A Coordinator then applies the plan: it writes a
// verified backup, executes the plan in one transaction, re-extracts the
// target to verify it and commits. Any failure after the backup rolls
// back and leaves the store byte-identical to the backup.
//
// Errors carry a Kind from a fixed taxonomy; use KindOf to classify an
// error returned by any stage.
package migrate
