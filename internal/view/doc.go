// Package view projects a connection's events into display rows.
//
// Every event maps to one row of five columns: Received, Sent, Direction,
// Event Type and Value. Rows are recomputed from the store on demand, so a
// consumer that watches store changes can refresh exactly the affected
// range.
package view
