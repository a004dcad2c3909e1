// Package manifest persists the table definition of a data directory: table
// name, a random table id, creation time and the fixed schema.
package manifest
