// Package model defines the data model shared by the storage engine and its callers.
//
// # Identity Types
//
//   - Vin: fixed-width (17 byte) external entity identifier
//   - Schema: ordered column definitions of the single table
//
// # Data Types
//
//   - ColumnValue: one typed cell (Integer, Double, String)
//   - Row: a vin, a timestamp and its named column values
//   - Request types for writes, latest, time-range, aggregate and downsample queries
package model
