// Package api defines wire-format types and converters for the IPC and HTTP
// API layer. It translates internal job records into transport-friendly DTOs
// so remote consumers never couple to internal types.
//
// DTOs use camelCase JSON tags. Internal enums (jobs.State) are exposed as
// lowercase strings alongside a title-cased display label. Timestamps use
// RFC3339 with milliseconds.
package api
