// Package batch holds the shared plumbing for the multi-file Drive
// tools (drive_get_files, drive_download_files, drive_delete_files and
// drive_share_files): parsing the fileIds argument that accepts a single
// ID or an array, running the per-file operation with partial-failure
// collection, and formatting the aggregated result.
package batch
