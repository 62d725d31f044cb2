// Package drive provides a client for interacting with the Google Drive API.
//
// This package enables comprehensive Google Drive file management operations including:
//   - Uploading files with metadata
//   - Listing and searching files and folders
//   - Downloading file content and exporting Google-native documents
//   - Trashing files
//   - Creating folders
//   - Moving and renaming files
//   - Managing file sharing and permissions
//
// Each client instance is bound to one authenticated account and routes
// every API call through the shared runner, which applies the retry
// policy and per-service rate limiting.
//
// Example usage:
//
//	ctx := context.Background()
//	client, err := drive.NewClient(ctx, provider, runner)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// List files
//	files, _, err := client.ListFiles(ctx, &drive.ListOptions{
//	    Query:      "mimeType='application/pdf'",
//	    MaxResults: 10,
//	})
package drive
