// Package docs provides functionality for interacting with the Google Docs API.
//
// This package includes a client for retrieving and editing documents
// and converters that render documents to Markdown or plain text,
// including documents that use the tabbed layout.
//
// The package handles:
//   - Document retrieval and creation via the Google Docs API
//   - Text insertion, appending and replace-all edits
//   - Document metadata retrieval via the Google Drive API
//   - Document content conversion to Markdown and plain text formats
//
// Example usage:
//
//	client, err := docs.NewClient(ctx, provider, runner)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	markdown, err := client.GetDocumentAsMarkdown(ctx, "1ABC123xyz")
//	if err != nil {
//	    log.Fatal(err)
//	}
package docs
