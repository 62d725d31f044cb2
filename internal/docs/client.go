package docs

import (
	"context"
	"fmt"

	docs "google.golang.org/api/docs/v1"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/driftware/workspace-mcp/internal/auth"
	"github.com/driftware/workspace-mcp/internal/google"
)

// Client wraps the Google Docs API service, with a Drive service
// alongside it for file metadata. All calls are routed through the
// shared runner for retry and rate-limit handling.
type Client struct {
	docsSvc  *docs.Service
	driveSvc *drive.Service
	account  string
	runner   *google.Runner
}

// NewClient creates a Google Docs client authenticated by the provider.
func NewClient(ctx context.Context, provider auth.Provider, runner *google.Runner) (*Client, error) {
	httpClient, err := provider.HTTPClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("docs: acquire HTTP client: %w", err)
	}

	google.ForceHTTP1(httpClient)

	docsSvc, err := docs.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("docs: create service: %w", err)
	}

	driveSvc, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("docs: create drive service: %w", err)
	}

	return &Client{
		docsSvc:  docsSvc,
		driveSvc: driveSvc,
		account:  provider.Account(),
		runner:   runner,
	}, nil
}

// Account returns the account this client authenticates as.
func (c *Client) Account() string { return c.account }

// GetDocument retrieves a document's full content by ID. Tab content is
// included so documents with multiple tabs come back complete.
func (c *Client) GetDocument(ctx context.Context, documentID string) (*docs.Document, error) {
	if documentID == "" {
		return nil, fmt.Errorf("documentID is required")
	}

	return google.ExecuteValue(ctx, c.runner, "documents.get", func(ctx context.Context) (*docs.Document, error) {
		return c.docsSvc.Documents.Get(documentID).
			Context(ctx).
			IncludeTabsContent(true).
			Do()
	})
}

// GetDocumentAsMarkdown retrieves a document and renders it as Markdown.
func (c *Client) GetDocumentAsMarkdown(ctx context.Context, documentID string) (string, error) {
	doc, err := c.GetDocument(ctx, documentID)
	if err != nil {
		return "", err
	}
	return ToMarkdown(doc)
}

// GetDocumentAsPlainText retrieves a document and extracts its plain text.
func (c *Client) GetDocumentAsPlainText(ctx context.Context, documentID string) (string, error) {
	doc, err := c.GetDocument(ctx, documentID)
	if err != nil {
		return "", err
	}
	return ToPlainText(doc)
}

// CreateDocument creates a new, empty document with the given title.
func (c *Client) CreateDocument(ctx context.Context, title string) (*docs.Document, error) {
	if title == "" {
		return nil, fmt.Errorf("document title is required")
	}

	return google.ExecuteValue(ctx, c.runner, "documents.create", func(ctx context.Context) (*docs.Document, error) {
		return c.docsSvc.Documents.Create(&docs.Document{Title: title}).Context(ctx).Do()
	})
}

// InsertText inserts text at the given index of the document body.
// Index 1 is the start of the body. Inserts are not idempotent, so they
// run a single attempt.
func (c *Client) InsertText(ctx context.Context, documentID string, index int64, text string) error {
	if documentID == "" {
		return fmt.Errorf("documentID is required")
	}
	if text == "" {
		return fmt.Errorf("text is required")
	}
	if index < 1 {
		index = 1
	}

	req := &docs.BatchUpdateDocumentRequest{
		Requests: []*docs.Request{{
			InsertText: &docs.InsertTextRequest{
				Location: &docs.Location{Index: index},
				Text:     text,
			},
		}},
	}

	_, err := google.OnceValue(ctx, c.runner, "documents.batchUpdate", func(ctx context.Context) (*docs.BatchUpdateDocumentResponse, error) {
		return c.docsSvc.Documents.BatchUpdate(documentID, req).Context(ctx).Do()
	})
	return err
}

// AppendText appends text to the end of the document body.
func (c *Client) AppendText(ctx context.Context, documentID, text string) error {
	if documentID == "" {
		return fmt.Errorf("documentID is required")
	}
	if text == "" {
		return fmt.Errorf("text is required")
	}

	req := &docs.BatchUpdateDocumentRequest{
		Requests: []*docs.Request{{
			InsertText: &docs.InsertTextRequest{
				EndOfSegmentLocation: &docs.EndOfSegmentLocation{},
				Text:                 text,
			},
		}},
	}

	_, err := google.OnceValue(ctx, c.runner, "documents.batchUpdate", func(ctx context.Context) (*docs.BatchUpdateDocumentResponse, error) {
		return c.docsSvc.Documents.BatchUpdate(documentID, req).Context(ctx).Do()
	})
	return err
}

// ReplaceText replaces every occurrence of a string in the document and
// returns the number of occurrences changed. The replacement is
// idempotent, so it retries like a read.
func (c *Client) ReplaceText(ctx context.Context, documentID, find, replace string, matchCase bool) (int64, error) {
	if documentID == "" {
		return 0, fmt.Errorf("documentID is required")
	}
	if find == "" {
		return 0, fmt.Errorf("search text is required")
	}

	req := &docs.BatchUpdateDocumentRequest{
		Requests: []*docs.Request{{
			ReplaceAllText: &docs.ReplaceAllTextRequest{
				ContainsText: &docs.SubstringMatchCriteria{
					Text:      find,
					MatchCase: matchCase,
				},
				ReplaceText: replace,
			},
		}},
	}

	resp, err := google.ExecuteValue(ctx, c.runner, "documents.batchUpdate", func(ctx context.Context) (*docs.BatchUpdateDocumentResponse, error) {
		return c.docsSvc.Documents.BatchUpdate(documentID, req).Context(ctx).Do()
	})
	if err != nil {
		return 0, err
	}

	var changed int64
	for _, reply := range resp.Replies {
		if reply.ReplaceAllText != nil {
			changed += reply.ReplaceAllText.OccurrencesChanged
		}
	}
	return changed, nil
}

// GetFileMetadata retrieves Drive metadata for a document.
func (c *Client) GetFileMetadata(ctx context.Context, fileID string) (*DocumentMetadata, error) {
	if fileID == "" {
		return nil, fmt.Errorf("fileID is required")
	}

	file, err := google.ExecuteValue(ctx, c.runner, "files.get", func(ctx context.Context) (*drive.File, error) {
		return c.driveSvc.Files.Get(fileID).
			Context(ctx).
			Fields("id, name, mimeType, createdTime, modifiedTime, size, owners").
			Do()
	})
	if err != nil {
		return nil, err
	}

	metadata := &DocumentMetadata{
		ID:           file.Id,
		Name:         file.Name,
		MimeType:     file.MimeType,
		CreatedTime:  file.CreatedTime,
		ModifiedTime: file.ModifiedTime,
		Size:         file.Size,
	}
	for _, owner := range file.Owners {
		metadata.Owners = append(metadata.Owners, User{
			DisplayName:  owner.DisplayName,
			EmailAddress: owner.EmailAddress,
		})
	}
	return metadata, nil
}
