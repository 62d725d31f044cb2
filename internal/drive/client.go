package drive

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/driftware/workspace-mcp/internal/auth"
	"github.com/driftware/workspace-mcp/internal/google"
)

const (
	// FolderMimeType is the MIME type for Google Drive folders
	FolderMimeType = "application/vnd.google-apps.folder"

	fileFields = "id, name, mimeType, size, createdTime, modifiedTime, webViewLink, webContentLink, parents, owners, shared, trashed, trashedTime"
)

// Client wraps the Google Drive API service. All calls are routed
// through the shared runner for retry and rate-limit handling.
type Client struct {
	svc     *drive.Service
	account string
	runner  *google.Runner
}

// NewClient creates a Google Drive client authenticated by the provider.
func NewClient(ctx context.Context, provider auth.Provider, runner *google.Runner) (*Client, error) {
	httpClient, err := provider.HTTPClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("drive: acquire HTTP client: %w", err)
	}

	google.ForceHTTP1(httpClient)

	svc, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("drive: create service: %w", err)
	}

	return &Client{svc: svc, account: provider.Account(), runner: runner}, nil
}

// Account returns the account this client authenticates as.
func (c *Client) Account() string { return c.account }

// ListFiles lists files in Google Drive with optional filtering. The
// second return value is the next page token, empty on the last page.
func (c *Client) ListFiles(ctx context.Context, options *ListOptions) ([]*FileInfo, string, error) {
	fileList, err := google.ExecuteValue(ctx, c.runner, "files.list", func(ctx context.Context) (*drive.FileList, error) {
		call := c.svc.Files.List().
			Context(ctx).
			Fields(googleapi.Field("nextPageToken, files(" + fileFields + ")"))

		var query string
		if options != nil {
			query = buildListFilesQuery(options.Query, options.IncludeTrashed)
			if options.MaxResults > 0 {
				call = call.PageSize(int64(options.MaxResults))
			}
			if options.OrderBy != "" {
				call = call.OrderBy(options.OrderBy)
			}
			if options.PageToken != "" {
				call = call.PageToken(options.PageToken)
			}
			if options.Spaces != "" {
				call = call.Spaces(options.Spaces)
			}
		} else {
			query = buildListFilesQuery("", false)
		}
		if query != "" {
			call = call.Q(query)
		}
		return call.Do()
	})
	if err != nil {
		return nil, "", err
	}

	files := make([]*FileInfo, len(fileList.Files))
	for i, f := range fileList.Files {
		files[i] = toFileInfo(f)
	}
	return files, fileList.NextPageToken, nil
}

// GetFile retrieves metadata for a single file.
func (c *Client) GetFile(ctx context.Context, fileID string) (*FileInfo, error) {
	if fileID == "" {
		return nil, fmt.Errorf("fileID is required")
	}

	file, err := google.ExecuteValue(ctx, c.runner, "files.get", func(ctx context.Context) (*drive.File, error) {
		return c.svc.Files.Get(fileID).
			Context(ctx).
			Fields(googleapi.Field(fileFields + ", permissions")).
			Do()
	})
	if err != nil {
		return nil, err
	}
	return toFileInfo(file), nil
}

// DownloadFile downloads the raw content of a binary file. Google-native
// documents have no raw content; use ExportFile for those.
func (c *Client) DownloadFile(ctx context.Context, fileID string) (io.ReadCloser, error) {
	if fileID == "" {
		return nil, fmt.Errorf("fileID is required")
	}

	return google.OnceValue(ctx, c.runner, "files.download", func(ctx context.Context) (io.ReadCloser, error) {
		resp, err := c.svc.Files.Get(fileID).Context(ctx).Download()
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	})
}

// ExportFile exports a Google-native document (Docs, Sheets, Slides) to
// the requested MIME type, for example "application/pdf" or "text/csv".
func (c *Client) ExportFile(ctx context.Context, fileID, mimeType string) ([]byte, error) {
	if fileID == "" {
		return nil, fmt.Errorf("fileID is required")
	}
	if mimeType == "" {
		return nil, fmt.Errorf("mimeType is required")
	}

	return google.ExecuteValue(ctx, c.runner, "files.export", func(ctx context.Context) ([]byte, error) {
		resp, err := c.svc.Files.Export(fileID, mimeType).Context(ctx).Download()
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		return io.ReadAll(resp.Body)
	})
}

// UploadFile uploads a file to Google Drive.
func (c *Client) UploadFile(ctx context.Context, name string, content io.Reader, options *UploadOptions) (*FileInfo, error) {
	if name == "" {
		return nil, fmt.Errorf("file name is required")
	}
	if content == nil {
		return nil, fmt.Errorf("file content is required")
	}

	file := &drive.File{Name: name}
	if options != nil {
		if len(options.ParentFolders) > 0 {
			file.Parents = options.ParentFolders
		}
		if options.Description != "" {
			file.Description = options.Description
		}
		if options.MimeType != "" {
			file.MimeType = options.MimeType
		}
		if options.ModifiedTime != nil {
			file.ModifiedTime = options.ModifiedTime.Format(time.RFC3339)
		}
	}

	// Uploads are not idempotent, so a retry could duplicate the file.
	created, err := google.OnceValue(ctx, c.runner, "files.create", func(ctx context.Context) (*drive.File, error) {
		return c.svc.Files.Create(file).
			Context(ctx).
			Media(content, googleapi.ContentType(file.MimeType)).
			Fields(googleapi.Field(fileFields)).
			Do()
	})
	if err != nil {
		return nil, err
	}
	return toFileInfo(created), nil
}

// CreateFolder creates a new folder.
func (c *Client) CreateFolder(ctx context.Context, name string, parentFolders []string) (*FileInfo, error) {
	if name == "" {
		return nil, fmt.Errorf("folder name is required")
	}

	file := &drive.File{Name: name, MimeType: FolderMimeType}
	if len(parentFolders) > 0 {
		file.Parents = parentFolders
	}

	created, err := google.ExecuteValue(ctx, c.runner, "files.create", func(ctx context.Context) (*drive.File, error) {
		return c.svc.Files.Create(file).
			Context(ctx).
			Fields(googleapi.Field(fileFields)).
			Do()
	})
	if err != nil {
		return nil, err
	}
	return toFileInfo(created), nil
}

// TrashFile moves a file to the trash. Files in the trash can be
// restored from the Drive UI for thirty days.
func (c *Client) TrashFile(ctx context.Context, fileID string) (*FileInfo, error) {
	if fileID == "" {
		return nil, fmt.Errorf("fileID is required")
	}

	updated, err := google.ExecuteValue(ctx, c.runner, "files.trash", func(ctx context.Context) (*drive.File, error) {
		return c.svc.Files.Update(fileID, &drive.File{Trashed: true}).
			Context(ctx).
			Fields(googleapi.Field(fileFields)).
			Do()
	})
	if err != nil {
		return nil, err
	}
	return toFileInfo(updated), nil
}

// MoveFile moves or renames a file.
func (c *Client) MoveFile(ctx context.Context, fileID string, options *MoveOptions) (*FileInfo, error) {
	if fileID == "" {
		return nil, fmt.Errorf("fileID is required")
	}
	if options == nil {
		return nil, fmt.Errorf("move options are required")
	}

	update := &drive.File{}
	if options.NewName != "" {
		update.Name = options.NewName
	}

	updated, err := google.ExecuteValue(ctx, c.runner, "files.update", func(ctx context.Context) (*drive.File, error) {
		call := c.svc.Files.Update(fileID, update).
			Context(ctx).
			Fields(googleapi.Field(fileFields))
		if len(options.AddParents) > 0 {
			call = call.AddParents(strings.Join(options.AddParents, ","))
		}
		if len(options.RemoveParents) > 0 {
			call = call.RemoveParents(strings.Join(options.RemoveParents, ","))
		}
		return call.Do()
	})
	if err != nil {
		return nil, err
	}
	return toFileInfo(updated), nil
}

// ShareFile creates a permission on a file.
func (c *Client) ShareFile(ctx context.Context, fileID string, options *ShareOptions) (*Permission, error) {
	if fileID == "" {
		return nil, fmt.Errorf("fileID is required")
	}
	if options == nil {
		return nil, fmt.Errorf("share options are required")
	}
	if options.Type == "" {
		return nil, fmt.Errorf("permission type is required")
	}
	if options.Role == "" {
		return nil, fmt.Errorf("permission role is required")
	}

	permission := &drive.Permission{
		Type:         options.Type,
		Role:         options.Role,
		EmailAddress: options.EmailAddress,
		Domain:       options.Domain,
	}

	created, err := google.ExecuteValue(ctx, c.runner, "permissions.create", func(ctx context.Context) (*drive.Permission, error) {
		call := c.svc.Permissions.Create(fileID, permission).
			Context(ctx).
			Fields("id, type, role, emailAddress, domain, displayName")
		if options.SendNotificationEmail {
			call = call.SendNotificationEmail(true)
			if options.EmailMessage != "" {
				call = call.EmailMessage(options.EmailMessage)
			}
		}
		return call.Do()
	})
	if err != nil {
		return nil, err
	}
	return toPermission(created), nil
}

// ListPermissions lists all permissions for a file.
func (c *Client) ListPermissions(ctx context.Context, fileID string) ([]*Permission, error) {
	if fileID == "" {
		return nil, fmt.Errorf("fileID is required")
	}

	permList, err := google.ExecuteValue(ctx, c.runner, "permissions.list", func(ctx context.Context) (*drive.PermissionList, error) {
		return c.svc.Permissions.List(fileID).
			Context(ctx).
			Fields("permissions(id, type, role, emailAddress, domain, displayName)").
			Do()
	})
	if err != nil {
		return nil, err
	}

	permissions := make([]*Permission, len(permList.Permissions))
	for i, p := range permList.Permissions {
		permissions[i] = toPermission(p)
	}
	return permissions, nil
}

// RemovePermission removes a permission from a file.
func (c *Client) RemovePermission(ctx context.Context, fileID, permissionID string) error {
	if fileID == "" {
		return fmt.Errorf("fileID is required")
	}
	if permissionID == "" {
		return fmt.Errorf("permissionID is required")
	}

	return c.runner.Execute(ctx, "permissions.delete", func(ctx context.Context) error {
		return c.svc.Permissions.Delete(fileID, permissionID).Context(ctx).Do()
	})
}

// buildListFilesQuery combines a user query with the trashed filter.
// Trashed files are excluded unless explicitly requested.
func buildListFilesQuery(userQuery string, includeTrashed bool) string {
	if includeTrashed {
		return userQuery
	}
	if userQuery == "" {
		return "trashed=false"
	}
	return "(" + userQuery + ") and trashed=false"
}

// toFileInfo converts a Drive API File to our FileInfo type
func toFileInfo(f *drive.File) *FileInfo {
	if f == nil {
		return &FileInfo{}
	}
	fileInfo := &FileInfo{
		ID:             f.Id,
		Name:           f.Name,
		MimeType:       f.MimeType,
		Size:           f.Size,
		WebViewLink:    f.WebViewLink,
		WebContentLink: f.WebContentLink,
		Parents:        f.Parents,
		Shared:         f.Shared,
		Trashed:        f.Trashed,
	}

	if f.CreatedTime != "" {
		if t, err := time.Parse(time.RFC3339, f.CreatedTime); err == nil {
			fileInfo.CreatedTime = t
		}
	}
	if f.ModifiedTime != "" {
		if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
			fileInfo.ModifiedTime = t
		}
	}
	if f.TrashedTime != "" {
		if t, err := time.Parse(time.RFC3339, f.TrashedTime); err == nil {
			fileInfo.TrashedTime = &t
		}
	}

	for _, owner := range f.Owners {
		fileInfo.Owners = append(fileInfo.Owners, User{
			DisplayName:  owner.DisplayName,
			EmailAddress: owner.EmailAddress,
			PhotoLink:    owner.PhotoLink,
		})
	}

	for _, perm := range f.Permissions {
		fileInfo.Permissions = append(fileInfo.Permissions, *toPermission(perm))
	}

	return fileInfo
}

// toPermission converts a Drive API Permission to our Permission type
func toPermission(p *drive.Permission) *Permission {
	return &Permission{
		ID:           p.Id,
		Type:         p.Type,
		Role:         p.Role,
		EmailAddress: p.EmailAddress,
		Domain:       p.Domain,
		DisplayName:  p.DisplayName,
	}
}
