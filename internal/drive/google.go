package drive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const listFields = "nextPageToken, files(id, name, mimeType, modifiedTime, size)"

// GoogleDrive implements Drive on the Google Drive v3 API with a service account.
type GoogleDrive struct {
	svc    *gdrive.Service
	logger *zap.Logger
}

// NewGoogleDrive creates a client authenticated with the service-account credentials file.
// Extra client options (endpoint, HTTP client) are appended after the credentials.
func NewGoogleDrive(ctx context.Context, credentialsFile string, logger *zap.Logger, opts ...option.ClientOption) (*GoogleDrive, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	all := make([]option.ClientOption, 0, len(opts)+2)
	if credentialsFile != "" {
		all = append(all, option.WithCredentialsFile(credentialsFile))
	}
	all = append(all, option.WithScopes(gdrive.DriveScope))
	all = append(all, opts...)
	svc, err := gdrive.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return &GoogleDrive{svc: svc, logger: logger}, nil
}

// Origin implements Drive.
func (g *GoogleDrive) Origin() string { return "google_drive" }

// List implements Drive.
func (g *GoogleDrive) List(ctx context.Context, folderID string) ([]File, error) {
	q := fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(folderID))
	var out []File
	pageToken := ""
	for {
		call := g.svc.Files.List().
			Q(q).
			Fields(listFields).
			PageSize(1000).
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		res, err := call.Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list folder %s: %w", folderID, err)
		}
		for _, f := range res.Files {
			out = append(out, fromAPI(f))
		}
		if res.NextPageToken == "" {
			break
		}
		pageToken = res.NextPageToken
	}
	return out, nil
}

// Get implements Drive.
func (g *GoogleDrive) Get(ctx context.Context, id string) (*File, error) {
	f, err := g.svc.Files.Get(id).
		Fields("id, name, mimeType, modifiedTime, size").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get file %s: %w", id, err)
	}
	file := fromAPI(f)
	return &file, nil
}

// Download implements Drive.
func (g *GoogleDrive) Download(ctx context.Context, f *File) ([]byte, string, error) {
	var (
		resp *http.Response
		err  error
	)
	switch f.MimeType {
	case GoogleDocMimeType:
		resp, err = g.svc.Files.Export(f.ID, DocxMimeType).Context(ctx).Download()
	case GoogleSheetMimeType:
		resp, err = g.svc.Files.Export(f.ID, XlsxMimeType).Context(ctx).Download()
	default:
		resp, err = g.svc.Files.Get(f.ID).SupportsAllDrives(true).Context(ctx).Download()
	}
	if err != nil {
		if isNotFound(err) {
			return nil, "", fmt.Errorf("%s: %w", f.ID, ErrNotFound)
		}
		return nil, "", fmt.Errorf("failed to download %s: %w", f.Name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	return data, f.Extension(), nil
}

// Update implements Drive. Uploading OOXML content to a native Google file converts it in place.
func (g *GoogleDrive) Update(ctx context.Context, id, mimeType string, content []byte) error {
	_, err := g.svc.Files.Update(id, &gdrive.File{}).
		Media(bytes.NewReader(content), googleapi.ContentType(mimeType)).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("failed to upload %s: %w", id, err)
	}
	g.logger.Info("drive file updated", zap.String("file_id", id), zap.Int("bytes", len(content)))
	return nil
}

func fromAPI(f *gdrive.File) File {
	file := File{ID: f.Id, Name: f.Name, MimeType: f.MimeType, Size: f.Size}
	if f.ModifiedTime != "" {
		if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
			file.ModifiedTime = t
		}
	}
	return file
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

// escapeQuery escapes single quotes and backslashes for a Drive query string literal.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
