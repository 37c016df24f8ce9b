// Package drive lists, downloads and uploads knowledge-base files from a document store.
package drive

import (
	"context"
	"errors"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// MIME types used by the drive and the exporters.
const (
	FolderMimeType      = "application/vnd.google-apps.folder"
	GoogleDocMimeType   = "application/vnd.google-apps.document"
	GoogleSheetMimeType = "application/vnd.google-apps.spreadsheet"
	DocxMimeType        = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	XlsxMimeType        = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	PDFMimeType         = "application/pdf"
	XlsMimeType         = "application/vnd.ms-excel"
)

// ErrNotFound is returned when a file does not exist in the drive.
var ErrNotFound = errors.New("file not found")

// File is a drive entry. Path is the folder path from the root ("empresa/RH") and
// Sector is the last element of Path.
type File struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mime_type"`
	Path         string    `json:"path"`
	Sector       string    `json:"sector"`
	ModifiedTime time.Time `json:"modified_time"`
	Size         int64     `json:"size"`
}

// IsFolder reports whether f is a folder.
func (f *File) IsFolder() bool {
	return f.MimeType == FolderMimeType
}

// IsNative reports whether f is a Google Docs or Sheets file that must be exported.
func (f *File) IsNative() bool {
	return f.MimeType == GoogleDocMimeType || f.MimeType == GoogleSheetMimeType
}

// Extension returns the effective lower-case extension of f's content.
// Native Docs and Sheets report the extension of their export format.
func (f *File) Extension() string {
	switch f.MimeType {
	case GoogleDocMimeType:
		return ".docx"
	case GoogleSheetMimeType:
		return ".xlsx"
	}
	return strings.ToLower(filepath.Ext(f.Name))
}

// MimeTypeForExt returns the upload MIME type of an extension.
func MimeTypeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".docx":
		return DocxMimeType
	case ".xlsx":
		return XlsxMimeType
	case ".xls":
		return XlsMimeType
	case ".pdf":
		return PDFMimeType
	}
	return "application/octet-stream"
}

// Drive is a document store organised in folders.
type Drive interface {
	// List returns the direct, non-trashed children of a folder across all pages.
	List(ctx context.Context, folderID string) ([]File, error)
	// Get returns metadata of a single file.
	Get(ctx context.Context, id string) (*File, error)
	// Download returns the content of f and its effective extension.
	// Native Google files are exported as DOCX or XLSX.
	Download(ctx context.Context, f *File) ([]byte, string, error)
	// Update replaces the content of a file.
	Update(ctx context.Context, id, mimeType string, content []byte) error
	// Origin names the backend, stored with indexed documents.
	Origin() string
}

// WalkFunc is called for every non-folder file found by Walk.
type WalkFunc func(f File) error

// Walk visits every file below rootID depth-first. Files directly under the root get
// Path rootName. Returning an error from fn stops the walk.
func Walk(ctx context.Context, d Drive, rootID, rootName string, fn WalkFunc) error {
	return walk(ctx, d, rootID, rootName, fn)
}

func walk(ctx context.Context, d Drive, folderID, folderPath string, fn WalkFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	children, err := d.List(ctx, folderID)
	if err != nil {
		return err
	}
	for _, child := range children {
		if child.IsFolder() {
			if err := walk(ctx, d, child.ID, path.Join(folderPath, child.Name), fn); err != nil {
				return err
			}
			continue
		}
		child.Path = folderPath
		child.Sector = path.Base(folderPath)
		if err := fn(child); err != nil {
			return err
		}
	}
	return nil
}
