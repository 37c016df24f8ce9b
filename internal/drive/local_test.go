package drive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mindhub/mindlink/internal/fileid"
)

func newLocalTree(t *testing.T) *LocalDrive {
	t.Helper()
	root := t.TempDir()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(os.MkdirAll(filepath.Join(root, "RH"), 0755))
	must(os.WriteFile(filepath.Join(root, "RH", "ferias.docx"), []byte("docx"), 0644))
	must(os.WriteFile(filepath.Join(root, "manual.pdf"), []byte("pdf"), 0644))
	must(os.WriteFile(filepath.Join(root, ".hidden"), []byte("x"), 0644))
	d, err := NewLocalDrive(root, "empresa", nil)
	must(err)
	return d
}

func TestLocalDrive_Walk(t *testing.T) {
	d := newLocalTree(t)
	var files []File
	err := Walk(context.Background(), d, d.RootID(), "empresa", func(f File) error {
		files = append(files, f)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %+v", files)
	}
	if files[0].ID != fileid.LocalID("RH/ferias.docx") || files[0].Path != "empresa/RH" || files[0].Sector != "RH" {
		t.Errorf("unexpected first file: %+v", files[0])
	}
	if files[1].Name != "manual.pdf" || files[1].MimeType != PDFMimeType || files[1].Path != "empresa" {
		t.Errorf("unexpected second file: %+v", files[1])
	}
}

func TestLocalDrive_GetDownloadUpdate(t *testing.T) {
	d := newLocalTree(t)
	ctx := context.Background()
	id := fileid.LocalID("RH/ferias.docx")

	f, err := d.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if f.Name != "ferias.docx" || f.MimeType != DocxMimeType || f.Path != "empresa/RH" {
		t.Errorf("unexpected file: %+v", f)
	}

	data, ext, err := d.Download(ctx, f)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "docx" || ext != ".docx" {
		t.Errorf("got %q %q", data, ext)
	}

	if err := d.Update(ctx, id, DocxMimeType, []byte("new")); err != nil {
		t.Fatal(err)
	}
	data, _, _ = d.Download(ctx, f)
	if string(data) != "new" {
		t.Errorf("update not written: %q", data)
	}
}

func TestLocalDrive_errors(t *testing.T) {
	d := newLocalTree(t)
	ctx := context.Background()
	if _, err := d.Get(ctx, fileid.LocalID("nope.pdf")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := d.Get(ctx, "local:../outside"); !errors.Is(err, fileid.ErrInvalidID) {
		t.Errorf("expected ErrInvalidID, got %v", err)
	}
	if err := d.Update(ctx, fileid.LocalID("nope.docx"), DocxMimeType, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on update, got %v", err)
	}
	if _, err := NewLocalDrive(filepath.Join(t.TempDir(), "missing"), "empresa", nil); err == nil {
		t.Error("expected error for missing root")
	}
}
