package drive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"google.golang.org/api/option"
)

func newTestGoogleDrive(t *testing.T, h http.HandlerFunc) *GoogleDrive {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	g, err := NewGoogleDrive(context.Background(), "", zap.NewNop(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestGoogleDrive_ListPaginates(t *testing.T) {
	var queries []string
	g := newTestGoogleDrive(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/files") {
			http.NotFound(w, r)
			return
		}
		queries = append(queries, r.URL.Query().Get("q"))
		if r.URL.Query().Get("pageToken") == "" {
			writeJSON(w, map[string]interface{}{
				"nextPageToken": "p2",
				"files": []map[string]interface{}{
					{"id": "1", "name": "a.pdf", "mimeType": PDFMimeType, "modifiedTime": "2024-05-01T10:00:00Z"},
				},
			})
			return
		}
		writeJSON(w, map[string]interface{}{
			"files": []map[string]interface{}{{"id": "2", "name": "RH", "mimeType": FolderMimeType}},
		})
	})

	files, err := g.List(context.Background(), "folder'1")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 || files[0].ID != "1" || !files[1].IsFolder() {
		t.Fatalf("unexpected files: %+v", files)
	}
	if files[0].ModifiedTime.IsZero() {
		t.Error("modified time should be parsed")
	}
	if len(queries) != 2 || queries[0] != `'folder\'1' in parents and trashed = false` {
		t.Errorf("unexpected queries: %q", queries)
	}
}

func TestGoogleDrive_DownloadExportsNativeFiles(t *testing.T) {
	g := newTestGoogleDrive(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/files/doc1/export"):
			if r.URL.Query().Get("mimeType") != DocxMimeType {
				http.Error(w, "bad mime", http.StatusBadRequest)
				return
			}
			_, _ = io.WriteString(w, "exported")
		case strings.HasSuffix(r.URL.Path, "/files/pdf1"):
			_, _ = io.WriteString(w, "raw")
		default:
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]interface{}{"error": map[string]interface{}{"code": 404, "message": "File not found"}})
		}
	})
	ctx := context.Background()

	data, ext, err := g.Download(ctx, &File{ID: "doc1", Name: "Politica", MimeType: GoogleDocMimeType})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "exported" || ext != ".docx" {
		t.Errorf("got %q %q", data, ext)
	}

	data, ext, err = g.Download(ctx, &File{ID: "pdf1", Name: "manual.pdf", MimeType: PDFMimeType})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "raw" || ext != ".pdf" {
		t.Errorf("got %q %q", data, ext)
	}

	if _, _, err := g.Download(ctx, &File{ID: "gone", Name: "x.pdf"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGoogleDrive_Update(t *testing.T) {
	var method, path string
	var body []byte
	g := newTestGoogleDrive(t, func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		body, _ = io.ReadAll(r.Body)
		writeJSON(w, map[string]interface{}{"id": "f1"})
	})
	if err := g.Update(context.Background(), "f1", DocxMimeType, []byte("PK-content")); err != nil {
		t.Fatal(err)
	}
	if method != http.MethodPatch || !strings.HasSuffix(path, "/files/f1") {
		t.Errorf("unexpected request %s %s", method, path)
	}
	if !strings.Contains(string(body), "PK-content") {
		t.Error("upload body should contain the file content")
	}
}
