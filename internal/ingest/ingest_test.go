package ingest

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackzampolin/folio/internal/home"
)

func TestSortPDFsByNumber(t *testing.T) {
	tests := []struct {
		name  string
		paths []string
		want  []string
	}{
		{
			name:  "numeric suffixes",
			paths: []string{"book-2.pdf", "book-10.pdf", "book-1.pdf"},
			want:  []string{"book-1.pdf", "book-2.pdf", "book-10.pdf"},
		},
		{
			name:  "single file",
			paths: []string{"book.pdf"},
			want:  []string{"book.pdf"},
		},
		{
			name:  "mixed numbered and plain",
			paths: []string{"part-3.pdf", "intro.pdf", "part-1.pdf"},
			want:  []string{"intro.pdf", "part-1.pdf", "part-3.pdf"},
		},
		{
			name:  "plain files alphabetical",
			paths: []string{"zeta.pdf", "alpha.pdf"},
			want:  []string{"alpha.pdf", "zeta.pdf"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sortPDFsByNumber(tt.paths)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("sortPDFsByNumber(%v) = %v, want %v", tt.paths, got, tt.want)
			}
		})
	}
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"crusade-europe.pdf", "crusade-europe"},
		{"/books/my-book-1.pdf", "my-book"},
		{"scan-12.pdf", "scan"},
		{"plain.pdf", "plain"},
	}
	for _, tt := range tests {
		if got := deriveTitle(tt.path); got != tt.want {
			t.Errorf("deriveTitle(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestManifestRoundTrip(t *testing.T) {
	dir, err := home.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := dir.EnsureSourceImagesDir("scan-1"); err != nil {
		t.Fatal(err)
	}

	want := &Manifest{
		ScanID:    "scan-1",
		Title:     "crusade-europe",
		Author:    "Dwight D. Eisenhower",
		PageCount: 559,
		Sources:   []string{"crusade-europe.pdf"},
		CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := WriteManifest(dir, want); err != nil {
		t.Fatalf("WriteManifest() error = %v", err)
	}

	got, err := ReadManifest(dir, "scan-1")
	if err != nil {
		t.Fatalf("ReadManifest() error = %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("manifest round trip: got %+v, want %+v", got, want)
	}
}

func TestRenderAllWaitsForAllPages(t *testing.T) {
	// Page 1 fails immediately; the slower remaining renders must all
	// finish before renderAll returns, or a caller could delete the
	// output dir out from under them.
	const pages = 6
	var finished atomic.Int32
	render := func(_ context.Context, _, _ string, pageInPDF, _ int) error {
		defer finished.Add(1)
		if pageInPDF == 1 {
			return errors.New("render blew up")
		}
		time.Sleep(20 * time.Millisecond)
		return nil
	}

	n, err := renderAll(context.Background(), "in.pdf", t.TempDir(), pages, 0, render)
	if err == nil || !strings.Contains(err.Error(), "page 1") {
		t.Fatalf("err = %v, want page 1 render failure", err)
	}
	if n != 0 {
		t.Errorf("page count = %d, want 0 on failure", n)
	}
	if got := finished.Load(); got != pages {
		t.Errorf("%d of %d renders finished before return", got, pages)
	}
}

func TestReadManifest_Missing(t *testing.T) {
	dir, err := home.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ReadManifest(dir, "nope"); err == nil {
		t.Error("ReadManifest() should fail for missing scan")
	}
}
