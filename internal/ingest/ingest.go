// Package ingest handles book scan ingestion from PDF files.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/jackzampolin/folio/internal/home"
)

// Request contains the parameters for ingesting book scans.
type Request struct {
	PDFPaths []string     // PDF file paths (will be sorted by numeric suffix)
	Title    string       // Book title (optional, derived from filename if empty)
	Author   string       // Book author (optional)
	Logger   *slog.Logger // Optional logger for progress updates
}

// Manifest is the scan record written at ingest time. Downstream stages
// read it to learn the page count and display metadata.
type Manifest struct {
	ScanID    string    `json:"scan_id"`
	Title     string    `json:"title"`
	Author    string    `json:"author,omitempty"`
	PageCount int       `json:"page_count"`
	Sources   []string  `json:"sources"`
	CreatedAt time.Time `json:"created_at"`
}

// Ingest renders all PDF pages to sequentially numbered PNGs under the
// scan's source images directory and writes the scan manifest.
func Ingest(ctx context.Context, homeDir *home.Dir, req Request) (*Manifest, error) {
	log := req.Logger
	if log == nil {
		log = slog.Default()
	}

	if len(req.PDFPaths) == 0 {
		return nil, fmt.Errorf("no PDF paths provided")
	}
	for _, p := range req.PDFPaths {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("PDF not found: %s", p)
		}
	}

	// Sort PDFs by numeric suffix (e.g., book-1.pdf, book-2.pdf)
	sortedPaths := sortPDFsByNumber(req.PDFPaths)
	log.Info("starting ingest", "pdfs", len(sortedPaths), "title", req.Title)

	title := req.Title
	if title == "" {
		title = deriveTitle(sortedPaths[0])
	}

	scanID := uuid.New().String()

	if err := homeDir.EnsureSourceImagesDir(scanID); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	outDir := homeDir.SourceImagesDir(scanID)

	pageCount := 0
	for i, pdfPath := range sortedPaths {
		log.Debug("extracting PDF", "file", filepath.Base(pdfPath), "part", i+1, "of", len(sortedPaths))
		count, err := extractImages(ctx, pdfPath, outDir, pageCount)
		if err != nil {
			os.RemoveAll(homeDir.ScanDir(scanID))
			return nil, fmt.Errorf("failed to extract images from %s: %w", pdfPath, err)
		}
		log.Debug("extracted pages", "count", count, "total", pageCount+count)
		pageCount += count
	}

	if pageCount == 0 {
		os.RemoveAll(homeDir.ScanDir(scanID))
		return nil, fmt.Errorf("no images extracted from PDFs")
	}

	manifest := &Manifest{
		ScanID:    scanID,
		Title:     title,
		Author:    req.Author,
		PageCount: pageCount,
		Sources:   sortedPaths,
		CreatedAt: time.Now().UTC(),
	}
	if err := WriteManifest(homeDir, manifest); err != nil {
		os.RemoveAll(homeDir.ScanDir(scanID))
		return nil, err
	}

	log.Info("ingest complete", "scan_id", scanID, "pages", pageCount)
	return manifest, nil
}

// WriteManifest persists the scan manifest.
func WriteManifest(homeDir *home.Dir, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(homeDir.ManifestPath(m.ScanID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads the scan manifest for a scan.
func ReadManifest(homeDir *home.Dir, scanID string) (*Manifest, error) {
	data, err := os.ReadFile(homeDir.ManifestPath(scanID))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest for scan %s: %w", scanID, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest for scan %s: %w", scanID, err)
	}
	return &m, nil
}

// extractImages renders all pages from a PDF to the output directory using
// pdftoppm. Returns the number of pages extracted. pageOffset shifts output
// numbering for multi-part PDFs.
func extractImages(ctx context.Context, pdfPath, outDir string, pageOffset int) (int, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	pageCount, err := api.PageCount(f, nil)
	f.Close()
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}

	return renderAll(ctx, pdfPath, outDir, pageCount, pageOffset, renderPage)
}

type renderFunc func(ctx context.Context, pdfPath, outDir string, pageInPDF, outputPageNum int) error

// renderAll renders pages 1..pageCount concurrently. It always waits for
// every render to finish, even after a failure, so no goroutine is still
// writing into outDir when the caller cleans it up.
func renderAll(ctx context.Context, pdfPath, outDir string, pageCount, pageOffset int, render renderFunc) (int, error) {
	maxWorkers := runtime.NumCPU()

	type result struct {
		pageNum int
		err     error
	}

	results := make(chan result, pageCount)
	sem := make(chan struct{}, maxWorkers)

	for page := 1; page <= pageCount; page++ {
		sem <- struct{}{} // acquire
		go func(pageInPDF int) {
			defer func() { <-sem }() // release

			outputPageNum := pageOffset + pageInPDF
			err := render(ctx, pdfPath, outDir, pageInPDF, outputPageNum)
			results <- result{pageNum: pageInPDF, err: err}
		}(page)
	}

	successCount := 0
	var firstErr error
	for i := 0; i < pageCount; i++ {
		r := <-results
		if r.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to render page %d: %w", r.pageNum, r.err)
			}
			continue
		}
		successCount++
	}
	if firstErr != nil {
		return 0, firstErr
	}

	return successCount, nil
}

// renderPage renders a single page from a PDF using pdftoppm
// (poppler-utils). pdftoppm renders the page correctly, unlike
// pdfcpu.ExtractImagesFile which extracts embedded image objects whose
// internal numbering may not match page order.
func renderPage(ctx context.Context, pdfPath, outDir string, pageInPDF, outputPageNum int) error {
	tmpDir, err := os.MkdirTemp("", "folio-page-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outputPrefix := filepath.Join(tmpDir, "page")

	// -png: output PNG format
	// -f N / -l N: first and last page to render
	// -r 300: resolution in DPI
	// -singlefile: don't add page number suffix
	pageStr := strconv.Itoa(pageInPDF)
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", "300",
		"-singlefile",
		pdfPath,
		outputPrefix,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(output))
	}

	// pdftoppm with -singlefile creates: <prefix>.png
	srcPath := outputPrefix + ".png"
	if _, err := os.Stat(srcPath); err != nil {
		return fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}

	data, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("failed to read rendered image: %w", err)
	}

	dstPath := filepath.Join(outDir, fmt.Sprintf("page_%04d.png", outputPageNum))
	if err := os.WriteFile(dstPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write page image: %w", err)
	}

	return nil
}

// sortPDFsByNumber sorts PDF paths by their numeric suffix.
// e.g., ["book-2.pdf", "book-1.pdf", "book-10.pdf"] -> ["book-1.pdf", "book-2.pdf", "book-10.pdf"]
func sortPDFsByNumber(paths []string) []string {
	sorted := make([]string, len(paths))
	copy(sorted, paths)

	re := regexp.MustCompile(`-(\d+)\.pdf$`)

	sort.Slice(sorted, func(i, j int) bool {
		mi := re.FindStringSubmatch(sorted[i])
		mj := re.FindStringSubmatch(sorted[j])

		// If both have numbers, sort numerically
		if len(mi) > 1 && len(mj) > 1 {
			ni, _ := strconv.Atoi(mi[1])
			nj, _ := strconv.Atoi(mj[1])
			return ni < nj
		}

		// Files without numbers come first
		if len(mi) > 1 {
			return false
		}
		if len(mj) > 1 {
			return true
		}

		// Both without numbers: alphabetical
		return sorted[i] < sorted[j]
	})

	return sorted
}

// deriveTitle extracts a title from a PDF filename.
// e.g., "crusade-europe.pdf" -> "crusade-europe"
// e.g., "my-book-1.pdf" -> "my-book"
func deriveTitle(pdfPath string) string {
	base := filepath.Base(pdfPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))

	re := regexp.MustCompile(`-\d+$`)
	name = re.ReplaceAllString(name, "")

	return name
}
