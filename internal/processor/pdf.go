package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"pdf-rag/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/phuslu/log"
)

// DefaultExtensions lists the file extensions the loader picks up
var DefaultExtensions = []string{".pdf"}

var (
	horizontalSpaceRe = regexp.MustCompile(`[ \t\f\v]+`)
	blankLinesRe      = regexp.MustCompile(`\n{3,}`)
)

// FileError records a file that could not be parsed
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// LoadResult holds the documents read from a corpus directory and the files that were skipped
type LoadResult struct {
	Documents []models.Document
	Failures  []FileError
}

// Loader reads PDF files from a directory
type Loader struct {
	Extensions []string
}

// NewLoader creates a loader for the given extensions, defaulting to .pdf
func NewLoader(extensions ...string) *Loader {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	return &Loader{Extensions: extensions}
}

// Load extracts page texts from every matching file in dir.
// A file that cannot be parsed is skipped and reported in the result.
func (l *Loader) Load(ctx context.Context, dir string) (*LoadResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read corpus directory %s: %w", models.ErrIO, dir, err)
	}

	result := &LoadResult{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !l.matches(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		pages, err := l.ExtractPages(path)
		if err != nil {
			log.Warn().Str("file", path).Err(err).Msg("skipping unreadable document")
			result.Failures = append(result.Failures, FileError{Path: path, Err: err})
			continue
		}

		result.Documents = append(result.Documents, models.Document{
			ID:    path,
			Path:  path,
			Pages: pages,
		})
		log.Debug().Str("file", path).Int("pages", len(pages)).Msg("loaded document")
	}

	return result, nil
}

// ExtractPages extracts the normalised text of every page of a PDF file
func (l *Loader) ExtractPages(filePath string) (pages []string, err error) {
	// the parser panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: failed to parse PDF: %v", models.ErrParse, r)
		}
	}()

	f, r, err := pdf.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open PDF: %w", models.ErrParse, err)
	}
	defer f.Close()

	total := r.NumPage()
	pages = make([]string, 0, total)
	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to extract text of page %d: %w", models.ErrParse, i, err)
		}
		pages = append(pages, normalizeWhitespace(text))
	}

	return pages, nil
}

func (l *Loader) matches(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range l.Extensions {
		if ext == strings.ToLower(want) {
			return true
		}
	}
	return false
}

// normalizeWhitespace collapses horizontal whitespace and blank-line runs while keeping paragraph breaks
func normalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = horizontalSpaceRe.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = blankLinesRe.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")

	return strings.TrimSpace(text)
}
