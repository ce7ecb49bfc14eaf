package preview

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

const (
	TypeHTML       = "text/html"
	TypeCSS        = "text/css"
	TypeJavaScript = "text/javascript"
)

type File struct {
	Name        string
	ContentType string
	Content     string
}

var filenameInvalidChars = regexp.MustCompile(`[^a-z0-9]`)

func SanitizeFilename(name string) string {
	return filenameInvalidChars.ReplaceAllString(strings.ToLower(name), "-")
}

// BaseFilename is the slug when present and the sanitized app name otherwise.
func BaseFilename(name, slug string) string {
	if slug != "" {
		return slug
	}
	return SanitizeFilename(name)
}

// ProjectFiles returns the raw html, css and js files of an app, files with only
// whitespace are left out.
func ProjectFiles(name, slug string, p Preview) []File {
	base := BaseFilename(name, slug)

	candidates := []File{
		{Name: base + ".html", ContentType: TypeHTML, Content: p.HTML},
		{Name: base + ".css", ContentType: TypeCSS, Content: p.CSS},
		{Name: base + ".js", ContentType: TypeJavaScript, Content: p.JS},
	}

	files := make([]File, 0, len(candidates))
	for _, f := range candidates {
		if strings.TrimSpace(f.Content) != "" {
			files = append(files, f)
		}
	}
	return files
}

// DownloadFiles is what the download bundle contains: the complete document with
// css and js embedded, followed by the separate css and js files.
func DownloadFiles(name, slug string, p Preview) ([]File, error) {
	if p.IsEmpty() {
		return nil, nil
	}

	base := BaseFilename(name, slug)

	document, err := CompleteDocument(name, p)
	if err != nil {
		return nil, err
	}

	files := []File{{Name: base + ".html", ContentType: TypeHTML, Content: document}}
	for _, f := range ProjectFiles(name, slug, p) {
		if f.ContentType != TypeHTML {
			files = append(files, f)
		}
	}
	return files, nil
}

func ZipArchive(files []File) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	for _, f := range files {
		fw, err := w.Create(f.Name)
		if err != nil {
			return nil, fmt.Errorf("error adding %s to archive: %w", f.Name, err)
		}
		if _, err := fw.Write([]byte(f.Content)); err != nil {
			return nil, fmt.Errorf("error writing %s to archive: %w", f.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("error finalizing archive: %w", err)
	}
	return buf.Bytes(), nil
}
