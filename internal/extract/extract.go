// Package extract turns résumé documents into plain text.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
)

// ErrNotFound reports a missing local file or a 404 from a remote document.
var ErrNotFound = errors.New("document not found")

const defaultMaxBytes = 32 << 20

var pdfMagic = []byte("%PDF-")

// Extractor reads PDF or plain text documents from disk or over HTTP.
type Extractor struct {
	client   *http.Client
	maxBytes int64
}

// New creates an Extractor. A nil client gets a 30 second timeout.
func New(client *http.Client) *Extractor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Extractor{client: client, maxBytes: defaultMaxBytes}
}

// File extracts the text of the document at path. Files ending in .pdf or
// starting with the PDF header are parsed as PDF, anything else is read as UTF-8.
func (e *Extractor) File(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".pdf") || bytes.HasPrefix(data, pdfMagic) {
		text, err := PDFText(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", path, err)
		}
		return text, nil
	}
	return string(data), nil
}

// URL downloads the document at rawURL and extracts its text.
func (e *Extractor) URL(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("%w: %s", ErrNotFound, rawURL)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", fmt.Errorf("download %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("download %s: %w", rawURL, err)
	}
	if int64(len(data)) > e.maxBytes {
		return "", fmt.Errorf("download %s: document larger than %d bytes", rawURL, e.maxBytes)
	}

	if bytes.HasPrefix(data, pdfMagic) || strings.Contains(resp.Header.Get("Content-Type"), "application/pdf") {
		text, err := PDFText(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", rawURL, err)
		}
		return text, nil
	}
	return string(data), nil
}

// PDFText concatenates the plain text of every page. Pages without
// extractable text contribute nothing.
func PDFText(r io.ReaderAt, size int64) (string, error) {
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		b.WriteString(text)
	}
	return b.String(), nil
}
