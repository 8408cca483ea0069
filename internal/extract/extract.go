// Package extract pulls plain text out of résumé documents.
package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// ErrUnsupported is returned for documents without a known extension.
var ErrUnsupported = errors.New("unsupported document type")

const docxBody = "word/document.xml"

// Extractor reads documents and returns their lowercased text.
type Extractor struct {
	logger *zap.Logger
}

// New creates an Extractor. A nil logger disables failure logging.
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Text returns the lowercased text of the document at path, or an empty
// string when it cannot be read.
func (e *Extractor) Text(path string) string {
	text, err := Read(path)
	if err != nil {
		e.logger.Warn("text extraction failed",
			zap.String("path", path),
			zap.Error(err),
		)
		return ""
	}
	return strings.ToLower(text)
}

// Read dispatches on the file extension and returns the raw document text.
func Read(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		return readPlain(path)
	case ".docx":
		return readDocx(path)
	case ".pdf":
		return readPDF(path)
	case ".html", ".htm":
		return readHTML(path)
	default:
		return "", fmt.Errorf("%s: %w", filepath.Ext(path), ErrUnsupported)
	}
}

func readPlain(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(data), ""), nil
}

func readDocx(path string) (string, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer archive.Close()

	for _, file := range archive.File {
		if file.Name != docxBody {
			continue
		}
		body, err := file.Open()
		if err != nil {
			return "", err
		}
		defer body.Close()
		return docxParagraphs(body)
	}

	return "", fmt.Errorf("docx has no %s", docxBody)
}

// docxParagraphs joins non-blank paragraphs of a WordprocessingML body with
// single spaces.
func docxParagraphs(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)

	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
	)

	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse docx: %w", err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				current.WriteByte('\t')
			case "br", "cr":
				current.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if text := current.String(); strings.TrimSpace(text) != "" {
					paragraphs = append(paragraphs, text)
				}
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}

	return strings.Join(paragraphs, " "), nil
}

func readPDF(path string) (text string, err error) {
	// The parser panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}

func readHTML(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	doc, err := goquery.NewDocumentFromReader(file)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	doc.Find("script, style, noscript").Remove()

	selection := doc.Find("body")
	if selection.Length() == 0 {
		selection = doc.Selection
	}
	return strings.Join(strings.Fields(selection.Text()), " "), nil
}
