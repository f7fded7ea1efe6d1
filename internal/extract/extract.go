// Package extract reads plain text out of source documents.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/kailas-cloud/ragvoice/internal/domain"
)

// Supported reports whether a file name has an extension this package can read.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".md", ".markdown", ".txt":
		return true
	}
	return false
}

// File extracts the text of the document at path, dispatching on its extension.
// Unknown extensions and documents without text yield domain.ErrUnsupportedFormat.
func File(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !Supported(path) {
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, ext)
	}

	var (
		out string
		err error
	)
	if ext == ".pdf" {
		out, err = PDF(path)
	} else {
		var data []byte
		data, err = os.ReadFile(filepath.Clean(path))
		if err != nil {
			return "", fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		if ext == ".txt" {
			out, err = Text(data)
		} else {
			out = Markdown(data)
		}
	}
	if err != nil {
		return "", err
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%w: %s has no extractable text", domain.ErrUnsupportedFormat, filepath.Base(path))
	}
	return out, nil
}

// PDF returns the plain text of every page of a PDF file.
func PDF(path string) (string, error) {
	f, rdr, err := pdf.Open(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("%w: open pdf %s: %w", domain.ErrUnsupportedFormat, filepath.Base(path), err)
	}
	defer f.Close()

	r, err := rdr.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: read pdf %s: %w", domain.ErrUnsupportedFormat, filepath.Base(path), err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", fmt.Errorf("read pdf %s: %w", filepath.Base(path), err)
	}
	return strings.ToValidUTF8(buf.String(), ""), nil
}

// Text validates UTF-8 plain text.
func Text(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: text is not valid UTF-8", domain.ErrUnsupportedFormat)
	}
	return string(data), nil
}

// Markdown renders Markdown source to plain text, one block per paragraph.
// Formatting marks are dropped; code blocks keep their lines.
func Markdown(source []byte) string {
	reader := text.NewReader(source)
	doc := goldmark.New().Parser().Parse(reader)

	var blocks []string
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		var txt string
		switch n := node.(type) {
		case *ast.FencedCodeBlock:
			txt = blockLines(n, source)
		case *ast.CodeBlock:
			txt = blockLines(n, source)
		default:
			txt = extractText(n, source)
		}
		if txt != "" {
			blocks = append(blocks, txt)
		}
	}
	return strings.Join(blocks, "\n\n")
}

func blockLines(n ast.Node, source []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(source))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func extractText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if node.Type() == ast.TypeBlock && node != n && !strings.HasSuffix(sb.String(), "\n") {
				sb.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}
		switch t := node.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte('\n')
			}
		case *ast.String:
			sb.Write(t.Value)
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			sb.WriteString(blockLines(t, source))
			sb.WriteByte('\n')
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
