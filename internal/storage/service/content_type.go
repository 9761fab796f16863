package service

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/anthanhphan/go-blob-store/internal/storage/domain"
	"github.com/gabriel-vasile/mimetype"
)

// sniffLen is how many leading bytes content detection looks at.
const sniffLen = 3072

// contentTypeFilter resolves the stored content type of an upload and checks
// it against the allow-list. An empty allow-list admits everything.
type contentTypeFilter struct {
	exact    map[string]struct{}
	prefixes []string // from "type/*" entries, kept as "type/"
	sniff    bool
}

func newContentTypeFilter(allowed []string, sniff bool) *contentTypeFilter {
	f := &contentTypeFilter{exact: make(map[string]struct{}, len(allowed)), sniff: sniff}
	for _, entry := range allowed {
		entry = baseType(entry)
		switch {
		case entry == "":
		case strings.HasSuffix(entry, "/*"):
			f.prefixes = append(f.prefixes, strings.TrimSuffix(entry, "*"))
		default:
			f.exact[entry] = struct{}{}
		}
	}
	return f
}

// allows reports whether contentType passes the allow-list. Parameters such
// as charset are ignored.
func (f *contentTypeFilter) allows(contentType string) bool {
	if len(f.exact) == 0 && len(f.prefixes) == 0 {
		return true
	}
	base := baseType(contentType)
	if _, ok := f.exact[base]; ok {
		return true
	}
	for _, prefix := range f.prefixes {
		if strings.HasPrefix(base, prefix) {
			return true
		}
	}
	return false
}

// resolve picks the content type to store. A specific declared type wins;
// otherwise the head of br is sniffed when enabled. Nothing is consumed from br.
func (f *contentTypeFilter) resolve(declared string, br *bufio.Reader) (string, error) {
	contentType := strings.TrimSpace(declared)

	if f.sniff && (contentType == "" || baseType(contentType) == domain.DefaultContentType) {
		head, err := br.Peek(sniffLen)
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read upload head: %w", err)
		}
		if len(head) > 0 {
			contentType = mimetype.Detect(head).String()
		}
	}
	if contentType == "" {
		contentType = domain.DefaultContentType
	}

	if !f.allows(contentType) {
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedType, contentType)
	}
	return contentType, nil
}

func baseType(contentType string) string {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if base, _, err := mime.ParseMediaType(contentType); err == nil {
		return base
	}
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		return strings.TrimSpace(contentType[:i])
	}
	return contentType
}
