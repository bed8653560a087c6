package store

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/cppla/teamfeed/config"
)

// Upload is one file received with a request. Open is called at most once,
// after every file of the batch passed the policy.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// UploadFromFileHeader adapts a multipart part.
func UploadFromFileHeader(fh *multipart.FileHeader) Upload {
	return Upload{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// UploadPolicy decides which attachment batches are accepted. It is built
// once at startup and never mutated.
type UploadPolicy struct {
	MaxFiles     int
	MaxFileBytes int64
	allowed      map[string]struct{}
	denied       map[string]struct{}
	mimePrefixes []string
	mimeTypes    map[string]struct{}
}

// multipartOverhead covers form fields and part headers around the files.
const multipartOverhead = 1 << 20

// MaxRequestBytes bounds a multipart request carrying a full batch.
func (p UploadPolicy) MaxRequestBytes() int64 {
	return int64(p.MaxFiles)*p.MaxFileBytes + multipartOverhead
}

// NewUploadPolicy builds the policy from configuration.
func NewUploadPolicy(cfg config.AppConfig) UploadPolicy {
	return UploadPolicy{
		MaxFiles:     cfg.MaxAttachments,
		MaxFileBytes: int64(cfg.MaxAttachmentMB) << 20,
		allowed:      lowerSet(cfg.AllowedExtensions),
		denied:       lowerSet(cfg.DeniedExtensions),
		mimePrefixes: lowerList(cfg.AllowedMimePrefixes),
		mimeTypes:    lowerSet(cfg.AllowedMimeTypes),
	}
}

// Check validates the whole batch before anything is written. For each
// file the order is size, deny list, allow list, content type.
func (p UploadPolicy) Check(files []Upload) error {
	if len(files) == 0 {
		return nil
	}
	if len(files) > p.MaxFiles {
		return Validation("files", fmt.Sprintf("at most %d attachments per post", p.MaxFiles))
	}
	for _, f := range files {
		if f.Size > p.MaxFileBytes {
			return Validation("files", fmt.Sprintf("%s: file exceeds the %d MiB limit", f.Name, p.MaxFileBytes>>20))
		}
		ext := strings.ToLower(filepath.Ext(f.Name))
		if _, bad := p.denied[ext]; bad {
			return Validation("files", fmt.Sprintf("%s: executable/script not allowed", f.Name))
		}
		if _, ok := p.allowed[ext]; !ok {
			return Validation("files", fmt.Sprintf("%s: type not allow-listed", f.Name))
		}
		if !p.mimeAllowed(f.ContentType) {
			return Validation("files", fmt.Sprintf("%s: content type %q not allowed", f.Name, f.ContentType))
		}
	}
	return nil
}

func (p UploadPolicy) mimeAllowed(contentType string) bool {
	ct := normalizeMediaType(contentType)
	if ct == "" {
		return false
	}
	for _, prefix := range p.mimePrefixes {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	_, ok := p.mimeTypes[ct]
	return ok
}

func normalizeMediaType(contentType string) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

func lowerSet(items []string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, it := range lowerList(items) {
		m[it] = struct{}{}
	}
	return m
}

func lowerList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.ToLower(strings.TrimSpace(it)); it != "" {
			out = append(out, it)
		}
	}
	return out
}
