package apiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ErlanBelekov/booking-portal/internal/apierr"
)

const defaultDownloadName = "download"

// File is one file part of a multipart upload.
type File struct {
	Field       string
	Name        string
	ContentType string
	Content     io.Reader
}

// Form is the body of a multipart upload.
type Form struct {
	Fields map[string]string
	Files  []File
}

// Upload POSTs form as multipart/form-data and decodes the {"data": T} reply into out.
// The form is buffered so the request can be replayed after a refresh or backoff.
func (c *Client) Upload(ctx context.Context, path string, form Form, out any, opts ...Option) error {
	body, contentType, err := encodeForm(form)
	if err != nil {
		return apierr.FromTransport(err)
	}

	req := newRequest(http.MethodPost, path)
	req.Body = body
	req.ContentType = contentType
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	return decodeData(resp, out)
}

func encodeForm(form Form) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(form.Fields))
	for k := range form.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, form.Fields[k]); err != nil {
			return nil, "", fmt.Errorf("write form field %s: %w", k, err)
		}
	}

	for _, f := range form.Files {
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.Field, filepath.Base(f.Name)))
		h.Set("Content-Type", ct)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create form file %s: %w", f.Field, err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, "", fmt.Errorf("copy form file %s: %w", f.Field, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// Download fetches path as raw bytes and saves them in the download
// directory under filename. It returns the final path. The body goes to a
// temporary file first, which is always removed.
func (c *Client) Download(ctx context.Context, path, filename string, opts ...Option) (string, error) {
	req := newRequest(http.MethodGet, path)
	req.Binary = true
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return "", err
	}

	dest, err := c.save(resp.Body, filename)
	if err != nil {
		return "", apierr.FromTransport(err)
	}
	c.logger.InfoContext(ctx, "download saved", "path", dest, "bytes", len(resp.Body))
	return dest, nil
}

func (c *Client) save(data []byte, filename string) (string, error) {
	if err := os.MkdirAll(c.downloadDir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	tmp, err := os.CreateTemp(c.downloadDir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err := os.Remove(tmp.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("remove temp download", "path", tmp.Name(), "error", err)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}

	dest := filepath.Join(c.downloadDir, SanitizeFilename(filename))
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("move download into place: %w", err)
	}
	return dest, nil
}

// SanitizeFilename strips any directory part from name and falls back to "download".
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	switch name {
	case "", ".", "..", "/":
		return defaultDownloadName
	}
	if strings.HasPrefix(name, ".") {
		name = strings.TrimLeft(name, ".")
		if name == "" {
			return defaultDownloadName
		}
	}
	return name
}
