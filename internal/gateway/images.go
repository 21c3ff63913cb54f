package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Makepad-fr/tada/internal/apierr"
)

// MaxImageBytes is the largest photo accepted for upload.
const MaxImageBytes = 5 << 20

// ImageGateway uploads todo photos.
type ImageGateway struct {
	c *client
}

// NewImageGateway returns a gateway scoped to bearer. timeout bounds each
// upload; zero means 30s.
func NewImageGateway(opts Options, bearer string, timeout time.Duration) *ImageGateway {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ImageGateway{c: newClient(opts, bearerClient(opts, bearer, timeout))}
}

type imageData struct {
	URL         string `json:"url"`
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

// ImageContentType derives the part content type from the file extension.
func ImageContentType(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	switch ext {
	case "":
		return "image/jpeg"
	case "jpg":
		return "image/jpeg"
	default:
		return "image/" + ext
	}
}

// Upload sends the file at path and returns the URL the server stored it at.
func (g *ImageGateway) Upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", apierr.Validation("cannot read photo: %v", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", apierr.Validation("cannot read photo: %v", err)
	}
	if info.IsDir() {
		return "", apierr.Validation("photo path is a directory")
	}
	if info.Size() > MaxImageBytes {
		return "", apierr.Validation("photo is larger than %d MB", MaxImageBytes>>20)
	}

	name := filepath.Base(path)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", ImageContentType(name))
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, io.LimitReader(f, MaxImageBytes+1)); err != nil {
		return "", apierr.Validation("cannot read photo: %v", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.c.baseURL+"/images", &buf)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := g.c.do(req)
	if err != nil {
		return "", err
	}
	if resp.status == http.StatusUnauthorized {
		return "", apierr.ErrUnauthorized
	}
	if !resp.ok() {
		return "", resp.serverError()
	}

	var env envelope
	var data imageData
	if err := json.Unmarshal(resp.body, &env); err != nil || len(env.Data) == 0 {
		return "", resp.invalid()
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.URL == "" {
		return "", &apierr.ServerError{Status: resp.status, Detail: "image url missing from response"}
	}
	g.c.logger.Printf("Uploaded %s (%d bytes) as %s", name, data.Size, data.Key)
	return data.URL, nil
}
