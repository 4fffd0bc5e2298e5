// Package images turns raw uploads into compact fixed-size cover files
// served from a public directory.
package images

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	// register decoders for the accepted upload formats
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/Vikass76/MonVieuxGrimoire/pkg/logger"
)

const (
	coverWidth  = 450
	coverHeight = 600
	jpegQuality = 80

	// DefaultMaxBytes caps a single upload at 12 MB.
	DefaultMaxBytes = 12 << 20
)

var (
	ErrTooLarge  = errors.New("image exceeds maximum size")
	ErrBadFormat = errors.New("unsupported image format")
)

var allowedMIME = []string{"image/jpeg", "image/png", "image/webp"}

type Processor struct {
	Dir      string
	MaxBytes int64

	// BaseURL overrides the request scheme/host when building public URLs.
	BaseURL string
}

func NewProcessor(dir, baseURL string) (*Processor, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("images dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create images dir: %w", err)
	}
	return &Processor{Dir: dir, MaxBytes: DefaultMaxBytes, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Process validates the upload, crops it to a 450x600 cover and re-encodes
// it as JPEG under a collision-resistant name. The raw upload is never
// written to disk. Returns the public URL of the stored file.
func (p *Processor) Process(c *gin.Context, fh *multipart.FileHeader) (string, error) {
	if fh.Size > p.MaxBytes {
		return "", ErrTooLarge
	}

	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	buf, err := io.ReadAll(io.LimitReader(f, p.MaxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(buf)) > p.MaxBytes {
		return "", ErrTooLarge
	}

	mt := mimetype.Detect(buf)
	if !mimeAllowed(mt.String()) {
		return "", ErrBadFormat
	}

	src, _, err := image.Decode(bytes.NewReader(buf))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	// crop-to-fill; no letterboxing
	cover := imaging.Fill(src, coverWidth, coverHeight, imaging.Center, imaging.Lanczos)

	name := fmt.Sprintf("%d-%s.jpg", time.Now().UnixMilli(), uuid.NewString())
	if err := imaging.Save(cover, filepath.Join(p.Dir, name), imaging.JPEGQuality(jpegQuality)); err != nil {
		return "", fmt.Errorf("save image: %w", err)
	}

	return p.publicURL(c, name), nil
}

// Remove deletes the stored file behind a previously returned URL.
// Best-effort: failures are logged and swallowed.
func (p *Processor) Remove(imageURL string) {
	_, name, found := strings.Cut(imageURL, "/images/")
	if !found || name == "" {
		return
	}
	path := filepath.Join(p.Dir, filepath.Base(name))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Get().Warn().Err(err).Str("path", path).Msg("delete image failed")
	}
}

func (p *Processor) publicURL(c *gin.Context, name string) string {
	if p.BaseURL != "" {
		return p.BaseURL + "/images/" + name
	}
	scheme := "http"
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	} else if c.Request.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/images/%s", scheme, c.Request.Host, name)
}

func mimeAllowed(mt string) bool {
	for _, m := range allowedMIME {
		if mt == m {
			return true
		}
	}
	return false
}
