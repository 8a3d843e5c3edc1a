package handlers

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// UploadsRoute is the URL prefix the router serves UploadDir under.
const UploadsRoute = "/uploads"

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// UploadImage handles POST /api/uploads
// Product photos and custom-design artwork are stored under UploadDir and
// returned as a public URL.
func (h *Handlers) UploadImage(c *gin.Context) {
	// 1. Get the file from the request
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadSize)
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded or file too large"})
		return
	}

	// 2. Sniff the real content type; the client's header is not trusted
	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read upload"})
		return
	}
	head := make([]byte, 512)
	n, _ := io.ReadFull(src, head)
	src.Close()
	ext, ok := imageExtensions[http.DetectContentType(head[:n])]
	if !ok {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "Only JPEG, PNG, WebP or GIF images are accepted"})
		return
	}

	// 3. Save under a random name
	if err := os.MkdirAll(h.UploadDir, 0o755); err != nil {
		h.respondError(c, fmt.Errorf("create upload dir: %w", err))
		return
	}
	name := uuid.NewString() + ext
	if err := c.SaveUploadedFile(file, filepath.Join(h.UploadDir, name)); err != nil {
		h.respondError(c, fmt.Errorf("save upload: %w", err))
		return
	}

	// 4. Return the public URL
	c.JSON(http.StatusCreated, gin.H{
		"url": strings.TrimRight(h.PublicURL, "/") + UploadsRoute + "/" + name,
	})
}
