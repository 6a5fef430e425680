package api

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pharmacy-api/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const uploadField = "image"

var (
	imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}
	imageMIMETypes  = map[string]bool{"image/jpg": true, "image/jpeg": true, "image/png": true}
)

// EnsureUploadDir creates the upload directory when it does not exist
func EnsureUploadDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create upload dir %s: %w", dir, err)
	}
	return nil
}

// isImage requires both the file extension and the declared content type to
// name a JPEG or PNG.
func isImage(fh *multipart.FileHeader) bool {
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	mimeType := strings.ToLower(strings.TrimSpace(strings.Split(fh.Header.Get("Content-Type"), ";")[0]))
	return imageExtensions[ext] && imageMIMETypes[mimeType]
}

// uploadImage stores one image and answers with its public path as text
func (h *Handler) uploadImage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.upload.MaxBytes)

	fh, err := c.FormFile(uploadField)
	if err != nil {
		util.UploadsTotal.WithLabelValues("rejected").Inc()
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "File too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}

	if !isImage(fh) {
		util.UploadsTotal.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Images only!"})
		return
	}

	name := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), filepath.Base(fh.Filename))
	if err := c.SaveUploadedFile(fh, filepath.Join(h.upload.Dir, name)); err != nil {
		util.UploadsTotal.WithLabelValues("error").Inc()
		h.logger.Error("Failed to store upload", zap.String("file", name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Upload failed"})
		return
	}

	util.UploadsTotal.WithLabelValues("stored").Inc()
	h.logger.Info("Image uploaded", zap.String("file", name), zap.Int64("size", fh.Size))
	c.String(http.StatusOK, "/uploads/"+name)
}
