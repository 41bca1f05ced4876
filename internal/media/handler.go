package media

import (
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/roomcast/roomcast/internal/catalog"
	"github.com/roomcast/roomcast/internal/realtime"
	"github.com/roomcast/roomcast/pkg/response"
)

// Handler serves the media catalog HTTP surface: list, upload, delete.
type Handler struct {
	dir       string
	maxUpload int64 // bytes
	cat       *catalog.Catalog
	watcher   *catalog.Watcher
	hub       *realtime.Hub
	logger    *zap.Logger
}

// NewHandler creates the media handler. maxUploadMB bounds a single upload.
func NewHandler(dir string, maxUploadMB int64, cat *catalog.Catalog, watcher *catalog.Watcher, hub *realtime.Hub, logger *zap.Logger) *Handler {
	return &Handler{
		dir:       dir,
		maxUpload: maxUploadMB << 20,
		cat:       cat,
		watcher:   watcher,
		hub:       hub,
		logger:    logger,
	}
}

// List returns all cataloged entries.
func (h *Handler) List(c *gin.Context) {
	var entries []catalog.Entry
	h.hub.DoSync(func() { entries = h.cat.List() })
	response.OK(c, entries)
}

// Upload accepts a multipart media file, stores it in the media directory
// and registers the catalog entry.
func (h *Handler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file field required")
		return
	}
	if file.Size > h.maxUpload {
		response.BadRequest(c, "file exceeds upload limit")
		return
	}
	name := filepath.Base(file.Filename)
	kind, ok := catalog.KindForFile(name)
	if !ok {
		response.BadRequest(c, "unsupported media type")
		return
	}

	dst := filepath.Join(h.dir, name)
	if err := c.SaveUploadedFile(file, dst); err != nil {
		h.logger.Error("upload save failed", zap.String("name", name), zap.Error(err))
		response.Internal(c, "could not store file")
		return
	}

	var entry catalog.Entry
	h.hub.DoSync(func() {
		var added bool
		entry, added = h.cat.Add(name, kind, file.Size, time.Now())
		if added {
			h.hub.ToRole(realtime.RoleController, realtime.EventFileAdded, entry)
		}
	})
	h.logger.Info("media uploaded", zap.String("id", entry.ID), zap.Int64("size", file.Size))
	response.Created(c, entry)
}

// Delete removes a cataloged file from disk and from the catalog, forcing a
// playback stop when it was the playing source.
func (h *Handler) Delete(c *gin.Context) {
	id := filepath.Base(c.Param("id")) // strip any path components

	var removed bool
	h.hub.DoSync(func() { removed = h.watcher.RemoveEntry(id) })
	if !removed {
		response.NotFound(c, catalog.ErrNotFound.Error())
		return
	}

	if err := os.Remove(filepath.Join(h.dir, id)); err != nil && !os.IsNotExist(err) {
		h.logger.Warn("file delete failed", zap.String("id", id), zap.Error(err))
	}
	response.NoContent(c)
}
