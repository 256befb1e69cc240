package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/phototag/catalog-service/internal/catalog"
)

// ArchiveResponse is returned when an image was archived
type ArchiveResponse struct {
	Success bool  `json:"success" jsonschema:"required"`
	ImageID int64 `json:"image_id" jsonschema:"required"`
}

// DeleteAllResponse is returned by the catalog purge
type DeleteAllResponse struct {
	Success       bool `json:"success" jsonschema:"required"`
	DeletedImages int  `json:"deleted_images" jsonschema:"required"`
	FilesRemoved  int  `json:"files_removed"`
}

// ExportImages streams the catalog as CSV or XLSX
// @Summary Export the catalog
// @Tags catalog
// @Produce text/csv
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param format query string false "Export format" Enums(csv, xlsx) default(csv)
// @Success 200 {file} file
// @Failure 400 {object} ErrorResponse
// @Router /api/exportImages [get]
func (h *Handler) ExportImages(c *gin.Context) {
	format, err := catalog.ParseFormat(params(c)["format"])
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := h.catalog.ExportRows(c.Request.Context())
	if err != nil {
		h.internalError(c, "failed to read catalog", err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+format.Filename()+`"`)
	c.Header("Content-Type", format.ContentType())
	c.Status(http.StatusOK)
	if err := catalog.WriteExport(c.Writer, format, rows); err != nil {
		h.logger.Error().Err(err).Str("format", string(format)).Msg("Export write failed")
	}
}

// ArchiveImage hides an image from the catalog
// @Summary Archive an image
// @Tags catalog
// @Accept json
// @Produce json
// @Param image_id query int true "Image id"
// @Success 200 {object} ArchiveResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/archiveImage [post]
func (h *Handler) ArchiveImage(c *gin.Context) {
	id, err := positiveID(c, "image_id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid image_id")
		return
	}

	if err := h.catalog.Archive(c.Request.Context(), id); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			respondError(c, http.StatusNotFound, "image not found")
			return
		}
		h.internalError(c, "failed to archive image", err)
		return
	}
	c.JSON(http.StatusOK, ArchiveResponse{Success: true, ImageID: id})
}

// DeleteAllImages removes every image, tag and tag assignment, then deletes
// the stored files
// @Summary Delete the whole catalog
// @Tags catalog
// @Produce json
// @Success 200 {object} DeleteAllResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/deleteAllImages [delete]
func (h *Handler) DeleteAllImages(c *gin.Context) {
	ctx := c.Request.Context()
	filenames, err := h.catalog.PurgeAll(ctx)
	if err != nil {
		h.internalError(c, "failed to delete images", err)
		return
	}

	removed := 0
	for _, name := range filenames {
		if err := h.files.Delete(ctx, name); err != nil {
			h.logger.Warn().Err(err).Str("filename", name).Msg("Failed to remove stored file")
			continue
		}
		removed++
	}

	h.logger.Info().
		Int("deleted_images", len(filenames)).
		Int("files_removed", removed).
		Msg("Catalog purged")
	c.JSON(http.StatusOK, DeleteAllResponse{Success: true, DeletedImages: len(filenames), FilesRemoved: removed})
}
