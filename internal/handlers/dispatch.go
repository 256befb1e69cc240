package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Dispatch routes /api?action=<name> (or a JSON body "action") to the named
// operation
// @Summary Action dispatcher
// @Tags jobs
// @Produce json
// @Param action query string true "Operation name" Enums(startImport, startUpdate, importStatus, updateStatus, stopImport, stopUpdate, exportImages, archiveImage, deleteAllImages)
// @Failure 400 {object} ErrorResponse "Unknown action"
// @Router /api [get]
func (h *Handler) Dispatch(c *gin.Context) {
	action := params(c)["action"]
	fn, ok := h.actions[action]
	if !ok {
		respondError(c, http.StatusBadRequest, "unknown action: "+action)
		return
	}
	fn(c)
}
