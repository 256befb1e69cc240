// Package handlers exposes the job launch, status and control operations and
// the catalog maintenance operations over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/phototag/catalog-service/internal/catalog"
	"github.com/phototag/catalog-service/internal/jobs"
	"github.com/phototag/catalog-service/internal/launcher"
	"github.com/phototag/catalog-service/internal/taskqueue"
	"github.com/rs/zerolog"
)

// Launcher starts jobs
type Launcher interface {
	Launch(ctx context.Context, kind jobs.Kind, ownerID int64) (launcher.Result, error)
}

// JobStore reads and stops ledger jobs
type JobStore interface {
	Get(ctx context.Context, id int64) (*jobs.Job, error)
	Stop(ctx context.Context, id int64) (*jobs.Job, error)
}

// QueueStore reads and purges the work queue
type QueueStore interface {
	Stats(ctx context.Context, jobID int64) (taskqueue.Stats, error)
	PurgeJob(ctx context.Context, jobID int64) (int64, error)
	PurgeInactive(ctx context.Context, kind string) (int64, error)
}

// Catalog is the catalog maintenance surface
type Catalog interface {
	ExportRows(ctx context.Context) ([]catalog.ExportRow, error)
	Archive(ctx context.Context, imageID int64) error
	PurgeAll(ctx context.Context) ([]string, error)
}

// FileRemover deletes accepted files
type FileRemover interface {
	Delete(ctx context.Context, key string) error
}

// Liveness reports whether a job has a live worker
type Liveness interface {
	IsRunning(jobID int64) bool
}

// Pinger checks the database connection
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps groups the collaborators of Handler
type Deps struct {
	Launcher Launcher
	Jobs     JobStore
	Queue    QueueStore
	Catalog  Catalog
	Files    FileRemover
	Workers  Liveness
	DB       Pinger
	Logger   zerolog.Logger
}

// Handler serves the API
type Handler struct {
	launcher Launcher
	jobs     JobStore
	queue    QueueStore
	catalog  Catalog
	files    FileRemover
	workers  Liveness
	db       Pinger
	logger   zerolog.Logger
	actions  map[string]gin.HandlerFunc
}

// New creates a Handler
func New(d Deps) *Handler {
	h := &Handler{
		launcher: d.Launcher,
		jobs:     d.Jobs,
		queue:    d.Queue,
		catalog:  d.Catalog,
		files:    d.Files,
		workers:  d.Workers,
		db:       d.DB,
		logger:   d.Logger.With().Str("component", "handlers").Logger(),
	}
	h.actions = map[string]gin.HandlerFunc{
		"startImport":     h.StartImport,
		"startUpdate":     h.StartUpdate,
		"importStatus":    h.ImportStatus,
		"updateStatus":    h.UpdateStatus,
		"stopImport":      h.StopImport,
		"stopUpdate":      h.StopUpdate,
		"exportImages":    h.ExportImages,
		"archiveImage":    h.ArchiveImage,
		"deleteAllImages": h.DeleteAllImages,
	}
	return h
}

// Register mounts the API routes on r
func (h *Handler) Register(r gin.IRouter) {
	r.Any("", h.Dispatch)
	r.Any("/startImport", h.StartImport)
	r.Any("/startUpdate", h.StartUpdate)
	r.GET("/importStatus", h.ImportStatus)
	r.GET("/updateStatus", h.UpdateStatus)
	r.POST("/stopImport", h.StopImport)
	r.POST("/stopUpdate", h.StopUpdate)
	r.DELETE("/queue/:kind", h.PurgeQueue)
	r.GET("/exportImages", h.ExportImages)
	r.POST("/archiveImage", h.ArchiveImage)
	r.DELETE("/deleteAllImages", h.DeleteAllImages)
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message" jsonschema:"required"`
	JobID     *int64 `json:"job_id,omitempty"`
	JobStatus string `json:"job_status,omitempty" jsonschema:"enum=pending,enum=running,enum=stopped,enum=completed"`
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{Message: message})
}

func (h *Handler) internalError(c *gin.Context, msg string, err error) {
	h.logger.Error().Err(err).
		Str("path", c.FullPath()).
		Msg(msg)
	respondError(c, http.StatusInternalServerError, msg)
}

const paramsKey = "handlers.params"

// params merges the query string, form values and a JSON object body. Query
// values win. The body is read once and cached on the context.
func params(c *gin.Context) map[string]string {
	if v, ok := c.Get(paramsKey); ok {
		return v.(map[string]string)
	}

	out := map[string]string{}
	if c.Request.Body != nil && strings.HasPrefix(c.ContentType(), "application/json") {
		raw, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
		if err == nil && len(raw) > 0 {
			var body map[string]any
			if json.Unmarshal(raw, &body) == nil {
				for k, v := range body {
					switch t := v.(type) {
					case string:
						out[k] = t
					case float64:
						out[k] = strconv.FormatFloat(t, 'f', -1, 64)
					case bool:
						out[k] = strconv.FormatBool(t)
					}
				}
			}
		}
	} else if c.Request.Method != http.MethodGet {
		_ = c.Request.ParseForm()
		for k, v := range c.Request.PostForm {
			if len(v) > 0 {
				out[k] = v[0]
			}
		}
	}
	for k, v := range c.Request.URL.Query() {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}

	c.Set(paramsKey, out)
	return out
}

var errInvalidID = errors.New("invalid id")

// positiveID reads a strictly positive integer parameter
func positiveID(c *gin.Context, name string) (int64, error) {
	raw := strings.TrimSpace(params(c)[name])
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s", errInvalidID, name)
	}
	return n, nil
}
