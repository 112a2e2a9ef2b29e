package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/storesync/internal/cache"
	"github.com/mrlokans/storesync/internal/database/jobs"
	"github.com/mrlokans/storesync/internal/entities"
	"github.com/mrlokans/storesync/internal/syncer"
)

const (
	jobsCachePrefix = "jobs:"
	defaultJobLimit = 50
	maxJobLimit     = 200
	maxEventLimit   = 1000
	requestTimeout  = 10 * time.Second
)

// SyncJobsController handles sync job endpoints.
type SyncJobsController struct {
	sync   SyncService
	jobs   JobReader
	events EventReader
	cache  *cache.Cache
}

func NewSyncJobsController(sync SyncService, jobs JobReader, events EventReader, c *cache.Cache) *SyncJobsController {
	return &SyncJobsController{sync: sync, jobs: jobs, events: events, cache: c}
}

// StartSyncRequest is the body of POST /sync-jobs.
type StartSyncRequest struct {
	ResourceType string             `json:"resourceType" binding:"required"`
	Config       entities.JobConfig `json:"config"`
}

// ConflictResponse is returned with 409 when the resource type is busy.
type ConflictResponse struct {
	ErrorResponse
	ActiveJobID string `json:"activeJobId"`
}

// JobListResponse is the body of GET /sync-jobs.
type JobListResponse struct {
	Data   []entities.SyncJob                `json:"data"`
	Active map[entities.ResourceType]string `json:"active"`
}

// StartSync handles POST /sync-jobs
func (sc *SyncJobsController) StartSync(c *gin.Context) {
	var req StartSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	rt, err := entities.ParseResourceType(req.ResourceType)
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	job, err := sc.sync.StartSync(ctx, rt, req.Config)
	if err != nil {
		respondSyncError(c, err, "start sync")
		return
	}

	invalidate(sc.cache, jobsCachePrefix)
	respondCreated(c, job)
}

// ListJobs handles GET /sync-jobs?resourceType=&limit=
func (sc *SyncJobsController) ListJobs(c *gin.Context) {
	var rt entities.ResourceType
	if raw := c.Query("resourceType"); raw != "" {
		parsed, err := entities.ParseResourceType(raw)
		if err != nil {
			respondBadRequest(c, err.Error())
			return
		}
		rt = parsed
	}
	limit, ok := parseLimitQuery(c, defaultJobLimit, maxJobLimit)
	if !ok {
		return
	}

	key := cache.Key(jobsCachePrefix+"list", map[string]string{
		"resourceType": string(rt),
		"limit":        itoa(limit),
	})
	value, err := cachedRead(sc.cache, key, 0, func() (any, error) {
		return sc.jobs.List(c.Request.Context(), rt, limit)
	})
	if err != nil {
		respondInternalError(c, err, "list sync jobs")
		return
	}

	list := value.([]entities.SyncJob)
	if list == nil {
		list = []entities.SyncJob{}
	}
	c.JSON(http.StatusOK, JobListResponse{Data: list, Active: sc.sync.ActiveJobs()})
}

// GetJob handles GET /sync-jobs/:id
func (sc *SyncJobsController) GetJob(c *gin.Context) {
	id := c.Param("id")

	value, err := cachedRead(sc.cache, jobsCachePrefix+id, 0, func() (any, error) {
		return sc.jobs.Get(c.Request.Context(), id)
	})
	if errors.Is(err, jobs.ErrNotFound) {
		respondNotFound(c, "sync job")
		return
	}
	if err != nil {
		respondInternalError(c, err, "get sync job")
		return
	}

	c.JSON(http.StatusOK, value.(*entities.SyncJob))
}

// ListEvents handles GET /sync-jobs/:id/events
func (sc *SyncJobsController) ListEvents(c *gin.Context) {
	id := c.Param("id")
	limit, ok := parseLimitQuery(c, 0, maxEventLimit)
	if !ok {
		return
	}

	if _, err := sc.jobs.Get(c.Request.Context(), id); err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			respondNotFound(c, "sync job")
			return
		}
		respondInternalError(c, err, "get sync job")
		return
	}

	key := cache.Key(jobsCachePrefix+id+":events", map[string]string{"limit": itoa(limit)})
	value, err := cachedRead(sc.cache, key, 0, func() (any, error) {
		return sc.events.ListForJob(c.Request.Context(), id, limit)
	})
	if err != nil {
		respondInternalError(c, err, "list sync events")
		return
	}

	events := value.([]entities.SyncEvent)
	if events == nil {
		events = []entities.SyncEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"data": events})
}

// CancelJob handles POST /sync-jobs/:id/cancel
func (sc *SyncJobsController) CancelJob(c *gin.Context) {
	id := c.Param("id")

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := sc.sync.Cancel(ctx, id); err != nil {
		respondSyncError(c, err, "cancel sync")
		return
	}

	invalidate(sc.cache, jobsCachePrefix)
	respondAccepted(c, "cancellation requested", gin.H{"id": id})
}

// respondSyncError maps orchestrator errors to status codes.
func respondSyncError(c *gin.Context, err error, context string) {
	var inProgress *syncer.SyncInProgressError
	switch {
	case errors.As(err, &inProgress):
		c.JSON(http.StatusConflict, ConflictResponse{
			ErrorResponse: ErrorResponse{Error: err.Error(), Code: "sync_in_progress"},
			ActiveJobID:   inProgress.JobID,
		})
	case errors.Is(err, syncer.ErrInvalidRequest):
		respondBadRequest(c, err.Error())
	case errors.Is(err, syncer.ErrJobNotFound):
		respondNotFound(c, "sync job")
	case errors.Is(err, syncer.ErrJobFinished):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "job_finished"})
	default:
		respondInternalError(c, err, context)
	}
}
