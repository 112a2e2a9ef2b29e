package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/storesync/internal/cache"
	"github.com/mrlokans/storesync/internal/entities"
)

const checkpointCachePrefix = "checkpoint:"

// CheckpointsController handles resume point endpoints.
type CheckpointsController struct {
	checkpoints CheckpointReader
	sync        SyncService
	cache       *cache.Cache
}

func NewCheckpointsController(checkpoints CheckpointReader, sync SyncService, c *cache.Cache) *CheckpointsController {
	return &CheckpointsController{checkpoints: checkpoints, sync: sync, cache: c}
}

// GetCheckpoint handles GET /checkpoint/:resourceType
func (cc *CheckpointsController) GetCheckpoint(c *gin.Context) {
	rt, err := entities.ParseResourceType(c.Param("resourceType"))
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	value, err := cachedRead(cc.cache, checkpointCachePrefix+rt.String(), 0, func() (any, error) {
		return cc.checkpoints.Get(c.Request.Context(), rt)
	})
	if err != nil {
		respondInternalError(c, err, "get checkpoint")
		return
	}

	c.JSON(http.StatusOK, value.(*entities.Checkpoint))
}

// Resume handles POST /checkpoint/:resourceType/resume
func (cc *CheckpointsController) Resume(c *gin.Context) {
	rt, err := entities.ParseResourceType(c.Param("resourceType"))
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	job, err := cc.sync.ResumeSync(ctx, rt)
	if err != nil {
		respondSyncError(c, err, "resume sync")
		return
	}

	invalidate(cc.cache, jobsCachePrefix)
	respondCreated(c, job)
}
