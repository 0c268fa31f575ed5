// Package api exposes the dedup core over HTTP: ticket ingest, cluster
// lifecycle operations and the merge/revert protocol.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gotrs-io/dedup-ce/internal/cache"
	"github.com/gotrs-io/dedup-ce/internal/models"
	"github.com/gotrs-io/dedup-ce/internal/service"
	"github.com/gotrs-io/dedup-ce/internal/shared"
)

// Handler carries the services the HTTP layer fronts.
type Handler struct {
	ingest     *service.IngestService
	clustering *service.ClusteringService
	merges     *service.MergeService
	clusters   *cache.ClusterCache
}

func NewHandler(ingest *service.IngestService, clustering *service.ClusteringService, merges *service.MergeService, clusters *cache.ClusterCache) *Handler {
	return &Handler{ingest: ingest, clustering: clustering, merges: merges, clusters: clusters}
}

// Register mounts the v1 routes on the given group.
func (h *Handler) Register(v1 *gin.RouterGroup) {
	v1.POST("/tickets", h.ingestTicket)
	v1.GET("/clusters", h.listClusters)
	v1.GET("/clusters/:id", h.getCluster)
	v1.POST("/clusters/:id/dismiss", h.dismissCluster)
	v1.DELETE("/clusters/:id/members/:ticket_id", h.removeMember)
	v1.POST("/merges", h.merge)
	v1.GET("/merges/:id", h.getMerge)
	v1.POST("/merges/:id/revert", h.revertMerge)
}

func (h *Handler) ingestTicket(c *gin.Context) {
	var in models.TicketCreate
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"kind": "bad_request", "message": err.Error()}})
		return
	}
	t, err := h.ingest.Ingest(c.Request.Context(), &in)
	if err != nil {
		shared.RespondError(c, err)
		return
	}
	h.clusters.Invalidate(c.Request.Context(), t.PK, t.ClusterID)
	c.JSON(http.StatusCreated, t)
}

// pkParam reads the partition key every non-ingest operation addresses.
func pkParam(c *gin.Context) (string, bool) {
	pk := c.Query("pk")
	if pk == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"kind": "bad_request", "message": "pk query parameter is required (YYYY-MM)"}})
		return "", false
	}
	return pk, true
}

func (h *Handler) getCluster(c *gin.Context) {
	pk, ok := pkParam(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if cl, hit := h.clusters.Get(c.Request.Context(), pk, id); hit {
		c.JSON(http.StatusOK, cl)
		return
	}
	cl, err := h.clustering.Get(c.Request.Context(), id, pk)
	if err != nil {
		shared.RespondError(c, err)
		return
	}
	h.clusters.Set(c.Request.Context(), cl)
	c.JSON(http.StatusOK, cl)
}

func (h *Handler) listClusters(c *gin.Context) {
	pk, ok := pkParam(c)
	if !ok {
		return
	}
	var statuses []models.ClusterStatus
	if st := c.Query("status"); st != "" {
		statuses = append(statuses, models.ClusterStatus(st))
	}
	out, err := h.clustering.List(c.Request.Context(), pk, statuses...)
	if err != nil {
		shared.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clusters": out, "count": len(out)})
}

type dismissRequest struct {
	PK          string `json:"pk" binding:"required"`
	DismissedBy string `json:"dismissed_by" binding:"required"`
	Reason      string `json:"reason,omitempty"`
}

func (h *Handler) dismissCluster(c *gin.Context) {
	var req dismissRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"kind": "bad_request", "message": err.Error()}})
		return
	}
	cl, err := h.clustering.Dismiss(c.Request.Context(), c.Param("id"), req.PK, req.DismissedBy, req.Reason)
	if err != nil {
		shared.RespondError(c, err)
		return
	}
	h.clusters.Invalidate(c.Request.Context(), cl.PK, cl.ID)
	c.JSON(http.StatusOK, cl)
}

func (h *Handler) removeMember(c *gin.Context) {
	pk, ok := pkParam(c)
	if !ok {
		return
	}
	cl, err := h.clustering.RemoveMember(c.Request.Context(), c.Param("id"), c.Param("ticket_id"), pk)
	if err != nil {
		shared.RespondError(c, err)
		return
	}
	h.clusters.Invalidate(c.Request.Context(), cl.PK, cl.ID)
	c.JSON(http.StatusOK, cl)
}

type mergeRequest struct {
	ClusterID       string               `json:"cluster_id" binding:"required"`
	PrimaryTicketID string               `json:"primary_ticket_id" binding:"required"`
	PK              string               `json:"pk" binding:"required"`
	PerformedBy     string               `json:"performed_by" binding:"required"`
	MergeBehavior   models.MergeBehavior `json:"merge_behavior,omitempty"`
}

func (h *Handler) merge(c *gin.Context) {
	var req mergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"kind": "bad_request", "message": err.Error()}})
		return
	}
	op, err := h.merges.Merge(c.Request.Context(), req.ClusterID, req.PrimaryTicketID, req.PK, req.PerformedBy, req.MergeBehavior)
	if err != nil {
		shared.RespondError(c, err)
		return
	}
	h.clusters.Invalidate(c.Request.Context(), req.PK, req.ClusterID)
	c.JSON(http.StatusCreated, op)
}

func (h *Handler) getMerge(c *gin.Context) {
	pk, ok := pkParam(c)
	if !ok {
		return
	}
	op, err := h.merges.Get(c.Request.Context(), c.Param("id"), pk)
	if err != nil {
		shared.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, op)
}

type revertRequest struct {
	PK         string `json:"pk" binding:"required"`
	RevertedBy string `json:"reverted_by" binding:"required"`
	Reason     string `json:"reason,omitempty"`
	Force      bool   `json:"force,omitempty"`
}

func (h *Handler) revertMerge(c *gin.Context) {
	var req revertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"kind": "bad_request", "message": err.Error()}})
		return
	}
	op, err := h.merges.Revert(c.Request.Context(), c.Param("id"), req.PK, req.RevertedBy, req.Reason, req.Force)
	if err != nil {
		shared.RespondError(c, err)
		return
	}
	h.clusters.Invalidate(c.Request.Context(), req.PK, op.ClusterID)
	c.JSON(http.StatusOK, op)
}
