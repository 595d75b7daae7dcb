package httpapi

import (
	"net/http"
	"strconv"

	"callflow-platform/internal/audit"

	"github.com/gin-gonic/gin"
)

// FlowHistory lists save/delete events for one of the caller's numbers,
// newest first. Events are owner-scoped, so another tenant's number yields an
// empty list.
func (h Handlers) FlowHistory(c *gin.Context) {
	if !h.ready(c, h.Audit != nil, "audit") {
		return
	}
	ownerID, ok := ownerFrom(c)
	if !ok {
		return
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	evs, err := h.Audit.History(c.Request.Context(), audit.Query{
		OwnerID:     ownerID,
		PhoneNumber: c.Param("number"),
		Limit:       limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": evs})
}
