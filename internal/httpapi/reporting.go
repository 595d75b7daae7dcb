package httpapi

import (
	"net/http"
	"time"

	"callflow-platform/internal/editor"
	"callflow-platform/internal/reporting"

	"github.com/gin-gonic/gin"
)

const defaultSummaryWindow = 24 * time.Hour

// CallsSummary aggregates recorded callbacks for one of the caller's
// numbers. from/to are RFC 3339; the default window is the last 24 hours.
func (h Handlers) CallsSummary(c *gin.Context) {
	if !h.ready(c, h.Reporting != nil && h.Numbers != nil, "reporting") {
		return
	}
	ownerID, ok := ownerFrom(c)
	if !ok {
		return
	}
	number := c.Param("number")
	ctx := c.Request.Context()

	owned, err := h.Numbers.IsOwned(ctx, ownerID, number)
	if err != nil {
		respondError(c, err)
		return
	}
	if !owned {
		respondError(c, editor.ErrNumberNotOwned)
		return
	}

	to := time.Now().UTC()
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC 3339"})
			return
		}
	}
	from := to.Add(-defaultSummaryWindow)
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC 3339"})
			return
		}
	}

	out, err := h.Reporting.CallsSummary(ctx, reporting.CallsSummaryRequest{
		FlowNumber: number,
		Range:      reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
