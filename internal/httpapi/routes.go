package httpapi

import (
	"callflow-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

// Register mounts the flow, number and editor routes on an authenticated
// group.
func (h Handlers) Register(g *gin.RouterGroup) {
	g.Use(rbac.RequireOwner())
	read := rbac.Require(rbac.PermFlowsRead)
	write := rbac.Require(rbac.PermFlowsWrite)

	g.GET("/numbers", read, h.ListNumbers)

	flows := g.Group("/flows")
	{
		flows.GET("", read, h.ListFlows)
		flows.POST("/validate", read, h.ValidateFlow)
		flows.GET("/:number", read, h.GetFlow)
		flows.PUT("/:number", write, h.PutFlow)
		flows.DELETE("/:number", write, h.DeleteFlow)
		flows.POST("/:number/simulate", read, h.SimulateFlow)
		flows.GET("/:number/calls/summary", rbac.Require(rbac.PermCallsRead), h.CallsSummary)
		flows.GET("/:number/history", rbac.Require(rbac.PermAuditRead), h.FlowHistory)
	}

	sessions := g.Group("/editor/sessions")
	sessions.Use(write)
	{
		sessions.POST("", h.StartSession)
		sessions.GET("/:id", h.GetSession)
		sessions.PATCH("/:id", h.UpdateDraft)
		sessions.DELETE("/:id", h.CloseSession)
		sessions.POST("/:id/blocks", h.AddBlock)
		sessions.PATCH("/:id/blocks/:block_id", h.UpdateBlock)
		sessions.DELETE("/:id/blocks/:block_id", h.DeleteBlock)
		sessions.POST("/:id/select", h.SelectBlock)
		sessions.POST("/:id/connecting", h.StartConnecting)
		sessions.DELETE("/:id/connecting", h.CancelConnecting)
		sessions.POST("/:id/connections", h.Connect)
		sessions.DELETE("/:id/connections", h.Disconnect)
		sessions.POST("/:id/save", h.SaveSession)
	}
}
