package httpapi

import (
	"net/http"
	"strings"

	"callflow-platform/internal/callflow"
	"callflow-platform/internal/editor"
	"callflow-platform/internal/flowstore"
	"callflow-platform/internal/interpreter"

	"github.com/gin-gonic/gin"
)

type numberView struct {
	PhoneNumber string `json:"phone_number"`
	FlowID      string `json:"flow_id,omitempty"`
	FlowName    string `json:"flow_name,omitempty"`
}

// ListNumbers returns the caller's numbers with the flow attached to each.
func (h Handlers) ListNumbers(c *gin.Context) {
	if !h.ready(c, h.Numbers != nil && h.Flows != nil, "numbers") {
		return
	}
	ownerID, ok := ownerFrom(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	owned, err := h.Numbers.OwnedNumbers(ctx, ownerID)
	if err != nil {
		respondError(c, err)
		return
	}
	flows, err := h.Flows.List(ctx, ownerID)
	if err != nil {
		respondError(c, err)
		return
	}
	byNumber := make(map[string]callflow.CallFlow, len(flows))
	for _, f := range flows {
		byNumber[f.PhoneNumber] = f
	}
	out := make([]numberView, 0, len(owned))
	for _, n := range owned {
		v := numberView{PhoneNumber: n}
		if f, ok := byNumber[n]; ok {
			v.FlowID, v.FlowName = f.ID, f.Name
		}
		out = append(out, v)
	}
	c.JSON(http.StatusOK, gin.H{"numbers": out})
}

func (h Handlers) ListFlows(c *gin.Context) {
	if !h.ready(c, h.Flows != nil, "flows") {
		return
	}
	ownerID, ok := ownerFrom(c)
	if !ok {
		return
	}
	flows, err := h.Flows.List(c.Request.Context(), ownerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"flows": flows})
}

func (h Handlers) GetFlow(c *gin.Context) {
	if !h.ready(c, h.Flows != nil, "flows") {
		return
	}
	ownerID, ok := ownerFrom(c)
	if !ok {
		return
	}
	f, found, err := h.Flows.Load(c.Request.Context(), ownerID, c.Param("number"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !found {
		respondError(c, flowstore.ErrNotFound)
		return
	}
	report, _ := callflow.ValidateFlow(f)
	c.JSON(http.StatusOK, gin.H{"flow": f, "report": report})
}

type putFlowRequest struct {
	ID                  string           `json:"id"`
	Name                string           `json:"name"`
	Blocks              []callflow.Block `json:"blocks"`
	EntryBlockID        string           `json:"entry_block_id"`
	RecordingEnabled    bool             `json:"recording_enabled"`
	RecordingDisclaimer string           `json:"recording_disclaimer"`
}

// PutFlow saves a whole flow for the number in the path. The conflict query
// parameter picks what happens when the number already has a flow:
// "replace" (default) or "reject".
func (h Handlers) PutFlow(c *gin.Context) {
	if !h.ready(c, h.Flows != nil, "flows") {
		return
	}
	ownerID, ok := ownerFrom(c)
	if !ok {
		return
	}
	policy, err := flowstore.ParseConflictPolicy(strings.TrimSpace(c.Query("conflict")))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "conflict must be replace or reject"})
		return
	}
	var req putFlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	number := c.Param("number")
	ctx := c.Request.Context()

	if h.Numbers != nil {
		owned, err := h.Numbers.IsOwned(ctx, ownerID, number)
		if err != nil {
			respondError(c, err)
			return
		}
		if !owned {
			respondError(c, editor.ErrNumberNotOwned)
			return
		}
	}

	saved, err := h.Flows.Save(ctx, callflow.CallFlow{
		ID:                  req.ID,
		OwnerID:             ownerID,
		PhoneNumber:         number,
		Name:                req.Name,
		Blocks:              req.Blocks,
		EntryBlockID:        req.EntryBlockID,
		RecordingEnabled:    req.RecordingEnabled,
		RecordingDisclaimer: req.RecordingDisclaimer,
	}, policy)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"flow": saved})
}

func (h Handlers) DeleteFlow(c *gin.Context) {
	if !h.ready(c, h.Flows != nil, "flows") {
		return
	}
	ownerID, ok := ownerFrom(c)
	if !ok {
		return
	}
	if err := h.Flows.Delete(c.Request.Context(), ownerID, c.Param("number")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type validateRequest struct {
	Blocks       []callflow.Block `json:"blocks"`
	EntryBlockID string           `json:"entry_block_id"`
}

// ValidateFlow checks a block set without storing anything.
func (h Handlers) ValidateFlow(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	report, err := callflow.ValidateFlow(callflow.CallFlow{Blocks: req.Blocks, EntryBlockID: req.EntryBlockID})
	if err != nil {
		body := errorBody(err)
		body["valid"] = false
		c.JSON(http.StatusOK, body)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "report": report})
}

type simulateRequest struct {
	RemoteNumber string             `json:"remote_number"`
	Direction    string             `json:"direction"`
	Steps        []interpreter.Step `json:"steps"`
}

// SimulateFlow plays a call against the stored flow for the number and
// returns every invocation's directives. Nothing is dialed.
func (h Handlers) SimulateFlow(c *gin.Context) {
	if !h.ready(c, h.Flows != nil && h.Interpreter != nil, "simulator") {
		return
	}
	ownerID, ok := ownerFrom(c)
	if !ok {
		return
	}
	var req simulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	number := c.Param("number")
	f, found, err := h.Flows.Load(c.Request.Context(), ownerID, number)
	if err != nil {
		respondError(c, err)
		return
	}
	var flow *callflow.CallFlow
	if found {
		flow = &f
	}

	ev := interpreter.Event{
		CallID:       "simulated",
		CalledNumber: number,
		CallerNumber: req.RemoteNumber,
		Direction:    interpreter.ParseDirection(req.Direction),
	}
	if ev.Direction == interpreter.DirectionOutbound {
		ev.CalledNumber, ev.CallerNumber = req.RemoteNumber, number
	}
	c.JSON(http.StatusOK, gin.H{"results": h.Interpreter.Simulate(flow, ev, req.Steps)})
}
