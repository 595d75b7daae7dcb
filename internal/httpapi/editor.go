package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"callflow-platform/internal/callflow"
	"callflow-platform/internal/editor"

	"github.com/gin-gonic/gin"
)

// sessionView is the response body of every editor endpoint.
type sessionView struct {
	editor.Session
	Selected *callflow.Block           `json:"selected,omitempty"`
	Report   *callflow.Report          `json:"report,omitempty"`
	Invalid  *callflow.ValidationError `json:"invalid,omitempty"`
}

func viewOf(s editor.Session) sessionView {
	v := sessionView{Session: s}
	if b, ok := s.State.Selected(); ok {
		v.Selected = &b
	}
	if d := s.State.Draft; d != nil && len(d.Blocks) > 0 {
		report, err := callflow.ValidateFlow(*d)
		var verr *callflow.ValidationError
		switch {
		case err == nil:
			v.Report = &report
		case errors.As(err, &verr):
			v.Invalid = verr
		}
	}
	return v
}

func respondSession(c *gin.Context, status int, s editor.Session) {
	c.JSON(status, viewOf(s))
}

// respondSessionError reports err and, when the session is known, its
// current state so the client can resync.
func respondSessionError(c *gin.Context, s editor.Session, err error) {
	status, known := statusFor(err)
	if !known || s.ID == "" {
		respondError(c, err)
		return
	}
	body := errorBody(err)
	body["session"] = viewOf(s)
	c.AbortWithStatusJSON(status, body)
}

// apply runs one editor transition for the session in the path.
func (h Handlers) apply(c *gin.Context, fn func(editor.State) (editor.State, error)) {
	if !h.ready(c, h.Editor != nil, "editor") {
		return
	}
	ownerID, ok := ownerFrom(c)
	if !ok {
		return
	}
	sess, err := h.Editor.Apply(c.Request.Context(), ownerID, c.Param("id"), fn)
	if err != nil {
		respondSessionError(c, sess, err)
		return
	}
	respondSession(c, http.StatusOK, sess)
}

type startSessionRequest struct {
	PhoneNumber string `json:"phone_number"`
	Name        string `json:"name"`
}

func (h Handlers) StartSession(c *gin.Context) {
	if !h.ready(c, h.Editor != nil, "editor") {
		return
	}
	ownerID, ok := ownerFrom(c)
	if !ok {
		return
	}
	var req startSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	sess, err := h.Editor.Start(c.Request.Context(), ownerID, req.PhoneNumber, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	respondSession(c, http.StatusCreated, sess)
}

func (h Handlers) GetSession(c *gin.Context) {
	if !h.ready(c, h.Editor != nil, "editor") {
		return
	}
	ownerID, ok := ownerFrom(c)
	if !ok {
		return
	}
	sess, err := h.Editor.Get(c.Request.Context(), ownerID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondSession(c, http.StatusOK, sess)
}

func (h Handlers) CloseSession(c *gin.Context) {
	if !h.ready(c, h.Editor != nil, "editor") {
		return
	}
	ownerID, ok := ownerFrom(c)
	if !ok {
		return
	}
	if err := h.Editor.Close(c.Request.Context(), ownerID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type updateDraftRequest struct {
	Name                *string `json:"name"`
	PhoneNumber         *string `json:"phone_number"`
	RecordingEnabled    *bool   `json:"recording_enabled"`
	RecordingDisclaimer *string `json:"recording_disclaimer"`
	EntryBlockID        *string `json:"entry_block_id"`
	// Open switches the session to the stored flow for this number,
	// discarding unsaved edits.
	Open string `json:"open"`
	// Reset discards the draft and returns to idle.
	Reset bool `json:"reset"`
}

// UpdateDraft edits flow-level fields of the draft.
func (h Handlers) UpdateDraft(c *gin.Context) {
	var req updateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	var opened *callflow.CallFlow
	if number := strings.TrimSpace(req.Open); number != "" {
		if !h.ready(c, h.Flows != nil, "flows") {
			return
		}
		ownerID, ok := ownerFrom(c)
		if !ok {
			return
		}
		f, found, err := h.Flows.Load(c.Request.Context(), ownerID, number)
		if err != nil {
			respondError(c, err)
			return
		}
		if !found {
			owner := ownerID
			h.apply(c, func(s editor.State) (editor.State, error) {
				return editor.New(s, owner, "", number)
			})
			return
		}
		opened = &f
	}

	h.apply(c, func(s editor.State) (editor.State, error) {
		var err error
		if req.Reset {
			return editor.Reset(s), nil
		}
		if opened != nil {
			if s, err = editor.Open(s, *opened); err != nil {
				return s, err
			}
		}
		if req.Name != nil {
			if s, err = editor.SetName(s, *req.Name); err != nil {
				return s, err
			}
		}
		if req.PhoneNumber != nil {
			if s, err = editor.SetPhoneNumber(s, *req.PhoneNumber); err != nil {
				return s, err
			}
		}
		if req.RecordingEnabled != nil || req.RecordingDisclaimer != nil {
			if s.Draft == nil {
				return s, editor.ErrNotEditing
			}
			enabled, disclaimer := s.Draft.RecordingEnabled, s.Draft.RecordingDisclaimer
			if req.RecordingEnabled != nil {
				enabled = *req.RecordingEnabled
			}
			if req.RecordingDisclaimer != nil {
				disclaimer = *req.RecordingDisclaimer
			}
			if s, err = editor.SetRecording(s, enabled, disclaimer); err != nil {
				return s, err
			}
		}
		if req.EntryBlockID != nil {
			if s, err = editor.SetEntryBlock(s, *req.EntryBlockID); err != nil {
				return s, err
			}
		}
		return s, nil
	})
}

type addBlockRequest struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Config   callflow.Config    `json:"config"`
	Position *callflow.Position `json:"position"`
	Next     []string           `json:"next"`
}

func (h Handlers) AddBlock(c *gin.Context) {
	var req addBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	b := callflow.Block{ID: req.ID, Type: callflow.BlockType(req.Type), Config: req.Config, Next: req.Next}
	if req.Position != nil {
		b.Position = *req.Position
	}
	h.apply(c, func(s editor.State) (editor.State, error) {
		next, added, err := editor.AddBlock(s, b)
		if err != nil {
			return s, err
		}
		// The new block becomes the edit target.
		return editor.Select(next, added.ID)
	})
}

func (h Handlers) UpdateBlock(c *gin.Context) {
	var p editor.Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	id := c.Param("block_id")
	h.apply(c, func(s editor.State) (editor.State, error) {
		return editor.UpdateBlock(s, id, p)
	})
}

func (h Handlers) DeleteBlock(c *gin.Context) {
	id := c.Param("block_id")
	h.apply(c, func(s editor.State) (editor.State, error) {
		return editor.DeleteBlock(s, id)
	})
}

type selectRequest struct {
	BlockID string `json:"block_id"`
}

// SelectBlock sets the edit target. An empty block_id clears it.
func (h Handlers) SelectBlock(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	h.apply(c, func(s editor.State) (editor.State, error) {
		return editor.Select(s, req.BlockID)
	})
}

type connectingRequest struct {
	From string `json:"from"`
}

func (h Handlers) StartConnecting(c *gin.Context) {
	var req connectingRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.From == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from required"})
		return
	}
	h.apply(c, func(s editor.State) (editor.State, error) {
		return editor.StartConnecting(s, req.From)
	})
}

func (h Handlers) CancelConnecting(c *gin.Context) {
	h.apply(c, editor.CancelConnecting)
}

type connectionRequest struct {
	From string `json:"from" form:"from"`
	To   string `json:"to" form:"to"`
}

func (h Handlers) Connect(c *gin.Context) {
	var req connectionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.From == "" || req.To == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from and to required"})
		return
	}
	h.apply(c, func(s editor.State) (editor.State, error) {
		return editor.ConnectBlocks(s, req.From, req.To)
	})
}

// Disconnect reads from/to from the query string.
func (h Handlers) Disconnect(c *gin.Context) {
	var req connectionRequest
	if err := c.ShouldBindQuery(&req); err != nil || req.From == "" || req.To == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from and to required"})
		return
	}
	h.apply(c, func(s editor.State) (editor.State, error) {
		return editor.DisconnectBlocks(s, req.From, req.To)
	})
}

type saveRequest struct {
	PhoneNumber      string `json:"phone_number"`
	RecordingEnabled *bool  `json:"recording_enabled"`
}

// SaveSession persists the draft. Failed local checks answer 4xx with the
// session, whose last_error explains the failure.
func (h Handlers) SaveSession(c *gin.Context) {
	if !h.ready(c, h.Editor != nil, "editor") {
		return
	}
	ownerID, ok := ownerFrom(c)
	if !ok {
		return
	}
	var req saveRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	ctx := c.Request.Context()
	id := c.Param("id")

	recording := false
	if req.RecordingEnabled != nil {
		recording = *req.RecordingEnabled
	} else {
		cur, err := h.Editor.Get(ctx, ownerID, id)
		if err != nil {
			respondError(c, err)
			return
		}
		if cur.State.Draft != nil {
			recording = cur.State.Draft.RecordingEnabled
		}
	}

	sess, err := h.Editor.SaveFlow(ctx, ownerID, id, req.PhoneNumber, recording)
	if err != nil {
		respondSessionError(c, sess, err)
		return
	}
	respondSession(c, http.StatusOK, sess)
}
