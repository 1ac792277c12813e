// Message HTTP handlers.
//
// This file exposes the REST surface over the write/read core:
//   - POST /messages  (idempotent submission; replays return the original)
//   - GET  /messages  (sequence-cursored page of channel history)
//
// Handlers are transport-thin: they bind and sanity-check the request,
// delegate to MessageService, and map service errors onto the error
// envelope. Dedup semantics live in the core, not here — the handler only
// surfaces whether the response was a replay (200 + Idempotency-Replayed)
// or a fresh append (201).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/tbourn/go-channel-backend/internal/domain"
	"github.com/tbourn/go-channel-backend/internal/services"
	"github.com/tbourn/go-channel-backend/internal/utils"
)

// Handlers bundles the HTTP endpoints with their service dependency.
type Handlers struct {
	msgSvc *services.MessageService
}

// New constructs the handler set.
func New(msgSvc *services.MessageService) *Handlers {
	return &Handlers{msgSvc: msgSvc}
}

// PostMessageResponse is the JSON envelope for a submitted message.
type PostMessageResponse struct {
	Message *domain.Message `json:"message"`
}

// ListMessagesResponse contains one page of channel messages.
type ListMessagesResponse struct {
	Messages []domain.Message `json:"messages"`
}

// PostMessage handles POST /messages. A fresh append answers 201; an
// idempotent replay answers 200 with the originally committed message and
// the Idempotency-Replayed header set.
func (h *Handlers) PostMessage(c *gin.Context) {
	var req services.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "malformed request body")
		return
	}

	m, created, err := h.msgSvc.Submit(c.Request.Context(), req)
	if err != nil {
		var verrs validation.Errors
		switch {
		case errors.As(err, &verrs):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrConflict):
			fail(c, http.StatusConflict, ErrCodeConflict, "submission already in flight, retry shortly")
		case errors.Is(err, services.ErrStoreUnavailable):
			fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "temporarily unavailable, retry later")
		case errors.Is(err, services.ErrMessageNotFound):
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "inconsistent idempotency state")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	status := http.StatusCreated
	if !created {
		c.Header("Idempotency-Replayed", "true")
		status = http.StatusOK
	}
	ok(c, status, PostMessageResponse{Message: m})
}

// ListMessages handles GET /messages. Query parameters: channel_id
// (required), after_sequence XOR before_sequence (optional cursors), and
// page_size. With after_sequence the page ascends; otherwise it descends
// from the newest matching message.
func (h *Handlers) ListMessages(c *gin.Context) {
	channelID := c.Query("channel_id")
	if channelID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "channel_id required")
		return
	}

	afterSeq, okAfter := utils.ParseSeq(c.Query("after_sequence"))
	beforeSeq, okBefore := utils.ParseSeq(c.Query("before_sequence"))
	if !okAfter || !okBefore {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "sequence cursors must be integers")
		return
	}
	pageSize := utils.AtoiDefault(c.Query("page_size"), 0)

	msgs, err := h.msgSvc.Fetch(c.Request.Context(), channelID, afterSeq, beforeSeq, pageSize)
	if err != nil {
		var verrs validation.Errors
		switch {
		case errors.Is(err, services.ErrCursorConflict):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.As(err, &verrs):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	ok(c, http.StatusOK, ListMessagesResponse{Messages: msgs})
}
