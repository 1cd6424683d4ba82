package telephony

import (
	"context"
	"net/http"
	"strconv"

	"patient-followup/internal/conversation"
	"patient-followup/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// AnswerService decides what happens when a dialed patient picks up.
type AnswerService interface {
	OnAnswer(ctx context.Context, callID int64) AnswerInstruction
}

// MediaService runs a live conversation over an answered call's audio stream.
// It takes ownership of media and closes it on every path.
type MediaService interface {
	OnSessionOpen(ctx context.Context, callID int64, media conversation.Media) error
}

// AnswerWebhookHandler converts the carrier answer callback to an internal
// call id, delegates to the lifecycle and writes Plivo XML.
//
// No business logic here.
type AnswerWebhookHandler struct {
	Service AnswerService
}

func (h AnswerWebhookHandler) HandleAnswer(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Service == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "answer service not configured"})
		return
	}

	form, err := ParsePlivoAnswer(c.Request)
	if err != nil {
		log.Warn("plivo answer parse failed", "err", err)
	}

	instr := Hangup()
	callID, err := strconv.ParseInt(c.Param("call_id"), 10, 64)
	if err != nil || callID <= 0 {
		log.Warn("answer callback with invalid call id", "call_id", c.Param("call_id"))
	} else {
		instr = h.Service.OnAnswer(c.Request.Context(), callID)
		log.Info("call answered", "call_id", callID, "call_uuid", form.CallUUID, "action", instr.Action)
	}

	xml, err := RenderAnswerXML(instr)
	if err != nil {
		log.Error("answer xml render failed", "err", err)
		xml, _ = RenderAnswerXML(Hangup())
	}
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, xml)
}

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The carrier connects server-to-server; there is no browser origin to check.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// MediaStreamHandler accepts the carrier's audio websocket for one call.
type MediaStreamHandler struct {
	Service MediaService
}

func (h MediaStreamHandler) HandleStream(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Service == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "media service not configured"})
		return
	}

	ws, err := streamUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("media stream upgrade failed", "err", err)
		return
	}
	stream := NewPlivoStream(ws)

	callID, err := strconv.ParseInt(c.Param("call_id"), 10, 64)
	if err != nil || callID <= 0 {
		log.Warn("media stream with invalid call id", "call_id", c.Param("call_id"))
		_ = stream.CloseWithReason("unknown call")
		return
	}

	ctx := logger.With(c.Request.Context(), log.With("call_id", callID))
	if err := h.Service.OnSessionOpen(ctx, callID, stream); err != nil {
		log.Warn("media session refused", "call_id", callID, "err", err)
	}
}
