package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/banabets/else/internal/http/dto"
	"github.com/banabets/else/internal/status"
)

const defaultStreamBlock = 25 * time.Second

type StatusHandler struct {
	board  *status.Board
	redis  *redis.Client
	stream string
	block  time.Duration
}

// NewStatusHandler serves the status board. redisClient may be nil, in which
// case the stream endpoint is unavailable.
func NewStatusHandler(board *status.Board, redisClient *redis.Client, stream string) *StatusHandler {
	return &StatusHandler{
		board:  board,
		redis:  redisClient,
		stream: stream,
		block:  defaultStreamBlock,
	}
}

// WithBlock sets how long one stream read waits before sending a keepalive.
func (h *StatusHandler) WithBlock(d time.Duration) *StatusHandler {
	h.block = d
	return h
}

func (h *StatusHandler) Get(c *gin.Context) {
	report, cycles, ok := h.board.Latest()
	if !ok {
		c.JSON(http.StatusOK, dto.StatusResponse{Status: dto.AgentStarting})
		return
	}
	c.JSON(http.StatusOK, dto.ToStatusResponse(report, cycles))
}

// Stream relays cycle reports from the status stream as server-sent events.
// last_id resumes after a known entry; the default is new entries only.
func (h *StatusHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	if h.redis == nil || h.stream == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "status stream not configured"})
		return
	}

	lastID := c.Query("last_id")
	if lastID == "" {
		lastID = "$"
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	setSSEHeaders(c.Writer)
	c.Status(http.StatusOK)

	sseWrite(c.Writer, "ping", "ready")
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := h.redis.XRead(ctx, &redis.XReadArgs{
			Streams: []string{h.stream, lastID},
			Block:   h.block,
			Count:   100,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				sseWrite(c.Writer, "ping", time.Now().UTC().Format(time.RFC3339Nano))
				flusher.Flush()
				continue
			}
			if ctx.Err() != nil {
				return
			}
			sseWrite(c.Writer, "error", map[string]string{"error": err.Error()})
			flusher.Flush()
			return
		}

		for _, streamRes := range res {
			for _, msg := range streamRes.Messages {
				lastID = msg.ID
				sseWrite(c.Writer, "status", statusEvent(msg))
				flusher.Flush()
			}
		}
	}
}

// statusEvent unwraps the JSON report stored by the publisher so clients get
// one object per event.
func statusEvent(msg redis.XMessage) any {
	payload, ok := msg.Values["payload"].(string)
	if !ok {
		return msg
	}
	return gin.H{
		"entry_id": msg.ID,
		"report":   json.RawMessage(payload),
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
}

func sseWrite(w http.ResponseWriter, event string, data any) {
	payload := marshalPayload(data)
	if event != "" {
		_, _ = fmt.Fprintf(w, "event: %s\n", event)
	}
	for _, line := range strings.Split(payload, "\n") {
		_, _ = fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = fmt.Fprint(w, "\n")
}

func marshalPayload(data any) string {
	switch payload := data.(type) {
	case string:
		return payload
	case []byte:
		return string(payload)
	default:
		bytes, err := json.Marshal(payload)
		if err != nil {
			return fmt.Sprintf("%v", data)
		}
		return string(bytes)
	}
}
