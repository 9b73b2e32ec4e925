// handlers_log.go - Diagnostic log handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tblumenau/voodoo-ss-extension/internal/models"
	"github.com/vmihailenco/msgpack/v5"
)

// LogLine is a log entry as the diagnostics view shows it
type LogLine struct {
	Timestamp int64  `json:"timestamp" msgpack:"timestamp"`
	Message   string `json:"message" msgpack:"message"`
	Line      string `json:"line" msgpack:"line"`
}

func newLogLine(e models.LogEntry) LogLine {
	return LogLine{
		Timestamp: e.Timestamp.UnixMilli(),
		Message:   e.Message,
		Line:      e.String(),
	}
}

// LogHandlerImpl implements the LogHandler interface
type LogHandlerImpl struct {
	sink LogSink
}

// NewLogHandler creates a new log handler
func NewLogHandler(sink LogSink) LogHandler {
	return &LogHandlerImpl{sink: sink}
}

func (h *LogHandlerImpl) lines(c echo.Context) ([]LogLine, error) {
	entries, err := h.sink.Entries(c.Request().Context())
	if err != nil {
		return nil, NewInternalError("failed to read log", err)
	}
	lines := make([]LogLine, len(entries))
	for i, e := range entries {
		lines[i] = newLogLine(e)
	}
	return lines, nil
}

// HandleGetLog returns the persisted log, oldest first
func (h *LogHandlerImpl) HandleGetLog(c echo.Context) error {
	lines, err := h.lines(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"entries": lines,
		"total":   len(lines),
	})
}

// HandleGetLogMsgpack returns the persisted log msgpack-encoded
func (h *LogHandlerImpl) HandleGetLogMsgpack(c echo.Context) error {
	lines, err := h.lines(c)
	if err != nil {
		return err
	}
	data, err := msgpack.Marshal(map[string]interface{}{
		"entries": lines,
		"total":   len(lines),
	})
	if err != nil {
		return NewInternalError("failed to encode log", err)
	}
	return c.Blob(http.StatusOK, "application/x-msgpack", data)
}

// HandleClearLog empties the persisted log
func (h *LogHandlerImpl) HandleClearLog(c echo.Context) error {
	if err := h.sink.Clear(c.Request().Context()); err != nil {
		return NewInternalError("failed to clear log", err)
	}
	return c.NoContent(http.StatusNoContent)
}
