package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

func setEventHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// writeEvent frames data as one event, one data field per line.
func writeEvent(w io.Writer, data string) error {
	var b strings.Builder
	data = strings.NewReplacer("\r\n", "\n", "\r", "\n").Replace(data)
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

// logStream replays the log tail, then relays live lines until the client
// goes away or the registry closes.
func (s *Server) logStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	sub, backlog := s.ctrl.Logs().Subscribe()
	defer sub.Close()

	setEventHeaders(w)
	w.WriteHeader(http.StatusOK)
	for _, line := range backlog {
		if err := writeEvent(w, line); err != nil {
			return
		}
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case line, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeEvent(w, line); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// overlayStream replays the overlay ring as JSON events, then relays live
// messages with periodic keep-alive comments.
func (s *Server) overlayStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	sub, backlog := s.ctrl.Overlay().Subscribe()
	defer sub.Close()

	setEventHeaders(w)
	w.WriteHeader(http.StatusOK)
	for _, msg := range backlog {
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		if err := writeEvent(w, string(data)); err != nil {
			return
		}
	}
	flusher.Flush()

	keepAlive := time.NewTicker(s.opts.KeepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case msg, ok := <-sub.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Warn("encode overlay message", zap.Error(err))
				continue
			}
			if err := writeEvent(w, string(data)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
