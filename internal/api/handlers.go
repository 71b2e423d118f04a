package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/JakeFAU/tagrelay/internal/envfile"
	"github.com/JakeFAU/tagrelay/internal/supervisor"
)

const maxBodyBytes = 1 << 20

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status(r.Context()))
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mode := supervisor.ModeNormal
	if truthy(body["login"]) {
		mode = supervisor.ModeLogin
	}
	pid, err := s.ctrl.Start(r.Context(), mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "pid": pid})
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": s.ctrl.Stop(r.Context())})
}

// shutdown stops the worker, answers, and then tears the supervisor down once
// the response has had time to flush.
func (s *Server) shutdown(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Stop(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	go func() {
		time.Sleep(s.opts.ShutdownDelay)
		s.ctrl.Shutdown(context.Background())
		if s.opts.OnShutdown != nil {
			s.opts.OnShutdown()
		}
	}()
}

func (s *Server) completeLogin(w http.ResponseWriter, _ *http.Request) {
	if err := s.ctrl.CompleteLogin(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) highlight(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	handles, err := s.ctrl.SetHighlight(stringify(body["handles"]), truthy(body["persist"]))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "highlight": handles})
}

// env accepts any JSON value for the recognized keys and stores its string form.
func (s *Server) env(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	patch := make(map[string]string)
	for _, key := range envfile.Keys {
		if val, ok := body[key]; ok {
			patch[key] = stringify(val)
		}
	}
	values, err := s.ctrl.ApplyEnv(r.Context(), patch)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "env": values})
}

func (s *Server) overlayMessage(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	_, err = s.ctrl.PushOverlay(supervisor.OverlayInput{
		ID:        stringify(body["id"]),
		Content:   stringify(body["content"]),
		Username:  stringify(body["username"]),
		Handle:    stringify(body["handle"]),
		AvatarURL: stringify(body["avatar_url"]),
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// readBody decodes a JSON object. An empty body is an empty object.
func readBody(r *http.Request) (map[string]any, error) {
	body := map[string]any{}
	if r.Body == nil {
		return body, nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, errors.New("invalid JSON body")
	}
	if body == nil {
		body = map[string]any{}
	}
	return body, nil
}

// stringify renders a decoded JSON value as text; null becomes "".
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// truthy follows JSON truthiness: false, 0, "" and null are false.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0
	default:
		return true
	}
}
