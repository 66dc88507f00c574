// core/handlers.go
package core

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/apifunc/go-apifunc/pkg/codec"
	"github.com/apifunc/go-apifunc/pkg/endpoint"
	"github.com/apifunc/go-apifunc/pkg/pipeline"
	"github.com/apifunc/go-apifunc/pkg/relay"
)

const maxExecuteBody = 8 << 20 // 8 MiB

type stageInfo struct {
	Name string `json:"name"`
	Mode string `json:"mode,omitempty"`
	Port int    `json:"port,omitempty"`
}

func stagesHandler(d BuildDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := make([]stageInfo, 0, d.Orchestrator.Len())
		for _, name := range d.Orchestrator.StageNames() {
			info := stageInfo{Name: name}
			if d.Registry != nil {
				if reg, ok := d.Registry.Get(name); ok {
					info.Mode = string(reg.Endpoint.Mode())
					info.Port = reg.Endpoint.Port()
				}
			}
			out = append(out, info)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func executeHandler(d BuildDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxExecuteBody))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read body: " + err.Error()})
			return
		}

		var input any = string(body)
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			if err := codec.JSONStrict.Unmarshal(body, &input); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "decode body: " + err.Error()})
				return
			}
		}

		result, err := d.Orchestrator.Execute(r.Context(), input)
		if err != nil {
			writeExecuteError(w, err)
			return
		}

		if d.Relay != nil && d.ForwardTopic != "" {
			if body, encErr := codec.EncodeOpaque(result); encErr == nil {
				_ = d.Relay.Publish(r.Context(), relay.Message{Topic: d.ForwardTopic, Body: []byte(body)})
			}
		}

		switch out := result.(type) {
		case []byte:
			w.Header().Set("Content-Type", "application/octet-stream")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(out)
		case string:
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			_, _ = io.WriteString(w, out)
		default:
			writeJSON(w, http.StatusOK, map[string]any{"result": out})
		}
	}
}

func writeExecuteError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	payload := map[string]any{"error": err.Error()}

	var se *pipeline.StageError
	if errors.As(err, &se) {
		payload["stage"] = se.Stage
		payload["index"] = se.Index + 1
		status = http.StatusBadGateway
	}
	var ve *endpoint.ValidationError
	if errors.As(err, &ve) {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := codec.JSONStrict.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}
