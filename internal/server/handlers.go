package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vk/flowloop/internal/dag"
	"github.com/vk/flowloop/internal/executor"
	"github.com/vk/flowloop/internal/model"
	"github.com/vk/flowloop/internal/registry"
)

type errorResponse struct {
	Detail string `json:"detail"`
}

type actionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type runResponse struct {
	Success       bool                      `json:"success"`
	Results       map[string]map[string]any `json:"results"`
	Errors        map[string]string         `json:"errors,omitempty"`
	ExecutionTime float64                   `json:"execution_time"`
}

type nodesResponse struct {
	Nodes []*registry.Definition `json:"nodes"`
	Count int                    `json:"count"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("Failed to write response.", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, format string, args ...any) {
	s.writeJSON(w, status, errorResponse{Detail: fmt.Sprintf(format, args...)})
}

// readWorkflow decodes an editor document from the request body.
func (s *Server) readWorkflow(w http.ResponseWriter, r *http.Request) (*model.Workflow, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "failed to read workflow: %v", err)
		return nil, false
	}
	wf, err := model.ParseDocument(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid workflow: %v", err)
		return nil, false
	}
	return wf, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (s *Server) handleNodes(w http.ResponseWriter, _ *http.Request) {
	defs := s.engine.Registry().Definitions()
	s.writeJSON(w, http.StatusOK, nodesResponse{Nodes: defs, Count: len(defs)})
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	def, err := s.engine.Registry().Resolve(r.PathValue("type"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, "%v", err)
		return
	}
	s.writeJSON(w, http.StatusOK, def)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.readWorkflow(w, r)
	if !ok {
		return
	}
	res, err := s.engine.RunOnce(r.Context(), wf)
	if err != nil {
		s.writeRunError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, runResponse{
		Success:       len(res.Errors) == 0,
		Results:       res.Results,
		Errors:        res.ErrorStrings(),
		ExecutionTime: res.Duration.Seconds(),
	})
}

func (s *Server) handleContinuousStart(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.readWorkflow(w, r)
	if !ok {
		return
	}
	if err := s.engine.StartContinuous(wf); err != nil {
		s.writeRunError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, actionResponse{
		Success: true,
		Message: fmt.Sprintf("Continuous execution started with %s sleep interval", time.Duration(s.engine.Status().LoopInterval*float64(time.Second))),
	})
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	if !s.engine.StopContinuous() {
		s.writeJSON(w, http.StatusOK, actionResponse{Success: true, Message: "No continuous execution was running"})
		return
	}
	s.writeJSON(w, http.StatusOK, actionResponse{Success: true, Message: "Continuous execution stopped"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleClearOverrides(w http.ResponseWriter, r *http.Request) {
	nodeID := r.PathValue("node_id")
	s.engine.ClearOverrides(nodeID)
	msg := "All overrides cleared"
	if nodeID != "" {
		msg = fmt.Sprintf("Overrides of node '%s' cleared", nodeID)
	}
	s.writeJSON(w, http.StatusOK, actionResponse{Success: true, Message: msg})
}

func (s *Server) writeRunError(w http.ResponseWriter, err error) {
	var cerr *dag.CompileError
	switch {
	case errors.Is(err, executor.ErrAlreadyRunning):
		s.writeError(w, http.StatusConflict, "Cannot run workflow while continuous execution is active. Stop continuous execution first.")
	case errors.As(err, &cerr):
		s.writeError(w, http.StatusUnprocessableEntity, "%v", err)
	default:
		s.writeError(w, http.StatusInternalServerError, "workflow execution failed: %v", err)
	}
}
