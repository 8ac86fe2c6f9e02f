package server

import (
	"bytes"
	"encoding/json"
	"net/http"

	apierrors "github.com/copyleftdev/ipoptgo/internal/errors"
	"github.com/copyleftdev/ipoptgo/internal/problems"
)

// JSON-RPC 2.0 error codes.
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcServerError    = -32000
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type idParams struct {
	OptimizationID string `json:"optimization_id"`
}

// decodeParams accepts params given either as an object or as a
// one-element array holding the object.
func decodeParams(raw json.RawMessage, v interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return apierrors.New("missing required parameters").WithStatus(http.StatusBadRequest)
	}
	if raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil || len(list) != 1 {
			return apierrors.New("invalid parameter format, expected object").WithStatus(http.StatusBadRequest)
		}
		raw = list[0]
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apierrors.Wrap(err, "invalid parameter format, expected object").WithStatus(http.StatusBadRequest)
	}
	return nil
}

func decodeID(raw json.RawMessage) (string, error) {
	var p idParams
	if err := decodeParams(raw, &p); err != nil {
		return "", err
	}
	if p.OptimizationID == "" {
		return "", apierrors.New("optimization_id is required").WithStatus(http.StatusBadRequest)
	}
	return p.OptimizationID, nil
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, rpcParseError, "Parse error", nil)
		return
	}

	// Validate JSON-RPC 2.0 request
	if request.JSONRPC != "2.0" || request.Method == "" {
		s.respondWithError(w, rpcInvalidRequest, "Invalid Request", request.ID)
		return
	}

	// Route to appropriate handler
	var result interface{}
	var err error

	switch request.Method {
	case "optimization.start":
		result, err = s.rpcStart(request.Params)
	case "optimization.status":
		result, err = s.rpcStatus(request.Params)
	case "optimization.cancel":
		result, err = s.rpcCancel(request.Params)
	case "problems.list":
		result = s.registry.List()
	default:
		s.respondWithError(w, rpcMethodNotFound, "Method not found", request.ID)
		return
	}

	if err != nil {
		code := rpcServerError
		if apierrors.StatusOf(err) == http.StatusBadRequest {
			code = rpcInvalidParams
		}
		s.respondWithError(w, code, err.Error(), request.ID)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	})
}

// rpcStart handles optimization.start. Params are a problems.Spec:
// {"problem": "hs071", "options": ["tol 1e-9"]}.
func (s *Server) rpcStart(raw json.RawMessage) (interface{}, error) {
	var spec problems.Spec
	if err := decodeParams(raw, &spec); err != nil {
		return nil, err
	}
	if spec.Problem == "" {
		return nil, apierrors.New("problem is required").WithStatus(http.StatusBadRequest)
	}

	state, err := s.startOptimization(spec)
	if err != nil {
		return nil, err
	}
	return startResponse{ID: state.ID, Status: StatusPending}, nil
}

// rpcStatus handles optimization.status: {"optimization_id": "opt_..."}.
func (s *Server) rpcStatus(raw json.RawMessage) (interface{}, error) {
	id, err := decodeID(raw)
	if err != nil {
		return nil, err
	}
	return s.optimizationStatus(id)
}

// rpcCancel handles optimization.cancel: {"optimization_id": "opt_..."}.
func (s *Server) rpcCancel(raw json.RawMessage) (interface{}, error) {
	id, err := decodeID(raw)
	if err != nil {
		return nil, err
	}
	if err := s.cancelOptimization(id); err != nil {
		return nil, err
	}
	return map[string]string{"status": "cancellation requested"}, nil
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Warn("RPC error", map[string]interface{}{
		"code":    code,
		"message": message,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	})
}
