package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/hochfrequenz/claude-code-node/internal/credentials"
	"github.com/hochfrequenz/claude-code-node/internal/domain"
	"github.com/hochfrequenz/claude-code-node/internal/host"
	"github.com/hochfrequenz/claude-code-node/internal/node"
	"github.com/hochfrequenz/claude-code-node/internal/runstore"
	"github.com/hochfrequenz/claude-code-node/internal/schema"
)

// maxRequestBody caps the size of an execute request
const maxRequestBody = 8 << 20

// ExecuteRequest is the body of POST /api/execute. Parameters use the node's
// property names; item keys named like a parameter override it per record.
type ExecuteRequest struct {
	Items          []domain.Item   `json:"items"`
	Parameters     json.RawMessage `json:"parameters,omitempty"`
	ContinueOnFail *bool           `json:"continue_on_fail,omitempty"`
}

// ExecuteResponse is the API response for a finished execution
type ExecuteResponse struct {
	BatchID string              `json:"batch_id"`
	Items   []domain.OutputItem `json:"items"`
}

// FailureResponse is returned when an execution aborts at a record
type FailureResponse struct {
	BatchID     string `json:"batch_id"`
	Error       string `json:"error"`
	Description string `json:"description"`
	ItemIndex   int    `json:"item_index"`
}

// ItemEvent is the payload of an item.completed event
type ItemEvent struct {
	BatchID      string              `json:"batch_id"`
	ItemIndex    int                 `json:"item_index"`
	Operation    domain.Operation    `json:"operation"`
	Model        string              `json:"model,omitempty"`
	OutputFormat domain.OutputFormat `json:"output_format"`
	Success      bool                `json:"success"`
	ErrorType    domain.ErrorKind    `json:"error_type,omitempty"`
	Error        string              `json:"error,omitempty"`
	DurationMs   int64               `json:"duration_ms"`
	CostUSD      float64             `json:"cost_usd"`
}

// CredentialType describes one credential form
type CredentialType struct {
	Name       string            `json:"name"`
	Properties []schema.Property `json:"properties"`
}

// CredentialsResponse lists credential forms and what is configured, without secrets
type CredentialsResponse struct {
	Types      []CredentialType `json:"types"`
	Claude     bool             `json:"claude_configured"`
	MCPServers []string         `json:"mcp_servers"`
}

func itemEvent(batchID string, r node.ItemReport) ItemEvent {
	ev := ItemEvent{
		BatchID:      batchID,
		ItemIndex:    r.Index,
		Operation:    r.Operation,
		Model:        r.Model,
		OutputFormat: r.OutputFormat,
		Success:      r.Succeeded(),
		DurationMs:   r.Duration.Milliseconds(),
		CostUSD:      r.CostUSD,
	}
	if r.Err != nil {
		ev.ErrorType = domain.Classify(r.Err)
		ev.Error = r.Err.Error()
	}
	return ev
}

func (s *Server) executeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var req ExecuteRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if len(req.Items) == 0 {
			writeError(w, http.StatusBadRequest, "items required")
			return
		}
		params, err := host.ParseParametersJSON(req.Parameters)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		continueOnFail := s.settings.ContinueOnFail
		if req.ContinueOnFail != nil {
			continueOnFail = *req.ContinueOnFail
		}

		batchID := uuid.NewString()
		var recorder *runstore.Recorder
		if s.store != nil {
			batch, err := s.store.StartBatch("api", len(req.Items))
			if err != nil {
				s.logger.Warn("failed to start batch", "error", err)
			} else {
				batchID = batch.ID
				recorder = runstore.NewRecorder(s.store, batch, s.logger)
			}
		}

		observer := node.ObserverFunc(func(rep node.ItemReport) {
			if recorder != nil {
				recorder.ItemCompleted(rep)
			}
			s.Broadcast(SSEEvent{Type: EventItemCompleted, Data: itemEvent(batchID, rep)})
		})

		h := &host.Static{
			Items:           req.Items,
			Base:            params,
			Claude:          s.settings.Claude,
			Servers:         s.settings.MCPServers,
			FailureTolerant: continueOnFail,
		}

		s.logger.Info("execution started", "batch", batchID, "items", len(req.Items), "operation", params.Operation)
		out, err := s.newRunner(observer).Execute(r.Context(), h)

		if recorder != nil {
			if ferr := recorder.Finish(); ferr != nil {
				s.logger.Warn("failed to finish batch", "batch", batchID, "error", ferr)
			}
		}

		if err != nil {
			var opErr *domain.OperationError
			if !errors.As(err, &opErr) {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			failure := FailureResponse{
				BatchID:     batchID,
				Error:       opErr.Message,
				Description: opErr.Description,
				ItemIndex:   opErr.ItemIndex,
			}
			s.Broadcast(SSEEvent{Type: EventExecutionFailed, Data: failure})
			s.logger.Info("execution failed", "batch", batchID, "item", opErr.ItemIndex, "error", opErr.Message)
			writeStatusJSON(w, http.StatusUnprocessableEntity, failure)
			return
		}

		s.logger.Info("execution finished", "batch", batchID, "items", len(out))
		writeJSON(w, ExecuteResponse{BatchID: batchID, Items: out})
	}
}

func (s *Server) nodeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, node.Describe())
	}
}

func (s *Server) credentialsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		servers := make([]string, 0, len(s.settings.MCPServers))
		for name := range s.settings.MCPServers {
			servers = append(servers, name)
		}
		sort.Strings(servers)

		writeJSON(w, CredentialsResponse{
			Types: []CredentialType{
				{Name: credentials.ClaudeCodeAPIName, Properties: credentials.ClaudeCodeAPIProperties()},
				{Name: credentials.MCPServerName, Properties: credentials.MCPServerProperties()},
			},
			Claude:     s.settings.Claude != nil,
			MCPServers: servers,
		})
	}
}

func (s *Server) listRunsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if s.store == nil {
			writeJSON(w, []*domain.Run{})
			return
		}

		var (
			runs []*domain.Run
			err  error
		)
		if batch := r.URL.Query().Get("batch"); batch != "" {
			runs, err = s.store.ListBatchRuns(batch)
		} else {
			limit := 0
			if raw := r.URL.Query().Get("limit"); raw != "" {
				limit, err = strconv.Atoi(raw)
				if err != nil || limit < 0 {
					writeError(w, http.StatusBadRequest, "invalid limit")
					return
				}
			}
			runs, err = s.store.ListRecentRuns(limit)
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if runs == nil {
			runs = []*domain.Run{}
		}
		writeJSON(w, runs)
	}
}
