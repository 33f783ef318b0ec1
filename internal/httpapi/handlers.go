package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/tejasbhor/migrationguard-ai-sub001/internal/approval"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/domain"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/store"
)

// handleSubmitSignal implements submit_signal(signal) (spec.md §6): decode
// a Signal and place it on the bus exactly as an external detector would,
// so it is picked up by the orchestrator's next consume cycle.
func (s *Server) handleSubmitSignal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "POST required"})
		return
	}
	var signal domain.Signal
	if err := json.NewDecoder(r.Body).Decode(&signal); err != nil {
		writeError(w, domain.Classify("httpapi.submit_signal", domain.KindInput, err))
		return
	}
	if signal.MerchantKey == "" {
		writeError(w, domain.Classify("httpapi.submit_signal", domain.KindInput, domain.ErrIssueNotFound))
		return
	}
	if err := s.bus.Publish(r.Context(), signal); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// decideRequest is the body decide(action_id, verdict, operator, feedback?)
// decodes into.
type decideRequest struct {
	ActionID string `json:"action_id"`
	Verdict  string `json:"verdict"`
	Operator string `json:"operator"`
	Feedback string `json:"feedback,omitempty"`
}

// handleDecide implements decide(action_id, verdict, operator, feedback?)
// (spec.md §6). Recording the verdict fires approval.Coordinator's
// listeners synchronously, which the orchestrator subscribes to in order to
// wake the parked issue — this handler never touches issue state directly.
func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "POST required"})
		return
	}
	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.Classify("httpapi.decide", domain.KindInput, err))
		return
	}
	verdict := approval.Verdict(req.Verdict)
	if verdict != approval.VerdictApprove && verdict != approval.VerdictReject {
		writeError(w, domain.Classify("httpapi.decide", domain.KindInput, domain.ErrWrongStage))
		return
	}
	decision, err := s.approvals.Decide(req.ActionID, req.Operator, verdict, req.Feedback)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// handleListPendingApprovals implements list_pending_approvals(filters?)
// (spec.md §6). Supported filters: risk_level, action_type.
func (s *Server) handleListPendingApprovals(w http.ResponseWriter, r *http.Request) {
	pending := s.approvals.Pending()
	riskFilter := domain.RiskLevel(r.URL.Query().Get("risk_level"))
	actionFilter := domain.ActionType(r.URL.Query().Get("action_type"))

	out := make([]approval.Pending, 0, len(pending))
	for _, p := range pending {
		if riskFilter != "" && p.RiskLevel != riskFilter {
			continue
		}
		if actionFilter != "" && p.ActionType != actionFilter {
			continue
		}
		out = append(out, p)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetIssue implements get_issue(id) (spec.md §6), served from
// /v1/issues/{id}.
func (s *Server) handleGetIssue(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/issues/")
	if id == "" || id == r.URL.Path {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "issue id required"})
		return
	}
	iss, err := s.st.LoadIssue(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, iss)
}

// handleListIssues implements list_issues(filters?) (spec.md §6). Supported
// filters: stage, merchant_key, resolution_kind, limit.
func (s *Server) handleListIssues(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.IssueFilter{
		Stage:          domain.Stage(q.Get("stage")),
		MerchantKey:    q.Get("merchant_key"),
		ResolutionKind: domain.ResolutionKind(q.Get("resolution_kind")),
	}
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			filter.Limit = n
		}
	}
	issues, err := s.st.ListIssues(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issues)
}

// handleVerifyChain implements the audit verification surface's
// verify_chain(issue_id) -> {ok, first_bad_entry?} (spec.md §6).
func (s *Server) handleVerifyChain(w http.ResponseWriter, r *http.Request) {
	issueID := r.URL.Query().Get("issue_id")
	if issueID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "issue_id required"})
		return
	}
	result, err := s.auditLog.VerifyChainResult(r.Context(), issueID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
