package server

import (
	"encoding/json"
	"io"
	"net/http"

	"sinapsisdata/pkg/domain"
)

type answerRequest struct {
	Answer string `json:"answer"`
}

type voteRequest struct {
	Action  string `json:"action"`
	Comment string `json:"comment"`
}

// /api/questions/{id}/answer and /api/questions/{id}/dismiss
func (s *Server) handleQuestionByPath(w http.ResponseWriter, r *http.Request, user domain.User) {
	parts := pathParts(r, "/api/questions/")
	if len(parts) != 2 {
		notFound(w, "not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	id := parts[0]
	var (
		question domain.Question
		err      error
	)
	switch parts[1] {
	case "answer":
		var req answerRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		question, err = s.app.AnswerQuestion(user, id, req.Answer)
	case "dismiss":
		question, err = s.app.DismissQuestion(user, id)
	default:
		notFound(w, "not found")
		return
	}
	event := "question." + parts[1]
	if err != nil {
		s.audit(r, event, "fail", "user_id", user.ID, "question_id", id, "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, event, "success", "user_id", user.ID, "question_id", id)
	writeJSON(w, http.StatusOK, question)
}

// /api/proposals/{id}/vote
func (s *Server) handleProposalByPath(w http.ResponseWriter, r *http.Request, user domain.User) {
	parts := pathParts(r, "/api/proposals/")
	if len(parts) != 2 || parts[1] != "vote" {
		notFound(w, "not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	id := parts[0]
	var req voteRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	proposal, err := s.app.VoteProposal(user, id, req.Action, req.Comment)
	if err != nil {
		s.audit(r, "proposal.vote", "fail", "user_id", user.ID, "proposal_id", id, "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "proposal.vote", "success", "user_id", user.ID, "proposal_id", id, "action", req.Action)
	writeJSON(w, http.StatusOK, proposal)
}
