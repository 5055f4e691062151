package server

import (
	"errors"
	"net/http"

	"github.com/smallnest/fabflow/rag"
)

type routerQuery struct {
	Query string `json:"query" validate:"required,max=4000"`
}

func (s *Server) handleRouterQuery(w http.ResponseWriter, r *http.Request) {
	if s.router == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("knowledge router not configured"))
		return
	}
	var q routerQuery
	if err := s.decode(r, &q); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	answer, err := s.router.Ask(r.Context(), q.Query)
	if err != nil {
		s.logger.Error("router query failed: %v", err)
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, answer)
}

type chatRequest struct {
	Query        string `json:"query" validate:"required,max=4000"`
	MainCategory string `json:"main_category"`
	SubCategory  string `json:"sub_category"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.chatbot == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("chatbot not configured"))
		return
	}
	var req chatRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	answer, err := s.chatbot.Ask(r.Context(), rag.Query{
		Text:         req.Query,
		MainCategory: req.MainCategory,
		SubCategory:  req.SubCategory,
	})
	switch {
	case errors.Is(err, rag.ErrUnknownCategory), errors.Is(err, rag.ErrEmptyQuery):
		s.writeError(w, http.StatusBadRequest, err)
	case err != nil:
		s.logger.Error("chat failed: %v", err)
		s.writeError(w, http.StatusInternalServerError, err)
	default:
		s.writeJSON(w, http.StatusOK, answer)
	}
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, rag.Categories)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	documents := 0
	if s.chatbot != nil {
		n, err := s.chatbot.Documents(r.Context())
		if err != nil {
			s.logger.Warn("document count unavailable: %v", err)
		}
		documents = n
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "documents": documents})
}
