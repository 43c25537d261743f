package http

import (
	"net/http"
	"strings"

	"expenses/internal/core"
	"expenses/internal/log"
)

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	filter := core.Filter{Category: r.URL.Query().Get("category")}
	items, err := s.svc.List(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err, log.OpList)
		return
	}
	if items == nil {
		items = []core.Expense{}
	}
	NewJSONResponse().Data(items).Write(w)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.writeServiceError(w, r, err, log.OpRead)
		return
	}
	e, err := s.svc.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err, log.OpRead)
		return
	}
	NewJSONResponse().Data(e).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	in, err := s.readExpenseInput(w, r)
	if err != nil {
		s.writeServiceError(w, r, err, log.OpCreate)
		return
	}
	e, err := s.svc.Create(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, r, err, log.OpCreate)
		return
	}
	s.appMetrics.created.Add(1)
	NewJSONResponse().Status(http.StatusCreated).Data(e).Write(w)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.writeServiceError(w, r, err, log.OpUpdate)
		return
	}
	in, err := s.readExpenseInput(w, r)
	if err != nil {
		s.writeServiceError(w, r, err, log.OpUpdate)
		return
	}
	e, err := s.svc.Update(r.Context(), id, in)
	if err != nil {
		s.writeServiceError(w, r, err, log.OpUpdate)
		return
	}
	s.appMetrics.updated.Add(1)
	NewJSONResponse().Data(e).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.writeServiceError(w, r, err, log.OpDelete)
		return
	}
	if _, err := s.svc.Delete(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err, log.OpDelete)
		return
	}
	s.appMetrics.deleted.Add(1)
	MessageResponse("Expense deleted successfully").Write(w)
}

// handleAPIFallback answers API paths no route claimed. A trailing slash on a
// collection path is served like the bare path; a known path under another
// method gets 405, anything else 404.
func (s *Server) handleAPIFallback(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/api/expenses":
		switch r.Method {
		case http.MethodGet:
			s.handleListExpenses(w, r)
		case http.MethodPost:
			s.handleCreateExpense(w, r)
		default:
			MethodNotAllowedError(http.MethodGet, http.MethodPost).Write(w)
		}
	case path == "/api/health":
		if r.Method == http.MethodGet {
			s.handleHealth(w, r)
			return
		}
		MethodNotAllowedError(http.MethodGet).Write(w)
	case strings.HasPrefix(path, "/api/expenses/") && !strings.Contains(strings.TrimPrefix(path, "/api/expenses/"), "/"):
		MethodNotAllowedError(http.MethodGet, http.MethodPut, http.MethodDelete).Write(w)
	default:
		NotFoundError("Not found").Write(w)
	}
}
