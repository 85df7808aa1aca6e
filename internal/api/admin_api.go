package api

import (
	"fmt"
	"net/http"
	"strconv"

	"telecare/shared/access"
	"telecare/shared/audit"
)

// adminHeader carries the acting admin's identity.
const adminHeader = "x-admin-id"

// BlockRequest is the body of block and unblock.
type BlockRequest struct {
	UserID string `json:"userId"`
	Reason string `json:"reason,omitempty"`
}

// GET /admin/users/block
func (s *HTTPServer) handleListBlocked(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Access.AdminMiddleware(r.Context(), r.Header.Get(adminHeader)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	list, err := s.deps.Access.ListBlockedUsers(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []access.BlockedUser{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"blockedUsers": list})
}

// POST /admin/users/block
func (s *HTTPServer) handleBlockUser(w http.ResponseWriter, r *http.Request) {
	var req BlockRequest
	if err := decodeJSON(r, &req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	if err := s.deps.Access.BlockUser(r.Context(), req.UserID, req.Reason, r.Header.Get(adminHeader)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"userId": req.UserID, "blocked": true})
}

// DELETE /admin/users/block
func (s *HTTPServer) handleUnblockUser(w http.ResponseWriter, r *http.Request) {
	var req BlockRequest
	if err := decodeJSON(r, &req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	if err := s.deps.Access.UnblockUser(r.Context(), req.UserID, r.Header.Get(adminHeader)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"userId": req.UserID, "blocked": false})
}

// handleExportTransactions streams the month's ledger as xlsx.
// GET /admin/transactions/export?month=YYYY-MM
func (s *HTTPServer) handleExportTransactions(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Access.AdminMiddleware(r.Context(), r.Header.Get(adminHeader)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	month, err := audit.ParseMonth(r.URL.Query().Get("month"), s.deps.Generator.Location())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	data, filename, err := s.deps.Audit.ExportMonth(r.Context(), month)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
