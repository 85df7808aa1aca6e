package api

import (
	"net/http"

	"telecare/internal/appointments"
	"telecare/internal/models"
	"telecare/internal/slots"
)

// GET /slots?doctorId=&date=YYYY-MM-DD
func (s *HTTPServer) handlePublicSlots(w http.ResponseWriter, r *http.Request) {
	s.writeSchedule(w, r, true)
}

func (s *HTTPServer) writeSchedule(w http.ResponseWriter, r *http.Request, hidePast bool) {
	q := r.URL.Query()
	doctorID := q.Get("doctorId")
	if doctorID == "" || q.Get("date") == "" {
		writeError(w, http.StatusBadRequest, "doctorId and date are required")
		return
	}

	date, err := models.ParseDate(q.Get("date"), s.deps.Generator.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	schedule, err := s.deps.Generator.Generate(r.Context(), doctorID, date)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if hidePast {
		slots.MarkPast(schedule, s.deps.Clock.Now())
	}
	writeJSON(w, http.StatusOK, schedule)
}

// POST /appointments
func (s *HTTPServer) handleBook(w http.ResponseWriter, r *http.Request) {
	var req appointments.BookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	a, err := s.deps.Appointments.Book(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// GET /users/wallet?userId=
func (s *HTTPServer) handleWallet(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	balance, err := s.deps.Appointments.Wallet(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"userId": userID, "walletBalance": balance})
}
