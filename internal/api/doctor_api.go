package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"telecare/internal/domain"
	"telecare/internal/models"
	"telecare/internal/schedule"
)

// SessionRequest is the body of session create and update.
type SessionRequest struct {
	DoctorID        string `json:"doctorId"`
	DayOfWeek       int    `json:"dayOfWeek"`
	StartTime       string `json:"startTime"`
	EndTime         string `json:"endTime"`
	DurationMinutes int    `json:"durationMinutes"`
	Fee             int64  `json:"fee"`
}

func (r SessionRequest) template() models.SessionTemplate {
	return models.SessionTemplate{
		DoctorID:        r.DoctorID,
		DayOfWeek:       r.DayOfWeek,
		StartTime:       r.StartTime,
		EndTime:         r.EndTime,
		DurationMinutes: r.DurationMinutes,
		Fee:             r.Fee,
	}
}

// DayAvailabilityRequest toggles a whole day.
type DayAvailabilityRequest struct {
	DoctorID  string `json:"doctorId"`
	Date      string `json:"date"`
	Available *bool  `json:"available"`
}

// SessionAvailabilityRequest toggles one session on one date.
type SessionAvailabilityRequest struct {
	DoctorID  string `json:"doctorId"`
	SessionID string `json:"sessionId"`
	Date      string `json:"date"`
	Available *bool  `json:"available"`
}

// handleDoctorAppointments reconciles expired bookings and returns a page.
// GET /doctor/appointments?doctorId=&page=&limit=&filter={"appointmentStatus":"booked"}
func (s *HTTPServer) handleDoctorAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, err := intParam(q.Get("page"), 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "page must be a number")
		return
	}
	limit, err := intParam(q.Get("limit"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a number")
		return
	}

	var filter domain.AppointmentFilter
	if raw := q.Get("filter"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &filter); err != nil {
			writeError(w, http.StatusBadRequest, "filter must be a JSON object")
			return
		}
	}

	result, err := s.deps.Appointments.ReconcileAndFetch(r.Context(), q.Get("doctorId"), page, limit, filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleCancelAppointment cancels and refunds one appointment. The outcome is
// reported in the body, not the status code.
// PATCH /doctor/cancelAppointment?appointmentId=
func (s *HTTPServer) handleCancelAppointment(w http.ResponseWriter, r *http.Request) {
	res := s.deps.Appointments.CancelAppointment(r.Context(), r.URL.Query().Get("appointmentId"))
	writeJSON(w, http.StatusOK, res)
}

// GET /doctor/sessions?doctorId=
func (s *HTTPServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Schedule.ListSessions(r.Context(), r.URL.Query().Get("doctorId"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []models.SessionTemplate{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": list})
}

// POST /doctor/sessions
func (s *HTTPServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	created, err := s.deps.Schedule.CreateSession(r.Context(), req.template())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// PATCH /doctor/sessions?sessionId=
func (s *HTTPServer) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("sessionId")
	if id == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	var req SessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := s.deps.Schedule.UpdateSession(r.Context(), id, req.template())
	s.writeResult(w, r, res, err)
}

// DELETE /doctor/sessions?sessionId=
func (s *HTTPServer) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("sessionId")
	if id == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	res, err := s.deps.Schedule.DeleteSession(r.Context(), id)
	s.writeResult(w, r, res, err)
}

// PATCH /doctor/availability/day
func (s *HTTPServer) handleDayAvailability(w http.ResponseWriter, r *http.Request) {
	var req DayAvailabilityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Available == nil {
		writeError(w, http.StatusBadRequest, "available is required")
		return
	}

	res, err := s.deps.Schedule.SetDayAvailability(r.Context(), req.DoctorID, req.Date, *req.Available)
	s.writeResult(w, r, res, err)
}

// PATCH /doctor/availability/session
func (s *HTTPServer) handleSessionAvailability(w http.ResponseWriter, r *http.Request) {
	var req SessionAvailabilityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SessionID == "" || req.Available == nil {
		writeError(w, http.StatusBadRequest, "sessionId and available are required")
		return
	}

	res, err := s.deps.Schedule.SetSessionAvailability(r.Context(), req.DoctorID, req.SessionID, req.Date, *req.Available)
	s.writeResult(w, r, res, err)
}

// handleDoctorSlots returns the generator output for a date, past slots
// included as they are.
// GET /doctor/slots?doctorId=&date=YYYY-MM-DD
func (s *HTTPServer) handleDoctorSlots(w http.ResponseWriter, r *http.Request) {
	s.writeSchedule(w, r, false)
}

func (s *HTTPServer) writeResult(w http.ResponseWriter, r *http.Request, res *schedule.Result, err error) {
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if res.Cancelled == nil {
		res.Cancelled = []models.Appointment{}
	}
	writeJSON(w, http.StatusOK, res)
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", raw)
	}
	return n, nil
}
