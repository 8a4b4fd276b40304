package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-booking/internal/appointment"
	"github.com/hackgods/doctor-booking/internal/availability"
	"github.com/hackgods/doctor-booking/internal/booking"
	"github.com/hackgods/doctor-booking/internal/directory"
	"github.com/hackgods/doctor-booking/internal/timegrid"
)

func createAppointmentHandler(svc *booking.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		appt, err := svc.Create(r.Context(), booking.CreateRequest{
			PatientID: patientID,
			DoctorID:  doctorID,
			Date:      req.Date,
			Time:      req.Time,
			Notes:     req.Notes,
			Reason:    req.Reason,
		})
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *booking.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *booking.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		patientID, ok := optionalUUIDQuery(w, q.Get("patient_id"), "patient_id")
		if !ok {
			return
		}
		doctorID, ok := optionalUUIDQuery(w, q.Get("doctor_id"), "doctor_id")
		if !ok {
			return
		}

		limit, err := intQuery(q.Get("limit"), booking.DefaultListLimit)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_limit", err.Error())
			return
		}
		if limit <= 0 {
			limit = booking.DefaultListLimit
		}
		if limit > booking.MaxListLimit {
			limit = booking.MaxListLimit
		}
		offset, err := intQuery(q.Get("offset"), 0)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_offset", err.Error())
			return
		}
		if offset < 0 {
			offset = 0
		}

		appts, err := svc.List(r.Context(), booking.ListQuery{
			PatientID: patientID,
			DoctorID:  doctorID,
			Status:    q.Get("status"),
			Date:      q.Get("date"),
			Limit:     limit,
			Offset:    offset,
		})
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		resp := AppointmentListResponse{
			Appointments: make([]AppointmentResponse, 0, len(appts)),
			Limit:        limit,
			Offset:       offset,
		}
		for i := range appts {
			resp.Appointments = append(resp.Appointments, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func rescheduleAppointmentHandler(svc *booking.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.Reschedule(r.Context(), id, req.Date, req.Time)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *booking.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		appt, err := svc.Cancel(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func completeAppointmentHandler(svc *booking.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		appt, err := svc.Complete(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func createDoctorHandler(doctors *directory.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateDoctorRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		d, err := doctors.Create(r.Context(), directory.CreateRequest{Name: req.Name, Specialty: req.Specialty})
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, toDoctorResponse(d))
	}
}

func getDoctorHandler(doctors *directory.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := doctorIDParam(w, r)
		if !ok {
			return
		}

		d, err := doctors.Get(r.Context(), doctorID)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toDoctorResponse(d))
	}
}

func listDoctorsHandler(doctors *directory.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		list, err := doctors.List(r.Context(), appointment.DoctorFilter{
			Name:      q.Get("name"),
			Specialty: q.Get("specialty"),
		})
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		resp := DoctorListResponse{Doctors: make([]DoctorResponse, 0, len(list))}
		for i := range list {
			resp.Doctors = append(resp.Doctors, toDoctorResponse(&list[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func daySlotsHandler(resolver *availability.Resolver, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := doctorIDParam(w, r)
		if !ok {
			return
		}
		date, err := timegrid.ParseDate(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		day, err := resolver.Day(r.Context(), doctorID, date)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toDaySlotsResponse(day))
	}
}

func horizonSlotsHandler(resolver *availability.Resolver, defaultDays, maxDays int, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := doctorIDParam(w, r)
		if !ok {
			return
		}
		q := r.URL.Query()

		from, err := timegrid.ParseDate(q.Get("from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "from must be YYYY-MM-DD")
			return
		}
		days, err := intQuery(q.Get("days"), defaultDays)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_days", err.Error())
			return
		}
		if maxDays > 0 && days > maxDays {
			writeError(w, http.StatusBadRequest, "invalid_days", fmt.Sprintf("days must not exceed %d", maxDays))
			return
		}

		slots, err := resolver.SlotsOverHorizon(r.Context(), doctorID, from, days)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, HorizonResponse{DoctorID: doctorID, From: from, Days: days, Slots: slots})
	}
}

func listBlocksHandler(blocks *availability.Manager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := doctorIDParam(w, r)
		if !ok {
			return
		}

		list, err := blocks.ListBlocks(r.Context(), doctorID)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		resp := BlockListResponse{Blocks: list}
		if resp.Blocks == nil {
			resp.Blocks = resp.Blocks[:0:0]
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createBlockHandler(blocks *availability.Manager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := doctorIDParam(w, r)
		if !ok {
			return
		}
		in, ok := decodeBlockInput(w, r)
		if !ok {
			return
		}

		block, err := blocks.AddBlock(r.Context(), doctorID, in)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, block)
	}
}

func updateBlockHandler(blocks *availability.Manager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := doctorIDParam(w, r)
		if !ok {
			return
		}
		blockID, err := uuid.Parse(chi.URLParam(r, "blockID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_block_id", "blockID must be a valid UUID")
			return
		}
		in, ok := decodeBlockInput(w, r)
		if !ok {
			return
		}

		block, err := blocks.UpdateBlock(r.Context(), doctorID, blockID, in)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, block)
	}
}

func deleteBlockHandler(blocks *availability.Manager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := doctorIDParam(w, r)
		if !ok {
			return
		}
		blockID, err := uuid.Parse(chi.URLParam(r, "blockID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_block_id", "blockID must be a valid UUID")
			return
		}

		if err := blocks.DeleteBlock(r.Context(), doctorID, blockID); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func decodeBlockInput(w http.ResponseWriter, r *http.Request) (availability.BlockInput, bool) {
	var req BlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return availability.BlockInput{}, false
	}

	date, err := timegrid.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return availability.BlockInput{}, false
	}
	start, err := timegrid.ParseClock(req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_time", "start_time must be HH:MM")
		return availability.BlockInput{}, false
	}
	end, err := timegrid.ParseClock(req.EndTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_time", "end_time must be HH:MM")
		return availability.BlockInput{}, false
	}
	return availability.BlockInput{Date: date, StartTime: start, EndTime: end}, true
}

func doctorIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "doctorID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorID must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// optionalUUIDQuery accepts an absent value as uuid.Nil.
func optionalUUIDQuery(w http.ResponseWriter, raw, name string) (uuid.UUID, bool) {
	if raw == "" {
		return uuid.Nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func appointmentIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func intQuery(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", raw)
	}
	return n, nil
}
