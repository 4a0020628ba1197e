package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	applog "hibococina/internal/log"
	"hibococina/models"
)

type sanitationRequest struct {
	RecordedAt       *time.Time `json:"fecha"`
	Kind             string     `json:"tipo"`
	Zone             string     `json:"zona"`
	Description      string     `json:"descripcion"`
	Value            *float64   `json:"valor"`
	Responsible      string     `json:"responsable"`
	Compliant        *bool      `json:"conforme"`
	CorrectiveAction string     `json:"accion_correctiva"`
}

func (p sanitationRequest) validate() error {
	kind := strings.TrimSpace(p.Kind)
	if kind == "" {
		return errors.New("tipo is required")
	}
	if !slices.Contains(models.SanitationKinds(), kind) {
		return fmt.Errorf("unknown tipo %q", kind)
	}
	if p.Compliant != nil && !*p.Compliant && strings.TrimSpace(p.CorrectiveAction) == "" {
		return errors.New("accion_correctiva is required for non-compliant records")
	}
	return nil
}

func (p sanitationRequest) apply(record *models.SanitationRecord) {
	record.Kind = strings.TrimSpace(p.Kind)
	record.Zone = strings.TrimSpace(p.Zone)
	record.Description = strings.TrimSpace(p.Description)
	record.Value = p.Value
	record.Responsible = strings.TrimSpace(p.Responsible)
	record.Compliant = true
	if p.Compliant != nil {
		record.Compliant = *p.Compliant
	}
	record.CorrectiveAction = strings.TrimSpace(p.CorrectiveAction)
	if p.RecordedAt != nil {
		record.RecordedAt = p.RecordedAt.UTC()
	} else if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now().UTC()
	}
}

// ListSanitationRecords returns the hygiene log, newest first, filtered by
// tipo and a desde/hasta date range.
func ListSanitationRecords(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()
	query := database.WithContext(ctx).Order("fecha desc, id desc")

	if kind := strings.TrimSpace(r.URL.Query().Get("tipo")); kind != "" {
		query = query.Where("tipo = ?", kind)
	}
	from, err := parseDateQuery(r, "desde", false)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseDateQuery(r, "hasta", true)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if from != nil {
		query = query.Where("fecha >= ?", *from)
	}
	if to != nil {
		query = query.Where("fecha <= ?", *to)
	}
	if r.URL.Query().Get("conforme") == "false" {
		query = query.Where("conforme = ?", false)
	}

	var records []models.SanitationRecord
	if err := query.Find(&records).Error; err != nil {
		applog.Error(ctx, "failed to list sanitation records", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to load sanitation records")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// CreateSanitationRecord appends an entry to the hygiene log.
func CreateSanitationRecord(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()

	var payload sanitationRequest
	if err := decodeJSON(r, &payload); err != nil {
		applog.Debug(ctx, "invalid sanitation payload", "error", err)
		writeJSONError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if err := payload.validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	var record models.SanitationRecord
	payload.apply(&record)
	if err := database.WithContext(ctx).Create(&record).Error; err != nil {
		applog.Error(ctx, "failed to create sanitation record", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to create sanitation record")
		return
	}
	if !record.Compliant {
		applog.Warn(ctx, "non-compliant sanitation record", "id", record.ID, "tipo", record.Kind, "zona", record.Zone)
	}
	writeJSON(w, http.StatusCreated, record)
}

// ShowSanitationRecord returns one log entry.
func ShowSanitationRecord(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var record models.SanitationRecord
	if err := database.WithContext(r.Context()).First(&record, id).Error; err != nil {
		writeLoadError(w, r, err, "sanitation record", id)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// UpdateSanitationRecord replaces a log entry.
func UpdateSanitationRecord(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var record models.SanitationRecord
	if err := database.WithContext(ctx).First(&record, id).Error; err != nil {
		writeLoadError(w, r, err, "sanitation record", id)
		return
	}

	var payload sanitationRequest
	if err := decodeJSON(r, &payload); err != nil {
		applog.Debug(ctx, "invalid sanitation payload", "error", err)
		writeJSONError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if err := payload.validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	payload.apply(&record)
	if err := database.WithContext(ctx).Save(&record).Error; err != nil {
		applog.Error(ctx, "failed to update sanitation record", "error", err, "id", id)
		writeJSONError(w, http.StatusInternalServerError, "unable to update sanitation record")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// DeleteSanitationRecord removes a log entry.
func DeleteSanitationRecord(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	result := database.WithContext(ctx).Delete(&models.SanitationRecord{}, id)
	if result.Error != nil {
		applog.Error(ctx, "failed to delete sanitation record", "error", result.Error, "id", id)
		writeJSONError(w, http.StatusInternalServerError, "unable to delete sanitation record")
		return
	}
	if result.RowsAffected == 0 {
		writeJSONError(w, http.StatusNotFound, "sanitation record not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
