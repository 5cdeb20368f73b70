package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/skywatch-labs/skywatch/internal/model"
	"github.com/skywatch-labs/skywatch/internal/service"
	"github.com/skywatch-labs/skywatch/internal/store"
)

const (
	defaultListLimit = 10
	notFoundMsg      = "Weather record not found"
)

// WeatherHandler serves the weather observation routes.
type WeatherHandler struct {
	store  *store.Store
	logger *slog.Logger
}

// NewWeatherHandler creates a new WeatherHandler.
func NewWeatherHandler(st *store.Store, logger *slog.Logger) *WeatherHandler {
	return &WeatherHandler{store: st, logger: logger}
}

// List returns the most recent observations, at most ten.
// GET /weathers
func (h *WeatherHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := clampInt(queryInt(r, "limit", defaultListLimit), 1, defaultListLimit)
	records, err := h.store.ListWeather(r.Context(), limit)
	if err != nil {
		writeServiceError(w, r, h.logger, notFoundMsg, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// Get returns one observation.
// GET /weathers/{id}
func (h *WeatherHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.GetWeather(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "Weather data not found", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Projection returns only the id, precipitation and coordinates of an
// observation.
// GET /weathersProjection/{id}
func (h *WeatherHandler) Projection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid ID format")
		return
	}
	p, err := h.store.GetWeatherProjection(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, notFoundMsg, err)
		return
	}
	writeJSON(w, http.StatusOK, model.MessageResponse{
		Message: "Weather record retrieved with projection",
		Data:    p,
	})
}

// Create stores one observation.
// POST /createWeathers
func (h *WeatherHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in weatherInput
	if err := readJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	rec, err := in.toModel(true)
	if err != nil {
		writeServiceError(w, r, h.logger, notFoundMsg, err)
		return
	}
	if err := h.store.CreateWeather(r.Context(), &rec); err != nil {
		writeServiceError(w, r, h.logger, notFoundMsg, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// CreateMany stores a batch of observations atomically.
// POST /createMultipleWeathers
func (h *WeatherHandler) CreateMany(w http.ResponseWriter, r *http.Request) {
	records, ok := h.readBatch(w, r, true)
	if !ok {
		return
	}
	if err := h.store.CreateWeatherBatch(r.Context(), records); err != nil {
		writeServiceError(w, r, h.logger, notFoundMsg, err)
		return
	}
	writeJSON(w, http.StatusCreated, model.MessageResponse{
		Message: "Weather data inserted successfully",
		Data:    records,
	})
}

// Replace overwrites every field of an observation.
// PUT /replaceWeathers/{id}
func (h *WeatherHandler) Replace(w http.ResponseWriter, r *http.Request) {
	var in weatherInput
	if err := readJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	rec, err := in.toModel(false)
	if err != nil {
		writeServiceError(w, r, h.logger, notFoundMsg, err)
		return
	}
	rec.ID = chi.URLParam(r, "id")
	if err := h.store.ReplaceWeather(r.Context(), &rec); err != nil {
		writeServiceError(w, r, h.logger, notFoundMsg, err)
		return
	}
	writeJSON(w, http.StatusOK, model.MessageResponse{
		Message: "Weather record replaced successfully",
		Data:    rec,
	})
}

// Update applies a partial update to an observation.
// PATCH /updateWeathers/{id}
func (h *WeatherHandler) Update(w http.ResponseWriter, r *http.Request) {
	var raw map[string]json.RawMessage
	if err := readJSON(w, r, &raw); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	fields, err := decodePatch(raw)
	if err != nil {
		writeServiceError(w, r, h.logger, notFoundMsg, err)
		return
	}
	rec, err := h.store.UpdateWeather(r.Context(), chi.URLParam(r, "id"), fields)
	if err != nil {
		writeServiceError(w, r, h.logger, notFoundMsg, err)
		return
	}
	writeJSON(w, http.StatusOK, model.MessageResponse{
		Message: "Weather record updated successfully",
		Data:    rec,
	})
}

// ReplaceMany overwrites a batch of observations. Each item must carry _id.
// PUT /replaceMultipleWeathers
func (h *WeatherHandler) ReplaceMany(w http.ResponseWriter, r *http.Request) {
	records, ok := h.readBatch(w, r, false)
	if !ok {
		return
	}
	for i := range records {
		if records[i].ID == "" {
			writeError(w, http.StatusBadRequest, "Each record must include an '_id' field",
				map[string]interface{}{"field": "_id", "index": i})
			return
		}
	}
	if err := h.store.ReplaceWeatherBatch(r.Context(), records); err != nil {
		writeServiceError(w, r, h.logger, notFoundMsg, err)
		return
	}
	writeJSON(w, http.StatusOK, model.MessageResponse{
		Message: "Weather records replaced successfully",
		Data:    records,
	})
}

// UpdateMany applies partial updates to a batch of observations. Each item
// must carry _id.
// PATCH /updateMultipleWeathers
func (h *WeatherHandler) UpdateMany(w http.ResponseWriter, r *http.Request) {
	var items []map[string]json.RawMessage
	if err := readJSON(w, r, &items); err != nil {
		writeError(w, http.StatusBadRequest, "Request body must be an array of objects")
		return
	}

	ids := make([]string, len(items))
	updates := make([]map[string]interface{}, len(items))
	for i, item := range items {
		var id string
		if rawID, ok := item["_id"]; ok {
			if err := json.Unmarshal(rawID, &id); err != nil {
				id = ""
			}
		}
		if id == "" {
			writeError(w, http.StatusBadRequest, "Each record must include an '_id'",
				map[string]interface{}{"field": "_id", "index": i})
			return
		}
		delete(item, "_id")

		fields, err := decodePatch(item)
		if err != nil {
			writeServiceError(w, r, h.logger, notFoundMsg, err)
			return
		}
		ids[i] = id
		updates[i] = fields
	}

	records, err := h.store.UpdateWeatherBatch(r.Context(), ids, updates)
	if err != nil {
		writeServiceError(w, r, h.logger, notFoundMsg, err)
		return
	}
	writeJSON(w, http.StatusOK, model.MessageResponse{
		Message: "Weather records updated successfully",
		Data:    records,
	})
}

// Delete removes one observation and returns it.
// DELETE /deleteWeathers/{id}
func (h *WeatherHandler) Delete(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.DeleteWeather(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, notFoundMsg, err)
		return
	}
	writeJSON(w, http.StatusOK, model.MessageResponse{
		Message: "Weather record deleted successfully",
		Data:    rec,
	})
}

type deleteManyRequest struct {
	IDs []string `json:"_id"`
}

// DeleteMany removes every listed observation.
// DELETE /deleteMultipleWeathers
func (h *WeatherHandler) DeleteMany(w http.ResponseWriter, r *http.Request) {
	var req deleteManyRequest
	if err := readJSON(w, r, &req); err != nil || req.IDs == nil {
		writeError(w, http.StatusBadRequest, "An array of `_id` values must be provided",
			map[string]interface{}{"field": "_id"})
		return
	}
	n, err := h.store.DeleteWeatherBatch(r.Context(), req.IDs)
	if err != nil {
		writeServiceError(w, r, h.logger, notFoundMsg, err)
		return
	}
	writeJSON(w, http.StatusOK, model.MessageResponse{
		Message: "Weather records deleted successfully",
		Data:    map[string]int64{"deletedCount": n},
	})
}

// readBatch decodes a JSON array of full records. On failure it writes the
// response and returns false.
func (h *WeatherHandler) readBatch(w http.ResponseWriter, r *http.Request, create bool) ([]model.Weather, bool) {
	var items []weatherInput
	if err := readJSON(w, r, &items); err != nil {
		writeError(w, http.StatusBadRequest, "Request body must be an array of objects")
		return nil, false
	}
	if len(items) == 0 {
		writeError(w, http.StatusBadRequest, "Request body must contain at least one record")
		return nil, false
	}

	records := make([]model.Weather, len(items))
	for i, in := range items {
		rec, err := in.toModel(create)
		if err != nil {
			ctx := map[string]interface{}{"index": i}
			if ve, ok := err.(*service.ValidationError); ok {
				ctx["field"] = ve.Field
			}
			writeError(w, http.StatusBadRequest, err.Error(), ctx)
			return nil, false
		}
		records[i] = rec
	}
	return records, true
}

// weatherInput mirrors model.Weather with pointer fields so missing values
// can be told apart from zeros.
type weatherInput struct {
	ID                  *string    `json:"_id"`
	DeviceName          *string    `json:"deviceName"`
	Precipitation       *float64   `json:"precipitation"`
	Time                *time.Time `json:"time"`
	Latitude            *float64   `json:"latitude"`
	Longitude           *float64   `json:"longitude"`
	AtmosphericPressure *float64   `json:"atmosphericPressure"`
	MaxWindSpeed        *float64   `json:"maxWindSpeed"`
	SolarRadiation      *float64   `json:"solarRadiation"`
	VaporPressure       *float64   `json:"vaporPressure"`
	Humidity            *float64   `json:"humidity"`
	WindDirection       *float64   `json:"windDirection"`
}

// toModel checks that every field is present. A client supplied _id is
// kept; on create it must be a UUID.
func (in weatherInput) toModel(create bool) (model.Weather, error) {
	var out model.Weather

	if in.ID != nil {
		if create {
			if _, err := uuid.Parse(*in.ID); err != nil {
				return out, &service.ValidationError{Field: "_id", Message: "_id must be a UUID"}
			}
		}
		out.ID = *in.ID
	}
	if in.DeviceName == nil || *in.DeviceName == "" {
		return out, required("deviceName")
	}
	out.DeviceName = *in.DeviceName
	if in.Time == nil {
		return out, required("time")
	}
	out.Time = in.Time.UTC()

	numbers := []struct {
		name string
		src  *float64
		dst  *float64
	}{
		{"precipitation", in.Precipitation, &out.Precipitation},
		{"latitude", in.Latitude, &out.Latitude},
		{"longitude", in.Longitude, &out.Longitude},
		{"atmosphericPressure", in.AtmosphericPressure, &out.AtmosphericPressure},
		{"maxWindSpeed", in.MaxWindSpeed, &out.MaxWindSpeed},
		{"solarRadiation", in.SolarRadiation, &out.SolarRadiation},
		{"vaporPressure", in.VaporPressure, &out.VaporPressure},
		{"humidity", in.Humidity, &out.Humidity},
		{"windDirection", in.WindDirection, &out.WindDirection},
	}
	for _, n := range numbers {
		if n.src == nil {
			return out, required(n.name)
		}
		*n.dst = *n.src
	}
	return out, nil
}

func required(field string) error {
	return &service.ValidationError{Field: field, Message: field + " is required"}
}

// decodePatch converts a partial update body into typed column values,
// rejecting unknown fields and values of the wrong type.
func decodePatch(raw map[string]json.RawMessage) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return nil, &service.ValidationError{Field: "body", Message: "no fields to update"}
	}
	fields := make(map[string]interface{}, len(raw))
	for name, val := range raw {
		if _, ok := model.WeatherFields[name]; !ok {
			return nil, &service.ValidationError{Field: name, Message: fmt.Sprintf("unknown field %q", name)}
		}
		switch name {
		case "deviceName":
			var s string
			if err := json.Unmarshal(val, &s); err != nil || s == "" {
				return nil, &service.ValidationError{Field: name, Message: name + " must be a non-empty string"}
			}
			fields[name] = s
		case "time":
			var t time.Time
			if err := json.Unmarshal(val, &t); err != nil {
				return nil, &service.ValidationError{Field: name, Message: name + " must be an RFC 3339 timestamp"}
			}
			fields[name] = t.UTC()
		default:
			var f float64
			if err := json.Unmarshal(val, &f); err != nil {
				return nil, &service.ValidationError{Field: name, Message: name + " must be a number"}
			}
			fields[name] = f
		}
	}
	return fields, nil
}
