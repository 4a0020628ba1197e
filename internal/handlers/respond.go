package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	applog "hibococina/internal/log"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		applog.Error(context.Background(), "failed to encode json response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// serverFields are produced by the API and never read from a request. They are
// dropped from request bodies so a client can send back an object it fetched.
// Any other unknown field is still rejected.
var serverFields = map[string]bool{
	"id":                   true,
	"created_at":           true,
	"updated_at":           true,
	"coste_escandallo":     true,
	"coste_racion":         true,
	"coste_kilo":           true,
	"coste_total":          true,
	"food_cost":            true,
	"costes_calculados_en": true,
	"alergenos":            true,
	"total":                true,
	"fecha_recepcion":      true,
	"ingrediente":          true,
	"subplato":             true,
	"plato":                true,
	"plato_id":             true,
	"pedido_id":            true,
	"pedido_linea_id":      true,
	"orden":                true,
	"tipo":                 true,
	"nombre":               true,
}

func decodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	body = dropServerFields(body, reflect.TypeOf(dst))

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after json body")
	}
	return nil
}

// dropServerFields removes serverFields that dst has no field for. The body is
// returned untouched when nothing is removed or when it is not a single JSON
// value, leaving error reporting to the strict decoder.
func dropServerFields(body []byte, t reflect.Type) []byte {
	var value any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&value); err != nil || dec.More() {
		return body
	}
	if !pruneServerFields(value, t) {
		return body
	}
	pruned, err := json.Marshal(value)
	if err != nil {
		return body
	}
	return pruned
}

func pruneServerFields(value any, t reflect.Type) bool {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	changed := false
	switch v := value.(type) {
	case map[string]any:
		if t.Kind() != reflect.Struct {
			return false
		}
		fields := jsonFields(t)
		for key, item := range v {
			fieldType, ok := lookupJSONField(fields, key)
			if !ok {
				if serverFields[key] {
					delete(v, key)
					changed = true
				}
				continue
			}
			if pruneServerFields(item, fieldType) {
				changed = true
			}
		}
	case []any:
		if t.Kind() != reflect.Slice && t.Kind() != reflect.Array {
			return false
		}
		for _, item := range v {
			if pruneServerFields(item, t.Elem()) {
				changed = true
			}
		}
	}
	return changed
}

// jsonFields maps the JSON names encoding/json would accept for t to their types.
func jsonFields(t reflect.Type) map[string]reflect.Type {
	fields := make(map[string]reflect.Type)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if name == "" && field.Anonymous {
			embedded := field.Type
			for embedded.Kind() == reflect.Pointer {
				embedded = embedded.Elem()
			}
			if embedded.Kind() == reflect.Struct {
				for k, v := range jsonFields(embedded) {
					if _, ok := fields[k]; !ok {
						fields[k] = v
					}
				}
				continue
			}
		}
		if !field.IsExported() {
			continue
		}
		if name == "" {
			name = field.Name
		}
		fields[name] = field.Type
	}
	return fields
}

func lookupJSONField(fields map[string]reflect.Type, key string) (reflect.Type, bool) {
	if t, ok := fields[key]; ok {
		return t, true
	}
	for name, t := range fields {
		if strings.EqualFold(name, key) {
			return t, true
		}
	}
	return nil, false
}

// idParam reads the {id} route parameter. It writes a 404 and returns false
// when the parameter is not a positive integer.
func idParam(w http.ResponseWriter, r *http.Request) (uint, bool) {
	raw := chi.URLParam(r, "id")
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || value == 0 {
		applog.Debug(r.Context(), "invalid identifier", "identifier", raw)
		writeJSONError(w, http.StatusNotFound, "not found")
		return 0, false
	}
	return uint(value), true
}

// requireDatabase writes a 503 when the handlers were configured without a database.
func requireDatabase(w http.ResponseWriter, r *http.Request) bool {
	if database == nil {
		applog.Debug(r.Context(), "request without database", "path", r.URL.Path)
		writeJSONError(w, http.StatusServiceUnavailable, "service unavailable")
		return false
	}
	return true
}

// writeLoadError maps a failed lookup to 404 or 500.
func writeLoadError(w http.ResponseWriter, r *http.Request, err error, resource string, id uint) {
	ctx := r.Context()
	if errors.Is(err, gorm.ErrRecordNotFound) {
		applog.Debug(ctx, resource+" not found", "id", id)
		writeJSONError(w, http.StatusNotFound, resource+" not found")
		return
	}
	applog.Error(ctx, "failed to load "+resource, "error", err, "id", id)
	writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("unable to load %s", resource))
}

func parseUintQuery(r *http.Request, key string) (uint, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return uint(value), nil
}

// parseDateQuery accepts YYYY-MM-DD or RFC 3339. endOfDay moves plain dates
// to the last instant of that day so ranges are inclusive.
func parseDateQuery(r *http.Request, key string, endOfDay bool) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be a date (YYYY-MM-DD)", key)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func likePattern(value string) string {
	return "%" + strings.ToLower(strings.TrimSpace(value)) + "%"
}

func countWhere(ctx context.Context, model any, query string, args ...any) (int64, error) {
	var count int64
	err := database.WithContext(ctx).Model(model).Where(query, args...).Count(&count).Error
	return count, err
}
