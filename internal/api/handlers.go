// Package api exposes HTTP handlers for the track analytics service.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"example.com/verve/internal/auth"
	"example.com/verve/internal/calendar"
	"example.com/verve/internal/domain"
	"example.com/verve/internal/engine"
	"example.com/verve/internal/export"
	"example.com/verve/internal/heatmap"
	"example.com/verve/internal/highlights"
	"example.com/verve/internal/matching"
)

// Handler coordinates HTTP requests with the analytics engine.
type Handler struct {
	service *engine.Service
}

// NewHandler builds a Handler.
func NewHandler(service *engine.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", healthz)
	mux.HandleFunc("POST /v1/activities/{id}/track/clean", h.cleanTrack)
	mux.HandleFunc("GET /v1/activities/{id}/track", h.getTrack)
	mux.HandleFunc("GET /v1/activities/{id}/track/export.parquet", h.exportTrack)
	mux.HandleFunc("GET /v1/activities/{id}/power-curve", h.powerCurve)
	mux.HandleFunc("GET /v1/heatmap", h.heatmap)
	mux.HandleFunc("GET /v1/locations/matches", h.locationMatches)
	mux.HandleFunc("GET /v1/tracks/near", h.tracksNear)
	mux.HandleFunc("GET /v1/statistics/calendar", h.calendar)
	mux.HandleFunc("GET /v1/highlights", h.highlights)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// identity resolves the caller and checks the scope. Write scope implies read.
func identity(w http.ResponseWriter, r *http.Request, scope string) (string, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok || claims.UserID() == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return "", false
	}
	if !claims.HasScope(scope) && !(scope == auth.ScopeTracksRead && claims.HasScope(auth.ScopeTracksWrite)) {
		writeError(w, http.StatusForbidden, "forbidden", fmt.Sprintf("scope %s required", scope))
		return "", false
	}
	return claims.UserID(), true
}

func (h *Handler) cleanTrack(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity(w, r, auth.ScopeTracksWrite)
	if !ok {
		return
	}
	result, err := h.service.CleanAndDeriveTrack(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTrackResponse(result))
}

func (h *Handler) getTrack(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity(w, r, auth.ScopeTracksRead)
	if !ok {
		return
	}
	activity, points, err := h.service.Track(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TrackResponse{
		Activity: toActivityView(*activity),
		Points:   toTrackPointViews(points),
	})
}

func (h *Handler) exportTrack(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity(w, r, auth.ScopeTracksRead)
	if !ok {
		return
	}
	activity, points, err := h.service.Track(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	data, err := export.TrackParquet(points)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	w.Header().Set("Content-Type", export.ParquetContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", activity.ID+".parquet"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) powerCurve(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity(w, r, auth.ScopeTracksRead)
	if !ok {
		return
	}
	q := newQueryParser(r)
	durations := q.durations("duration")
	top := q.intValue("top")
	if q.err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", q.err.Error())
		return
	}

	activityID := r.PathValue("id")
	curves, err := h.service.ComputePowerCurve(r.Context(), userID, activityID, durations, top)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PowerCurveResponse{ActivityID: activityID, Curves: toPowerCurveViews(curves)})
}

func (h *Handler) heatmap(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity(w, r, auth.ScopeTracksRead)
	if !ok {
		return
	}
	q := newQueryParser(r)
	query := engine.HeatmapQuery{
		ActivityIDs: q.list("activity_id"),
		TypeID:      q.optionalInt("type_id"),
		SubTypeID:   q.optionalInt("sub_type_id"),
		Year:        q.optionalInt("year"),
		Month:       q.optionalInt("month"),
		Limit:       q.intValue("limit"),
		CellSize:    q.floatValue("cell_size"),
	}
	if q.err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", q.err.Error())
		return
	}

	cells, err := h.service.ComputeHeatmap(r.Context(), userID, query)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if cells == nil {
		cells = []heatmap.Cell{}
	}
	cellSize := query.CellSize
	if cellSize == 0 {
		cellSize = h.service.Config().HeatmapCellSize
	}
	writeJSON(w, http.StatusOK, HeatmapResponse{CellSize: cellSize, Cells: cells})
}

func (h *Handler) locationMatches(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity(w, r, auth.ScopeTracksRead)
	if !ok {
		return
	}
	q := newQueryParser(r)
	locFilter := domain.LocationFilter{
		TypeID:    q.optionalInt("location_type_id"),
		SubTypeID: q.optionalInt("location_sub_type_id"),
	}
	actFilter := domain.ActivityFilter{
		TypeID:    q.optionalInt("activity_type_id"),
		SubTypeID: q.optionalInt("activity_sub_type_id"),
	}
	threshold := q.floatValue("threshold")
	if q.err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", q.err.Error())
		return
	}

	matches, err := h.service.MatchLocationsToTracks(r.Context(), userID, locFilter, actFilter, threshold)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if matches == nil {
		matches = []matching.LocationMatch{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

func (h *Handler) tracksNear(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity(w, r, auth.ScopeTracksRead)
	if !ok {
		return
	}
	q := newQueryParser(r)
	lat, lon := q.optionalFloat("lat"), q.optionalFloat("lon")
	radius := q.floatValue("radius")
	if q.err == nil && (lat == nil || lon == nil) {
		q.err = errors.New("lat and lon are required")
	}
	if q.err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", q.err.Error())
		return
	}
	c := domain.Coordinate{Lat: *lat, Lon: *lon}

	matches, err := h.service.MatchPointToTracks(r.Context(), userID, c, radius)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if matches == nil {
		matches = []matching.PointMatch{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

func (h *Handler) calendar(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity(w, r, auth.ScopeTracksRead)
	if !ok {
		return
	}
	q := newQueryParser(r)
	query := engine.CalendarQuery{
		Period:        calendar.Period(strings.ToLower(q.values.Get("period"))),
		PrimaryTypeID: q.optionalInt("type_id"),
	}
	year, week, month := q.optionalInt("year"), q.optionalInt("week"), q.optionalInt("month")
	if q.err == nil && year == nil && (week != nil || month != nil) {
		q.err = errors.New("year must be set when week or month is set")
	}
	if q.err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", q.err.Error())
		return
	}
	if year != nil {
		key := calendar.Key{Year: *year}
		if week != nil {
			key.Week = *week
		}
		if month != nil {
			key.Month = *month
		}
		query.Key = &key
	}

	buckets, err := h.service.AggregateCalendar(r.Context(), userID, query)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CalendarResponse{Buckets: toBucketViews(buckets)})
}

// highlights ranks activities; scope defaults to lifetime.
func (h *Handler) highlights(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity(w, r, auth.ScopeTracksRead)
	if !ok {
		return
	}
	q := newQueryParser(r)
	query := highlights.Query{
		Scope:  highlights.Scope(strings.ToLower(strings.TrimSpace(q.values.Get("scope")))),
		Year:   q.optionalInt("year"),
		TypeID: q.optionalInt("type_id"),
		Top:    q.intValue("top"),
	}
	if query.Scope == "" {
		query.Scope = highlights.ScopeLifetime
	}
	for _, name := range q.list("metric") {
		query.Metrics = append(query.Metrics, highlights.Metric(name))
	}
	if q.err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", q.err.Error())
		return
	}

	ranked, err := h.service.RankHighlights(r.Context(), userID, query)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if ranked == nil {
		ranked = []highlights.Highlight{}
	}
	writeJSON(w, http.StatusOK, HighlightsResponse{Scope: query.Scope, Highlights: ranked})
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrMissingIdentity):
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
