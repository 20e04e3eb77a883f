package importer

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/graphium/importsvc/internal/auth"
	"github.com/graphium/importsvc/internal/domain"

	"github.com/google/uuid"
)

// Handler is the thin JSON binding over the operation surface. It resolves
// the Actor from request headers set by the authenticating proxy and carries
// no business logic of its own.
type Handler struct {
	service *Service
	mux     *http.ServeMux
}

// NewHTTPHandler wires the operation surface onto an http.ServeMux.
func NewHTTPHandler(service *Service) http.Handler {
	h := &Handler{service: service, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /batches", h.createBatch)
	h.mux.HandleFunc("GET /batches", h.listBatches)
	h.mux.HandleFunc("GET /batches/{guid}", h.getBatch)
	h.mux.HandleFunc("GET /batches/{guid}/records", h.listRecords)
	h.mux.HandleFunc("GET /batches/{guid}/events", h.listEvents)
	h.mux.HandleFunc("POST /batches/{guid}/facility", h.setFacility)
	h.mux.HandleFunc("POST /batches/{guid}/assign", h.assignBatch)
	h.mux.HandleFunc("POST /batches/{guid}/open", h.openBatch)
	h.mux.HandleFunc("POST /batches/{guid}/status", h.setBatchStatus)
	h.mux.HandleFunc("POST /batches/{guid}/template", h.setTemplate)
	h.mux.HandleFunc("POST /batches/{guid}/discard", h.discardBatch)
	h.mux.HandleFunc("POST /batches/{guid}/regenerate", h.regenerateBatch)
	h.mux.HandleFunc("POST /batches/{guid}/ignore-pending-review", h.ignoreAllPendingReview)
	h.mux.HandleFunc("POST /batches/{guid}/reprocess", h.reprocessBatch)
	h.mux.HandleFunc("POST /batches/{guid}/records/merge", h.mergeRecords)
	h.mux.HandleFunc("GET /batches/{guid}/records/{index}", h.openRecord)
	h.mux.HandleFunc("POST /batches/{guid}/records/{index}/data-entry", h.saveDataEntry)
	h.mux.HandleFunc("POST /batches/{guid}/records/{index}/status", h.setRecordStatus)
	h.mux.HandleFunc("POST /batches/{guid}/records/{index}/discard", h.discardRecord)
	h.mux.HandleFunc("POST /batches/{guid}/records/{index}/undiscard", h.undiscardRecord)
	h.mux.HandleFunc("POST /batches/{guid}/records/{index}/ignore", h.ignoreRecord)
	h.mux.HandleFunc("POST /batches/{guid}/records/{index}/unignore", h.unignoreRecord)
	h.mux.HandleFunc("POST /batches/{guid}/records/{index}/reprocess", h.reprocessRecord)
	h.mux.HandleFunc("POST /batches/{guid}/records/{index}/notes", h.addNote)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) createBatch(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req CreateBatchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	batch, records, err := h.service.CreateBatch(r.Context(), actor, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"batch": batch, "records": records})
}

func (h *Handler) listBatches(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var statuses []domain.BatchStatus
	for _, raw := range strings.Split(r.URL.Query().Get("status"), ",") {
		if raw = strings.TrimSpace(raw); raw != "" {
			statuses = append(statuses, domain.BatchStatus(raw))
		}
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	batches, err := h.service.ListBatches(r.Context(), actor, statuses, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batches)
}

func (h *Handler) getBatch(w http.ResponseWriter, r *http.Request) {
	actor, guid, ok := h.actorAndGUID(w, r)
	if !ok {
		return
	}
	batch, err := h.service.GetBatch(r.Context(), actor, guid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request) {
	actor, guid, ok := h.actorAndGUID(w, r)
	if !ok {
		return
	}
	records, err := h.service.ListRecords(r.Context(), actor, guid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	actor, guid, ok := h.actorAndGUID(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	events, err := h.service.ListEvents(r.Context(), actor, guid, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) setFacility(w http.ResponseWriter, r *http.Request) {
	actor, guid, ok := h.actorAndGUID(w, r)
	if !ok {
		return
	}
	var body struct {
		FacilityID int64 `json:"facilityId"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	batch, err := h.service.SetBatchFacility(r.Context(), actor, guid, body.FacilityID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (h *Handler) assignBatch(w http.ResponseWriter, r *http.Request) {
	actor, guid, ok := h.actorAndGUID(w, r)
	if !ok {
		return
	}
	var body struct {
		UserName string `json:"userName"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	batch, err := h.service.AssignBatch(r.Context(), actor, guid, body.UserName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (h *Handler) openBatch(w http.ResponseWriter, r *http.Request) {
	actor, guid, ok := h.actorAndGUID(w, r)
	if !ok {
		return
	}
	var body struct {
		ForUser string `json:"forUser"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	batch, err := h.service.OpenBatch(r.Context(), actor, guid, body.ForUser)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (h *Handler) setBatchStatus(w http.ResponseWriter, r *http.Request) {
	actor, guid, ok := h.actorAndGUID(w, r)
	if !ok {
		return
	}
	var body struct {
		Status domain.BatchStatus `json:"status"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	batch, err := h.service.SetBatchProcessingStatus(r.Context(), actor, guid, body.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (h *Handler) setTemplate(w http.ResponseWriter, r *http.Request) {
	actor, guid, ok := h.actorAndGUID(w, r)
	if !ok {
		return
	}
	var body struct {
		TemplateGUID string `json:"templateGuid"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	batch, err := h.service.SetBatchTemplate(r.Context(), actor, guid, body.TemplateGUID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (h *Handler) discardBatch(w http.ResponseWriter, r *http.Request) {
	actor, guid, ok := h.actorAndGUID(w, r)
	if !ok {
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	batch, err := h.service.DiscardBatch(r.Context(), actor, guid, body.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (h *Handler) regenerateBatch(w http.ResponseWriter, r *http.Request) {
	actor, guid, ok := h.actorAndGUID(w, r)
	if !ok {
		return
	}
	batch, err := h.service.RegenerateBatch(r.Context(), actor, guid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (h *Handler) ignoreAllPendingReview(w http.ResponseWriter, r *http.Request) {
	actor, guid, ok := h.actorAndGUID(w, r)
	if !ok {
		return
	}
	records, err := h.service.IgnoreAllPendingReview(r.Context(), actor, guid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) reprocessBatch(w http.ResponseWriter, r *http.Request) {
	actor, guid, ok := h.actorAndGUID(w, r)
	if !ok {
		return
	}
	var selection ReprocessSelection
	if !decodeBody(w, r, &selection) {
		return
	}
	summary, err := h.service.ReprocessBatch(r.Context(), actor, guid, selection)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) mergeRecords(w http.ResponseWriter, r *http.Request) {
	actor, guid, ok := h.actorAndGUID(w, r)
	if !ok {
		return
	}
	var body struct {
		Indices []int `json:"indices"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	result, err := h.service.MergeRecords(r.Context(), actor, guid, body.Indices)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) openRecord(w http.ResponseWriter, r *http.Request) {
	actor, guid, index, ok := h.recordScope(w, r)
	if !ok {
		return
	}
	record, err := h.service.OpenRecord(r.Context(), actor, guid, index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) saveDataEntry(w http.ResponseWriter, r *http.Request) {
	actor, guid, index, ok := h.recordScope(w, r)
	if !ok {
		return
	}
	var payload domain.DataEntryPayload
	if !decodeBody(w, r, &payload) {
		return
	}
	record, err := h.service.SaveDataEntry(r.Context(), actor, guid, index, payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) setRecordStatus(w http.ResponseWriter, r *http.Request) {
	actor, guid, index, ok := h.recordScope(w, r)
	if !ok {
		return
	}
	var body struct {
		Status domain.RecordStatus `json:"status"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	record, err := h.service.SetRecordProcessingStatus(r.Context(), actor, guid, index, body.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) discardRecord(w http.ResponseWriter, r *http.Request) {
	actor, guid, index, ok := h.recordScope(w, r)
	if !ok {
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	record, err := h.service.DiscardRecord(r.Context(), actor, guid, index, body.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) undiscardRecord(w http.ResponseWriter, r *http.Request) {
	actor, guid, index, ok := h.recordScope(w, r)
	if !ok {
		return
	}
	record, err := h.service.UndiscardRecord(r.Context(), actor, guid, index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) ignoreRecord(w http.ResponseWriter, r *http.Request) {
	actor, guid, index, ok := h.recordScope(w, r)
	if !ok {
		return
	}
	record, err := h.service.IgnoreRecord(r.Context(), actor, guid, index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) unignoreRecord(w http.ResponseWriter, r *http.Request) {
	actor, guid, index, ok := h.recordScope(w, r)
	if !ok {
		return
	}
	record, err := h.service.UnignoreRecord(r.Context(), actor, guid, index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) reprocessRecord(w http.ResponseWriter, r *http.Request) {
	actor, guid, index, ok := h.recordScope(w, r)
	if !ok {
		return
	}
	record, err := h.service.ReprocessRecord(r.Context(), actor, guid, index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) addNote(w http.ResponseWriter, r *http.Request) {
	actor, guid, index, ok := h.recordScope(w, r)
	if !ok {
		return
	}
	var body struct {
		Text string `json:"text"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	record, err := h.service.AddRecordNote(r.Context(), actor, guid, index, body.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	if actor, ok := auth.ActorFromContext(r.Context()); ok {
		return actor, true
	}
	// Fall back to the headers so the handler works without the
	// authentication middleware in front of it.
	actor, err := auth.ActorFromRequest(r)
	if err != nil {
		writeError(w, err)
		return domain.Actor{}, false
	}
	return actor, true
}

func (h *Handler) actorAndGUID(w http.ResponseWriter, r *http.Request) (domain.Actor, uuid.UUID, bool) {
	actor, ok := h.actor(w, r)
	if !ok {
		return domain.Actor{}, uuid.Nil, false
	}
	guid, err := uuid.Parse(r.PathValue("guid"))
	if err != nil {
		http.Error(w, "invalid batch guid", http.StatusBadRequest)
		return domain.Actor{}, uuid.Nil, false
	}
	return actor, guid, true
}

func (h *Handler) recordScope(w http.ResponseWriter, r *http.Request) (domain.Actor, uuid.UUID, int, bool) {
	actor, guid, ok := h.actorAndGUID(w, r)
	if !ok {
		return domain.Actor{}, uuid.Nil, 0, false
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 0 {
		http.Error(w, "invalid record index", http.StatusBadRequest)
		return domain.Actor{}, uuid.Nil, 0, false
	}
	return actor, guid, index, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var (
		validationErr    *domain.ValidationError
		authorizationErr *domain.AuthorizationError
		notFoundErr      *domain.NotFoundError
		auditErr         *domain.AuditWriteError
	)
	switch {
	case errors.As(err, &validationErr):
		status = http.StatusBadRequest
	case errors.As(err, &authorizationErr):
		status = http.StatusForbidden
	case errors.As(err, &notFoundErr):
		status = http.StatusNotFound
	case errors.As(err, &auditErr):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
