package httpapi

import (
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"spacetimekv/internal/event"
	"spacetimekv/internal/replica"
)

// handler exposes a replica's DAG and gate for inspection, and forwards
// Put/Delete authoring requests from the CLI to the underlying replica.
type handler struct {
	r *replica.Replica
}

// eventDTO is the JSON projection of an event.Event: Payload is rendered
// as a tagged {"type": ..., ...fields} object since event.Operation has no
// natural JSON encoding of its own.
type eventDTO struct {
	Hash    string   `json:"hash"`
	Parents []string `json:"parents"`
	Coord   coordDTO `json:"coord"`
	Payload any      `json:"payload"`
}

type coordDTO struct {
	T uint64  `json:"t"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func toDTO(e event.Event) eventDTO {
	parents := make([]string, len(e.Parents))
	for i, p := range e.Parents {
		parents[i] = p.String()
	}
	return eventDTO{
		Hash:    e.Hash.String(),
		Parents: parents,
		Coord: coordDTO{
			T: e.Coords.T, X: e.Coords.X, Y: e.Coords.Y, Z: e.Coords.Z,
		},
		Payload: payloadDTO(e.Payload),
	}
}

func payloadDTO(op event.Operation) any {
	switch v := op.(type) {
	case event.Put:
		return map[string]any{"type": "put", "key": v.Key, "value": v.Value}
	case event.Delete:
		return map[string]any{"type": "delete", "key": v.Key}
	case event.Merge:
		return map[string]any{"type": "merge"}
	case event.Genesis:
		return map[string]any{"type": "genesis"}
	default:
		return map[string]any{"type": "unknown"}
	}
}

// heads handles GET /heads: the current concurrency frontier.
func (h *handler) heads(w http.ResponseWriter, r *http.Request) {
	heads := h.r.DAG().Heads()
	out := make([]string, len(heads))
	for i, hh := range heads {
		out[i] = hh.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{"heads": out})
}

// getEvent handles GET /events/{hash}: a single resident event by its
// hex-encoded hash.
func (h *handler) getEvent(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "hash")
	decoded, err := hex.DecodeString(raw)
	if err != nil || len(decoded) != event.HashSize {
		http.Error(w, "httpapi: malformed hash", http.StatusBadRequest)
		return
	}
	var hash event.Hash
	copy(hash[:], decoded)

	e, ok := h.r.DAG().Get(hash)
	if !ok {
		http.Error(w, "httpapi: event not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toDTO(e))
}

// gatePending handles GET /gate/pending: the count of messages currently
// withheld behind the physics gate's light-cone deadline.
func (h *handler) gatePending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"pending": h.r.Gate().Pending()})
}

// put handles POST /put {"key": ..., "value": ...}: authors a Put event
// and gossips it, mirroring replica.Put.
func (h *handler) put(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key   string `json:"key"`
		Value []byte `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "httpapi: malformed request body", http.StatusBadRequest)
		return
	}
	hash, err := h.r.Put(r.Context(), req.Key, req.Value)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"hash": hash.String()})
}

// delete handles POST /delete {"key": ...}: authors a Delete event and
// gossips it, mirroring replica.Delete.
func (h *handler) delete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "httpapi: malformed request body", http.StatusBadRequest)
		return
	}
	hash, err := h.r.Delete(r.Context(), req.Key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"hash": hash.String()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
