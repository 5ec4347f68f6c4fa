package api

import (
	"net/http"
	"strconv"
	"time"
)

// VipCandidate is the wire representation of one ranked contact
type VipCandidate struct {
	ContactHash     string     `json:"contactHash"`
	EmailDomain     string     `json:"emailDomain"`
	Rank            int        `json:"rank"`
	Score           float64    `json:"score"`
	ConfidenceScore float64    `json:"confidenceScore"`
	SharedInbox     bool       `json:"sharedInbox"`
	ManualAdded     bool       `json:"manualAdded"`
	EmailCount      int        `json:"emailCount"`
	MeetingCount    int        `json:"meetingCount"`
	ReplyRate       float64    `json:"replyRate"`
	LastContactAt   *time.Time `json:"lastContactAt,omitempty"`
}

// handleListVips handles GET /api/onboarding/vips
func (s *Server) handleListVips(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "limit must be an integer", nil)
			return
		}
		limit = parsed
	}

	ranked, err := s.scoring.ListVips(r.Context(), userID, limit)
	if err != nil {
		respondCategorizedError(w, err)
		return
	}

	candidates := make([]VipCandidate, 0, len(ranked))
	for _, rc := range ranked {
		c := rc.Contact
		candidates = append(candidates, VipCandidate{
			ContactHash:     c.ContactHash,
			EmailDomain:     c.EmailDomain,
			Rank:            rc.Rank,
			Score:           rc.Score,
			ConfidenceScore: c.ConfidenceScore,
			SharedInbox:     c.IsSharedInbox,
			ManualAdded:     c.ManualAdded,
			EmailCount:      c.TotalEmailCount(),
			MeetingCount:    c.MeetingCount,
			ReplyRate:       c.ReplyRate,
			LastContactAt:   c.LastContactAt,
		})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"vips":  candidates,
		"count": len(candidates),
	})
}

// SaveSelectionRequest is the body of POST /api/onboarding/vips/selection
type SaveSelectionRequest struct {
	ContactHashes []string `json:"contactHashes"`
}

// handleSaveSelection handles POST /api/onboarding/vips/selection
func (s *Server) handleSaveSelection(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req SaveSelectionRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	if err := s.scoring.SaveSelection(r.Context(), userID, req.ContactHashes); err != nil {
		respondCategorizedError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SelectionEntry is the wire representation of one saved VIP
type SelectionEntry struct {
	ContactHash string    `json:"contactHash"`
	Rank        int       `json:"rank"`
	SelectedAt  time.Time `json:"selectedAt"`
}

// handleGetSelection handles GET /api/onboarding/vips/selection
func (s *Server) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	entries, err := s.scoring.GetSelection(r.Context(), userID)
	if err != nil {
		respondCategorizedError(w, err)
		return
	}

	selection := make([]SelectionEntry, 0, len(entries))
	for _, entry := range entries {
		selection = append(selection, SelectionEntry{
			ContactHash: entry.ContactHash,
			Rank:        entry.Rank,
			SelectedAt:  entry.SelectedAt,
		})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"selection": selection,
		"count":     len(selection),
	})
}

// AddManualContactRequest is the body of POST /api/onboarding/vips/manual
type AddManualContactRequest struct {
	Email string `json:"email"`
}

// handleAddManualContact handles POST /api/onboarding/vips/manual.
// The raw address in the request body is hashed inside the service and never
// stored or logged.
func (s *Server) handleAddManualContact(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req AddManualContactRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	contactHash, err := s.scoring.AddManualContact(r.Context(), userID, req.Email)
	if err != nil {
		respondCategorizedError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"contactHash": contactHash,
	})
}
