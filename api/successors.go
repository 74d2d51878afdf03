package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/oxhq/varix/engine"
	"github.com/oxhq/varix/fault"
	"github.com/oxhq/varix/store"
)

// successorResponse flattens a warning under the has_successor flag.
type successorResponse struct {
	HasSuccessor bool `json:"has_successor"`
	*store.SuccessorWarning
}

func (s *Server) handleNodeSuccessor(w http.ResponseWriter, r *http.Request) {
	nodeID, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	warning, err := s.store.ActiveNodeSuccessor(r.Context(), nodeID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if warning == nil {
		s.respond(w, http.StatusOK, successorResponse{HasSuccessor: false})
		return
	}
	s.respond(w, http.StatusOK, successorResponse{HasSuccessor: true, SuccessorWarning: warning})
}

func (s *Server) handleProductSuccessor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code       string             `json:"code"`
		Selections []engine.Selection `json:"selections"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	warning, err := s.engine.ProductSuccessor(r.Context(), req.Code, req.Selections)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if warning == nil {
		s.respond(w, http.StatusOK, successorResponse{HasSuccessor: false})
		return
	}
	s.respond(w, http.StatusOK, successorResponse{HasSuccessor: true, SuccessorWarning: warning})
}

func (s *Server) handleAllSuccessors(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.AllSuccessors(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"successors": orEmpty(rows)})
}

func (s *Server) handleCreateSuccessor(w http.ResponseWriter, r *http.Request) {
	var in store.SuccessorInput
	if err := decodeJSON(r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	successor, err := s.store.CreateSuccessor(r.Context(), in, claimsFrom(r).Subject)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"message": "Successor created successfully",
		"id":      successor.ID,
	})
}

func (s *Server) handleBulkCreateSuccessors(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceNodeIDs []uint `json:"source_node_ids"`
		TargetNodeIDs []uint `json:"target_node_ids"`
		MigrationNote string `json:"migration_note"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	result, err := s.store.BulkCreateSuccessors(r.Context(), req.SourceNodeIDs, req.TargetNodeIDs, req.MigrationNote, claimsFrom(r).Subject)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, result)
}

func (s *Server) handleUpdateSuccessor(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var fields store.UpdateSuccessorFields
	if err := decodeJSON(r, &fields); err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.store.UpdateSuccessor(r.Context(), id, fields); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"message": "Successor updated successfully"})
}

func (s *Server) handleDeleteSuccessor(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.store.DeleteSuccessor(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"message": "Successor deleted successfully"})
}

// handleKmatLookup resolves the reference stored for one configured path.
// The path arrives as a JSON array in a query parameter so the frontend
// can use a plain GET.
func (s *Server) handleKmatLookup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	familyID, err := queryUintPtr(r, "family_id")
	if err != nil || familyID == nil {
		s.respondError(w, r, fault.New(fault.Validation, "query parameter \"family_id\" must be an id"))
		return
	}
	var pathNodeIDs []uint
	if err := json.Unmarshal([]byte(q.Get("path_node_ids")), &pathNodeIDs); err != nil {
		s.respondError(w, r, fault.New(fault.Validation, "path_node_ids must be a JSON array of node ids"))
		return
	}
	ref, err := s.store.KmatReferenceForPath(r.Context(), *familyID, pathNodeIDs)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if ref == nil {
		s.respond(w, http.StatusOK, map[string]bool{"found": false})
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"found":          true,
		"id":             ref.ID,
		"kmat_reference": ref.Reference,
		"full_typecode":  ref.FullTypecode,
		"created_at":     ref.CreatedAt,
		"updated_at":     ref.UpdatedAt,
	})
}

func (s *Server) handleUpsertKmat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FamilyID      uint   `json:"family_id"`
		PathNodeIDs   []uint `json:"path_node_ids"`
		FullTypecode  string `json:"full_typecode"`
		KmatReference string `json:"kmat_reference"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	ref, updated, err := s.store.UpsertKmatReference(r.Context(),
		req.FamilyID, req.PathNodeIDs, req.FullTypecode, req.KmatReference, claimsFrom(r).Subject)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	message := "KMAT Referenz erstellt"
	if updated {
		message = "KMAT Referenz aktualisiert"
	}
	s.respond(w, http.StatusOK, map[string]any{
		"success":        true,
		"id":             ref.ID,
		"kmat_reference": ref.Reference,
		"message":        message,
	})
}

func (s *Server) handleDeleteKmat(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.store.DeleteKmatReference(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("KMAT Referenz %d gelöscht", id),
	})
}
