package api

import (
	"fmt"
	"net/http"

	"github.com/oxhq/varix/engine"
	"github.com/oxhq/varix/store"
)

func (s *Server) handleCreateFamily(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code    string  `json:"code"`
		Label   string  `json:"label"`
		LabelEN *string `json:"label_en"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	family, err := s.store.CreateFamily(r.Context(), req.Code, req.Label, req.LabelEN)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"success":   true,
		"family_id": family.ID,
		"code":      family.CodeString(),
		"label":     family.Label,
		"label_en":  family.LabelEN,
		"message":   fmt.Sprintf("Produktfamilie '%s' erfolgreich erstellt", family.CodeString()),
	})
}

func (s *Server) handleUpdateFamily(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label   string  `json:"label"`
		LabelEN *string `json:"label_en"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	family, err := s.store.UpdateFamilyLabels(r.Context(), r.PathValue("code"), req.Label, req.LabelEN)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"success":  true,
		"code":     family.CodeString(),
		"label":    family.Label,
		"label_en": family.LabelEN,
		"message":  fmt.Sprintf("Labels für Produktfamilie '%s' erfolgreich aktualisiert", family.CodeString()),
	})
}

func (s *Server) handleDeleteFamily(w http.ResponseWriter, r *http.Request) {
	result, err := s.store.DeleteFamily(r.Context(), r.PathValue("code"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"success":            true,
		"code":               result.Code,
		"deleted_nodes":      result.DeletedNodes,
		"deleted_successors": result.DeletedSuccessors,
		"message":            fmt.Sprintf("Produktfamilie '%s' und %d Nodes erfolgreich gelöscht", result.Code, result.DeletedNodes),
	})
}

func (s *Server) handleFamilyDeletePreview(w http.ResponseWriter, r *http.Request) {
	preview, err := s.store.PreviewFamilyDeletion(r.Context(), r.PathValue("code"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, preview)
}

func (s *Server) handleCreateNode(w http.ResponseWriter, r *http.Request) {
	var in store.NodeInput
	if err := decodeJSON(r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	node, err := s.store.CreateNode(r.Context(), in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"success": true,
		"node_id": node.ID,
		"message": fmt.Sprintf("Node created with ID %d", node.ID),
	})
}

func (s *Server) handleCreateNodeWithChildren(w http.ResponseWriter, r *http.Request) {
	var req struct {
		store.NodeInput
		SourceNodeID uint `json:"source_node_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	result, err := s.store.DeepCopy(r.Context(), req.NodeInput, req.SourceNodeID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"success":       true,
		"node_id":       result.NodeID,
		"nodes_created": result.NodesCreated,
		"message":       fmt.Sprintf("Node created with %d children copied", result.CopiedNodes),
	})
}

func (s *Server) handleUpdateNode(w http.ResponseWriter, r *http.Request) {
	nodeID, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var fields store.UpdateNodeFields
	if err := decodeJSON(r, &fields); err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.store.UpdateNode(r.Context(), nodeID, fields); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Node %d updated successfully", nodeID),
	})
}

func (s *Server) handleBulkUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NodeIDs []uint                 `json:"node_ids"`
		Updates store.BulkUpdateFields `json:"updates"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	count, err := s.store.BulkUpdateNodes(r.Context(), req.NodeIDs, req.Updates)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"success":       true,
		"updated_count": count,
		"message":       fmt.Sprintf("Successfully updated %d nodes", count),
	})
}

func (s *Server) handleBulkFilter(w http.ResponseWriter, r *http.Request) {
	var req engine.BulkFilter
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	result, err := s.engine.BulkFilterNodes(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, result)
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	nodeID, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	result, err := s.store.DeleteNodeCascade(r.Context(), nodeID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"success":              true,
		"node_id":              nodeID,
		"code":                 result.Code,
		"level":                result.Level,
		"nodes_with_same_code": result.NodesWithSameCode,
		"deleted_nodes":        result.DeletedNodes,
		"deleted_successors":   result.DeletedSuccessors,
		"message": fmt.Sprintf("Alle %d Nodes mit Code '%s' (Level %d) und insgesamt %d Nodes erfolgreich gelöscht",
			result.NodesWithSameCode, result.Code, result.Level, result.DeletedNodes),
	})
}

func (s *Server) handleNodeDeletePreview(w http.ResponseWriter, r *http.Request) {
	nodeID, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	preview, err := s.store.PreviewNodeDeletion(r.Context(), nodeID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, preview)
}

func (s *Server) handleCreateConstraint(w http.ResponseWriter, r *http.Request) {
	var in store.ConstraintInput
	if err := decodeJSON(r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	constraint, err := s.store.CreateConstraint(r.Context(), in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, constraint)
}

func (s *Server) handleUpdateConstraint(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var in store.ConstraintInput
	if err := decodeJSON(r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	constraint, err := s.store.UpdateConstraint(r.Context(), id, in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, constraint)
}

func (s *Server) handleDeleteConstraint(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.store.DeleteConstraint(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Constraint %d deleted", id),
	})
}
