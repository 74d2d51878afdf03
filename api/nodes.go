package api

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/oxhq/varix/fault"
	"github.com/oxhq/varix/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	info, err := s.store.Health(r.Context())
	if err != nil {
		s.log.Error("health check failed", zap.Error(err))
		s.respond(w, http.StatusServiceUnavailable, map[string]any{
			"status":   "unhealthy",
			"database": "disconnected",
		})
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"database":    "connected",
		"total_nodes": info.TotalNodes,
		"total_paths": info.TotalPaths,
	})
}

func (s *Server) handleFamilies(w http.ResponseWriter, r *http.Request) {
	families, err := s.store.Families(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, orEmpty(families))
}

func (s *Server) handleFamilyGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.store.FamilyGroups(r.Context(), r.PathValue("code"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, orEmpty(groups))
}

func (s *Server) handleGroupMaxLevel(w http.ResponseWriter, r *http.Request) {
	level, err := s.store.GroupMaxLevel(r.Context(), r.PathValue("code"), r.PathValue("group"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]int{"max_level": level})
}

func (s *Server) handleSuggestCodes(w http.ResponseWriter, r *http.Request) {
	level, err := queryInt(r, "level")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	q := r.URL.Query()
	suggestions, err := s.store.SuggestCodes(r.Context(), q.Get("partial"), q.Get("family_code"), level, queryIntOr(r, "limit", 50))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string][]string{"suggestions": orEmpty(suggestions)})
}

func (s *Server) handleCheckCodeExists(w http.ResponseWriter, r *http.Request) {
	level, err := queryInt(r, "level")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	parentID, err := queryUintPtr(r, "parent_id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	q := r.URL.Query()
	count, err := s.store.CodeCountAt(r.Context(), q.Get("code"), q.Get("family_code"), level, parentID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]bool{"exists": count > 0})
}

func (s *Server) handleCodeHints(w http.ResponseWriter, r *http.Request) {
	nodeID, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	hints, err := s.store.CodeHints(r.Context(), nodeID, r.PathValue("partial"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"hints": orEmpty(hints)})
}

func (s *Server) handleAutocomplete(w http.ResponseWriter, r *http.Request) {
	level, err := queryIntPtr(r, "level")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	q := r.URL.Query()
	entries, err := s.store.Autocomplete(r.Context(), level, q.Get("search"), q.Get("family"), queryIntOr(r, "limit", 1000))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, orEmpty(entries))
}

func (s *Server) handleAdvancedSearch(w http.ResponseWriter, r *http.Request) {
	level, err := queryInt(r, "level")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	pattern, err := queryIntPtr(r, "pattern")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	q := r.URL.Query()
	query := store.SearchQuery{
		Level:   level,
		Pattern: pattern,
		Prefix:  q.Get("prefix"),
		Postfix: q.Get("postfix"),
		Label:   q.Get("label"),
		Family:  q.Get("family"),
	}
	rows, err := s.store.AdvancedSearch(r.Context(), query)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	type searchOption struct {
		store.SearchRow
		IsCompatible bool `json:"is_compatible"`
	}
	options := make([]searchOption, len(rows))
	for i, row := range rows {
		options[i] = searchOption{SearchRow: row, IsCompatible: true}
	}
	s.respond(w, http.StatusOK, map[string]any{
		"level": level,
		"count": len(options),
		"filters_applied": map[string]any{
			"pattern": pattern,
			"prefix":  nullable(query.Prefix),
			"postfix": nullable(query.Postfix),
			"label":   nullable(query.Label),
			"family":  nullable(query.Family),
		},
		"options": options,
	})
}

func (s *Server) handleNodeIDsByCodeLevel(w http.ResponseWriter, r *http.Request) {
	level, err := pathInt(r, "level")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	code := r.PathValue("code")
	ids, err := s.store.NodeIDsByCodeLevel(r.Context(), code, level)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"code":  code,
		"level": level,
		"ids":   orEmpty(ids),
		"count": len(ids),
	})
}

// handleFindNodeByPath resolves a node through its ancestor chain. A
// broken path is a regular answer for the caller, not an error, so the
// response is always 200 with a found flag.
func (s *Server) handleFindNodeByPath(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code        string   `json:"code"`
		Level       int      `json:"level"`
		FamilyCode  string   `json:"family_code"`
		ParentCodes []string `json:"parent_codes"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	node, err := s.store.FindNodeIDByPath(r.Context(), req.FamilyCode, req.ParentCodes, req.Code, req.Level)
	if fault.IsKind(err, fault.NotFound) {
		s.respond(w, http.StatusOK, map[string]any{
			"found":   false,
			"node_id": nil,
			"message": faultMessage(err),
		})
		return
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"found":   true,
		"node_id": node.ID,
		"node":    node,
	})
}

func (s *Server) handleNodeByCode(w http.ResponseWriter, r *http.Request) {
	node, err := s.store.NodeByCode(r.Context(), r.PathValue("code"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, node)
}

// handleNodeAction serves the per-node sub-resources that share the
// /api/nodes/{code}/... grammar with the typecode routes.
func (s *Server) handleNodeAction(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	switch r.PathValue("action") {
	case "path":
		s.nodePath(w, r, code)
	case "children":
		s.nodeChildren(w, r, code)
	case "max-depth":
		s.nodeMaxDepth(w, r, code)
	case "max-level":
		s.nodeMaxLevel(w, r, code)
	case "subtree-info":
		s.nodeSubtreeInfo(w, r, code)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) nodePath(w http.ResponseWriter, r *http.Request, code string) {
	steps, err := s.store.NodePathByCode(r.Context(), code)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, orEmpty(steps))
}

func (s *Server) nodeChildren(w http.ResponseWriter, r *http.Request, code string) {
	children, err := s.store.ChildrenOfCode(r.Context(), code)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, orEmpty(children))
}

func (s *Server) handleChildrenByID(w http.ResponseWriter, r *http.Request) {
	parentID, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	children, err := s.store.ChildrenOfNodeID(r.Context(), parentID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, orEmpty(children))
}

func (s *Server) nodeMaxDepth(w http.ResponseWriter, r *http.Request, code string) {
	depth, err := s.store.MaxDepthBelowCode(r.Context(), code)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]int{"max_depth": depth})
}

func (s *Server) nodeMaxLevel(w http.ResponseWriter, r *http.Request, code string) {
	level, err := s.store.MaxLevelBelowCode(r.Context(), code, r.URL.Query().Get("family_code"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]int{"max_level": level})
}

func (s *Server) nodeSubtreeInfo(w http.ResponseWriter, r *http.Request, rawID string) {
	id, err := strconv.ParseUint(rawID, 10, 32)
	if err != nil {
		s.respondError(w, r, fault.New(fault.Validation, "invalid node id %q", rawID))
		return
	}
	stats, err := s.store.SubtreeInfo(r.Context(), uint(id))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, stats)
}

func (s *Server) handleSubsegments(w http.ResponseWriter, r *http.Request) {
	level, err := queryIntPtr(r, "level")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	q := r.URL.Query()
	filter := store.SubsegmentFilter{
		FamilyCode: q.Get("family_code"),
		GroupName:  q.Get("group_name"),
		Level:      level,
	}
	entries, err := s.store.Subsegments(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, orEmpty(entries))
}
