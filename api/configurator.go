package api

import (
	"net/http"

	"github.com/oxhq/varix/engine"
)

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	var query engine.OptionsQuery
	if err := decodeJSON(r, &query); err != nil {
		s.respondError(w, r, err)
		return
	}
	options, err := s.engine.Options(r.Context(), query)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, orEmpty(options))
}

func (s *Server) handleOptionsSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TargetLevel int                `json:"target_level"`
		Selections  []engine.Selection `json:"previous_selections"`
		GroupFilter string             `json:"group_filter"`
		Pattern     *int               `json:"pattern"`
		CodePrefix  string             `json:"code_prefix"`
		LabelSearch string             `json:"label_search"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	query := engine.OptionsQuery{
		TargetLevel: req.TargetLevel,
		Selections:  req.Selections,
		GroupFilter: req.GroupFilter,
	}
	filter := engine.SearchFilter{
		Pattern:     req.Pattern,
		CodePrefix:  req.CodePrefix,
		LabelSearch: req.LabelSearch,
	}
	options, err := s.engine.OptionsWithSearch(r.Context(), query, filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, orEmpty(options))
}

func (s *Server) handleDerivedGroupName(w http.ResponseWriter, r *http.Request) {
	var query engine.OptionsQuery
	if err := decodeJSON(r, &query); err != nil {
		s.respondError(w, r, err)
		return
	}
	derived, err := s.engine.DerivedGroupName(r.Context(), query.Selections)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, derived)
}

func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.Decode(r.Context(), r.PathValue("code"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, result)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.Check(r.Context(), r.PathValue("code"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, result)
}

func (s *Server) handleSearchCode(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	occurrences, err := s.store.SearchCodeOccurrences(r.Context(), code)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"exists":      len(occurrences) > 0,
		"code":        code,
		"occurrences": orEmpty(occurrences),
	})
}

func (s *Server) handleConstraintsForLevel(w http.ResponseWriter, r *http.Request) {
	level, err := pathInt(r, "level")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	constraints, err := s.store.ConstraintsForLevel(r.Context(), level)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, orEmpty(constraints))
}

func (s *Server) handleValidateCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code       string         `json:"code"`
		Level      int            `json:"level"`
		Selections map[int]string `json:"previous_selections"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	result, err := s.engine.ValidateCode(r.Context(), req.Code, req.Level, req.Selections)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, result)
}

func (s *Server) handleFamilySchema(w http.ResponseWriter, r *http.Request) {
	schema, err := s.engine.FamilySchemaVisualization(r.Context(), r.PathValue("code"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, schema)
}
