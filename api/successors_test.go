package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuccessorLifecycle(t *testing.T) {
	s := newTestServer(t)
	f := seedPumps(t, s)
	admin := adminToken(t, s)

	rec := do(t, s, http.MethodPost, "/api/admin/successors", admin, map[string]any{
		"source_node_id": f.z9.ID,
		"source_type":    "node",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	_, message := faultOf(t, rec)
	assert.Equal(t, "either target_node_id or target_full_code must be provided", message)

	rec = do(t, s, http.MethodPost, "/api/admin/successors", admin, map[string]any{
		"source_node_id":      f.z9.ID,
		"source_type":         "node",
		"target_node_id":      f.x1.ID,
		"replacement_type":    "successor",
		"migration_note":      "Durch die HP-Baureihe ersetzt",
		"show_warning":        true,
		"allow_old_selection": true,
		"warning_severity":    "warning",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeMap(t, rec)
	assert.Equal(t, "Successor created successfully", body["message"])
	id := uint(body["id"].(float64))

	// The node lookup fills in the target's codes, with the family code
	// derived from the target's root.
	rec = do(t, s, http.MethodGet, fmt.Sprintf("/api/node/%d/successor", f.z9.ID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	warning := decodeMap(t, rec)
	assert.Equal(t, true, warning["has_successor"])
	assert.Equal(t, "X1", warning["target_code"])
	assert.Equal(t, "HP A12-X1", warning["target_full_code"])
	assert.Equal(t, "HP", warning["target_family_code"])
	assert.Equal(t, "warning", warning["warning_severity"])
	assert.Equal(t, true, warning["allow_old_selection"])

	// A node without a link answers with the bare flag.
	rec = do(t, s, http.MethodGet, fmt.Sprintf("/api/node/%d/successor", f.b30.ID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"has_successor": false}`, rec.Body.String())

	// Product lookups resolve the code to its node first.
	rec = do(t, s, http.MethodPost, "/api/product/successor", "", map[string]any{
		"code": "GP A12-K1-Z9",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeMap(t, rec)["has_successor"])

	rec = do(t, s, http.MethodPost, "/api/product/successor", "", map[string]any{
		"selections": []map[string]any{{"level": 3, "code": "Z9", "id": f.z9.ID}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeMap(t, rec)["has_successor"])

	rec = do(t, s, http.MethodPost, "/api/product/successor", "", map[string]any{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	_, message = faultOf(t, rec)
	assert.Equal(t, "either 'code' or 'selections' required", message)

	rec = do(t, s, http.MethodGet, "/api/admin/successors", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Successors []struct {
			ID               uint    `json:"id"`
			SourceCode       *string `json:"source_code"`
			SourceFamilyCode *string `json:"source_family_code"`
			TargetCode       *string `json:"target_code"`
			CreatedBy        string  `json:"created_by"`
		} `json:"successors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Len(t, listing.Successors, 1)
	row := listing.Successors[0]
	assert.Equal(t, id, row.ID)
	require.NotNil(t, row.SourceCode)
	assert.Equal(t, "Z9", *row.SourceCode)
	require.NotNil(t, row.SourceFamilyCode)
	assert.Equal(t, "GP", *row.SourceFamilyCode)
	require.NotNil(t, row.TargetCode)
	assert.Equal(t, "X1", *row.TargetCode)
	assert.Equal(t, testAdminUser, row.CreatedBy)

	rec = do(t, s, http.MethodPut, fmt.Sprintf("/api/admin/successors/%d", id), admin, map[string]any{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	_, message = faultOf(t, rec)
	assert.Equal(t, "no fields to update", message)

	// Switching the warning off hides it from both lookups.
	rec = do(t, s, http.MethodPut, fmt.Sprintf("/api/admin/successors/%d", id), admin, map[string]any{
		"show_warning": false,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Successor updated successfully", decodeMap(t, rec)["message"])

	rec = do(t, s, http.MethodGet, fmt.Sprintf("/api/node/%d/successor", f.z9.ID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"has_successor": false}`, rec.Body.String())

	rec = do(t, s, http.MethodDelete, fmt.Sprintf("/api/admin/successors/%d", id), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Successor deleted successfully", decodeMap(t, rec)["message"])

	rec = do(t, s, http.MethodDelete, fmt.Sprintf("/api/admin/successors/%d", id), admin, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	_, message = faultOf(t, rec)
	assert.Equal(t, "successor not found", message)
}

func TestCreateSuccessorUnknownEnds(t *testing.T) {
	s := newTestServer(t)
	f := seedPumps(t, s)
	admin := adminToken(t, s)

	rec := do(t, s, http.MethodPost, "/api/admin/successors", admin, map[string]any{
		"source_node_id": 99999,
		"source_type":    "node",
		"target_node_id": f.x1.ID,
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
	_, message := faultOf(t, rec)
	assert.Equal(t, "source node not found", message)

	rec = do(t, s, http.MethodPost, "/api/admin/successors", admin, map[string]any{
		"source_node_id": f.z9.ID,
		"source_type":    "node",
		"target_node_id": 99999,
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
	_, message = faultOf(t, rec)
	assert.Equal(t, "target node not found", message)

	// A free-text target needs no node.
	rec = do(t, s, http.MethodPost, "/api/admin/successors", admin, map[string]any{
		"source_node_id":   f.z9.ID,
		"source_type":      "node",
		"target_full_code": "HP A12-X1",
		"show_warning":     true,
		"warning_severity": "info",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodGet, fmt.Sprintf("/api/node/%d/successor", f.z9.ID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	warning := decodeMap(t, rec)
	assert.Equal(t, true, warning["has_successor"])
	assert.Equal(t, "HP A12-X1", warning["target_full_code"])
	assert.Nil(t, warning["target_node_id"])
}

func TestBulkCreateSuccessors(t *testing.T) {
	s := newTestServer(t)
	f := seedPumps(t, s)
	admin := adminToken(t, s)

	rec := do(t, s, http.MethodPost, "/api/admin/successors/bulk", admin, map[string]any{
		"source_node_ids": []uint{},
		"target_node_ids": []uint{f.x1.ID},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	_, message := faultOf(t, rec)
	assert.Equal(t, "source_node_ids cannot be empty", message)

	// Complete typecodes on both sides pair up one to one.
	rec = do(t, s, http.MethodPost, "/api/admin/successors/bulk", admin, map[string]any{
		"source_node_ids": []uint{f.z9.ID},
		"target_node_ids": []uint{f.x1.ID},
		"migration_note":  "Serienwechsel 2026",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeMap(t, rec)
	assert.Equal(t, "links", body["type"])
	assert.EqualValues(t, 1, body["created_count"])
	assert.EqualValues(t, 0, body["skipped_count"])

	// The second run finds the pair already linked.
	rec = do(t, s, http.MethodPost, "/api/admin/successors/bulk", admin, map[string]any{
		"source_node_ids": []uint{f.z9.ID},
		"target_node_ids": []uint{f.x1.ID},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeMap(t, rec)
	assert.EqualValues(t, 0, body["created_count"])
	assert.EqualValues(t, 1, body["skipped_count"])

	// A source without a stored typecode degrades the batch to hints.
	rec = do(t, s, http.MethodPost, "/api/admin/successors/bulk", admin, map[string]any{
		"source_node_ids": []uint{f.b30.ID},
		"target_node_ids": []uint{f.x1.ID, f.k1.ID},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = decodeMap(t, rec)
	assert.Equal(t, "hint", body["type"])
	assert.EqualValues(t, 2, body["created_count"])
	assert.EqualValues(t, 1, body["source_count"])
	assert.EqualValues(t, 2, body["target_count"])

	rec = do(t, s, http.MethodPost, "/api/admin/successors/bulk", admin, map[string]any{
		"source_node_ids": []uint{99999},
		"target_node_ids": []uint{f.x1.ID},
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
	_, message = faultOf(t, rec)
	assert.Equal(t, "no source nodes found with provided ids", message)
}

func TestKmatReferences(t *testing.T) {
	s := newTestServer(t)
	f := seedPumps(t, s)
	admin := adminToken(t, s)

	path := []uint{f.hp.ID, f.a12HP.ID, f.x1.ID}

	input := map[string]any{
		"family_id":      f.hp.ID,
		"path_node_ids":  path,
		"full_typecode":  "HP A12-X1",
		"kmat_reference": "KMAT-100",
	}

	rec := do(t, s, http.MethodPost, "/api/admin/kmat-references", "", input)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/admin/kmat-references", admin, input)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeMap(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "KMAT-100", body["kmat_reference"])
	assert.Equal(t, "KMAT Referenz erstellt", body["message"])
	id := uint(body["id"].(float64))

	// The same path updates in place.
	input["kmat_reference"] = "KMAT-200"
	rec = do(t, s, http.MethodPost, "/api/admin/kmat-references", admin, input)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeMap(t, rec)
	assert.Equal(t, "KMAT Referenz aktualisiert", body["message"])
	assert.EqualValues(t, id, body["id"])

	ids, err := json.Marshal(path)
	require.NoError(t, err)
	rec = do(t, s, http.MethodGet,
		fmt.Sprintf("/api/kmat-references?family_id=%d&path_node_ids=%s", f.hp.ID, url.QueryEscape(string(ids))), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeMap(t, rec)
	assert.Equal(t, true, body["found"])
	assert.Equal(t, "KMAT-200", body["kmat_reference"])
	assert.Equal(t, "HP A12-X1", body["full_typecode"])

	// A different path is a clean miss.
	otherIDs, err := json.Marshal([]uint{f.hp.ID, f.a12HP.ID})
	require.NoError(t, err)
	rec = do(t, s, http.MethodGet,
		fmt.Sprintf("/api/kmat-references?family_id=%d&path_node_ids=%s", f.hp.ID, url.QueryEscape(string(otherIDs))), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"found": false}`, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/api/kmat-references", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	_, message := faultOf(t, rec)
	assert.Equal(t, `query parameter "family_id" must be an id`, message)

	rec = do(t, s, http.MethodGet, fmt.Sprintf("/api/kmat-references?family_id=%d&path_node_ids=abc", f.hp.ID), "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	_, message = faultOf(t, rec)
	assert.Equal(t, "path_node_ids must be a JSON array of node ids", message)

	rec = do(t, s, http.MethodDelete, fmt.Sprintf("/api/admin/kmat-references/%d", id), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, fmt.Sprintf("KMAT Referenz %d gelöscht", id), decodeMap(t, rec)["message"])

	rec = do(t, s, http.MethodDelete, fmt.Sprintf("/api/admin/kmat-references/%d", id), admin, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	_, message = faultOf(t, rec)
	assert.Equal(t, fmt.Sprintf("kmat reference %d not found", id), message)
}
