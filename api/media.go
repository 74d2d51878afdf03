package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/oxhq/varix/fault"
	"github.com/oxhq/varix/models"
	"github.com/oxhq/varix/uploads"
)

// maxUploadBytes bounds the multipart body of an image upload.
const maxUploadBytes = 32 << 20

func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	nodeID, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, r, fault.Wrap(fault.Validation, "invalid multipart form", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, fault.New(fault.Validation, "file field required"))
		return
	}
	defer file.Close()

	ext, err := uploads.ValidateExtension(header.Filename)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	name := uploads.FileName(nodeID, ext, time.Now())
	url, err := s.uploads.Save(name, file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	picture := models.Picture{
		URL:         url,
		Description: optionalForm(r, "description"),
		UploadedAt:  time.Now().Format(time.RFC3339),
	}
	if err := s.store.AddPicture(r.Context(), nodeID, picture); err != nil {
		// The file must not outlive a failed database write.
		if rmErr := s.uploads.Remove(name); rmErr != nil {
			s.log.Warn("remove orphaned upload", zap.String("file", name), zap.Error(rmErr))
		}
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, picture)
}

func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	nodeID, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	filename := r.PathValue("file")
	// Database first. A file with no row is cleaned up by sweep, a row
	// with no file would keep resurfacing in the UI.
	if err := s.store.RemovePicture(r.Context(), nodeID, "/uploads/"+filename); err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.uploads.Remove(filename); err != nil {
		s.log.Warn("remove image file", zap.String("file", filename), zap.Error(err))
	}
	s.respond(w, http.StatusOK, map[string]string{
		"message":  "Bild erfolgreich gelöscht",
		"filename": filename,
	})
}

func (s *Server) handleAddLink(w http.ResponseWriter, r *http.Request) {
	nodeID, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	url, title := r.FormValue("url"), r.FormValue("title")
	if url == "" || title == "" {
		s.respondError(w, r, fault.New(fault.Validation, "url and title are required"))
		return
	}
	link := models.Link{
		URL:         url,
		Title:       title,
		Description: optionalForm(r, "description"),
		AddedAt:     time.Now().Format(time.RFC3339),
	}
	if err := s.store.AddLink(r.Context(), nodeID, link); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, link)
}

func (s *Server) handleDeleteLink(w http.ResponseWriter, r *http.Request) {
	nodeID, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	url := r.URL.Query().Get("url")
	if err := s.store.RemoveLink(r.Context(), nodeID, url); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{
		"message": "Link erfolgreich gelöscht",
		"url":     url,
	})
}

func optionalForm(r *http.Request, name string) *string {
	if v := r.FormValue(name); v != "" {
		return &v
	}
	return nil
}
