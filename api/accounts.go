package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/oxhq/varix/auth"
	"github.com/oxhq/varix/fault"
	"github.com/oxhq/varix/store"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	user, err := s.store.UserByUsername(r.Context(), req.Username)
	if fault.IsKind(err, fault.NotFound) {
		s.respondError(w, r, fault.New(fault.Unauthorized, "Incorrect username or password"))
		return
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if !user.IsActive {
		s.respondError(w, r, fault.New(fault.Forbidden, "User account is disabled"))
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		s.respondError(w, r, fault.New(fault.Unauthorized, "Incorrect username or password"))
		return
	}

	token, err := s.auth.Issue(user)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.store.TouchLastLogin(r.Context(), user.ID); err != nil {
		s.log.Warn("record last login", zap.Uint("user_id", user.ID), zap.Error(err))
	}
	s.respond(w, http.StatusOK, map[string]string{
		"access_token": token,
		"token_type":   "bearer",
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.UserByID(r.Context(), claimsFrom(r).UserID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, user)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token, ok := auth.BearerToken(r.Header.Get("Authorization")); ok {
		s.auth.Revoke(token)
	}
	s.respond(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	user, err := s.store.UserByID(r.Context(), claimsFrom(r).UserID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.OldPassword) {
		s.respondError(w, r, fault.New(fault.Validation, "Incorrect old password"))
		return
	}
	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.store.SetPassword(r.Context(), user.ID, hash); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"message": "Password changed successfully"})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, orEmpty(users))
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.Role == "" {
		req.Role = "user"
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	user, err := s.store.CreateUser(r.Context(), req.Username, req.Email, hash, req.Role)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{
		"message":  "User created successfully",
		"username": user.Username,
		"role":     user.Role,
	})
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var flags store.UserFlags
	if err := decodeJSON(r, &flags); err != nil {
		s.respondError(w, r, err)
		return
	}
	user, err := s.store.UpdateUserFlags(r.Context(), userID, flags)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, user)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	username, err := s.store.DeleteUser(r.Context(), userID, claimsFrom(r).UserID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{
		"message":  "User deleted successfully",
		"username": username,
	})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var req struct {
		NewPassword string `json:"new_password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.store.ResetPassword(r.Context(), userID, hash); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{
		"message": "Password reset, change required on next login",
	})
}
