package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shaiso/orders/internal/domain"
	"github.com/shaiso/orders/internal/repo"
)

// Register регистрирует пользователя.
// POST /register/
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	email, err := domain.NormalizeEmail(req.Email)
	if err != nil {
		ValidationError(w, err)
		return
	}
	if err := domain.ValidatePassword(req.Password); err != nil {
		ValidationError(w, err)
		return
	}

	hashed, err := h.passwords.Hash(req.Password)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	user, err := h.users.Create(r.Context(), email, hashed)
	if errors.Is(err, repo.ErrAlreadyExists) {
		Unauthorized(w, "A user with this email is already registered")
		return
	}
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("user registered", "user_id", user.ID)
	Created(w, StatusResponse{Status: "User with email " + user.Email + " successfully added"})
}

// Login выдаёт access-токен по email и паролю (form: username, password).
// POST /token
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		BadRequest(w, "invalid form")
		return
	}
	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	if username == "" || password == "" {
		ValidationError(w, errors.New("username and password are required"))
		return
	}

	email, err := domain.NormalizeEmail(username)
	if err != nil {
		Unauthorized(w, "There is no user with this email")
		return
	}

	user, err := h.users.GetByEmail(r.Context(), email)
	if errors.Is(err, repo.ErrNotFound) {
		Unauthorized(w, "There is no user with this email")
		return
	}
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	ok, err := h.passwords.Verify(password, user.HashedPassword)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}
	if !ok {
		Unauthorized(w, "Invalid password")
		return
	}

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Success(w, TokenResponse{AccessToken: token, TokenType: "bearer"})
}
