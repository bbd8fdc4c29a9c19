package handlers

import (
	"errors"
	"net/http"

	validatorv10 "github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"guildgate-backend/internal/apperr"
	"guildgate-backend/internal/models"
	"guildgate-backend/internal/validator"
)

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	type Registration struct {
		Email           string `json:"email" validate:"required,email,max=64"`
		UserName        string `json:"userName" validate:"required,alphanum,min=3,max=32"`
		DisplayName     string `json:"displayName" validate:"required,max=64"`
		Password        string `json:"password" validate:"eqfield=ConfirmPassword"`
		ConfirmPassword string `json:"confirmPassword"`
	}

	var registration Registration
	if !h.decodeBody(w, r, &registration) {
		return
	}

	fieldErrors := make(map[string]string)
	if err := h.validate.Struct(registration); err != nil {
		var validateErrs validatorv10.ValidationErrors
		if errors.As(err, &validateErrs) {
			for _, e := range validateErrs {
				fieldErrors[e.Field()] = e.Tag()
			}
		} else {
			h.sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}
	}
	if err := validator.Password(registration.Password); err != nil {
		fieldErrors["Password"] = err.Error()
	}
	if len(fieldErrors) != 0 {
		h.httpError(w, &apperr.FieldErrors{Fields: fieldErrors})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(registration.Password), 12)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	id, err := h.generator.Generate()
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	account := models.Account{
		ID:            id,
		Email:         registration.Email,
		UserName:      registration.UserName,
		DisplayName:   registration.DisplayName,
		DefaultStatus: "online",
		Password:      hash,
	}
	if err := h.store.CreateAccount(r.Context(), account); err != nil {
		// most likely a duplicate email or username
		h.sugar.Debug(err)
		h.httpError(w, &apperr.FieldErrors{Fields: map[string]string{"Email": "taken"}})
		return
	}

	w.WriteHeader(http.StatusCreated)
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	type Login struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	var login Login
	if !h.decodeBody(w, r, &login) {
		return
	}

	account, err := h.store.AccountByEmail(r.Context(), login.Email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			h.sugar.Debug(err)
			http.Error(w, "", http.StatusUnauthorized)
		} else {
			h.sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
		}
		return
	}

	if err := bcrypt.CompareHashAndPassword(account.Password, []byte(login.Password)); err != nil {
		h.sugar.Debug(err)
		http.Error(w, "", http.StatusUnauthorized)
		return
	}

	cookie, raw, err := h.signer.CreateToken(r.URL.Query().Get("rememberMe") == "true", account.ID)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &cookie)
	// the raw token doubles as the websocket handshake credential
	h.writeJSON(w, map[string]string{"token": raw})
}
