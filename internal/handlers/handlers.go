// Package handlers is the REST side of the gateway: auth, guild and channel
// management, message history. Realtime traffic goes through the websocket;
// everything here is request/response.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"guildgate-backend/internal/apperr"
	"guildgate-backend/internal/crypto"
	"guildgate-backend/internal/ephemeral"
	"guildgate-backend/internal/hub"
	"guildgate-backend/internal/jwt"
	"guildgate-backend/internal/models"
	"guildgate-backend/internal/observability"
	"guildgate-backend/internal/permissions"
	"guildgate-backend/internal/snowflake"
	"guildgate-backend/internal/store"
	"guildgate-backend/internal/voice"
)

// Broadcaster publishes an event to every subscriber of a room.
type Broadcaster interface {
	Broadcast(ctx context.Context, room string, eventType string, data any) error
}

type Handlers struct {
	sugar       *zap.SugaredLogger
	cfg         *models.ConfigFile
	store       *store.Store
	codec       *crypto.Codec
	perms       *permissions.Engine
	signer      *jwt.Signer
	eph         *ephemeral.Store
	hub         *hub.Hub
	voice       *voice.Bridge
	broadcaster Broadcaster
	generator   *snowflake.Generator
	metrics     *observability.Metrics
	registry    *prometheus.Registry
	validate    *validator.Validate
}

func New(
	sugar *zap.SugaredLogger,
	cfg *models.ConfigFile,
	st *store.Store,
	codec *crypto.Codec,
	perms *permissions.Engine,
	signer *jwt.Signer,
	eph *ephemeral.Store,
	gatewayHub *hub.Hub,
	bridge *voice.Bridge,
	broadcaster Broadcaster,
	generator *snowflake.Generator,
	metrics *observability.Metrics,
	registry *prometheus.Registry,
) *Handlers {
	return &Handlers{
		sugar:       sugar,
		cfg:         cfg,
		store:       st,
		codec:       codec,
		perms:       perms,
		signer:      signer,
		eph:         eph,
		hub:         gatewayHub,
		voice:       bridge,
		broadcaster: broadcaster,
		generator:   generator,
		metrics:     metrics,
		registry:    registry,
		validate:    validator.New(),
	}
}

func (h *Handlers) Router() http.Handler {
	r := chi.NewRouter()
	if h.cfg.Cors {
		r.Use(AllowCors)
	}
	if h.cfg.PrintHttpRequests {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/metrics", observability.Handler(h.registry).ServeHTTP)

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.With(h.Authenticator).Get("/isLoggedIn", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
		})

		api.Route("/user", func(r chi.Router) {
			r.Use(h.Authenticator)
			r.Get("/fetch", h.GetAccount)
			r.Post("/update", h.UpdateAccount)
		})

		api.Route("/guild", func(r chi.Router) {
			r.Use(h.Authenticator)
			r.Post("/create", h.CreateGuild)
			r.Get("/fetch", h.GetGuildList)
			r.Post("/rename", h.RenameGuild)
			r.Post("/delete", h.DeleteGuild)
			r.Post("/leave", h.LeaveGuild)
			r.Post("/invite", h.CreateInvite)
			r.Post("/join", h.JoinByInvite)
		})

		api.Route("/channel", func(r chi.Router) {
			r.Use(h.Authenticator)
			r.Post("/create", h.CreateChannel)
			r.Get("/fetch", h.GetChannelList)
			r.Post("/rename", h.RenameChannel)
			r.Post("/delete", h.DeleteChannel)
		})

		api.Route("/message", func(r chi.Router) {
			r.Use(h.Authenticator)
			r.Get("/fetch", h.GetMessageList)
			r.Post("/pin", h.PinMessage)
		})

		api.Route("/members", func(r chi.Router) {
			r.Use(h.Authenticator)
			r.Get("/fetch", h.GetMemberList)
			r.Post("/kick", h.KickMember)
			r.Post("/ban", h.BanMember)
			r.Post("/unban", h.UnbanMember)
		})

		api.Route("/role", func(r chi.Router) {
			r.Use(h.Authenticator)
			r.Post("/create", h.CreateRole)
			r.Get("/fetch", h.GetRoleList)
			r.Post("/update", h.UpdateRole)
			r.Post("/delete", h.DeleteRole)
			r.Post("/assign", h.AssignRole)
			r.Post("/unassign", h.UnassignRole)
		})

		api.Post("/voice/webhook", h.VoiceWebhook)

		api.Get("/ws", h.hub.HandleClient)
	})

	return r
}

func (h *Handlers) writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(value); err != nil {
		h.sugar.Error(err)
	}
}

// httpError translates the error taxonomy to status codes. Internal detail
// stays in the log; the client gets the code and, for validation failures,
// the field map.
func (h *Handlers) httpError(w http.ResponseWriter, err error) {
	var fieldErrs *apperr.FieldErrors
	if errors.As(err, &fieldErrs) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(fieldErrs.Fields)
		return
	}

	switch {
	case errors.Is(err, apperr.ErrUnauthorized):
		http.Error(w, "", http.StatusUnauthorized)
	case errors.Is(err, apperr.ErrForbidden):
		http.Error(w, "", http.StatusForbidden)
	case errors.Is(err, apperr.ErrValidation):
		h.sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
	case errors.Is(err, apperr.ErrNotFound):
		http.Error(w, "", http.StatusNotFound)
	default:
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
	}
}

func (h *Handlers) decodeBody(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		h.sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return false
	}
	return true
}
