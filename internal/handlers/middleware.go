package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"
)

type accountIDKeyType struct{}

func accountID(r *http.Request) int64 {
	id, _ := r.Context().Value(accountIDKeyType{}).(int64)
	return id
}

func AllowCors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Authenticator resolves the JWT cookie into an account id. The existence
// check caches in the ephemeral store so a deleted account stops resolving
// within a minute without a database hit per request.
func (h *Handlers) Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jwtCookie, err := r.Cookie("JWT")
		if err != nil {
			h.sugar.Debug(err)
			if errors.Is(err, http.ErrNoCookie) {
				http.Error(w, "No jwt cookie was provided", http.StatusUnauthorized)
			} else {
				http.Error(w, "Couldn't read jwt cookie", http.StatusInternalServerError)
			}
			return
		}

		token, err := h.signer.VerifyToken(jwtCookie.Value)
		if err != nil {
			h.sugar.Debug(err)
			http.Error(w, "", http.StatusUnauthorized)
			return
		}

		exists, err := h.accountExists(r.Context(), token.AccountID)
		if err != nil {
			h.sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}
		if !exists {
			http.Error(w, "", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), accountIDKeyType{}, token.AccountID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handlers) accountExists(ctx context.Context, id int64) (bool, error) {
	cacheKey := "account_exists:" + strconv.FormatInt(id, 10)

	if fields, err := h.eph.Get(ctx, cacheKey); err == nil && fields != nil {
		return fields["exists"] == "1", nil
	}

	exists, err := h.store.AccountExists(ctx, id)
	if err != nil {
		return false, err
	}

	value := "0"
	if exists {
		value = "1"
	}
	if err := h.eph.SetWithTTL(ctx, cacheKey, map[string]string{"exists": value}, time.Minute); err != nil {
		h.sugar.Error(err)
	}
	return exists, nil
}
