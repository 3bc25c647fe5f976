package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/foxseedlab/roundup/internal/roundup"
)

// NewRouter wires the table endpoints and the push socket. Table failures
// answer 400 with the bare wire token as the body; successes answer 200 with
// the created row or an empty body.
func NewRouter(svc *Service, hub *Hub) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/tables", func(r chi.Router) {
		r.Post("/session", handleSessionInsert(svc))
		r.Patch("/session", handleSessionUpdate(svc))
		r.Get("/session/{id}/alive", handleSessionAlive(svc))
		r.Post("/invitee", handleInviteeInsert(svc))
		r.Patch("/invitee", handleInviteeUpdate(svc))
		r.Get("/notification", handleNotifications(svc))
	})
	r.Get("/push", hub.ServeHTTP)

	return r
}

func handleSessionInsert(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sess roundup.Session
		if err := json.NewDecoder(r.Body).Decode(&sess); err != nil {
			writeToken(w, roundup.TokenBadRequest)
			return
		}
		created, err := svc.InsertSession(r.Context(), sess)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, created)
	}
}

func handleSessionUpdate(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sess roundup.Session
		if err := json.NewDecoder(r.Body).Decode(&sess); err != nil {
			writeToken(w, roundup.TokenBadRequest)
			return
		}
		if err := svc.UpdateSession(r.Context(), sess); err != nil {
			writeFailure(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func handleSessionAlive(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			writeToken(w, roundup.TokenBadRequest)
			return
		}
		alive, err := svc.SessionAlive(r.Context(), id)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, struct {
			Alive bool `json:"alive"`
		}{Alive: alive})
	}
}

func handleInviteeInsert(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var inv roundup.Invitee
		if err := json.NewDecoder(r.Body).Decode(&inv); err != nil {
			writeToken(w, roundup.TokenBadRequest)
			return
		}
		created, err := svc.InsertInvitee(r.Context(), inv)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, created)
	}
}

func handleInviteeUpdate(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var inv roundup.Invitee
		if err := json.NewDecoder(r.Body).Decode(&inv); err != nil {
			writeToken(w, roundup.TokenBadRequest)
			return
		}
		if err := svc.UpdateInvitee(r.Context(), inv); err != nil {
			writeFailure(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func handleNotifications(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		sid, err := strconv.Atoi(q.Get("sid"))
		if err != nil {
			writeToken(w, roundup.TokenBadRequest)
			return
		}
		recipient, err := strconv.Atoi(q.Get("recipient"))
		if err != nil {
			writeToken(w, roundup.TokenBadRequest)
			return
		}
		inviteeID := roundup.UnassignedID
		if v := q.Get("invitee"); v != "" {
			inviteeID, err = strconv.Atoi(v)
			if err != nil {
				writeToken(w, roundup.TokenBadRequest)
				return
			}
		}
		ns, err := svc.Notifications(r.Context(), sid, recipient, inviteeID)
		if err != nil {
			writeFailure(w, err)
			return
		}
		if ns == nil {
			ns = []roundup.Notification{}
		}
		writeJSON(w, ns)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}

func writeFailure(w http.ResponseWriter, err error) {
	var te *TokenError
	if errors.As(err, &te) {
		writeToken(w, te.Token)
		return
	}
	writeToken(w, roundup.TokenGeneralFailure)
}

func writeToken(w http.ResponseWriter, token string) {
	w.WriteHeader(http.StatusBadRequest)
	if _, err := w.Write([]byte(token)); err != nil {
		slog.Error("response write failed", "error", err)
	}
}
