package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/SpeakCoachBot/internal/models"
	"github.com/digkill/SpeakCoachBot/internal/service"
)

// PriceStore is the mutable tariff price table exposed over HTTP.
type PriceStore interface {
	All() map[models.Tariff]int
	SetPrice(tariff models.Tariff, amount int) error
}

// PromptStore holds the review prompt template.
type PromptStore interface {
	Template() string
	SetTemplate(text string) error
}

type Server struct {
	addr        string
	username    string
	password    string
	log         *slog.Logger
	entitlement *service.EntitlementService
	prices      PriceStore
	prompts     PromptStore
	bot         *tgbotapi.BotAPI
	router      *chi.Mux
}

func NewServer(addr, username, password string, log *slog.Logger, entitlement *service.EntitlementService, prices PriceStore, prompts PromptStore, bot *tgbotapi.BotAPI) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:        addr,
		username:    username,
		password:    password,
		log:         log,
		entitlement: entitlement,
		prices:      prices,
		prompts:     prompts,
		bot:         bot,
		router:      r,
	}
	r.Group(func(protected chi.Router) {
		protected.Use(s.basicAuthMiddleware())
		protected.Post("/broadcast", s.handleBroadcast)
		protected.Get("/subscribers", s.handleListSubscribers)
		protected.Route("/prices", func(r chi.Router) {
			r.Get("/", s.handleGetPrices)
			r.Put("/", s.handleUpdatePrices)
		})
		protected.Route("/prompt", func(r chi.Router) {
			r.Get("/", s.handleGetPrompt)
			r.Put("/", s.handleUpdatePrompt)
		})
	})
	return s
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("admin shutdown error", "err", err)
		}
	}()

	s.log.Info("admin panel listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin listen: %w", err)
	}
	return nil
}

type broadcastRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message required", http.StatusBadRequest)
		return
	}

	ids, err := s.entitlement.ListUserIDs(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}

	count := 0
	for _, id := range ids {
		msg := tgbotapi.NewMessage(id, req.Message)
		if _, err := s.bot.Send(msg); err != nil {
			s.log.Error("send broadcast", "user", id, "err", err)
			continue
		}
		count++
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"sent":  count,
		"total": len(ids),
	})
}

type subscriberResponse struct {
	UserID          int64     `json:"user_id"`
	Username        string    `json:"username,omitempty"`
	SubscriptionEnd time.Time `json:"subscription_end"`
}

func (s *Server) handleListSubscribers(w http.ResponseWriter, r *http.Request) {
	subscribers, err := s.entitlement.ListActiveSubscribers(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	out := make([]subscriberResponse, 0, len(subscribers))
	for _, sub := range subscribers {
		out = append(out, subscriberResponse{
			UserID:          sub.UserID,
			Username:        sub.Username,
			SubscriptionEnd: sub.SubscriptionEnd,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetPrices(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.prices.All())
}

type pricesUpdateRequest struct {
	Week   *int `json:"week"`
	Month  *int `json:"month"`
	Single *int `json:"single"`
}

func (s *Server) handleUpdatePrices(w http.ResponseWriter, r *http.Request) {
	var req pricesUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	updates := map[models.Tariff]*int{
		models.TariffWeek:   req.Week,
		models.TariffMonth:  req.Month,
		models.TariffSingle: req.Single,
	}
	for tariff, amount := range updates {
		if amount == nil {
			continue
		}
		if *amount <= 0 {
			http.Error(w, fmt.Sprintf("%s price must be positive", tariff), http.StatusBadRequest)
			return
		}
		if err := s.prices.SetPrice(tariff, *amount); err != nil {
			s.internalError(w, err)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, s.prices.All())
}

type promptResponse struct {
	Template string `json:"template"`
}

func (s *Server) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, promptResponse{Template: s.prompts.Template()})
}

func (s *Server) handleUpdatePrompt(w http.ResponseWriter, r *http.Request) {
	var req promptResponse
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Template) == "" {
		http.Error(w, "template required", http.StatusBadRequest)
		return
	}
	if err := s.prompts.SetTemplate(req.Template); err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, promptResponse{Template: s.prompts.Template()})
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != s.username || pass != s.password {
				w.Header().Set("WWW-Authenticate", `Basic realm="speakcoach"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("admin handler error", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
