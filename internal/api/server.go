package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tycoon/internal/auth"
	"tycoon/internal/config"
	"tycoon/internal/game"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type contextKey string

const userContextKey contextKey = "user"

type UserContext struct {
	UserID   string
	Username string
	Token    string
}

type Server struct {
	cfg  config.APIConfig
	log  *slog.Logger
	auth *auth.SessionClient
	game *game.GameStateStore
	mux  *chi.Mux
}

func New(cfg config.APIConfig, logger *slog.Logger, authClient *auth.SessionClient, g *game.GameStateStore) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:  cfg,
		log:  logger,
		auth: authClient,
		game: g,
		mux:  chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/state", s.handleState)

			r.Post("/transfer", s.handleTransfer)
			r.Post("/deposit", s.handleDeposit)
			r.Post("/withdraw", s.handleWithdraw)
			r.Post("/stocks/{id}/trade", s.handleTrade)
			r.Post("/roulette/spin", s.handleRouletteSpin)

			r.Post("/requests", s.handleSubmitRequest)
			r.Post("/election/vote", s.handleElectionVote)

			r.Group(func(r chi.Router) {
				r.Use(s.requireBanker)

				r.Post("/requests/{id}/resolve", s.handleResolveRequest)
				r.Post("/requests/approve-all", s.handleApproveAll)
				r.Put("/roulette/items", s.handleSetRouletteItems)
				r.Post("/election/start", s.handleElectionStart)
				r.Post("/election/resolve", s.handleElectionResolve)
				r.Delete("/npcs/{id}", s.handleDeleteNPC)
				r.Post("/events", s.handleStartEvent)
				r.Post("/users/{id}/tax", s.handleAssessTax)
				r.Post("/users/{id}/stock-access", s.handleStockAccess)
			})
		})
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		id, err := s.auth.Verify(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, fmt.Sprintf("invalid token: %v", err))
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, UserContext{
			UserID:   id.UserID,
			Username: id.Username,
			Token:    token,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireBanker checks the authoritative role in game state, not the
// role claimed by the session service. The banker seat can move after
// an election while a token is still live.
func (s *Server) requireBanker(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := userFromContext(r.Context())
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		snap := s.game.Snapshot()
		for _, u := range snap.Users {
			if u.ID == user.UserID {
				if u.Role != game.RoleBanker {
					break
				}
				next.ServeHTTP(w, r)
				return
			}
		}
		writeError(w, http.StatusForbidden, "banker role required")
	})
}

func userFromContext(ctx context.Context) (UserContext, error) {
	v := ctx.Value(userContextKey)
	user, ok := v.(UserContext)
	if !ok || user.UserID == "" {
		return UserContext{}, errors.New("missing auth context")
	}
	return user, nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.auth.Login(r.Context(), strings.TrimSpace(in.Username), in.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	// First sight of a user registers them with the role the session
	// service assigns. That is how the initial banker enters the world;
	// afterwards the game state owns the role and elections move it.
	if err := s.game.EnsureUser(r.Context(), session.Identity.UserID, session.Identity.Username, game.Role(session.Identity.Role)); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// handleState serves the shared snapshot. With ?since=N it answers 304
// when nothing changed, so clients can poll tightly without payload cost.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if since := strings.TrimSpace(r.URL.Query().Get("since")); since != "" {
		v, err := strconv.ParseInt(since, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since version")
			return
		}
		if s.game.Version() == v {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.game.Snapshot())
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		ToUserID    string `json:"to_user_id"`
		Amount      int64  `json:"amount"`
		Description string `json:"description"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tx, err := s.game.Transfer(r.Context(), game.TransferInput{
		FromID:         user.UserID,
		ToID:           in.ToUserID,
		Amount:         in.Amount,
		Description:    in.Description,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleSavings(w, r, s.game.DepositSavings)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleSavings(w, r, s.game.WithdrawSavings)
}

func (s *Server) handleSavings(w http.ResponseWriter, r *http.Request, op func(context.Context, string, int64, string) error) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Amount int64 `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := op(r.Context(), user.UserID, in.Amount, idempotencyKey(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Quantity int64  `json:"quantity"`
		Side     string `json:"side"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.TradeStock(r.Context(), game.TradeInput{
		UserID:         user.UserID,
		StockID:        chi.URLParam(r, "id"),
		Quantity:       in.Quantity,
		Side:           strings.ToLower(strings.TrimSpace(in.Side)),
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRouletteSpin(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		TargetUserID string `json:"target_user_id"`
		Cost         int64  `json:"cost"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.SpinRoulette(r.Context(), game.SpinInput{
		SpinnerID:      user.UserID,
		TargetUserID:   in.TargetUserID,
		Cost:           in.Cost,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Type    string          `json:"type"`
		Amount  int64           `json:"amount"`
		Details json.RawMessage `json:"details"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reqType := game.RequestType(strings.TrimSpace(in.Type))
	details, err := game.DecodeRequestDetails(reqType, in.Details)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	id, err := s.game.SubmitRequest(r.Context(), game.SubmitRequestInput{
		Type:           reqType,
		RequesterID:    user.UserID,
		Amount:         in.Amount,
		Details:        details,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"request_id": id})
}

func (s *Server) handleResolveRequest(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Approve bool `json:"approve"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.ResolveRequest(r.Context(), chi.URLParam(r, "id"), in.Approve, idempotencyKey(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleApproveAll(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.ApproveAllRequests(r.Context(), idempotencyKey(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (s *Server) handleSetRouletteItems(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Items []game.RouletteItem `json:"items"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.game.SetRouletteItems(r.Context(), in.Items, idempotencyKey(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleElectionStart(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Candidates      []string `json:"candidates"`
		DurationSeconds int64    `json:"duration_seconds"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err := s.game.StartElection(r.Context(), in.Candidates, time.Duration(in.DurationSeconds)*time.Second, idempotencyKey(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
}

func (s *Server) handleElectionVote(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		CandidateID string `json:"candidate_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.game.CastVote(r.Context(), user.UserID, in.CandidateID, idempotencyKey(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleElectionResolve(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.ResolveElection(r.Context(), idempotencyKey(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteNPC(w http.ResponseWriter, r *http.Request) {
	if err := s.game.DeleteActiveNPC(r.Context(), chi.URLParam(r, "id"), idempotencyKey(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleStartEvent(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Kind            string `json:"kind"`
		TargetUserID    string `json:"target_user_id"`
		EffectValue     int64  `json:"effect_value"`
		DurationSeconds int64  `json:"duration_seconds"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := s.game.StartEvent(r.Context(), game.EventInput{
		Kind:           strings.TrimSpace(in.Kind),
		TargetUserID:   in.TargetUserID,
		EffectValue:    in.EffectValue,
		Duration:       time.Duration(in.DurationSeconds) * time.Second,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"event_id": id})
}

func (s *Server) handleAssessTax(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Amount int64 `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.game.AssessTax(r.Context(), chi.URLParam(r, "id"), in.Amount, idempotencyKey(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleStockAccess(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Unlocked bool `json:"unlocked"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.game.SetStockAccess(r.Context(), chi.URLParam(r, "id"), in.Unlocked, idempotencyKey(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrAlreadyResolved),
		errors.Is(err, game.ErrDuplicateIdempotency),
		errors.Is(err, game.ErrElectionActive):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrForbiddenAsset), errors.Is(err, game.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, game.ErrInsufficientFunds),
		errors.Is(err, game.ErrInvalidAmount),
		errors.Is(err, game.ErrInvalidQuantity),
		errors.Is(err, game.ErrInvalidType),
		errors.Is(err, game.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func idempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		return key
	}
	return uuid.NewString()
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
