package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/BTreeMap/Insura/internal/models"
	"github.com/BTreeMap/Insura/internal/store"
	"github.com/BTreeMap/Insura/internal/util"
)

// userData is the result of /get-user-data.
type userData struct {
	UserID    string            `json:"user_id"`
	Stage     models.Stage      `json:"stage"`
	Responses map[string]string `json:"responses"`
}

// phoneCandidates lists the user identifiers a path phone may be stored
// under: as given, with the "+" toggled, and as canonical digits.
func phoneCandidates(phone string) []string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil
	}
	out := []string{phone}
	if trimmed, ok := strings.CutPrefix(phone, "+"); ok {
		out = append(out, trimmed)
	} else {
		out = append(out, "+"+phone)
	}
	if canonical, err := util.CanonicalizePhone(phone); err == nil && !slices.Contains(out, canonical) {
		out = append(out, canonical)
	}
	return out
}

// loadState returns the first stored record among the phone's candidates.
func (s *Server) loadState(ctx context.Context, phone string) (*models.ConversationState, error) {
	for _, id := range phoneCandidates(phone) {
		st, err := s.states.Get(ctx, id)
		if err == nil {
			return st, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return nil, store.ErrNotFound
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"service": "insura"}))
}

func (s *Server) resetConversationHandler(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")
	slog.Debug("Server.resetConversationHandler: processing reset", "phone", phone)

	candidates := phoneCandidates(phone)
	if len(candidates) == 0 {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("phone is required"))
		return
	}
	found := false
	for _, id := range candidates {
		ok, err := s.conversations.Reset(r.Context(), id)
		if err != nil {
			slog.Error("Server.resetConversationHandler: reset failed", "user_id", id, "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to reset conversation"))
			return
		}
		found = found || ok
	}
	if !found {
		writeJSONResponse(w, http.StatusOK, models.Warning("No active conversation found"))
		return
	}
	slog.Info("Server.resetConversationHandler: conversation reset", "phone", phone)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Conversation reset", nil))
}

func (s *Server) userDataHandler(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")
	slog.Debug("Server.userDataHandler: processing request", "phone", phone)

	st, err := s.loadState(r.Context(), phone)
	if err != nil {
		s.writeLoadError(w, "Server.userDataHandler", phone, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(userData{
		UserID:    st.UserID,
		Stage:     st.Stage,
		Responses: st.Responses,
	}))
}

func (s *Server) llmResponsesHandler(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")
	slog.Debug("Server.llmResponsesHandler: processing request", "phone", phone)

	st, err := s.loadState(r.Context(), phone)
	if err != nil {
		s.writeLoadError(w, "Server.llmResponsesHandler", phone, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(llmResponses(st)))
}

// llmResponses returns the recorded assistant replies, or the bot's
// non-interactive history lines for records that predate the log.
func llmResponses(st *models.ConversationState) []string {
	if len(st.LLMResponses) > 0 {
		return st.LLMResponses
	}
	out := []string{}
	for _, h := range st.History {
		if h.Question != models.BotSpeaker || strings.HasPrefix(h.Answer, "[Interactive") {
			continue
		}
		out = append(out, h.Answer)
	}
	return out
}

func (s *Server) writeLoadError(w http.ResponseWriter, where, phone string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("User not found"))
		return
	}
	slog.Error(where+": failed to load conversation", "phone", phone, "error", err)
	writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load conversation"))
}

func (s *Server) sendGreetingHandler(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")
	slog.Debug("Server.sendGreetingHandler: processing request", "phone", phone)

	userID, err := util.CanonicalizePhone(phone)
	if err != nil {
		slog.Warn("Server.sendGreetingHandler: invalid phone", "phone", phone, "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if err := s.conversations.Greet(r.Context(), userID); err != nil {
		slog.Error("Server.sendGreetingHandler: greeting failed", "user_id", userID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to send greeting"))
		return
	}
	slog.Info("Server.sendGreetingHandler: greeting sent", "user_id", userID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Greeting sent", map[string]string{"user_id": userID}))
}

func (s *Server) testLLMHandler(w http.ResponseWriter, r *http.Request) {
	message := strings.TrimSpace(r.URL.Query().Get("message"))
	slog.Debug("Server.testLLMHandler: processing request", "message_len", len(message))
	if message == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("message query parameter is required"))
		return
	}
	reply, err := s.llm.Answer(r.Context(), message)
	if err != nil {
		slog.Error("Server.testLLMHandler: assistant failed", "error", err)
		writeJSONResponse(w, http.StatusBadGateway, models.Error("LLM request failed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"reply": reply}))
}
