package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pairchat/internal/domain"
	"pairchat/internal/middleware"
	"pairchat/internal/observability"
	"pairchat/internal/service"
)

// PairingHandler serves the contact list and room history endpoints
type PairingHandler struct {
	pairings *service.PairingService
	chats    *service.ChatService
}

func NewPairingHandler(pairings *service.PairingService, chats *service.ChatService) *PairingHandler {
	return &PairingHandler{
		pairings: pairings,
		chats:    chats,
	}
}

// CreatePairingRequest represents a request to start a conversation
type CreatePairingRequest struct {
	Email string `json:"email"`
}

type PeerResponse struct {
	ID       domain.UserID `json:"id"`
	Username string        `json:"username"`
}

type CreatePairingResponse struct {
	RoomKey domain.RoomKey `json:"room_key"`
	Peer    PeerResponse   `json:"peer"`
}

type MessageResponse struct {
	Seq            int64         `json:"seq"`
	Content        string        `json:"content"`
	Timestamp      int64         `json:"timestamp"`
	SenderID       domain.UserID `json:"sender_id"`
	SenderUsername string        `json:"sender_username"`
}

type PairingResponse struct {
	PeerID       domain.UserID    `json:"peer_id"`
	PeerUsername string           `json:"peer_username"`
	RoomKey      domain.RoomKey   `json:"room_key"`
	IsActive     bool             `json:"is_active"`
	LastMessage  *MessageResponse `json:"last_message"`
}

func toMessageResponse(m *domain.Message) *MessageResponse {
	return &MessageResponse{
		Seq:            m.Seq,
		Content:        m.Content,
		Timestamp:      m.Timestamp,
		SenderID:       m.SenderID,
		SenderUsername: m.SenderUsername,
	}
}

// Create pairs the caller with the user owning the given email
func (h *PairingHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req CreatePairingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	roomKey, peer, err := h.pairings.EnsurePairingByEmail(r.Context(), userID, req.Email)
	if err != nil {
		h.writePairingError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, CreatePairingResponse{
		RoomKey: roomKey,
		Peer:    PeerResponse{ID: peer.ID, Username: peer.Username},
	})
}

func (h *PairingHandler) writePairingError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *domain.ValidationError
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Error())
	case errors.Is(err, domain.ErrSelfPairing):
		writeError(w, http.StatusBadRequest, "Cannot start a conversation with yourself")
	case errors.Is(err, domain.ErrPeerNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	case domain.IsRetryable(err):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "Pairing temporarily unavailable")
	default:
		observability.FromContext(r.Context()).Error("failed to create pairing",
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Failed to create pairing")
	}
}

// List returns the caller's contacts in the order they were paired
func (h *PairingHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	active := domain.RoomKey(r.URL.Query().Get("active"))

	conversations, err := h.chats.ListConversations(r.Context(), userID, active)
	if err != nil {
		observability.FromContext(r.Context()).Error("failed to list pairings",
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Failed to retrieve pairings")
		return
	}

	pairings := make([]PairingResponse, 0, len(conversations))
	for _, c := range conversations {
		p := PairingResponse{
			PeerID:       c.PeerID,
			PeerUsername: c.PeerUsername,
			RoomKey:      c.RoomKey,
			IsActive:     c.IsActive,
		}
		if c.LastMessage != nil {
			p.LastMessage = toMessageResponse(c.LastMessage)
		}
		pairings = append(pairings, p)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pairings": pairings,
	})
}

// Messages returns a room's full history in append order
func (h *PairingHandler) Messages(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	roomKey, err := domain.ParseRoomKey(chi.URLParam(r, "roomKey"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid room key")
		return
	}
	if !roomKey.Includes(userID) {
		writeError(w, http.StatusForbidden, "Not a participant of this room")
		return
	}

	history, err := h.chats.History(r.Context(), roomKey)
	if err != nil {
		observability.FromContext(r.Context()).Error("failed to read history",
			slog.String("room_key", roomKey.String()),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Failed to retrieve messages")
		return
	}

	messages := make([]*MessageResponse, 0, len(history))
	for _, m := range history {
		messages = append(messages, toMessageResponse(m))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"messages": messages,
	})
}
