// Package api provides HTTP handlers for the roomcast server REST API.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/coregx/roomcast"
	"github.com/coregx/roomcast/model"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	authorizer    *roomcast.TopicAuthorizer
	fanout        *roomcast.FanoutPublisher
	memberships   *roomcast.MembershipManager
	unreadTracker *roomcast.UnreadTracker
	logger        roomcast.Logger
}

// NewHandler creates a new API handler.
func NewHandler(
	authorizer *roomcast.TopicAuthorizer,
	fanout *roomcast.FanoutPublisher,
	memberships *roomcast.MembershipManager,
	unreadTracker *roomcast.UnreadTracker,
	logger roomcast.Logger,
) *Handler {
	return &Handler{
		authorizer:    authorizer,
		fanout:        fanout,
		memberships:   memberships,
		unreadTracker: unreadTracker,
		logger:        logger,
	}
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse represents a success response.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// HandleIssueToken handles POST /api/v1/tokens
func (h *Handler) HandleIssueToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req roomcast.IssueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	token, err := h.authorizer.Issue(r.Context(), req.SubscriberID)
	if err != nil {
		h.logger.Errorf("Failed to issue token: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to issue token", "TOKEN_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusCreated, roomcast.TokenResponse{
		Token:     token.Signed,
		Channels:  []string(token.Channels),
		ExpiresAt: token.ExpiresAt,
	}, "Token issued successfully")
}

// HandleHeartbeat handles POST /api/v1/heartbeats
func (h *Handler) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req roomcast.HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	cursor, err := h.unreadTracker.Heartbeat(r.Context(), req.SubscriberID, req.RoomID)
	if err != nil {
		h.logger.Errorf("Failed to record heartbeat: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to record heartbeat", "HEARTBEAT_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusOK, cursor, "")
}

// HandleMarkRead handles POST /api/v1/read-acks
func (h *Handler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req roomcast.MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	cursor, err := h.unreadTracker.MarkRead(r.Context(), req.SubscriberID, req.RoomID, req.Sequence)
	if err != nil {
		h.logger.Errorf("Failed to mark read: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to mark read", "READ_ACK_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusOK, cursor, "")
}

// HandleUnread handles GET /api/v1/unread?subscriberID=&roomID=
func (h *Handler) HandleUnread(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	subscriberID, _ := strconv.ParseInt(r.URL.Query().Get("subscriberID"), 10, 64)
	roomID, _ := strconv.ParseInt(r.URL.Query().Get("roomID"), 10, 64)
	if subscriberID == 0 || roomID == 0 {
		h.respondError(w, http.StatusBadRequest, "subscriberID and roomID are required", "VALIDATION_ERROR")
		return
	}

	unread, err := h.unreadTracker.UnreadCount(r.Context(), subscriberID, roomID)
	if err != nil {
		h.logger.Errorf("Failed to compute unread count: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to compute unread count", "UNREAD_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusOK, roomcast.UnreadResponse{
		SubscriberID: subscriberID,
		RoomID:       roomID,
		Unread:       unread,
	}, "")
}

// HandleMessageCommitted handles POST /api/v1/messages/committed
//
// The persistence collaborator calls this after its transaction commits;
// the handler resolves destination channels and publishes to the hub.
func (h *Handler) HandleMessageCommitted(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req roomcast.MessageCommittedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	result, err := h.fanout.Publish(r.Context(), req.ToMessage())
	if err != nil {
		h.logger.Errorf("Failed to fan out message: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to fan out message", "FANOUT_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusOK, roomcast.FanoutResponse{
		MessageID: result.MessageID,
		Channels:  result.Channels,
		Published: result.Published,
		Deferred:  result.Deferred,
		Failed:    result.Failed,
	}, "Message fanned out")
}

// HandleMembershipChanged handles POST /api/v1/memberships/changed
func (h *Handler) HandleMembershipChanged(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req roomcast.MembershipChangedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	var membership model.Membership
	var err error
	switch req.Action {
	case "join":
		membership, err = h.memberships.Join(r.Context(), roomcast.JoinRequest{
			SubscriberID: req.SubscriberID,
			RoomID:       req.RoomID,
			Role:         model.MembershipRole(req.Role),
		})
	case "leave":
		membership, err = h.memberships.Leave(r.Context(), req.SubscriberID, req.RoomID)
	}

	if err != nil {
		if roomcast.IsNoData(err) {
			h.respondError(w, http.StatusNotFound, "Membership not found", "NOT_FOUND")
			return
		}
		h.logger.Errorf("Failed to apply membership change: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to apply membership change", "MEMBERSHIP_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusOK, roomcast.MembershipResponse{Membership: membership}, "Membership updated")
}

// HandleHealth handles GET /api/v1/health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   "0.1.0",
	}

	h.respondSuccess(w, http.StatusOK, health, "")
}

// respondError sends an error response.
func (h *Handler) respondError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   message,
		Code:    code,
		Message: message,
	})
}

// respondSuccess sends a success response.
func (h *Handler) respondSuccess(w http.ResponseWriter, status int, data interface{}, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}
