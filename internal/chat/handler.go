package chat

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"noteshare-chat/internal/apperr"
	"noteshare-chat/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const maxUploadBytes = 25 << 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: restrict to the frontend origin before exposing publicly
	},
}

var validate = validator.New()

type Handler struct {
	hub *Hub
	svc *Service
	log *zap.SugaredLogger
}

func NewHandler(hub *Hub, svc *Service, log *zap.SugaredLogger) *Handler {
	return &Handler{hub: hub, svc: svc, log: log}
}

type createChatRequest struct {
	IsGroup        bool    `json:"is_group"`
	ParticipantIDs []int64 `json:"participant_ids" validate:"required,min=1,dive,gt=0"`
	Title          *string `json:"title,omitempty"`
}

type textRequest struct {
	Text string `json:"text" validate:"required,max=4000"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	writeJSON(w, apperr.Status(err), map[string]string{"error": err.Error()})
}

func actorFrom(r *http.Request) (Actor, bool) {
	userID, username, ok := middleware.Identity(r.Context())
	return Actor{UserID: userID, Username: username}, ok
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("bad %s: %w", name, apperr.ErrInvalidArgument)
	}
	return id, nil
}

// CreateChat handles both direct and group creation.
func (h *Handler) CreateChat(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, fmt.Errorf("bad body: %w", apperr.ErrInvalidArgument))
		return
	}
	if err := validate.Struct(req); err != nil {
		writeErr(w, fmt.Errorf("%v: %w", err, apperr.ErrInvalidArgument))
		return
	}

	var (
		chat *Chat
		err  error
	)
	if req.IsGroup {
		chat, err = h.svc.CreateGroup(r.Context(), actor, req.ParticipantIDs, req.Title)
	} else {
		if len(req.ParticipantIDs) != 1 {
			writeErr(w, fmt.Errorf("direct chat requires exactly one counterparty: %w", apperr.ErrInvalidArgument))
			return
		}
		chat, err = h.svc.CreateDirect(r.Context(), actor, req.ParticipantIDs[0])
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, chat)
}

func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	chatID, err := pathID(r, "chatID")
	if err != nil {
		writeErr(w, err)
		return
	}

	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, fmt.Errorf("bad body: %w", apperr.ErrInvalidArgument))
		return
	}
	if err := validate.Struct(req); err != nil {
		writeErr(w, fmt.Errorf("%v: %w", err, apperr.ErrInvalidArgument))
		return
	}

	msg, err := h.svc.Send(r.Context(), actor, chatID, req.Text)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *Handler) SendMedia(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	chatID, err := pathID(r, "chatID")
	if err != nil {
		writeErr(w, err)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeErr(w, fmt.Errorf("bad multipart body: %w", apperr.ErrInvalidArgument))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeErr(w, fmt.Errorf("missing file: %w", apperr.ErrInvalidArgument))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeErr(w, err)
		return
	}

	up := Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}
	if text := r.FormValue("text"); text != "" {
		up.Caption = &text
	}

	msg, err := h.svc.SendMedia(r.Context(), actor, chatID, up)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	chatID, err := pathID(r, "chatID")
	if err != nil {
		writeErr(w, err)
		return
	}
	messageID, err := pathID(r, "messageID")
	if err != nil {
		writeErr(w, err)
		return
	}

	if err := h.svc.MarkRead(r.Context(), actor, chatID, messageID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

func (h *Handler) Reply(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	chatID, err := pathID(r, "chatID")
	if err != nil {
		writeErr(w, err)
		return
	}
	parentID, err := pathID(r, "messageID")
	if err != nil {
		writeErr(w, err)
		return
	}

	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, fmt.Errorf("bad body: %w", apperr.ErrInvalidArgument))
		return
	}
	if err := validate.Struct(req); err != nil {
		writeErr(w, fmt.Errorf("%v: %w", err, apperr.ErrInvalidArgument))
		return
	}

	msg, err := h.svc.Reply(r.Context(), actor, chatID, parentID, req.Text)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *Handler) Forward(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	targetChatID, err := pathID(r, "chatID")
	if err != nil {
		writeErr(w, err)
		return
	}
	originalID, err := pathID(r, "messageID")
	if err != nil {
		writeErr(w, err)
		return
	}

	msg, err := h.svc.Forward(r.Context(), actor, targetChatID, originalID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	messageID, err := pathID(r, "messageID")
	if err != nil {
		writeErr(w, err)
		return
	}

	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, fmt.Errorf("bad body: %w", apperr.ErrInvalidArgument))
		return
	}
	if err := validate.Struct(req); err != nil {
		writeErr(w, fmt.Errorf("%v: %w", err, apperr.ErrInvalidArgument))
		return
	}

	msg, err := h.svc.Edit(r.Context(), actor, messageID, req.Text)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	messageID, err := pathID(r, "messageID")
	if err != nil {
		writeErr(w, err)
		return
	}

	msg, err := h.svc.Delete(r.Context(), actor, messageID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// History is the reconnect catch-up endpoint.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	chatID, err := pathID(r, "chatID")
	if err != nil {
		writeErr(w, err)
		return
	}

	var beforeID *int64
	if s := r.URL.Query().Get("before"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeErr(w, fmt.Errorf("bad before cursor: %w", apperr.ErrInvalidArgument))
			return
		}
		beforeID = &id
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	msgs, err := h.svc.History(r.Context(), actor, chatID, beforeID, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *Handler) Receipts(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	messageID, err := pathID(r, "messageID")
	if err != nil {
		writeErr(w, err)
		return
	}

	receipts, err := h.svc.Receipts(r.Context(), actor, messageID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipts)
}

func (h *Handler) Participants(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorFrom(r); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	chatID, err := pathID(r, "chatID")
	if err != nil {
		writeErr(w, err)
		return
	}

	parts, err := h.svc.Participants(r.Context(), chatID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, parts)
}

// Me resolves (find-or-create) the caller's own participant handle.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	me, err := h.svc.Identify(r.Context(), actor)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, me)
}

// ServeWs upgrades the connection and joins it to the hub. Handshake
// failures terminate the socket without a response; reconnection is the
// client's responsibility.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	me, err := h.svc.Identify(r.Context(), actor)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("ws upgrade", "err", err)
		return
	}

	client := NewClient(h.hub, h.svc, h.log, conn, actor, me.ID)
	h.hub.register <- client

	go client.WritePump()
	go client.ReadPump()
}
