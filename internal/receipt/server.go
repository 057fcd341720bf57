package receipt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot"
)

const fallbackReply = "處理訊息時發生錯誤，請稍後再試。"

// Messenger is the outbound side of the messaging platform: sending replies
// and downloading message content. It exists so tests can fake the platform.
type Messenger interface {
	Reply(ctx context.Context, replyToken string, messages ...linebot.SendingMessage) error
	FetchContent(ctx context.Context, messageID string) ([]byte, error)
}

// lineMessenger implements Messenger with the LINE Messaging API client.
type lineMessenger struct {
	bot *linebot.Client
}

// NewLineMessenger wraps a LINE client as a Messenger.
func NewLineMessenger(bot *linebot.Client) Messenger {
	return &lineMessenger{bot: bot}
}

func (m *lineMessenger) Reply(ctx context.Context, replyToken string, messages ...linebot.SendingMessage) error {
	if _, err := m.bot.ReplyMessage(replyToken, messages...).WithContext(ctx).Do(); err != nil {
		return fmt.Errorf("replying to message: %w", err)
	}
	return nil
}

func (m *lineMessenger) FetchContent(ctx context.Context, messageID string) ([]byte, error) {
	content, err := m.bot.GetMessageContent(messageID).WithContext(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("getting message content: %w", err)
	}
	defer content.Content.Close()

	data, err := io.ReadAll(content.Content)
	if err != nil {
		return nil, fmt.Errorf("reading message content: %w", err)
	}
	return data, nil
}

// Server handles the inbound LINE webhook.
type Server struct {
	service       *Service
	messenger     Messenger
	channelSecret string
	mux           *http.ServeMux
	httpServer    *http.Server
}

// NewServer creates a new Server with a default mux.
func NewServer(service *Service, messenger Messenger, channelSecret string) *Server {
	return NewServerWithMux(service, messenger, channelSecret, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing.
func NewServerWithMux(service *Service, messenger Messenger, channelSecret string, mux *http.ServeMux) *Server {
	s := &Server{
		service:       service,
		messenger:     messenger,
		channelSecret: channelSecret,
		mux:           mux,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /callback", s.handleCallback)
	s.mux.HandleFunc("POST /{$}", s.handleCallback)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleCallback verifies the webhook signature and processes the event
// batch. The delivery is always acknowledged once the signature checks out;
// per-event failures never abort the batch and are never retried by LINE.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Error reading body", http.StatusInternalServerError)
		return
	}

	if !linebot.ValidateSignature(s.channelSecret, r.Header.Get("X-Line-Signature"), body) {
		http.Error(w, "Invalid signature", http.StatusBadRequest)
		return
	}

	var payload struct {
		Events []*linebot.Event `json:"events"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	for _, event := range payload.Events {
		s.handleEvent(r.Context(), event)
	}

	w.WriteHeader(http.StatusOK)
}

// handleEvent dispatches one event by message kind. Unsupported kinds are
// skipped silently; pipeline errors become a generic fallback reply.
func (s *Server) handleEvent(ctx context.Context, event *linebot.Event) {
	if event.Type != linebot.EventTypeMessage || event.Source == nil {
		return
	}
	userID := event.Source.UserID

	var (
		messages []linebot.SendingMessage
		err      error
	)
	switch message := event.Message.(type) {
	case *linebot.TextMessage:
		messages, err = s.service.HandleText(ctx, userID, message.Text)
	case *linebot.ImageMessage:
		var image []byte
		image, err = s.messenger.FetchContent(ctx, message.ID)
		if err == nil {
			messages, err = s.service.HandleImage(ctx, userID, image)
		}
	default:
		return
	}

	if err != nil {
		slog.Error("Failed to handle message event", "user", userID, "error", err)
		messages = []linebot.SendingMessage{linebot.NewTextMessage(fallbackReply)}
	}
	if len(messages) == 0 {
		return
	}

	if err := s.messenger.Reply(ctx, event.ReplyToken, messages...); err != nil {
		slog.Error("Failed to send reply", "user", userID, "error", err)
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // model calls can be slow
		IdleTimeout:  120 * time.Second,
	}
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
