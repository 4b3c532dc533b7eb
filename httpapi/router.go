package httpapi

import (
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/korylprince/sureassist/chatbot"
	"go.uber.org/zap"
)

// Config holds configuration for the router
type Config struct {
	// Upstream is the chat completions gateway
	Upstream *chatbot.AIClient
	// Store records websocket conversations
	Store chatbot.ConversationStore
	// AccessKeyHash is a bcrypt hash of the key clients must present. Empty disables auth.
	AccessKeyHash []byte
	// DisplayName is added as context to conversations that don't set one
	DisplayName string
	// ConversationDuration is how long an unused websocket conversation is kept
	ConversationDuration time.Duration
	Disambiguator        *chatbot.Disambiguator
	Logger               *zap.Logger
}

//NewRouter returns an HTTP router for the HTTP API
func NewRouter(w io.Writer, cfg *Config) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	//construct middleware
	var m = func(h returnHandler) http.Handler {
		return logMiddleware(jsonMiddleware(authMiddleware(h, cfg.AccessKeyHash)), w)
	}

	r := mux.NewRouter()

	r.Path("/choices/").Methods("GET").Handler(m(handleReadChoices(cfg.Disambiguator)))
	r.Path("/chat/completions").Methods("POST").Handler(m(handleRelay(cfg.Upstream, log.Named("relay"))))

	registry := NewMemoryRegistry(cfg.ConversationDuration)
	opener := cfg.Upstream.WithSystemPrompt(chatbot.SystemPrompt())
	newSession := func(r *http.Request) *chatbot.Session {
		name := r.URL.Query().Get("display_name")
		if name == "" {
			name = cfg.DisplayName
		}
		opts := []chatbot.Option{
			chatbot.WithLogger(log.Named("session")),
			chatbot.WithDisambiguator(cfg.Disambiguator),
			chatbot.WithDisplayName(name),
		}
		if cfg.Store != nil {
			opts = append(opts, chatbot.WithHooks(chatbot.NewRecorder(cfg.Store, log.Named("recorder")).Hooks()))
		}
		return chatbot.NewSession(opener, opts...)
	}

	// Chat WebSocket endpoint (auth via header or query, no JSON middleware)
	chatHandler := chatbot.NewHandler(registry, newSession, log.Named("websocket"))
	r.Path("/chat").Methods("GET").Handler(wsAuthMiddleware(chatHandler, cfg.AccessKeyHash, w))

	r.NotFoundHandler = m(notFoundHandler)

	return http.StripPrefix("/api/1.0", r)
}
