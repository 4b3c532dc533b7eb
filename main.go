package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/gorilla/handlers"
	"github.com/korylprince/sureassist/chatbot"
	"github.com/korylprince/sureassist/httpapi"
	"go.uber.org/zap"
)

func newLogger(debug bool) *zap.Logger {
	var (
		log *zap.Logger
		err error
	)
	if debug {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return log
}

func main() {
	config, err := loadConfig()
	if err != nil {
		newLogger(false).Fatal("Could not load configuration", zap.Error(err))
	}

	log := newLogger(config.Debug)
	defer log.Sync()

	var store chatbot.ConversationStore = chatbot.NewLRUStore(config.CacheMaxBytes)
	if config.SQLDriver != "" {
		db, err := sql.Open(config.SQLDriver, config.SQLDSN)
		if err != nil {
			log.Fatal("Could not open database", zap.Error(err))
		}
		sqlStore := chatbot.NewSQLStore(db)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = sqlStore.Migrate(ctx)
		cancel()
		if err != nil {
			log.Fatal("Could not migrate database", zap.Error(err))
		}
		store = sqlStore
	}

	r := httpapi.NewRouter(os.Stdout, &httpapi.Config{
		Upstream:             chatbot.NewAIClient(config.AIEndpoint, config.AIModel, config.AIAPIKey),
		Store:                store,
		AccessKeyHash:        []byte(config.AccessKeyHash),
		DisplayName:          config.DisplayName,
		ConversationDuration: time.Hour * time.Duration(config.ConversationDuration),
		Disambiguator:        chatbot.DefaultDisambiguator(),
		Logger:               log,
	})

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Authorization", "X-Client-Info", "Apikey", "Content-Type"}),
	)
	chain := handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(cors(http.StripPrefix(config.Prefix, r)))

	log.Info("Listening", zap.String("addr", config.ListenAddr))
	log.Error("Server stopped", zap.Error(http.ListenAndServe(config.ListenAddr, chain)))
}
