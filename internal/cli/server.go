package cli

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jamal-o/guessing-game-server/internal/config"
	"github.com/jamal-o/guessing-game-server/internal/domain"
	"github.com/jamal-o/guessing-game-server/internal/game"
	"github.com/jamal-o/guessing-game-server/internal/infra/memory"
	pgbank "github.com/jamal-o/guessing-game-server/internal/infra/postgres"
	redisinfra "github.com/jamal-o/guessing-game-server/internal/infra/redis"
	transport "github.com/jamal-o/guessing-game-server/internal/transport/http"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.Duration(cfg.Redis.TTL, 12*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.QuestionLoader = memory.NewStaticQuestionLoader(sampleTopics())
	if pool != nil {
		loader = pgbank.NewQuestionLoader(pool)
	}

	bankTTL := config.Duration(cfg.Bank.TTL, 10*time.Minute)
	var bank game.QuestionBank
	if redisClient != nil {
		bank = redisinfra.NewQuestionBank(redisClient, loader, bankTTL)
	} else {
		bank = memory.NewQuestionBank(loader, bankTTL)
	}

	var rooms game.RoomRegistry
	if redisClient != nil {
		rooms = redisinfra.NewRoomRegistry(redisClient, redisTTL)
	} else {
		rooms = memory.NewRoomRegistry()
	}

	service := game.NewService(rooms, bank)
	questionDuration := config.Duration(cfg.Game.QuestionDuration, game.DefaultQuestionDuration)
	wsHandler := transport.NewWSHandler(service, questionDuration)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/rooms", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(service.ActiveRooms())
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting guessing game server on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleTopics seeds the question bank when postgres is not configured.
func sampleTopics() map[string][]domain.Question {
	return map[string][]domain.Question{
		"general": {
			{Text: "What is the capital of Nigeria?", Answer: "Abuja"},
			{Text: "How many continents are there?", Answer: "7"},
			{Text: "What is 2 + 2?", Answer: "4"},
		},
		"science": {
			{Text: "What planet is known as the red planet?", Answer: "Mars"},
			{Text: "What gas do plants absorb from the air?", Answer: "carbon dioxide"},
		},
	}
}
