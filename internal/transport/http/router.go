package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/KelkeFranvin/coco-quiz/internal/app"
	"github.com/KelkeFranvin/coco-quiz/internal/domain"
	"github.com/KelkeFranvin/coco-quiz/internal/relay"
)

// ChangeFeed is the record store's change-notification stream as the
// transport consumes it.
type ChangeFeed interface {
	Subscribe(ctx context.Context) (<-chan domain.ChangeEvent, func(), error)
}

// Handler bundles the services and streams behind the HTTP surface.
type Handler struct {
	submissions *app.SubmissionService
	board       *app.BoardService
	relay       relay.Relay
	feed        ChangeFeed
	poll        time.Duration
}

func NewHandler(submissions *app.SubmissionService, board *app.BoardService, bus relay.Relay, feed ChangeFeed, poll time.Duration) *Handler {
	return &Handler{
		submissions: submissions,
		board:       board,
		relay:       bus,
		feed:        feed,
		poll:        poll,
	}
}

// Router builds the chi mux for the REST and websocket surface.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Post("/submissions", h.handleSubmit)
	r.Get("/submissions", h.handleListSubmissions)
	r.Post("/reset", h.handleReset)
	r.Post("/purge-resets", h.handlePurgeResets)

	r.Post("/buzz", h.handleBuzz)
	r.Get("/buzzers", h.handleListBuzzers)
	r.Post("/buzz/reset", h.handleResetBuzzers)

	r.Get("/leaderboard", h.handleListLeaderboard)
	r.Post("/leaderboard", h.handleAddLeaderboardEntry)
	r.Put("/leaderboard/{id}", h.handleSetScore)

	r.Get("/mode", h.handleGetMode)
	r.Put("/mode", h.handleSetMode)

	r.Get("/ws", h.serveWS)

	return r
}
