package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/agonlabs/arena-system/handlers"
	"github.com/agonlabs/arena-system/middleware"
)

func SetupRoutes(
	router *chi.Mux,
	jwtSecret []byte,
	queueHandler *handlers.QueueHandler,
	tournamentHandler *handlers.TournamentHandler,
	streamHandler *handlers.StreamHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authenticate := middleware.Authenticate(jwtSecret)

	router.Route("/queue", func(r chi.Router) {
		r.Use(authenticate)
		r.Post("/", queueHandler.JoinHandler)
		r.Get("/status", queueHandler.StatusHandler)
		r.Delete("/", queueHandler.LeaveHandler)
	})

	router.Route("/tournaments", func(r chi.Router) {
		// Public read access.
		r.Get("/", tournamentHandler.ListHandler)
		r.Get("/{tournamentID}", tournamentHandler.GetByIDHandler)

		// Sync needs no identity: it only makes progress the bracket
		// state already implies.
		r.Post("/{tournamentID}/sync", tournamentHandler.SyncHandler)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Post("/", tournamentHandler.CreateHandler)
			r.Post("/{tournamentID}/join", tournamentHandler.JoinHandler)
			r.Post("/{tournamentID}/start", tournamentHandler.StartHandler)
			r.Post("/{tournamentID}/logo", tournamentHandler.UploadLogoHandler)
		})
	})

	router.Get("/matches/{matchID}/events", streamHandler.EventsHandler)
	router.Get("/ws/tournaments/{tournamentID}", webSocketHandler.ServeWs)

	router.Get("/swagger/*", httpSwagger.WrapHandler)
}
