package http

import (
	"net/http"
	"time"

	httpmw "github.com/cwrk-planet/plan-chat/internal/transport/http/middleware"
	"github.com/cwrk-planet/plan-chat/pkg/httputil"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Deps struct {
	Handler        *Handler
	Auth           httpmw.Authenticator
	WS             http.HandlerFunc
	AllowedOrigins []string
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewareChi.RealIP)
	r.Use(httputil.MiddlewareRequestID)
	r.Use(httputil.MiddlewareLogging)
	r.Use(middlewareChi.Recoverer)

	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", httputil.HeaderRequestID},
		ExposedHeaders: []string{httputil.HeaderRequestID},
		MaxAge:         300,
	}))

	// the websocket handler authenticates before upgrading
	r.Get("/ws", d.WS)

	r.Group(func(pr chi.Router) {
		pr.Use(httpmw.AuthMiddleware(d.Auth))
		pr.Use(middlewareChi.Timeout(30 * time.Second))

		pr.Route("/plans/{id}", func(rp chi.Router) {
			rp.Get("/messages", d.Handler.GetHistory)
			rp.Get("/presence", d.Handler.GetPresence)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
