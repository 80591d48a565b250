package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aditpra/gundam-store-backend/internal/handler"
	"github.com/aditpra/gundam-store-backend/internal/midtrans"
	"github.com/aditpra/gundam-store-backend/internal/order"
)

func NewRouter(pool *pgxpool.Pool, gateway midtrans.Client) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	repo := order.NewRepository(pool)
	svc := order.NewService(repo, gateway)
	h := handler.NewOrderHandler(svc)

	r.Route("/api", func(api chi.Router) {
		h.RegisterRoutes(api)
	})

	return r
}
