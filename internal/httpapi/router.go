// Package httpapi exposes a running replica over HTTP: inspection
// endpoints (current heads, individual events by hash, the physics
// gate's pending-message count) plus the authoring endpoints
// cmd/spacetimed's put/delete commands call, since authoring only makes
// sense against the single replica process actually holding the DAG.
package httpapi

import (
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"spacetimekv/internal/replica"
)

// NewRouter builds the chi router serving r's inspection endpoints.
func NewRouter(r *replica.Replica, log *logrus.Logger) chi.Router {
	if log == nil {
		log = logrus.New()
	}
	h := &handler{r: r}

	router := chi.NewRouter()
	router.Use(logging(log))
	router.Get("/heads", h.heads)
	router.Get("/events/{hash}", h.getEvent)
	router.Get("/gate/pending", h.gatePending)
	router.Post("/put", h.put)
	router.Post("/delete", h.delete)
	return router
}
