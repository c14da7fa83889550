package httpx

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ariefcatur/go-shop-checkout/internal/logging"
	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Catalog interface {
	ListProducts(ctx context.Context) ([]shop.Product, error)
	ListProductsByCategory(ctx context.Context, categoryID int64) ([]shop.Product, error)
	ListCategories(ctx context.Context) ([]shop.Category, error)
}

type CatalogHandler struct {
	Catalog Catalog
	Service string
}

func (h *CatalogHandler) Register(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Get("/products/{categoryID}", h.listByCategory)
	r.Get("/categories", h.listCategories)
}

func (h *CatalogHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Catalog.ListProducts(r.Context())
	h.respond(w, r, ps, err)
}

func (h *CatalogHandler) listByCategory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "categoryID"), 10, 64)
	if err != nil || id <= 0 {
		writeMessage(w, http.StatusBadRequest, "invalid category id")
		return
	}
	ps, err := h.Catalog.ListProductsByCategory(r.Context(), id)
	h.respond(w, r, ps, err)
}

func (h *CatalogHandler) listCategories(w http.ResponseWriter, r *http.Request) {
	cs, err := h.Catalog.ListCategories(r.Context())
	h.respond(w, r, cs, err)
}

func (h *CatalogHandler) respond(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		logging.Err(logging.Fields{Service: h.Service, RequestID: middleware.GetReqID(r.Context()), Step: "catalog", Status: "failed"}, err)
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, v)
}
