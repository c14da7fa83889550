package httpx

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	products []shop.Product
	err      error
	category int64
}

func (f *fakeCatalog) ListProducts(context.Context) ([]shop.Product, error) { return f.products, f.err }

func (f *fakeCatalog) ListProductsByCategory(_ context.Context, id int64) ([]shop.Product, error) {
	f.category = id
	return f.products, f.err
}

func (f *fakeCatalog) ListCategories(context.Context) ([]shop.Category, error) {
	return []shop.Category{{ID: 1, Name: "drinks"}}, f.err
}

func TestCatalog(t *testing.T) {
	f := &fakeCatalog{products: []shop.Product{{ID: 1, Name: "kopi", Shop: "shop-a", Price: decimal.RequireFromString("12.50"), Stock: 3}}}
	r := NewRouter(nil, nil)
	(&CatalogHandler{Catalog: f, Service: "test"}).Register(r)

	rec := do(r, http.MethodGet, "/products", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"price":"12.5"`)

	rec = do(r, http.MethodGet, "/products/7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 7, f.category)

	rec = do(r, http.MethodGet, "/products/x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(r, http.MethodGet, "/categories", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":1,"name":"drinks"}]`, rec.Body.String())

	f.err = errors.New("db down")
	rec = do(r, http.MethodGet, "/products", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
