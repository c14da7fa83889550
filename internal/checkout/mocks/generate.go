// Package mocks provides gomock-generated doubles for checkout collaborators.
package mocks

//go:generate mockgen -destination=mock_gateway.go -package=mocks github.com/ariefcatur/go-shop-checkout/internal/checkout Gateway
