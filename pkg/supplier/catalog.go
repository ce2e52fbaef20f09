package supplier

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	pkgerrors "github.com/dropone-app/dropone-backend/pkg/errors"
)

const productCacheKeyPrefix = "supplier:cj:product:"

// Variant is one purchasable SKU of a supplier product.
type Variant struct {
	VariantID string  `json:"vid"`
	Name      string  `json:"variantNameEn"`
	SKU       string  `json:"variantSku"`
	SellPrice float64 `json:"variantSellPrice"`
	ProductID string  `json:"pid"`
}

// Product is the catalog snapshot of a supplier product.
type Product struct {
	ProductID string    `json:"pid"`
	Name      string    `json:"productNameEn"`
	Variants  []Variant `json:"variants"`
}

// DefaultVariantID returns the first variant, which single-product stores sell.
func (p Product) DefaultVariantID() string {
	for _, v := range p.Variants {
		if strings.TrimSpace(v.VariantID) != "" {
			return v.VariantID
		}
	}
	return ""
}

// ProductDetail returns the catalog snapshot for a product, served from the
// cache when it is younger than the configured TTL.
func (c *Client) ProductDetail(ctx context.Context, productID string) (*Product, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "supplier client not configured")
	}
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	key := productCacheKeyPrefix + pid
	if c.cache != nil && c.catalogTTL > 0 {
		var cached Product
		found, err := c.cache.GetFresh(ctx, key, c.catalogTTL, &cached)
		if err == nil && found {
			return &cached, nil
		}
	}

	var product Product
	if err := c.call(ctx, "product detail", http.MethodGet, "product/query?pid="+url.QueryEscape(pid), nil, &product); err != nil {
		return nil, err
	}
	if product.ProductID == "" {
		product.ProductID = pid
	}
	if c.cache != nil {
		_ = c.cache.Put(ctx, key, product)
	}
	return &product, nil
}
