package shopify

import (
	"fmt"
	"strings"
	"time"

	"github.com/mrlokans/storesync/internal/entities"
)

const ordersQuery = `query Orders($first: Int!, $after: String, $query: String) {
  orders(first: $first, after: $after, query: $query, sortKey: UPDATED_AT) {
    nodes {
      id
      name
      email
      currencyCode
      displayFinancialStatus
      displayFulfillmentStatus
      processedAt
      createdAt
      updatedAt
      subtotalLineItemsQuantity
      totalPriceSet { shopMoney { amount currencyCode } }
      subtotalPriceSet { shopMoney { amount currencyCode } }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

const productsQuery = `query Products($first: Int!, $after: String, $query: String) {
  products(first: $first, after: $after, query: $query, sortKey: UPDATED_AT) {
    nodes {
      id
      title
      handle
      vendor
      productType
      status
      totalInventory
      createdAt
      updatedAt
      priceRangeV2 { minVariantPrice { amount currencyCode } }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

const ordersCountQuery = `query OrdersCount($query: String) {
  ordersCount(query: $query, limit: null) { count }
}`

const productsCountQuery = `query ProductsCount($query: String) {
  productsCount(query: $query, limit: null) { count }
}`

// connectionField is the root field of the page query for a resource type.
func connectionField(rt entities.ResourceType) (string, string, error) {
	switch rt {
	case entities.ResourceOrders:
		return "orders", ordersQuery, nil
	case entities.ResourceProducts:
		return "products", productsQuery, nil
	}
	return "", "", fmt.Errorf("unsupported resource type %q", rt)
}

func countField(rt entities.ResourceType) (string, string, error) {
	switch rt {
	case entities.ResourceOrders:
		return "ordersCount", ordersCountQuery, nil
	case entities.ResourceProducts:
		return "productsCount", productsCountQuery, nil
	}
	return "", "", fmt.Errorf("unsupported resource type %q", rt)
}

// FetchOptions narrows the records requested from the API.
type FetchOptions struct {
	PageSize      int
	UpdatedAfter  *time.Time
	UpdatedBefore *time.Time
}

// SearchQuery renders the date bounds in Shopify search syntax.
func (o FetchOptions) SearchQuery() string {
	var parts []string
	if o.UpdatedAfter != nil {
		parts = append(parts, fmt.Sprintf("updated_at:>='%s'", o.UpdatedAfter.UTC().Format(time.RFC3339)))
	}
	if o.UpdatedBefore != nil {
		parts = append(parts, fmt.Sprintf("updated_at:<'%s'", o.UpdatedBefore.UTC().Format(time.RFC3339)))
	}
	return strings.Join(parts, " AND ")
}

func (o FetchOptions) pageSize() int {
	return entities.JobConfig{BatchSize: o.PageSize}.EffectiveBatchSize()
}
