package entities

import "fmt"

// ResourceType identifies an upstream collection that can be synchronized.
type ResourceType string

const (
	ResourceOrders   ResourceType = "orders"
	ResourceProducts ResourceType = "products"
)

// ResourceTypes lists every synchronizable resource in a stable order.
var ResourceTypes = []ResourceType{ResourceOrders, ResourceProducts}

func (r ResourceType) Valid() bool {
	switch r {
	case ResourceOrders, ResourceProducts:
		return true
	}
	return false
}

func (r ResourceType) String() string {
	return string(r)
}

// ParseResourceType validates a user supplied resource type.
func ParseResourceType(s string) (ResourceType, error) {
	r := ResourceType(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown resource type %q (expected orders or products)", s)
	}
	return r, nil
}
