package entities

import "time"

// NormalizedRecord is a schema-shaped row of the primary store, upserted by
// its external id.
type NormalizedRecord interface {
	Resource() ResourceType
	ExternalKey() string
	MarkSynced(at time.Time)
}

type Order struct {
	ExternalID        string    `gorm:"primaryKey;size:64" json:"externalId"`
	Name              string    `gorm:"size:64" json:"name"`
	Email             string    `gorm:"size:255;index" json:"email"`
	Currency          string    `gorm:"size:8" json:"currency"`
	TotalPrice        float64   `json:"totalPrice"`
	SubtotalPrice     float64   `json:"subtotalPrice"`
	FinancialStatus   string    `gorm:"size:32" json:"financialStatus"`
	FulfillmentStatus string    `gorm:"size:32" json:"fulfillmentStatus"`
	LineItemCount     int       `json:"lineItemCount"`
	ProcessedAt       time.Time `json:"processedAt"`
	CreatedAt         time.Time `gorm:"autoCreateTime:false" json:"createdAt"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime:false;index" json:"updatedAt"`
	SyncedAt          time.Time `json:"syncedAt"`
}

func (Order) TableName() string {
	return "orders"
}

func (o *Order) Resource() ResourceType  { return ResourceOrders }
func (o *Order) ExternalKey() string     { return o.ExternalID }
func (o *Order) MarkSynced(at time.Time) { o.SyncedAt = at }

type Product struct {
	ExternalID     string    `gorm:"primaryKey;size:64" json:"externalId"`
	Title          string    `gorm:"size:512" json:"title"`
	Handle         string    `gorm:"size:255;index" json:"handle"`
	Vendor         string    `gorm:"size:255" json:"vendor"`
	ProductType    string    `gorm:"size:255" json:"productType"`
	Status         string    `gorm:"size:32" json:"status"`
	MinPrice       float64   `json:"minPrice"`
	Currency       string    `gorm:"size:8" json:"currency"`
	TotalInventory int       `json:"totalInventory"`
	CreatedAt      time.Time `gorm:"autoCreateTime:false" json:"createdAt"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime:false;index" json:"updatedAt"`
	SyncedAt       time.Time `json:"syncedAt"`
}

func (Product) TableName() string {
	return "products"
}

func (p *Product) Resource() ResourceType  { return ResourceProducts }
func (p *Product) ExternalKey() string     { return p.ExternalID }
func (p *Product) MarkSynced(at time.Time) { p.SyncedAt = at }
