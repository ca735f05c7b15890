package domain

import "time"

// Customer, Product and Order are the relational rows SQL retrieval joins
// against. They model the data the ingestion pipelines populate offline;
// the core only ever reads them (§1, Non-goals).

type Customer struct {
	ID        int64  `gorm:"primaryKey"`
	UserID    string `gorm:"column:user_id;index"`
	Email     string `gorm:"column:email"`
	FirstName string `gorm:"column:first_name"`
	LastName  string `gorm:"column:last_name"`
}

func (Customer) TableName() string { return "customers" }

type Product struct {
	ID   int64  `gorm:"primaryKey"`
	Name string `gorm:"column:name"`
}

func (Product) TableName() string { return "products" }

type Order struct {
	ID         int64     `gorm:"primaryKey"`
	CustomerID int64     `gorm:"column:customer_id;index"`
	ProductID  int64     `gorm:"column:product_id;index"`
	Quantity   int       `gorm:"column:quantity"`
	OrderedAt  time.Time `gorm:"column:ordered_at"`
	DeliveryAt time.Time `gorm:"column:delivery_at"`
}

func (Order) TableName() string { return "orders" }

// OrderJoinRow is the flattened projection SQL retrieval actually selects:
// one order row joined with its owning customer and ordered product.
type OrderJoinRow struct {
	OrderID            int64
	Quantity           int
	OrderedAt          time.Time
	DeliveryAt         time.Time
	ProductName        string
	CustomerUserID     string
	CustomerEmail      string
	CustomerFirstName  string
	CustomerLastName   string
}
