package collaborators

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/chatcore/chatcore/internal/domain"
)

// GormRelationalEngine implements RelationalEngine over the order/customer/
// product schema, gated by both order id and owning user id in a single
// query (spec §4.4 — a row is returned only if the user owns the order).
type GormRelationalEngine struct {
	db *gorm.DB
}

func NewGormRelationalEngine(db *gorm.DB) *GormRelationalEngine {
	return &GormRelationalEngine{db: db}
}

func (g *GormRelationalEngine) QueryOrderByIDAndUser(ctx context.Context, orderID, userID string) (RelationalRow, bool, error) {
	var row domain.OrderJoinRow

	err := g.db.WithContext(ctx).
		Table("orders").
		Select(`orders.id AS order_id, orders.quantity, orders.ordered_at, orders.delivery_at,
			products.name AS product_name,
			customers.user_id AS customer_user_id, customers.email AS customer_email,
			customers.first_name AS customer_first_name, customers.last_name AS customer_last_name`).
		Joins("JOIN customers ON customers.id = orders.customer_id").
		Joins("JOIN products ON products.id = orders.product_id").
		Where("orders.id = ? AND customers.user_id = ?", orderID, userID).
		Take(&row).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query order %s for user: %w", orderID, err)
	}

	result := RelationalRow{
		"order_id":       fmt.Sprintf("%d", row.OrderID),
		"quantity":       row.Quantity,
		"ordered_at":     row.OrderedAt,
		"delivery_at":    row.DeliveryAt,
		"product_name":   row.ProductName,
		"customer_email": row.CustomerEmail,
		"first_name":     row.CustomerFirstName,
		"last_name":      row.CustomerLastName,
	}
	return result, true, nil
}
