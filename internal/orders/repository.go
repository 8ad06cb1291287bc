package orders

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/elberthomay/storefront/internal/domain"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// CreateTx persists an order aggregate inside the placement transaction:
// the order row, every item snapshot, and every image snapshot.
func (r *OrderRepository) CreateTx(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, shop_id, status, recipient, phone_number,
		                    province, city, district, village, detail, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
	`, order.ID, order.UserID, order.ShopID, order.Status,
		order.Address.Recipient, order.Address.PhoneNumber, order.Address.Province,
		order.Address.City, order.Address.District, order.Address.Village,
		order.Address.Detail, order.CreatedAt)
	if err != nil {
		return err
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, item_id, name, description, price, quantity)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, order.ID, item.ItemID, item.Name, item.Description, item.Price, item.Quantity)
		if err != nil {
			return err
		}

		for _, img := range item.Images {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO order_item_images (order_id, item_id, image_name, image_order)
				VALUES ($1, $2, $3, $4)
			`, order.ID, item.ItemID, img.ImageName, img.Order)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order := &domain.Order{}

	err := r.db.QueryRowContext(ctx, `
		SELECT o.id, o.user_id, o.shop_id, s.name, o.status, o.recipient, o.phone_number,
		       o.province, o.city, o.district, o.village, o.detail, o.created_at, o.updated_at
		FROM orders o
		JOIN shops s ON s.id = o.shop_id
		WHERE o.id = $1
	`, id).Scan(&order.ID, &order.UserID, &order.ShopID, &order.ShopName, &order.Status,
		&order.Address.Recipient, &order.Address.PhoneNumber, &order.Address.Province,
		&order.Address.City, &order.Address.District, &order.Address.Village,
		&order.Address.Detail, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	orders := []*domain.Order{order}
	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}

	return order, nil
}

// TransitionStatus conditionally moves an order from expected to target in a
// single atomic statement, reporting whether the update took. Zero rows means
// the order is missing or its status already moved on; callers distinguish
// the two with a follow-up read.
func (r *OrderRepository) TransitionStatus(ctx context.Context, id string, expected, target domain.OrderStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, expected, target)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected == 1, nil
}

// SelectedAddress fetches the buyer's currently selected shipping address,
// the source of the snapshot copied onto new orders. Nil when the user has
// no selected address.
func (r *OrderRepository) SelectedAddress(ctx context.Context, userID string) (*domain.AddressSnapshot, error) {
	addr := &domain.AddressSnapshot{}

	err := r.db.QueryRowContext(ctx, `
		SELECT recipient, phone_number, province, city, district, village, detail
		FROM addresses
		WHERE user_id = $1 AND selected
	`, userID).Scan(&addr.Recipient, &addr.PhoneNumber, &addr.Province,
		&addr.City, &addr.District, &addr.Village, &addr.Detail)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return addr, nil
}

// List runs the filtered, paged order listing. The filter must already be
// validated; exactly one of UserID/ShopID is set.
func (r *OrderRepository) List(ctx context.Context, filter ListFilter) ([]domain.Order, error) {
	var conditions []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.UserID != "" {
		conditions = append(conditions, "o.user_id = "+arg(filter.UserID))
	} else {
		conditions = append(conditions, "o.shop_id = "+arg(filter.ShopID))
	}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		conditions = append(conditions, "o.status = ANY("+arg(pq.Array(statuses))+")")
	}

	if filter.ItemName != "" {
		conditions = append(conditions, `EXISTS (
			SELECT 1 FROM order_items oi
			WHERE oi.order_id = o.id AND oi.name ILIKE '%' || `+arg(filter.ItemName)+` || '%'
		)`)
	}

	if filter.NewerThan != nil {
		conditions = append(conditions, "o.created_at > "+arg(*filter.NewerThan))
	}

	direction := "DESC"
	if filter.OrderBy == OrderByOldest {
		direction = "ASC"
	}

	query := `
		SELECT o.id, o.user_id, o.shop_id, s.name, o.status, o.recipient, o.phone_number,
		       o.province, o.city, o.district, o.village, o.detail, o.created_at, o.updated_at
		FROM orders o
		JOIN shops s ON s.id = o.shop_id
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY o.created_at ` + direction + `
		LIMIT ` + arg(filter.Limit) + ` OFFSET ` + arg((filter.Page-1)*filter.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var orders []*domain.Order
	for rows.Next() {
		order := &domain.Order{}
		if err := rows.Scan(&order.ID, &order.UserID, &order.ShopID, &order.ShopName,
			&order.Status, &order.Address.Recipient, &order.Address.PhoneNumber,
			&order.Address.Province, &order.Address.City, &order.Address.District,
			&order.Address.Village, &order.Address.Detail,
			&order.CreatedAt, &order.UpdatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}

	result := make([]domain.Order, len(orders))
	for i, order := range orders {
		result[i] = *order
	}

	return result, nil
}

// loadItems batch-loads item and image snapshots for the given orders in two
// queries, avoiding a per-order round trip.
func (r *OrderRepository) loadItems(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	byID := make(map[string]*domain.Order, len(orders))
	orderIDs := make([]string, len(orders))
	for i, order := range orders {
		order.Items = []domain.OrderItem{}
		byID[order.ID] = order
		orderIDs[i] = order.ID
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, item_id, name, description, price, quantity
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, name
	`, pq.Array(orderIDs))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	itemIndex := make(map[string]map[string]int)
	for rows.Next() {
		var orderID string
		var item domain.OrderItem
		if err := rows.Scan(&orderID, &item.ItemID, &item.Name, &item.Description,
			&item.Price, &item.Quantity); err != nil {
			return err
		}
		order := byID[orderID]
		if itemIndex[orderID] == nil {
			itemIndex[orderID] = make(map[string]int)
		}
		itemIndex[orderID][item.ItemID] = len(order.Items)
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	imageRows, err := r.db.QueryContext(ctx, `
		SELECT order_id, item_id, image_name, image_order
		FROM order_item_images
		WHERE order_id = ANY($1)
		ORDER BY order_id, item_id, image_order
	`, pq.Array(orderIDs))
	if err != nil {
		return err
	}
	defer func() { _ = imageRows.Close() }()

	for imageRows.Next() {
		var orderID, itemID string
		var img domain.ItemImage
		if err := imageRows.Scan(&orderID, &itemID, &img.ImageName, &img.Order); err != nil {
			return err
		}
		if idx, ok := itemIndex[orderID][itemID]; ok {
			order := byID[orderID]
			order.Items[idx].Images = append(order.Items[idx].Images, img)
		}
	}

	return imageRows.Err()
}
