package cart

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/elberthomay/storefront/internal/domain"
)

type CartRepository struct {
	db *sql.DB
}

func NewCartRepository(db *sql.DB) *CartRepository {
	return &CartRepository{db: db}
}

// LineDetail is a cart line joined with enough of the item row to render the
// cart: name, unit price, and how much stock is actually left.
type LineDetail struct {
	domain.CartLine
	Name         string `json:"name"`
	Price        int64  `json:"price"`
	AvailableQty int    `json:"available_quantity"`
}

func (r *CartRepository) ListForUser(ctx context.Context, userID string) ([]LineDetail, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.user_id, c.item_id, c.quantity, c.selected, i.name, i.price, i.quantity
		FROM cart_lines c
		JOIN items i ON i.id = c.item_id
		WHERE c.user_id = $1
		ORDER BY i.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	lines := []LineDetail{}
	for rows.Next() {
		var line LineDetail
		if err := rows.Scan(&line.UserID, &line.ItemID, &line.Quantity,
			&line.Selected, &line.Name, &line.Price, &line.AvailableQty); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	return lines, rows.Err()
}

// AddQuantity inserts a cart line or adds to the existing one, capping the
// accumulated quantity at 9999.
func (r *CartRepository) AddQuantity(ctx context.Context, userID, itemID string, quantity int) (*domain.CartLine, error) {
	line := &domain.CartLine{}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO cart_lines (user_id, item_id, quantity, selected)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (user_id, item_id)
		DO UPDATE SET quantity = LEAST(cart_lines.quantity + EXCLUDED.quantity, 9999)
		RETURNING user_id, item_id, quantity, selected
	`, userID, itemID, quantity).Scan(&line.UserID, &line.ItemID, &line.Quantity, &line.Selected)
	if err != nil {
		return nil, err
	}

	return line, nil
}

// SetQuantity overwrites a line's quantity; zero removes the line.
func (r *CartRepository) SetQuantity(ctx context.Context, userID, itemID string, quantity int) (*domain.CartLine, error) {
	if quantity == 0 {
		deleted, err := r.Delete(ctx, userID, itemID)
		if err != nil || !deleted {
			return nil, err
		}
		return &domain.CartLine{UserID: userID, ItemID: itemID}, nil
	}

	line := &domain.CartLine{}
	err := r.db.QueryRowContext(ctx, `
		UPDATE cart_lines SET quantity = $3
		WHERE user_id = $1 AND item_id = $2
		RETURNING user_id, item_id, quantity, selected
	`, userID, itemID, quantity).Scan(&line.UserID, &line.ItemID, &line.Quantity, &line.Selected)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return line, nil
}

func (r *CartRepository) SetSelected(ctx context.Context, userID, itemID string, selected bool) (*domain.CartLine, error) {
	line := &domain.CartLine{}

	err := r.db.QueryRowContext(ctx, `
		UPDATE cart_lines SET selected = $3
		WHERE user_id = $1 AND item_id = $2
		RETURNING user_id, item_id, quantity, selected
	`, userID, itemID, selected).Scan(&line.UserID, &line.ItemID, &line.Quantity, &line.Selected)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return line, nil
}

func (r *CartRepository) Delete(ctx context.Context, userID, itemID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM cart_lines WHERE user_id = $1 AND item_id = $2
	`, userID, itemID)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

// ListSelectedItems loads the user's selected cart lines joined with the
// current item rows, including the version order placement will compare in
// its conditional decrements.
func (r *CartRepository) ListSelectedItems(ctx context.Context, userID string) ([]domain.SelectedCartItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.item_id, i.shop_id, s.name, i.name, i.description, i.price,
		       c.quantity, i.quantity, i.version
		FROM cart_lines c
		JOIN items i ON i.id = c.item_id
		JOIN shops s ON s.id = i.shop_id
		WHERE c.user_id = $1 AND c.selected
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var selected []domain.SelectedCartItem
	var itemIDs []string
	for rows.Next() {
		var item domain.SelectedCartItem
		if err := rows.Scan(&item.ItemID, &item.ShopID, &item.ShopName, &item.Name,
			&item.Description, &item.Price, &item.RequestedQty,
			&item.AvailableQty, &item.Version); err != nil {
			return nil, err
		}
		selected = append(selected, item)
		itemIDs = append(itemIDs, item.ItemID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(itemIDs) == 0 {
		return selected, nil
	}

	imageRows, err := r.db.QueryContext(ctx, `
		SELECT item_id, image_name, image_order
		FROM item_images
		WHERE item_id = ANY($1)
		ORDER BY item_id, image_order
	`, pq.Array(itemIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = imageRows.Close() }()

	images := make(map[string][]domain.ItemImage)
	for imageRows.Next() {
		var itemID string
		var img domain.ItemImage
		if err := imageRows.Scan(&itemID, &img.ImageName, &img.Order); err != nil {
			return nil, err
		}
		images[itemID] = append(images[itemID], img)
	}
	if err := imageRows.Err(); err != nil {
		return nil, err
	}

	for i := range selected {
		selected[i].Images = images[selected[i].ItemID]
	}

	return selected, nil
}

// isForeignKeyViolation detects an insert referencing a missing item.
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

// DeleteLineTx removes a cart line inside the placement transaction.
func (r *CartRepository) DeleteLineTx(ctx context.Context, tx *sql.Tx, userID, itemID string) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM cart_lines WHERE user_id = $1 AND item_id = $2
	`, userID, itemID)
	return err
}
