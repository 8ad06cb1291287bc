package inventory

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/elberthomay/storefront/internal/domain"
)

type ItemRepository struct {
	db *sql.DB
}

func NewItemRepository(db *sql.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

func (r *ItemRepository) GetByID(ctx context.Context, id string) (*domain.Item, error) {
	item := &domain.Item{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, shop_id, name, description, price, quantity, version, created_at, updated_at
		FROM items
		WHERE id = $1
	`, id).Scan(&item.ID, &item.ShopID, &item.Name, &item.Description,
		&item.Price, &item.Quantity, &item.Version, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	images, err := r.loadImages(ctx, []string{item.ID})
	if err != nil {
		return nil, err
	}
	item.Images = images[item.ID]

	return item, nil
}

func (r *ItemRepository) Create(ctx context.Context, item *domain.Item) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	item.ID = uuid.New().String()
	item.Version = 1

	err = tx.QueryRowContext(ctx, `
		INSERT INTO items (id, shop_id, name, description, price, quantity, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING created_at, updated_at
	`, item.ID, item.ShopID, item.Name, item.Description, item.Price,
		item.Quantity, item.Version).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return err
	}

	for _, img := range item.Images {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO item_images (item_id, image_name, image_order)
			VALUES ($1, $2, $3)
		`, item.ID, img.ImageName, img.Order)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ItemUpdate carries the fields a seller edit may change. Nil fields are
// left untouched.
type ItemUpdate struct {
	Name        *string
	Description *string
	Price       *int64
	Quantity    *int
}

// Update applies a seller edit and bumps the version, so any in-flight
// placement that read the old row loses its conditional decrement.
func (r *ItemRepository) Update(ctx context.Context, id string, upd ItemUpdate) (*domain.Item, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE items
		SET name = COALESCE($2, name),
		    description = COALESCE($3, description),
		    price = COALESCE($4, price),
		    quantity = COALESCE($5, quantity),
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1
	`, id, upd.Name, upd.Description, upd.Price, upd.Quantity)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, nil
	}

	return r.GetByID(ctx, id)
}

func (r *ItemRepository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

// DecrementQuantity is the sole synchronization primitive protecting stock.
// It subtracts amount from the item's quantity only while the row still
// carries the version the caller read, in a single atomic statement, and
// reports whether the update took. A false return means another writer got
// there first and the caller must abort its transaction.
func (r *ItemRepository) DecrementQuantity(ctx context.Context, tx *sql.Tx, itemID string, amount int, expectedVersion int64) (bool, error) {
	result, err := tx.ExecContext(ctx, `
		UPDATE items
		SET quantity = quantity - $2, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $3
	`, itemID, amount, expectedVersion)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected == 1, nil
}

func (r *ItemRepository) loadImages(ctx context.Context, itemIDs []string) (map[string][]domain.ItemImage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT item_id, image_name, image_order
		FROM item_images
		WHERE item_id = ANY($1)
		ORDER BY item_id, image_order
	`, pq.Array(itemIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	images := make(map[string][]domain.ItemImage)
	for rows.Next() {
		var itemID string
		var img domain.ItemImage
		if err := rows.Scan(&itemID, &img.ImageName, &img.Order); err != nil {
			return nil, err
		}
		images[itemID] = append(images[itemID], img)
	}

	return images, rows.Err()
}
