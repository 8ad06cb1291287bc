package auth

import (
	"context"
	"database/sql"

	"github.com/elberthomay/storefront/internal/domain"
)

type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// ActorForToken resolves a session token to the acting user, including the
// shop they own, if any. Returns nil when the token is unknown.
func (r *SessionRepository) ActorForToken(ctx context.Context, token string) (*domain.Actor, error) {
	actor := &domain.Actor{}
	var shopID sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT u.id, u.privilege, s.id
		FROM sessions se
		JOIN users u ON u.id = se.user_id
		LEFT JOIN shops s ON s.user_id = u.id
		WHERE se.token = $1
	`, token).Scan(&actor.UserID, &actor.Privilege, &shopID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if shopID.Valid {
		actor.ShopID = shopID.String
	}

	return actor, nil
}
