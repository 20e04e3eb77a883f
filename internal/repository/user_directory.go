package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/graphium/importsvc/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type userDirectory struct {
	pool *pgxpool.Pool
}

// NewUserDirectory wires the org-user lookup used to vet assignment targets.
func NewUserDirectory(pool *pgxpool.Pool) UserDirectory {
	return &userDirectory{pool: pool}
}

func (d *userDirectory) GetUser(ctx context.Context, organizationID uuid.UUID, userName string) (domain.OrgUser, error) {
	var (
		user  domain.OrgUser
		roles []string
	)
	err := d.pool.QueryRow(
		ctx,
		`SELECT user_name, org_user_id, roles FROM org_users
		 WHERE organization_id = $1 AND user_name = $2`,
		organizationID,
		userName,
	).Scan(&user.UserName, &user.OrgUserID, &roles)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.OrgUser{}, domain.NewNotFoundError("user", userName)
		}
		return domain.OrgUser{}, fmt.Errorf("failed to get org user: %w", err)
	}

	user.Roles = make([]domain.Role, len(roles))
	for i, role := range roles {
		user.Roles[i] = domain.Role(role)
	}
	return user, nil
}
