package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var (
	ErrGroupNotFound  = errors.New("group not found")
	ErrMemberNotFound = errors.New("member not found")
	ErrAlreadyMember  = errors.New("already a member")
	ErrGroupFull      = errors.New("group has reached maximum member limit")
)

const groupColumns = `id, name, description, image, created_by, is_private, max_members, created_at, updated_at`

// GroupRepository abstracts group and membership persistence.
type GroupRepository interface {
	Create(ctx context.Context, group models.Group) (models.Group, error)
	Get(ctx context.Context, groupID int) (models.Group, error)
	Update(ctx context.Context, group models.Group) (models.Group, error)
	Delete(ctx context.Context, groupID int) error
	ListForUser(ctx context.Context, userID int) ([]models.Group, error)
	GetMember(ctx context.Context, groupID, userID int) (models.GroupMember, error)
	ListMembers(ctx context.Context, groupID int) ([]models.GroupMember, error)
	MemberCount(ctx context.Context, groupID int) (int, error)
	AddMember(ctx context.Context, groupID, userID int, role models.Role) (models.GroupMember, error)
	UpdateRole(ctx context.Context, groupID, userID int, role models.Role) error
	RemoveMember(ctx context.Context, groupID, userID int) error
}

// GroupRepo is a sqlx implementation of GroupRepository.
type GroupRepo struct {
	db *sqlx.DB
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(db *sqlx.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

// Create inserts the group and its creator's admin membership in one
// transaction, so a group never exists without its admin.
func (r *GroupRepo) Create(ctx context.Context, group models.Group) (models.Group, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Group{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var created models.Group
	if err = tx.GetContext(ctx, &created,
		`INSERT INTO groups (name, description, image, created_by, is_private, max_members)
         VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+groupColumns,
		group.Name, group.Description, group.Image, group.CreatedBy, group.IsPrivate, group.MaxMembers); err != nil {
		return models.Group{}, err
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, role, joined_at) VALUES ($1, $2, $3, NOW())`,
		created.ID, group.CreatedBy, models.RoleAdmin); err != nil {
		return models.Group{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Group{}, err
	}
	return created, nil
}

// Get fetches a single group.
func (r *GroupRepo) Get(ctx context.Context, groupID int) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group, `SELECT `+groupColumns+` FROM groups WHERE id=$1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	return group, err
}

// Update rewrites the mutable group settings.
func (r *GroupRepo) Update(ctx context.Context, group models.Group) (models.Group, error) {
	var updated models.Group
	err := r.db.GetContext(ctx, &updated,
		`UPDATE groups SET name=$2, description=$3, image=$4, is_private=$5, max_members=$6, updated_at=NOW()
         WHERE id=$1 RETURNING `+groupColumns,
		group.ID, group.Name, group.Description, group.Image, group.IsPrivate, group.MaxMembers)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	return updated, err
}

// Delete removes the group; memberships and messages cascade.
func (r *GroupRepo) Delete(ctx context.Context, groupID int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM groups WHERE id=$1`, groupID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrGroupNotFound
	}
	return nil
}

// ListForUser returns groups that include the user, most recent first.
func (r *GroupRepo) ListForUser(ctx context.Context, userID int) ([]models.Group, error) {
	var groups []models.Group
	err := r.db.SelectContext(ctx, &groups,
		`SELECT g.id, g.name, g.description, g.image, g.created_by, g.is_private, g.max_members, g.created_at, g.updated_at
         FROM groups g INNER JOIN group_members gm ON gm.group_id = g.id
         WHERE gm.user_id=$1 ORDER BY g.updated_at DESC`,
		userID)
	return groups, err
}

// GetMember returns the membership row, or ErrMemberNotFound.
func (r *GroupRepo) GetMember(ctx context.Context, groupID, userID int) (models.GroupMember, error) {
	var member models.GroupMember
	err := r.db.GetContext(ctx, &member,
		`SELECT group_id, user_id, role, joined_at FROM group_members WHERE group_id=$1 AND user_id=$2`,
		groupID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.GroupMember{}, ErrMemberNotFound
	}
	return member, err
}

// ListMembers returns all membership rows for a group.
func (r *GroupRepo) ListMembers(ctx context.Context, groupID int) ([]models.GroupMember, error) {
	var members []models.GroupMember
	err := r.db.SelectContext(ctx, &members,
		`SELECT group_id, user_id, role, joined_at FROM group_members WHERE group_id=$1 ORDER BY joined_at ASC`,
		groupID)
	return members, err
}

// MemberCount reports the current membership size.
func (r *GroupRepo) MemberCount(ctx context.Context, groupID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM group_members WHERE group_id=$1`, groupID)
	return count, err
}

// AddMember is the single authoritative check-and-insert: it locks the
// group row, verifies capacity against the same snapshot the insert
// uses, and relies on the (group_id, user_id) primary key to reject
// duplicates. Concurrent joins serialize on the row lock, so the count
// can never exceed max_members.
func (r *GroupRepo) AddMember(ctx context.Context, groupID, userID int, role models.Role) (models.GroupMember, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.GroupMember{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var maxMembers int
	err = tx.GetContext(ctx, &maxMembers, `SELECT max_members FROM groups WHERE id=$1 FOR UPDATE`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrGroupNotFound
		return models.GroupMember{}, err
	}
	if err != nil {
		return models.GroupMember{}, err
	}

	var count int
	if err = tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM group_members WHERE group_id=$1`, groupID); err != nil {
		return models.GroupMember{}, err
	}
	if count >= maxMembers {
		err = ErrGroupFull
		return models.GroupMember{}, err
	}

	var member models.GroupMember
	err = tx.GetContext(ctx, &member,
		`INSERT INTO group_members (group_id, user_id, role, joined_at) VALUES ($1, $2, $3, NOW())
         ON CONFLICT (group_id, user_id) DO NOTHING
         RETURNING group_id, user_id, role, joined_at`,
		groupID, userID, role)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrAlreadyMember
		return models.GroupMember{}, err
	}
	if err != nil {
		return models.GroupMember{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.GroupMember{}, err
	}
	return member, nil
}

// UpdateRole changes an existing member's role.
func (r *GroupRepo) UpdateRole(ctx context.Context, groupID, userID int, role models.Role) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE group_members SET role=$3 WHERE group_id=$1 AND user_id=$2`, groupID, userID, role)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// RemoveMember deletes the membership row.
func (r *GroupRepo) RemoveMember(ctx context.Context, groupID, userID int) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id=$1 AND user_id=$2`, groupID, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMemberNotFound
	}
	return nil
}
