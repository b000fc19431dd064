// Package groups implements group lifecycle, membership with role-based
// authorization, and group message fan-out.
package groups

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"messaging-service/internal/events"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

var (
	ErrNotAMember         = errors.New("not a member of this group")
	ErrInsufficientRole   = errors.New("insufficient role for this action")
	ErrCreatorCannotLeave = errors.New("group creator cannot leave; delete the group instead")
	ErrCreatorImmutable   = errors.New("group creator cannot be removed or demoted")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidName        = errors.New("group name must not be empty")
	ErrInvalidMaxMembers  = errors.New("max_members must allow at least two members")
	ErrEmptyBody          = errors.New("message body must not be empty")
	ErrReplyNotFound      = errors.New("reply target does not exist")
	ErrReplyWrongGroup    = errors.New("reply target belongs to a different group")
)

const defaultMaxMembers = 100

// Service wires group repositories to the broadcast emitter.
type Service struct {
	groups   repositories.GroupRepository
	messages repositories.GroupMessageRepository
	users    repositories.UserRepository
	emitter  *events.Emitter
}

// NewService builds a groups Service.
func NewService(groups repositories.GroupRepository, messages repositories.GroupMessageRepository, users repositories.UserRepository, emitter *events.Emitter) *Service {
	return &Service{groups: groups, messages: messages, users: users, emitter: emitter}
}

// Authorize returns the actor's membership when it grants the
// capability. Non-members get ErrNotAMember; members below the required
// rank get ErrInsufficientRole.
func (s *Service) Authorize(ctx context.Context, actorID, groupID int, cap Capability) (models.GroupMember, error) {
	member, err := s.groups.GetMember(ctx, groupID, actorID)
	if errors.Is(err, repositories.ErrMemberNotFound) {
		return models.GroupMember{}, ErrNotAMember
	}
	if err != nil {
		return models.GroupMember{}, err
	}
	if !member.Role.AtLeast(requiredRole(cap)) {
		return member, ErrInsufficientRole
	}
	return member, nil
}

// CreateGroupInput carries the mutable group settings.
type CreateGroupInput struct {
	Name        string
	Description *string
	Image       *string
	IsPrivate   bool
	MaxMembers  int
}

// CreateGroup creates a group with the actor as its admin member.
func (s *Service) CreateGroup(ctx context.Context, actorID int, input CreateGroupInput) (models.Group, error) {
	if strings.TrimSpace(input.Name) == "" {
		return models.Group{}, ErrInvalidName
	}
	if input.MaxMembers == 0 {
		input.MaxMembers = defaultMaxMembers
	}
	if input.MaxMembers < 2 {
		return models.Group{}, ErrInvalidMaxMembers
	}

	return s.groups.Create(ctx, models.Group{
		Name:        input.Name,
		Description: input.Description,
		Image:       input.Image,
		CreatedBy:   actorID,
		IsPrivate:   input.IsPrivate,
		MaxMembers:  input.MaxMembers,
	})
}

// GetGroup returns the group to a member.
func (s *Service) GetGroup(ctx context.Context, actorID, groupID int) (models.Group, error) {
	if _, err := s.Authorize(ctx, actorID, groupID, CapReadHistory); err != nil {
		return models.Group{}, err
	}
	return s.groups.Get(ctx, groupID)
}

// ListGroups returns the groups the actor belongs to.
func (s *Service) ListGroups(ctx context.Context, actorID int) ([]models.Group, error) {
	return s.groups.ListForUser(ctx, actorID)
}

// UpdateGroup rewrites group settings; admin only.
func (s *Service) UpdateGroup(ctx context.Context, actorID, groupID int, input CreateGroupInput) (models.Group, error) {
	if _, err := s.Authorize(ctx, actorID, groupID, CapManageGroup); err != nil {
		return models.Group{}, err
	}
	if strings.TrimSpace(input.Name) == "" {
		return models.Group{}, ErrInvalidName
	}
	if input.MaxMembers < 2 {
		return models.Group{}, ErrInvalidMaxMembers
	}
	return s.groups.Update(ctx, models.Group{
		ID:          groupID,
		Name:        input.Name,
		Description: input.Description,
		Image:       input.Image,
		IsPrivate:   input.IsPrivate,
		MaxMembers:  input.MaxMembers,
	})
}

// DeleteGroup removes the group entirely; admin only. This is the only
// way the creator's membership ends.
func (s *Service) DeleteGroup(ctx context.Context, actorID, groupID int) error {
	if _, err := s.Authorize(ctx, actorID, groupID, CapManageGroup); err != nil {
		return err
	}
	return s.groups.Delete(ctx, groupID)
}

// Join adds the actor as a plain member. Capacity and the duplicate
// check are enforced by the repository's single check-and-insert, so
// racing joins cannot push the count past max_members.
func (s *Service) Join(ctx context.Context, actorID, groupID int) (models.GroupMember, error) {
	member, err := s.groups.AddMember(ctx, groupID, actorID, models.RoleMember)
	if err != nil {
		return models.GroupMember{}, err
	}
	s.announceJoin(ctx, groupID, actorID)
	return member, nil
}

// Leave removes the actor's own membership. The creator must delete the
// group instead.
func (s *Service) Leave(ctx context.Context, actorID, groupID int) error {
	group, err := s.groups.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if group.CreatedBy == actorID {
		return ErrCreatorCannotLeave
	}
	if err := s.groups.RemoveMember(ctx, groupID, actorID); err != nil {
		if errors.Is(err, repositories.ErrMemberNotFound) {
			return ErrNotAMember
		}
		return err
	}
	s.announceLeave(ctx, groupID, actorID)
	return nil
}

// AddMembers attaches users on behalf of a moderator or admin. Users
// already present are skipped; each attach re-checks capacity, so the
// call adds as many as fit and reports who got in.
func (s *Service) AddMembers(ctx context.Context, actorID, groupID int, userIDs []int) ([]models.GroupMember, error) {
	if _, err := s.Authorize(ctx, actorID, groupID, CapManageMembers); err != nil {
		return nil, err
	}

	added := make([]models.GroupMember, 0, len(userIDs))
	for _, userID := range userIDs {
		if exists, err := s.users.Exists(ctx, userID); err != nil {
			return added, err
		} else if !exists {
			continue
		}

		member, err := s.groups.AddMember(ctx, groupID, userID, models.RoleMember)
		if errors.Is(err, repositories.ErrAlreadyMember) {
			continue
		}
		if errors.Is(err, repositories.ErrGroupFull) {
			break
		}
		if err != nil {
			return added, err
		}
		added = append(added, member)
		s.announceJoin(ctx, groupID, userID)
	}
	return added, nil
}

// RemoveMember detaches a user: moderators and admins may remove
// anyone but the creator; a plain member may remove only themself.
// A target who is not (or no longer) a member is a not-found, not an
// authorization failure.
func (s *Service) RemoveMember(ctx context.Context, actorID, groupID, targetID int) error {
	if actorID != targetID {
		if _, err := s.Authorize(ctx, actorID, groupID, CapManageMembers); err != nil {
			return err
		}
	}

	group, err := s.groups.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if group.CreatedBy == targetID {
		return ErrCreatorImmutable
	}

	if err := s.groups.RemoveMember(ctx, groupID, targetID); err != nil {
		return err
	}
	s.announceLeave(ctx, groupID, targetID)
	return nil
}

// UpdateRole changes a member's role; admin only. The creator stays
// admin for the lifetime of the group.
func (s *Service) UpdateRole(ctx context.Context, actorID, groupID, targetID int, role models.Role) error {
	if _, err := s.Authorize(ctx, actorID, groupID, CapChangeRoles); err != nil {
		return err
	}
	if !role.Valid() {
		return ErrInvalidRole
	}

	group, err := s.groups.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if group.CreatedBy == targetID && role != models.RoleAdmin {
		return ErrCreatorImmutable
	}

	return s.groups.UpdateRole(ctx, groupID, targetID, role)
}

// MemberView is a membership row hydrated with user display data.
type MemberView struct {
	User     models.UserRef `json:"user"`
	Role     models.Role    `json:"role"`
	JoinedAt time.Time      `json:"joined_at"`
}

// ListMembers returns the hydrated member list to a member.
func (s *Service) ListMembers(ctx context.Context, actorID, groupID int) ([]MemberView, error) {
	if _, err := s.Authorize(ctx, actorID, groupID, CapReadHistory); err != nil {
		return nil, err
	}

	members, err := s.groups.ListMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	usersByID, err := s.usersByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]MemberView, 0, len(members))
	for _, m := range members {
		views = append(views, MemberView{User: usersByID[m.UserID], Role: m.Role, JoinedAt: m.JoinedAt})
	}
	return views, nil
}

// PostMessageInput carries a new group message.
type PostMessageInput struct {
	Body        string
	Type        string
	Attachments json.RawMessage
	ReplyTo     *int
}

// PostMessage validates membership and the optional reply reference,
// persists the message and fans it out to the group channel. The
// author's own connections are excluded from the echo.
func (s *Service) PostMessage(ctx context.Context, actorID, groupID int, input PostMessageInput) (events.GroupMessageView, error) {
	if _, err := s.Authorize(ctx, actorID, groupID, CapPostMessage); err != nil {
		return events.GroupMessageView{}, err
	}
	if strings.TrimSpace(input.Body) == "" {
		return events.GroupMessageView{}, ErrEmptyBody
	}

	if input.ReplyTo != nil {
		target, err := s.messages.Get(ctx, *input.ReplyTo)
		if errors.Is(err, repositories.ErrMessageNotFound) {
			return events.GroupMessageView{}, ErrReplyNotFound
		}
		if err != nil {
			return events.GroupMessageView{}, err
		}
		if target.GroupID != groupID {
			return events.GroupMessageView{}, ErrReplyWrongGroup
		}
	}

	msg, err := s.messages.Create(ctx, models.GroupMessage{
		GroupID:     groupID,
		UserID:      actorID,
		Body:        input.Body,
		Type:        input.Type,
		Attachments: input.Attachments,
		ReplyTo:     input.ReplyTo,
	})
	if err != nil {
		return events.GroupMessageView{}, err
	}

	view, err := s.hydrate(ctx, msg)
	if err != nil {
		return events.GroupMessageView{}, err
	}

	s.emitter.GroupMessageSent(ctx, groupID, view)
	return view, nil
}

// ListMessages returns recent hydrated messages to a member.
func (s *Service) ListMessages(ctx context.Context, actorID, groupID, limit int) ([]events.GroupMessageView, error) {
	if _, err := s.Authorize(ctx, actorID, groupID, CapReadHistory); err != nil {
		return nil, err
	}

	msgs, err := s.messages.List(ctx, groupID, limit)
	if err != nil {
		return nil, err
	}

	views := make([]events.GroupMessageView, 0, len(msgs))
	for _, msg := range msgs {
		view, err := s.hydrate(ctx, msg)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// DeleteMessage removes a message when the actor authored it or holds
// moderator rank in the owning group, and tells remaining members to
// drop it.
func (s *Service) DeleteMessage(ctx context.Context, actorID, messageID int) error {
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return err
	}

	if msg.UserID != actorID {
		if _, err := s.Authorize(ctx, actorID, msg.GroupID, CapManageMembers); err != nil {
			return err
		}
	} else {
		if _, err := s.Authorize(ctx, actorID, msg.GroupID, CapPostMessage); err != nil {
			return err
		}
	}

	if err := s.messages.Delete(ctx, messageID); err != nil {
		return err
	}

	s.emitter.GroupMessageDeleted(ctx, msg.GroupID, messageID, actorID)
	return nil
}

func (s *Service) hydrate(ctx context.Context, msg models.GroupMessage) (events.GroupMessageView, error) {
	author, err := s.users.Get(ctx, msg.UserID)
	if err != nil {
		return events.GroupMessageView{}, err
	}

	view := events.GroupMessageView{
		ID:        msg.ID,
		Body:      msg.Body,
		Type:      msg.Type,
		ReplyTo:   msg.ReplyTo,
		CreatedAt: msg.CreatedAt,
		User:      author.Ref(),
	}

	if msg.ReplyTo != nil {
		target, err := s.messages.Get(ctx, *msg.ReplyTo)
		if err == nil {
			ref := &events.ReplyRef{ID: target.ID, Body: target.Body}
			if targetAuthor, err := s.users.Get(ctx, target.UserID); err == nil {
				ref.User.Name = targetAuthor.Name
			}
			view.ReplyRef = ref
		}
	}
	return view, nil
}

func (s *Service) usersByID(ctx context.Context, ids []int) (map[int]models.UserRef, error) {
	users, err := s.users.BulkGet(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int]models.UserRef, len(users))
	for _, u := range users {
		byID[u.ID] = u.Ref()
	}
	return byID, nil
}

func (s *Service) announceJoin(ctx context.Context, groupID, userID int) {
	if user, err := s.users.Get(ctx, userID); err == nil {
		s.emitter.UserJoinedGroup(ctx, groupID, user.Ref())
	}
}

func (s *Service) announceLeave(ctx context.Context, groupID, userID int) {
	if user, err := s.users.Get(ctx, userID); err == nil {
		s.emitter.UserLeftGroup(ctx, groupID, user.Ref())
	}
}
