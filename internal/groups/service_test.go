package groups

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/events"
	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

func newTestService() (*Service, *mocks.GroupRepositoryMock, *mocks.GroupMessageRepositoryMock, *mocks.UserRepositoryMock, *mocks.BroadcasterRecorder) {
	groupRepo := new(mocks.GroupRepositoryMock)
	msgRepo := new(mocks.GroupMessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	recorder := &mocks.BroadcasterRecorder{}
	svc := NewService(groupRepo, msgRepo, userRepo, events.NewEmitter(recorder))
	return svc, groupRepo, msgRepo, userRepo, recorder
}

func member(groupID, userID int, role models.Role) models.GroupMember {
	return models.GroupMember{GroupID: groupID, UserID: userID, Role: role, JoinedAt: time.Now()}
}

func TestAuthorizeNonMember(t *testing.T) {
	svc, groupRepo, _, _, _ := newTestService()
	groupRepo.On("GetMember", mock.Anything, 1, 9).Return(models.GroupMember{}, repositories.ErrMemberNotFound)

	_, err := svc.Authorize(context.Background(), 9, 1, CapReadHistory)
	assert.ErrorIs(t, err, ErrNotAMember)
}

func TestAuthorizeRoleGates(t *testing.T) {
	svc, groupRepo, _, _, _ := newTestService()
	groupRepo.On("GetMember", mock.Anything, 1, 2).Return(member(1, 2, models.RoleMember), nil)
	groupRepo.On("GetMember", mock.Anything, 1, 3).Return(member(1, 3, models.RoleModerator), nil)

	_, err := svc.Authorize(context.Background(), 2, 1, CapManageMembers)
	assert.ErrorIs(t, err, ErrInsufficientRole)

	_, err = svc.Authorize(context.Background(), 3, 1, CapManageMembers)
	assert.NoError(t, err)

	_, err = svc.Authorize(context.Background(), 3, 1, CapManageGroup)
	assert.ErrorIs(t, err, ErrInsufficientRole)
}

func TestCreateGroupDefaultsCapacity(t *testing.T) {
	svc, groupRepo, _, _, _ := newTestService()
	groupRepo.On("Create", mock.Anything, mock.MatchedBy(func(g models.Group) bool {
		return g.MaxMembers == 100 && g.CreatedBy == 1
	})).Return(models.Group{ID: 1, Name: "team", CreatedBy: 1, MaxMembers: 100}, nil)

	group, err := svc.CreateGroup(context.Background(), 1, CreateGroupInput{Name: "team"})
	require.NoError(t, err)
	assert.Equal(t, 100, group.MaxMembers)
}

func TestCreateGroupRejectsBlankName(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	_, err := svc.CreateGroup(context.Background(), 1, CreateGroupInput{Name: "  "})
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestJoinFullGroup(t *testing.T) {
	svc, groupRepo, _, _, _ := newTestService()
	groupRepo.On("AddMember", mock.Anything, 1, 5, models.RoleMember).Return(models.GroupMember{}, repositories.ErrGroupFull)

	_, err := svc.Join(context.Background(), 5, 1)
	assert.ErrorIs(t, err, repositories.ErrGroupFull)
}

func TestJoinAnnouncesMembership(t *testing.T) {
	svc, groupRepo, _, userRepo, recorder := newTestService()
	groupRepo.On("AddMember", mock.Anything, 1, 5, models.RoleMember).Return(member(1, 5, models.RoleMember), nil)
	userRepo.On("Get", mock.Anything, 5).Return(models.User{ID: 5, Name: "eve"}, nil)

	_, err := svc.Join(context.Background(), 5, 1)
	require.NoError(t, err)

	joined := recorder.ByEvent(events.UserJoinedGroup)
	require.Len(t, joined, 1)
	assert.Equal(t, "group.1", joined[0].Channel)
}

func TestLeaveCreatorRefused(t *testing.T) {
	svc, groupRepo, _, _, _ := newTestService()
	groupRepo.On("Get", mock.Anything, 1).Return(models.Group{ID: 1, CreatedBy: 7}, nil)

	err := svc.Leave(context.Background(), 7, 1)
	assert.ErrorIs(t, err, ErrCreatorCannotLeave)
}

func TestRemoveMemberCreatorImmutable(t *testing.T) {
	svc, groupRepo, _, _, _ := newTestService()
	groupRepo.On("GetMember", mock.Anything, 1, 3).Return(member(1, 3, models.RoleModerator), nil)
	groupRepo.On("Get", mock.Anything, 1).Return(models.Group{ID: 1, CreatedBy: 7}, nil)

	err := svc.RemoveMember(context.Background(), 3, 1, 7)
	assert.ErrorIs(t, err, ErrCreatorImmutable)
}

func TestRemoveSelfAfterRemovalIsNotFound(t *testing.T) {
	svc, groupRepo, _, _, _ := newTestService()
	groupRepo.On("Get", mock.Anything, 1).Return(models.Group{ID: 1, CreatedBy: 7}, nil)
	groupRepo.On("RemoveMember", mock.Anything, 1, 5).Return(repositories.ErrMemberNotFound)

	err := svc.RemoveMember(context.Background(), 5, 1, 5)
	assert.ErrorIs(t, err, repositories.ErrMemberNotFound)
}

func TestRemoveMemberRequiresModerator(t *testing.T) {
	svc, groupRepo, _, _, _ := newTestService()
	groupRepo.On("GetMember", mock.Anything, 1, 2).Return(member(1, 2, models.RoleMember), nil)

	err := svc.RemoveMember(context.Background(), 2, 1, 5)
	assert.ErrorIs(t, err, ErrInsufficientRole)
}

func TestUpdateRoleCreatorStaysAdmin(t *testing.T) {
	svc, groupRepo, _, _, _ := newTestService()
	groupRepo.On("GetMember", mock.Anything, 1, 7).Return(member(1, 7, models.RoleAdmin), nil)
	groupRepo.On("Get", mock.Anything, 1).Return(models.Group{ID: 1, CreatedBy: 7}, nil)

	err := svc.UpdateRole(context.Background(), 7, 1, 7, models.RoleMember)
	assert.ErrorIs(t, err, ErrCreatorImmutable)
}

func TestUpdateRoleRejectsUnknownRole(t *testing.T) {
	svc, groupRepo, _, _, _ := newTestService()
	groupRepo.On("GetMember", mock.Anything, 1, 7).Return(member(1, 7, models.RoleAdmin), nil)

	err := svc.UpdateRole(context.Background(), 7, 1, 2, models.Role("owner"))
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestPostMessageRejectsCrossGroupReply(t *testing.T) {
	svc, groupRepo, msgRepo, _, _ := newTestService()
	groupRepo.On("GetMember", mock.Anything, 1, 2).Return(member(1, 2, models.RoleMember), nil)
	replyTo := 40
	msgRepo.On("Get", mock.Anything, 40).Return(models.GroupMessage{ID: 40, GroupID: 99}, nil)

	_, err := svc.PostMessage(context.Background(), 2, 1, PostMessageInput{Body: "hi", ReplyTo: &replyTo})
	assert.ErrorIs(t, err, ErrReplyWrongGroup)
}

func TestPostMessageRejectsMissingReply(t *testing.T) {
	svc, groupRepo, msgRepo, _, _ := newTestService()
	groupRepo.On("GetMember", mock.Anything, 1, 2).Return(member(1, 2, models.RoleMember), nil)
	replyTo := 41
	msgRepo.On("Get", mock.Anything, 41).Return(models.GroupMessage{}, repositories.ErrMessageNotFound)

	_, err := svc.PostMessage(context.Background(), 2, 1, PostMessageInput{Body: "hi", ReplyTo: &replyTo})
	assert.ErrorIs(t, err, ErrReplyNotFound)
}

func TestPostMessageFansOutExcludingAuthor(t *testing.T) {
	svc, groupRepo, msgRepo, userRepo, recorder := newTestService()
	groupRepo.On("GetMember", mock.Anything, 1, 2).Return(member(1, 2, models.RoleMember), nil)
	msgRepo.On("Create", mock.Anything, mock.MatchedBy(func(m models.GroupMessage) bool {
		return m.GroupID == 1 && m.UserID == 2 && m.Body == "hi all"
	})).Return(models.GroupMessage{ID: 50, GroupID: 1, UserID: 2, Body: "hi all", Type: "text", CreatedAt: time.Now()}, nil)
	userRepo.On("Get", mock.Anything, 2).Return(models.User{ID: 2, Name: "bob"}, nil)

	view, err := svc.PostMessage(context.Background(), 2, 1, PostMessageInput{Body: "hi all"})
	require.NoError(t, err)
	assert.Equal(t, 50, view.ID)
	assert.Equal(t, "bob", view.User.Name)

	sent := recorder.ByEvent(events.GroupMessageSent)
	require.Len(t, sent, 1)
	assert.Equal(t, "group.1", sent[0].Channel)
	assert.Equal(t, 2, sent[0].ExcludeUserID)
}

func TestDeleteMessageModeratorOverride(t *testing.T) {
	svc, groupRepo, msgRepo, _, recorder := newTestService()
	msgRepo.On("Get", mock.Anything, 50).Return(models.GroupMessage{ID: 50, GroupID: 1, UserID: 2}, nil)
	groupRepo.On("GetMember", mock.Anything, 1, 3).Return(member(1, 3, models.RoleModerator), nil)
	msgRepo.On("Delete", mock.Anything, 50).Return(nil)

	err := svc.DeleteMessage(context.Background(), 3, 50)
	require.NoError(t, err)

	deleted := recorder.ByEvent(events.GroupMessageDeleted)
	require.Len(t, deleted, 1)
	assert.Equal(t, "group.1", deleted[0].Channel)
}

func TestDeleteMessagePlainMemberForeignMessage(t *testing.T) {
	svc, groupRepo, msgRepo, _, _ := newTestService()
	msgRepo.On("Get", mock.Anything, 50).Return(models.GroupMessage{ID: 50, GroupID: 1, UserID: 2}, nil)
	groupRepo.On("GetMember", mock.Anything, 1, 4).Return(member(1, 4, models.RoleMember), nil)

	err := svc.DeleteMessage(context.Background(), 4, 50)
	assert.ErrorIs(t, err, ErrInsufficientRole)
}
