package delivery

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
)

func newTestService() (*Service, *mocks.MessageRepositoryMock, *mocks.UserRepositoryMock, *mocks.BroadcasterRecorder) {
	msgRepo := new(mocks.MessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	recorder := &mocks.BroadcasterRecorder{}
	svc := NewService(msgRepo, userRepo, events.NewEmitter(recorder))
	return svc, msgRepo, userRepo, recorder
}

func TestSendRejectsAnonymousSender(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.Send(context.Background(), 0, 2, "hello")
	assert.ErrorIs(t, err, ErrAnonymousSender)
}

func TestSendRejectsBlankBody(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.Send(context.Background(), 1, 2, "   ")
	assert.ErrorIs(t, err, ErrEmptyBody)
}

func TestSendRejectsUnknownReceiver(t *testing.T) {
	svc, _, userRepo, _ := newTestService()
	userRepo.On("Exists", mock.Anything, 99).Return(false, nil)

	_, err := svc.Send(context.Background(), 1, 99, "hello")
	assert.ErrorIs(t, err, ErrReceiverNotFound)
}

func TestSendPersistsThenNotifiesReceiver(t *testing.T) {
	svc, msgRepo, userRepo, recorder := newTestService()
	userRepo.On("Exists", mock.Anything, 2).Return(true, nil)

	created := models.DirectMessage{ID: 10, SenderID: 1, ReceiverID: 2, Body: "hello", CreatedAt: time.Now()}
	msgRepo.On("Create", mock.Anything, 1, 2, "hello").Return(created, nil)

	msg, err := svc.Send(context.Background(), 1, 2, "hello")
	require.NoError(t, err)
	assert.Equal(t, 10, msg.ID)

	sent := recorder.ByEvent(events.MessageSent)
	require.Len(t, sent, 1)
	assert.Equal(t, "chat.2", sent[0].Channel)
	assert.Equal(t, 0, sent[0].ExcludeUserID)
}

func TestMarkDeliveredEmitsOnePerTransitionedRow(t *testing.T) {
	svc, msgRepo, _, recorder := newTestService()

	now := time.Now()
	rows := []models.DirectMessage{
		{ID: 1, SenderID: 5, ReceiverID: 2, DeliveredAt: &now},
		{ID: 2, SenderID: 5, ReceiverID: 2, DeliveredAt: &now},
	}
	msgRepo.On("MarkDelivered", mock.Anything, 2, 5).Return(rows, nil)

	msgs, err := svc.MarkDelivered(context.Background(), 2, 5)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	delivered := recorder.ByEvent(events.MessageDelivered)
	require.Len(t, delivered, 2)
	for _, rec := range delivered {
		assert.Equal(t, "chat.5", rec.Channel)
		assert.Equal(t, 2, rec.ExcludeUserID)
	}
}

func TestMarkDeliveredIsIdempotent(t *testing.T) {
	svc, msgRepo, _, recorder := newTestService()
	msgRepo.On("MarkDelivered", mock.Anything, 2, 5).Return([]models.DirectMessage{}, nil)

	msgs, err := svc.MarkDelivered(context.Background(), 2, 5)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Empty(t, recorder.ByEvent(events.MessageDelivered))
}

func TestMarkReadEmitsOnSenderChannel(t *testing.T) {
	svc, msgRepo, _, recorder := newTestService()

	now := time.Now()
	rows := []models.DirectMessage{{ID: 7, SenderID: 5, ReceiverID: 2, IsRead: true, DeliveredAt: &now}}
	msgRepo.On("MarkRead", mock.Anything, 2, 5).Return(rows, nil)

	msgs, err := svc.MarkRead(context.Background(), 2, 5)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsRead)
	assert.NotNil(t, msgs[0].DeliveredAt)

	read := recorder.ByEvent(events.MessageRead)
	require.Len(t, read, 1)
	assert.Equal(t, "chat.5", read[0].Channel)
	assert.Equal(t, 2, read[0].ExcludeUserID)
}

func TestConversationStampsBeforeListing(t *testing.T) {
	svc, msgRepo, _, recorder := newTestService()

	now := time.Now()
	stamped := []models.DirectMessage{{ID: 1, SenderID: 5, ReceiverID: 2, Body: "hi", DeliveredAt: &now}}

	var calls []string
	msgRepo.On("MarkDelivered", mock.Anything, 2, 5).Run(func(mock.Arguments) {
		calls = append(calls, "mark")
	}).Return(stamped, nil)
	msgRepo.On("ListConversation", mock.Anything, 2, 5).Run(func(mock.Arguments) {
		calls = append(calls, "list")
	}).Return(stamped, nil)

	msgs, err := svc.Conversation(context.Background(), 2, 5)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	// Rows stamped by this very call are returned already delivered.
	assert.Equal(t, []string{"mark", "list"}, calls)
	assert.NotNil(t, msgs[0].DeliveredAt)
	assert.Len(t, recorder.ByEvent(events.MessageDelivered), 1)
	msgRepo.AssertExpectations(t)
}

func TestPendingCount(t *testing.T) {
	svc, msgRepo, _, _ := newTestService()
	msgRepo.On("CountUndelivered", mock.Anything, 2).Return(3, nil)

	count, err := svc.PendingCount(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
