package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"messaging-service/internal/delivery"
	"messaging-service/internal/events"
	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
)

func asUser(userID int) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", userID)
		c.Next()
	}
}

func newMessageRouter(userID int) (*gin.Engine, *mocks.MessageRepositoryMock, *mocks.UserRepositoryMock) {
	gin.SetMode(gin.TestMode)

	msgRepo := new(mocks.MessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	svc := delivery.NewService(msgRepo, userRepo, events.NewEmitter(&mocks.BroadcasterRecorder{}))
	handler := NewMessageHandler(svc, nil)

	router := gin.New()
	router.Use(asUser(userID))
	router.POST("/messages", handler.Send)
	router.GET("/messages/pending", handler.PendingCount)
	router.GET("/conversations/:user_id", handler.Conversation)
	router.POST("/conversations/:user_id/delivered", handler.MarkDelivered)
	router.POST("/conversations/:user_id/read", handler.MarkRead)
	return router, msgRepo, userRepo
}

func TestSendMessageCreated(t *testing.T) {
	router, msgRepo, userRepo := newMessageRouter(1)
	userRepo.On("Exists", mock.Anything, 2).Return(true, nil)
	msgRepo.On("Create", mock.Anything, 1, 2, "hello").
		Return(models.DirectMessage{ID: 10, SenderID: 1, ReceiverID: 2, Body: "hello", CreatedAt: time.Now()}, nil)

	body := bytes.NewBufferString(`{"receiver_id": 2, "body": "hello"}`)
	req := httptest.NewRequest(http.MethodPost, "/messages", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":10`)
}

func TestSendMessageUnknownReceiver(t *testing.T) {
	router, _, userRepo := newMessageRouter(1)
	userRepo.On("Exists", mock.Anything, 99).Return(false, nil)

	body := bytes.NewBufferString(`{"receiver_id": 99, "body": "hello"}`)
	req := httptest.NewRequest(http.MethodPost, "/messages", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendMessageMissingBody(t *testing.T) {
	router, _, _ := newMessageRouter(1)

	body := bytes.NewBufferString(`{"receiver_id": 2}`)
	req := httptest.NewRequest(http.MethodPost, "/messages", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConversationLoadsAndMarksDelivered(t *testing.T) {
	router, msgRepo, _ := newMessageRouter(2)
	history := []models.DirectMessage{{ID: 1, SenderID: 5, ReceiverID: 2, Body: "hi"}}
	msgRepo.On("ListConversation", mock.Anything, 2, 5).Return(history, nil)
	msgRepo.On("MarkDelivered", mock.Anything, 2, 5).Return(history, nil)

	req := httptest.NewRequest(http.MethodGet, "/conversations/5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	msgRepo.AssertExpectations(t)
}

func TestPendingCountReported(t *testing.T) {
	router, msgRepo, _ := newMessageRouter(2)
	msgRepo.On("CountUndelivered", mock.Anything, 2).Return(3, nil)

	req := httptest.NewRequest(http.MethodGet, "/messages/pending", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":3`)
}

func TestMarkReadReportsUpdatedCount(t *testing.T) {
	router, msgRepo, _ := newMessageRouter(2)
	now := time.Now()
	rows := []models.DirectMessage{
		{ID: 1, SenderID: 5, ReceiverID: 2, IsRead: true, DeliveredAt: &now},
		{ID: 2, SenderID: 5, ReceiverID: 2, IsRead: true, DeliveredAt: &now},
	}
	msgRepo.On("MarkRead", mock.Anything, 2, 5).Return(rows, nil)

	req := httptest.NewRequest(http.MethodPost, "/conversations/5/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"updated":2`)
}

func TestMarkDeliveredInvalidUserID(t *testing.T) {
	router, _, _ := newMessageRouter(2)

	req := httptest.NewRequest(http.MethodPost, "/conversations/abc/delivered", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
