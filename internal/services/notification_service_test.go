package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fabricmart/internal/apperr"
	"fabricmart/internal/models"
	"fabricmart/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockPublisher is a mock implementation of services.Publisher.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishJSON(v interface{}) error {
	args := m.Called(v)
	return args.Error(0)
}

func TestNotificationService_CreateAndList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.notifySvc.Create(ctx, &models.Notification{
		UserID: "buyer-1", Kind: models.NotificationOrderPaid, Title: "Order confirmed", Href: "/orders/HM-1",
	}))
	list, err := env.notifySvc.ListForUser(ctx, "buyer-1", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.NotEmpty(t, list[0].ID)

	err = env.notifySvc.Create(ctx, &models.Notification{Kind: "x", Title: "missing user"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestNotificationService_HandleQueuedMessage(t *testing.T) {
	env := newTestEnv(t)

	body, _ := json.Marshal(models.Notification{UserID: "buyer-1", Kind: models.NotificationOrderShipped, Title: "Order shipped"})
	require.NoError(t, env.notifySvc.HandleQueuedMessage(body))
	assert.Len(t, env.notificationsFor(t, "buyer-1"), 1)

	assert.Error(t, env.notifySvc.HandleQueuedMessage([]byte("{broken")))
}

func TestDispatcher_SwallowsErrors(t *testing.T) {
	notifier := &failingNotifier{}
	d := services.NewDispatcher(notifier, time.Second, zap.NewNop())

	assert.NotPanics(t, func() {
		d.Send(context.Background(), "buyer-1", models.NotificationOrderPaid, "t", "b", "/h")
	})
	assert.Equal(t, 1, notifier.calls)

	d.Send(context.Background(), "", models.NotificationOrderPaid, "t", "b", "/h")
	assert.Equal(t, 1, notifier.calls)

	var nilDispatcher *services.Dispatcher
	assert.NotPanics(t, func() {
		nilDispatcher.Send(context.Background(), "buyer-1", models.NotificationOrderPaid, "t", "b", "/h")
	})
}

func TestQueueNotifier(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("PublishJSON", mock.MatchedBy(func(v interface{}) bool {
		n, ok := v.(models.Notification)
		return ok && n.UserID == "buyer-1"
	})).Return(nil).Once()
	pub.On("PublishJSON", mock.Anything).Return(errors.New("channel closed"))

	q := services.NewQueueNotifier(pub)
	assert.NoError(t, q.Notify(context.Background(), models.Notification{UserID: "buyer-1", Kind: "k", Title: "t"}))
	assert.Error(t, q.Notify(context.Background(), models.Notification{UserID: "buyer-2", Kind: "k", Title: "t"}))
	pub.AssertExpectations(t)
}

func TestHTTPNotifier(t *testing.T) {
	var got models.Notification
	var key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("x-admin-key")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	n := services.NewHTTPNotifier(srv.URL, "admin-key", 2*time.Second)
	require.NoError(t, n.Notify(context.Background(), models.Notification{UserID: "buyer-1", Kind: "order_paid", Title: "Order confirmed"}))
	assert.Equal(t, "admin-key", key)
	assert.Equal(t, "buyer-1", got.UserID)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()
	assert.Error(t, services.NewHTTPNotifier(failing.URL, "k", time.Second).Notify(context.Background(), models.Notification{UserID: "u"}))
}
