package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"live-session/internal/domain"
	"live-session/internal/gateway"
	"live-session/internal/repository/mocks"
	"live-session/internal/service"
)

// loopbackRelay 把发布的广播同步交给 handle，模拟单实例的 Redis 频道。
type loopbackRelay struct {
	handle func(domain.Broadcast)
}

func (r *loopbackRelay) Publish(_ context.Context, msg domain.Broadcast) error {
	if r.handle != nil {
		r.handle(msg)
	}
	return nil
}

func (r *loopbackRelay) Listen(ctx context.Context, handle func(domain.Broadcast)) error {
	r.handle = handle
	<-ctx.Done()
	return nil
}

type dispatchFunc func(ctx context.Context, p domain.Principal, f gateway.Frame) error

func (f dispatchFunc) Dispatch(ctx context.Context, p domain.Principal, frame gateway.Frame) error {
	return f(ctx, p, frame)
}

func newTestHub(t *testing.T) (*Hub, *mocks.PresenceStore, *service.TokenService) {
	t.Helper()
	tokens, err := service.NewTokenService("hub-secret", time.Hour, time.Hour)
	require.NoError(t, err)
	presence := new(mocks.PresenceStore)
	relay := &loopbackRelay{}
	h := NewHub(gateway.NewAuthorizer(tokens), nil, relay, presence)
	relay.handle = h.deliver
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.runPresence(ctx)
	return h, presence, tokens
}

// quietT 吞掉断言输出，供轮询 mock 期望时使用。
type quietT struct{}

func (quietT) Logf(string, ...interface{})   {}
func (quietT) Errorf(string, ...interface{}) {}
func (quietT) FailNow()                      {}

// waitPresence 等待在线状态 worker 把期望的调用全部写完。
func waitPresence(t *testing.T, presence *mocks.PresenceStore) {
	t.Helper()
	require.Eventually(t, func() bool {
		return presence.AssertExpectations(quietT{})
	}, time.Second, 5*time.Millisecond)
}

func audienceClient(h *Hub, roomID, audienceID string) *Client {
	p := domain.Principal{Role: domain.RoleAudience, RoomID: roomID, SubjectID: audienceID}
	return NewClient(h, nil, gateway.NewSession(&p), "/ws/audience")
}

func readFrame(t *testing.T, c *Client) gateway.Frame {
	t.Helper()
	select {
	case data, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var f gateway.Frame
		require.NoError(t, json.Unmarshal(data, &f))
		return f
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return gateway.Frame{}
	}
}

func TestHub_SubscribeAndDeliver(t *testing.T) {
	// Arrange
	h, presence, _ := newTestHub(t)
	presence.On("AddOnline", mock.Anything, "r1", "a1").Return(nil).Once()
	client := audienceClient(h, "r1", "a1")
	h.registerClient(client)

	// Act
	h.handleFrame(client, gateway.Frame{Command: gateway.CommandSubscribe, ID: "sub-1", Destination: "/topic/p/r1/public"})
	require.NoError(t, h.Broadcast(context.Background(), "/topic/p/r1/public", map[string]string{"hello": "world"}))
	require.NoError(t, h.Broadcast(context.Background(), "/topic/p/r2/public", map[string]string{"other": "room"}))

	// Assert
	receipt := readFrame(t, client)
	assert.Equal(t, gateway.CommandReceipt, receipt.Command)
	assert.Equal(t, "sub-1", receipt.ID)

	msg := readFrame(t, client)
	assert.Equal(t, gateway.CommandMessage, msg.Command)
	assert.Equal(t, "/topic/p/r1/public", msg.Destination)
	assert.Equal(t, "sub-1", msg.Headers["subscription"])
	assert.JSONEq(t, `{"hello":"world"}`, string(msg.Body))

	assert.Len(t, client.send, 0, "未订阅的目的地不应投递")
	assert.Equal(t, 1, h.SubscriberCount("/topic/p/r1/public"))
	waitPresence(t, presence)
}

func TestHub_RejectsForbiddenSubscription(t *testing.T) {
	h, presence, _ := newTestHub(t)
	presence.On("AddOnline", mock.Anything, "r1", "a1").Return(nil)
	client := audienceClient(h, "r1", "a1")
	h.registerClient(client)

	h.handleFrame(client, gateway.Frame{Command: gateway.CommandSubscribe, ID: "s", Destination: "/topic/p/r1/presenter"})
	h.handleFrame(client, gateway.Frame{Command: gateway.CommandSubscribe, ID: "t", Destination: "/topic/p/r2/public"})

	forbidden := readFrame(t, client)
	assert.Equal(t, gateway.CommandError, forbidden.Command)
	var body gateway.ErrorBody
	require.NoError(t, json.Unmarshal(forbidden.Body, &body))
	assert.Equal(t, "WS_FORBIDDEN", body.Code)

	mismatch := readFrame(t, client)
	require.NoError(t, json.Unmarshal(mismatch.Body, &body))
	assert.Equal(t, "WS_ROOM_MISMATCH", body.Code)
	assert.Equal(t, "t", mismatch.ID)

	assert.Zero(t, h.SubscriberCount("/topic/p/r1/presenter"))
	assert.Zero(t, h.SubscriberCount("/topic/p/r2/public"))
}

func TestHub_AnonymousConnectBindsPrincipal(t *testing.T) {
	h, presence, tokens := newTestHub(t)
	token, _, err := tokens.IssueAudience("r1", "a9")
	require.NoError(t, err)
	presence.On("AddOnline", mock.Anything, "r1", "a9").Return(nil).Once()

	client := NewClient(h, nil, gateway.NewSession(nil), "/ws/audience")
	h.registerClient(client)
	h.handleFrame(client, gateway.Frame{
		Command: gateway.CommandConnect,
		ID:      "c1",
		Headers: map[string]string{"authorization": "Bearer " + token},
	})

	connected := readFrame(t, client)
	assert.Equal(t, gateway.CommandConnected, connected.Command)
	assert.Equal(t, "r1", connected.Headers["room"])
	assert.Equal(t, "audience", connected.Headers["role"])

	p, ok := client.session.Principal()
	require.True(t, ok)
	assert.Equal(t, "a9", p.SubjectID)
	waitPresence(t, presence)
}

func TestHub_PresenceTracksLastConnection(t *testing.T) {
	h, presence, _ := newTestHub(t)
	presence.On("AddOnline", mock.Anything, "r1", "a1").Return(nil).Once()
	presence.On("RemoveOnline", mock.Anything, "r1", "a1").Return(nil).Once()

	first := audienceClient(h, "r1", "a1")
	second := audienceClient(h, "r1", "a1")
	h.registerClient(first)
	h.registerClient(second)
	h.handleFrame(first, gateway.Frame{Command: gateway.CommandSubscribe, Destination: "/topic/p/r1/public"})

	// 第一条连接断开时观众仍在线
	h.unregisterClient(first)
	presence.AssertNotCalled(t, "RemoveOnline", mock.Anything, "r1", "a1")
	assert.Zero(t, h.SubscriberCount("/topic/p/r1/public"))

	_, open := <-first.send
	assert.False(t, open, "注销后 send 通道应关闭")

	h.unregisterClient(second)
	h.unregisterClient(second) // 重复注销是无操作
	waitPresence(t, presence)
	presence.AssertNumberOfCalls(t, "AddOnline", 1)
	presence.AssertNumberOfCalls(t, "RemoveOnline", 1)
}

func TestHub_SlowPresenceStoreDoesNotBlockFrames(t *testing.T) {
	// Arrange: 在线集合写入卡住直到 release 关闭
	h, presence, _ := newTestHub(t)
	release := make(chan struct{})
	defer close(release)
	presence.On("AddOnline", mock.Anything, "r1", "a1").
		Run(func(mock.Arguments) { <-release }).
		Return(nil).Once()
	client := audienceClient(h, "r1", "a1")

	// Act
	done := make(chan struct{})
	go func() {
		h.registerClient(client)
		h.handleFrame(client, gateway.Frame{Command: gateway.CommandSubscribe, ID: "sub-1", Destination: "/topic/p/r1/public"})
		close(done)
	}()

	// Assert
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub loop blocked on presence store")
	}
	receipt := readFrame(t, client)
	assert.Equal(t, gateway.CommandReceipt, receipt.Command)
	assert.Equal(t, 1, h.SubscriberCount("/topic/p/r1/public"))
}

func TestHub_PresenterIsNotCountedOnline(t *testing.T) {
	h, presence, _ := newTestHub(t)
	p := domain.Principal{Role: domain.RolePresenter, RoomID: "r1", SubjectID: service.PresenterSubject}
	client := NewClient(h, nil, gateway.NewSession(&p), "/ws/presenter")

	h.registerClient(client)
	h.unregisterClient(client)

	presence.AssertNotCalled(t, "AddOnline", mock.Anything, mock.Anything, mock.Anything)
	presence.AssertNotCalled(t, "RemoveOnline", mock.Anything, mock.Anything, mock.Anything)
}

func TestHub_SendIsDispatched(t *testing.T) {
	h, presence, _ := newTestHub(t)
	presence.On("AddOnline", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	received := make(chan gateway.Frame, 1)
	h.SetDispatcher(dispatchFunc(func(_ context.Context, p domain.Principal, f gateway.Frame) error {
		assert.Equal(t, "a1", p.SubjectID)
		received <- f
		if f.ID == "bad" {
			return service.ErrRateLimited
		}
		return nil
	}))
	client := audienceClient(h, "r1", "a1")
	h.registerClient(client)

	h.handleFrame(client, gateway.Frame{
		Command:     gateway.CommandSend,
		ID:          "ok",
		Destination: "/app/presentation/r1/reaction",
		Body:        json.RawMessage(`{"emoji":1}`),
	})
	f := <-received
	assert.JSONEq(t, `{"emoji":1}`, string(f.Body))
	assert.Equal(t, gateway.CommandReceipt, readFrame(t, client).Command)

	h.handleFrame(client, gateway.Frame{Command: gateway.CommandSend, ID: "bad", Destination: "/app/presentation/r1/question"})
	<-received
	errFrame := readFrame(t, client)
	assert.Equal(t, gateway.CommandError, errFrame.Command)
	var body gateway.ErrorBody
	require.NoError(t, json.Unmarshal(errFrame.Body, &body))
	assert.Equal(t, "RATE_LIMITED", body.Code)

	// 观众不能向讲者目的地发送
	h.handleFrame(client, gateway.Frame{Command: gateway.CommandSend, ID: "x", Destination: "/app/presentation/r1/focusOn"})
	require.NoError(t, json.Unmarshal(readFrame(t, client).Body, &body))
	assert.Equal(t, "WS_FORBIDDEN", body.Code)
}

func TestHub_ActiveRoomIDs(t *testing.T) {
	h, presence, _ := newTestHub(t)
	presence.On("AddOnline", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	h.registerClient(audienceClient(h, "r1", "a1"))
	h.registerClient(audienceClient(h, "r1", "a2"))
	h.registerClient(audienceClient(h, "r2", "a3"))
	h.registerClient(NewClient(h, nil, gateway.NewSession(nil), "/ws/audience"))

	assert.ElementsMatch(t, []string{"r1", "r2"}, h.ActiveRoomIDs())
}
