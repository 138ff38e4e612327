package hub

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Purabsingla/whiteboard/internal/domain"
	"github.com/Purabsingla/whiteboard/internal/repository/mocks"
	"github.com/Purabsingla/whiteboard/internal/service"
)

func newTestHub(repo *mocks.RoomRepository) *Hub {
	locks := service.NewRoomLocker()
	sessions := service.NewSessionService(repo, locks)
	relay := service.NewRelayService(repo, locks)
	return NewHub(sessions, relay)
}

// addToRoom 直接把连接挂入房间映射，跳过 join 流程
func addToRoom(h *Hub, code string, clients ...*Client) {
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()
	if h.rooms[code] == nil {
		h.rooms[code] = make(map[*Client]bool)
	}
	for _, c := range clients {
		h.rooms[code][c] = true
		c.rooms[code] = true
	}
}

func recvMessage(t *testing.T, c *Client) (string, map[string]interface{}) {
	t.Helper()
	select {
	case raw := <-c.send:
		var env struct {
			Event string                 `json:"event"`
			Data  map[string]interface{} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &env))
		return env.Event, env.Data
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return "", nil
	}
}

func assertNoMessage(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.send:
		t.Fatalf("unexpected message: %s", raw)
	default:
	}
}

func TestDrawMoveRelay_ExcludesSender(t *testing.T) {
	h := newTestHub(new(mocks.RoomRepository))
	sender := NewClient(h, nil, "conn-a")
	peer1 := NewClient(h, nil, "conn-b")
	peer2 := NewClient(h, nil, "conn-c")
	addToRoom(h, "ROOM1234", sender, peer1, peer2)

	raw := []byte(`{"event":"draw-move","data":{"roomId":"ROOM1234","x0":1,"y0":2,"x1":3,"y1":4,"color":"#000","size":2}}`)
	h.handleClientEvent(sender, raw)

	for _, peer := range []*Client{peer1, peer2} {
		event, data := recvMessage(t, peer)
		assert.Equal(t, "draw-move", event)
		assert.Equal(t, "conn-a", data["id"])
	}
	// 发送者不回显
	assertNoMessage(t, sender)
}

func TestCursorMoveRelay_ExcludesSender(t *testing.T) {
	h := newTestHub(new(mocks.RoomRepository))
	sender := NewClient(h, nil, "conn-a")
	peer := NewClient(h, nil, "conn-b")
	addToRoom(h, "ROOM1234", sender, peer)

	raw := []byte(`{"event":"cursor-move","data":{"roomId":"ROOM1234","x":10,"y":20}}`)
	h.handleClientEvent(sender, raw)

	event, data := recvMessage(t, peer)
	assert.Equal(t, "cursor-moving", event)
	assert.Equal(t, float64(10), data["x"])
	assertNoMessage(t, sender)
}

func TestDrawEndRelay_ExcludesSenderAndPersists(t *testing.T) {
	mockRepo := new(mocks.RoomRepository)
	h := newTestHub(mockRepo)
	sender := NewClient(h, nil, "conn-a")
	peer := NewClient(h, nil, "conn-b")
	addToRoom(h, "ROOM1234", sender, peer)

	room := domain.NewRoom("ROOM1234")
	mockRepo.On("FindByCode", mock.Anything, "ROOM1234").Return(room, nil)
	mockRepo.On("Save", mock.Anything, room).Return(nil)

	raw := []byte(`{"event":"draw-end","data":{"roomId":"ROOM1234","path":[{"x":1,"y":2}],"color":"#000","size":2}}`)
	h.handleClientEvent(sender, raw)

	event, data := recvMessage(t, peer)
	assert.Equal(t, "draw-end", event)
	assert.Equal(t, "conn-a", data["id"])
	assertNoMessage(t, sender)
	require.Len(t, room.Strokes, 1)
	assert.Equal(t, "conn-a", room.Strokes[0].OwnerID)
}

func TestClearCanvas_DeliveredToSenderToo(t *testing.T) {
	mockRepo := new(mocks.RoomRepository)
	h := newTestHub(mockRepo)
	sender := NewClient(h, nil, "conn-a")
	peer := NewClient(h, nil, "conn-b")
	addToRoom(h, "ROOM1234", sender, peer)

	room := domain.NewRoom("ROOM1234")
	room.AppendStroke(domain.Stroke{OwnerID: "conn-a", Kind: "stroke"})
	mockRepo.On("FindByCode", mock.Anything, "ROOM1234").Return(room, nil)
	mockRepo.On("Save", mock.Anything, room).Return(nil)

	raw := []byte(`{"event":"clear-canvas","data":{"roomId":"ROOM1234"}}`)
	h.handleClientEvent(sender, raw)

	// 清屏通知发给房间内所有连接，包括发送者
	for _, c := range []*Client{sender, peer} {
		event, _ := recvMessage(t, c)
		assert.Equal(t, "clear-canvas", event)
	}
	assert.Empty(t, room.Strokes)
}

func TestClearCanvas_BroadcastDespitePersistFailure(t *testing.T) {
	mockRepo := new(mocks.RoomRepository)
	h := newTestHub(mockRepo)
	sender := NewClient(h, nil, "conn-a")
	peer := NewClient(h, nil, "conn-b")
	addToRoom(h, "ROOM1234", sender, peer)

	mockRepo.On("FindByCode", mock.Anything, "ROOM1234").Return(nil, fmt.Errorf("db down"))

	raw := []byte(`{"event":"clear-canvas","data":{"roomId":"ROOM1234"}}`)
	h.handleClientEvent(sender, raw)

	// 持久化失败不阻止清屏广播
	for _, c := range []*Client{sender, peer} {
		event, _ := recvMessage(t, c)
		assert.Equal(t, "clear-canvas", event)
	}
}

func TestJoin_BroadcastsUsersAndReplaysOnlyToJoiner(t *testing.T) {
	mockRepo := new(mocks.RoomRepository)
	h := newTestHub(mockRepo)
	joiner := NewClient(h, nil, "conn-a")
	resident := NewClient(h, nil, "conn-b")
	addToRoom(h, "ROOM1234", resident)

	room := domain.NewRoom("ROOM1234")
	room.AddMember("conn-b", "Bob")
	room.AppendStroke(domain.Stroke{OwnerID: "conn-b", Kind: "stroke"})
	mockRepo.On("FindByCode", mock.Anything, "ROOM1234").Return(room, nil)
	mockRepo.On("Save", mock.Anything, room).Return(nil)

	raw := []byte(`{"event":"join-room","data":{"roomId":"ROOM1234","username":"Ava"}}`)
	h.handleClientEvent(joiner, raw)

	// 全房间 (包括加入者) 收到成员列表
	event, data := recvMessage(t, resident)
	assert.Equal(t, "room-users", event)
	assert.Equal(t, float64(2), data["count"])
	event, data = recvMessage(t, joiner)
	assert.Equal(t, "room-users", event)
	assert.Equal(t, float64(2), data["count"])

	// 历史回放只发给加入者
	event, data = recvMessage(t, joiner)
	assert.Equal(t, "load-canvas", event)
	assert.Len(t, data["drawingData"], 1)
	assertNoMessage(t, resident)

	h.roomsMu.RLock()
	assert.True(t, h.rooms["ROOM1234"][joiner])
	assert.True(t, joiner.rooms["ROOM1234"])
	h.roomsMu.RUnlock()
}

func TestLeave_BroadcastIncludesLeaver(t *testing.T) {
	mockRepo := new(mocks.RoomRepository)
	h := newTestHub(mockRepo)
	leaver := NewClient(h, nil, "conn-a")
	peer := NewClient(h, nil, "conn-b")
	addToRoom(h, "ROOM1234", leaver, peer)

	room := domain.NewRoom("ROOM1234")
	room.AddMember("conn-a", "Ava")
	room.AddMember("conn-b", "Bob")
	mockRepo.On("FindByCode", mock.Anything, "ROOM1234").Return(room, nil)
	mockRepo.On("Save", mock.Anything, room).Return(nil)

	raw := []byte(`{"event":"leave-room","data":{"roomId":"ROOM1234"}}`)
	h.handleClientEvent(leaver, raw)

	// 离开者在广播时刻仍在房间内，也收到这次成员列表
	for _, c := range []*Client{leaver, peer} {
		event, data := recvMessage(t, c)
		assert.Equal(t, "room-users", event)
		assert.Equal(t, float64(1), data["count"])
	}

	h.roomsMu.RLock()
	assert.False(t, h.rooms["ROOM1234"][leaver])
	assert.False(t, leaver.rooms["ROOM1234"])
	h.roomsMu.RUnlock()
}

func TestRequestCanvas_OnlyRequesterReceivesReplay(t *testing.T) {
	mockRepo := new(mocks.RoomRepository)
	h := newTestHub(mockRepo)
	requester := NewClient(h, nil, "conn-a")
	peer := NewClient(h, nil, "conn-b")
	addToRoom(h, "ROOM1234", requester, peer)

	room := domain.NewRoom("ROOM1234")
	room.AppendStroke(domain.Stroke{OwnerID: "conn-b", Kind: "stroke"})
	mockRepo.On("FindByCode", mock.Anything, "ROOM1234").Return(room, nil)

	raw := []byte(`{"event":"request-canvas","data":{"roomId":"ROOM1234"}}`)
	h.handleClientEvent(requester, raw)

	event, data := recvMessage(t, requester)
	assert.Equal(t, "load-canvas", event)
	assert.Len(t, data["drawingData"], 1)
	assertNoMessage(t, peer)
}

func TestInvalidEvent_IsDroppedSilently(t *testing.T) {
	h := newTestHub(new(mocks.RoomRepository))
	sender := NewClient(h, nil, "conn-a")
	peer := NewClient(h, nil, "conn-b")
	addToRoom(h, "ROOM1234", sender, peer)

	// 缺少房间码、未知事件、非法载荷都只丢弃，不崩溃、不转发
	for _, raw := range []string{
		`{"event":"draw-move","data":{"x0":1}}`,
		`{"event":"teleport","data":{"roomId":"ROOM1234"}}`,
		`not json`,
	} {
		h.handleClientEvent(sender, []byte(raw))
	}
	assertNoMessage(t, peer)
}

// 单个发送者的事件必须以到达顺序转发给其他连接。
// 事件经 Hub 主循环进入连接自己的串行队列，由单个 goroutine 消费。
func TestEventRelay_SingleSenderArrivalOrder(t *testing.T) {
	h := newTestHub(new(mocks.RoomRepository))
	go h.Run()
	defer close(h.messageChan)

	sender := NewClient(h, nil, "conn-a")
	peer := NewClient(h, nil, "conn-b")
	addToRoom(h, "ROOM1234", sender, peer)

	require.True(t, h.QueueMessage(HubMessage{Type: "register", Client: sender}))

	const eventCount = 200
	for i := 0; i < eventCount; i++ {
		raw := []byte(fmt.Sprintf(`{"event":"cursor-move","data":{"roomId":"ROOM1234","x":%d,"y":0}}`, i))
		require.True(t, h.QueueMessage(HubMessage{Type: "event", Client: sender, RawData: raw}))
	}

	for i := 0; i < eventCount; i++ {
		event, data := recvMessage(t, peer)
		require.Equal(t, "cursor-moving", event)
		require.Equal(t, float64(i), data["x"], "event %d delivered out of order", i)
	}
}

// 广播与注销并发时绝不能向已关闭的 send 通道发送。
// closed 标记在锁内检查，发送全程持有读锁。
func TestBroadcast_SkipsClosedClient(t *testing.T) {
	h := newTestHub(new(mocks.RoomRepository))
	alive := NewClient(h, nil, "conn-a")
	gone := NewClient(h, nil, "conn-b")
	addToRoom(h, "ROOM1234", alive, gone)

	h.roomsMu.Lock()
	gone.closed = true
	close(gone.send)
	h.roomsMu.Unlock()

	assert.NotPanics(t, func() {
		h.broadcast("ROOM1234", []byte(`{"event":"clear-canvas"}`), nil)
		h.sendTo(gone, []byte(`{"event":"clear-canvas"}`))
	})

	event, _ := recvMessage(t, alive)
	assert.Equal(t, "clear-canvas", event)
}
