package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/chain-game/internal/cache"
	"github.com/wfunc/chain-game/internal/config"
	"github.com/wfunc/chain-game/internal/models"
	"go.uber.org/zap"
)

const testOwner = "0xabcd000000000000000000000000000000000001"

func newTestHub() (*Hub, *cache.ReconcilingCache) {
	gameCache := cache.New(31337, func(ctx context.Context, owner string) []*models.Game {
		return nil
	}, nil, &config.CacheConfig{RefreshTimeout: time.Second})
	return NewHub(gameCache, zap.NewNop()), gameCache
}

func newTestClient(id string) *Client {
	return &Client{
		ID:   id,
		Send: make(chan []byte, 16),
	}
}

func TestSubscribePushesSnapshot(t *testing.T) {
	hub, gameCache := newTestHub()
	client := newTestClient("c1")

	hub.Subscribe(client, "0xABCD000000000000000000000000000000000001")

	// 地址统一小写
	assert.Equal(t, testOwner, client.Owner)

	// 缓存整体替换触发快照推送
	gameCache.Put(context.Background(), testOwner, []*models.Game{{ID: 1}, {ID: 2}})

	select {
	case payload := <-client.Send:
		var msg Message
		require.NoError(t, json.Unmarshal(payload, &msg))
		assert.Equal(t, MessageTypeSnapshot, msg.Type)
		assert.Equal(t, testOwner, msg.Owner)

		var games []*models.Game
		require.NoError(t, json.Unmarshal(msg.Data, &games))
		assert.Len(t, games, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("未收到快照推送")
	}
}

func TestUnsubscribeStopsSnapshot(t *testing.T) {
	hub, gameCache := newTestHub()
	client := newTestClient("c1")

	hub.Subscribe(client, testOwner)
	hub.Unsubscribe(client)
	assert.Empty(t, client.Owner)

	gameCache.Put(context.Background(), testOwner, []*models.Game{{ID: 1}})

	select {
	case <-client.Send:
		t.Fatal("退订后仍收到推送")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSharedCacheSubscription(t *testing.T) {
	hub, gameCache := newTestHub()
	c1 := newTestClient("c1")
	c2 := newTestClient("c2")

	// 同地址多客户端共享一个缓存订阅
	hub.Subscribe(c1, testOwner)
	hub.Subscribe(c2, testOwner)

	gameCache.Put(context.Background(), testOwner, []*models.Game{{ID: 1}})

	for _, c := range []*Client{c1, c2} {
		select {
		case <-c.Send:
		case <-time.After(2 * time.Second):
			t.Fatalf("客户端 %s 未收到快照推送", c.ID)
		}
	}

	// 仅一个客户端离开：订阅保留
	hub.Unsubscribe(c1)
	gameCache.Put(context.Background(), testOwner, []*models.Game{{ID: 1}, {ID: 2}})

	select {
	case <-c2.Send:
	case <-time.After(2 * time.Second):
		t.Fatal("剩余客户端未收到快照推送")
	}

	// 最后一个离开：退订缓存
	hub.Unsubscribe(c2)
	hub.ownerMu.Lock()
	_, stillSubscribed := hub.ownerUnsub[testOwner]
	hub.ownerMu.Unlock()
	assert.False(t, stillSubscribed)
}

func TestSendToClientUnknown(t *testing.T) {
	hub, _ := newTestHub()

	err := hub.SendToClient("missing", &Message{Type: MessageTypePing})
	assert.ErrorIs(t, err, ErrClientNotFound)
}
