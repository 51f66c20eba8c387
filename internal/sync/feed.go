package sync

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"NeighborSafe/internal/models"
	"NeighborSafe/pkg/util"

	"github.com/gorilla/websocket"
)

// Feed 是变更流的来源。每张表一个通道，cancel 负责释放订阅。
type Feed interface {
	Subscribe(table string) (<-chan models.ChangeEvent, func(), error)
}

const feedBuffer = 64

// SignalFeed 进程内变更流，挂在全局信号派发器的行变更信号上。
// 同进程的视图（首页小组件、测试）不走网络直接消费。
type SignalFeed struct {
	dispatcher *util.SignalDispatcher
	once       sync.Once

	mu   sync.Mutex
	subs map[*signalSub]struct{}
}

type signalSub struct {
	table  string
	ch     chan models.ChangeEvent
	closed atomic.Bool
}

func NewSignalFeed(dispatcher *util.SignalDispatcher) *SignalFeed {
	return &SignalFeed{
		dispatcher: dispatcher,
		subs:       make(map[*signalSub]struct{}),
	}
}

func (f *SignalFeed) Subscribe(table string) (<-chan models.ChangeEvent, func(), error) {
	f.once.Do(func() {
		f.dispatcher.Connect(models.SigRowChanged, f.onRowChanged)
	})
	sub := &signalSub{
		table: table,
		ch:    make(chan models.ChangeEvent, feedBuffer),
	}
	f.mu.Lock()
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	// 关闭和投递都在 f.mu 下进行，已关闭的通道不可能再被写入
	cancel := func() {
		if !sub.closed.CompareAndSwap(false, true) {
			return
		}
		f.mu.Lock()
		delete(f.subs, sub)
		close(sub.ch)
		f.mu.Unlock()
	}
	return sub.ch, cancel, nil
}

func (f *SignalFeed) onRowChanged(sender any, params ...any) {
	ev, ok := sender.(*models.ChangeEvent)
	if !ok {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subs {
		if sub.table != ev.Table {
			continue
		}
		// 满了直接丢，消费方靠定时刷新兜底
		select {
		case sub.ch <- *ev:
		default:
		}
	}
}

// WSFeed 通过 websocket 连接远端变更流。
// 连接后按表名加入对应分组，之后把收到的 change 帧解码转发。
type WSFeed struct {
	URL    string
	Dialer *websocket.Dialer
}

type wsEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func NewWSFeed(url string) *WSFeed {
	return &WSFeed{URL: url, Dialer: websocket.DefaultDialer}
}

func (f *WSFeed) Subscribe(table string) (<-chan models.ChangeEvent, func(), error) {
	conn, _, err := f.Dialer.Dial(f.URL, nil)
	if err != nil {
		return nil, nil, err
	}
	join := wsEnvelope{Type: "join_group"}
	join.Data, _ = json.Marshal(table)
	if err := conn.WriteJSON(join); err != nil {
		conn.Close()
		return nil, nil, err
	}

	ch := make(chan models.ChangeEvent, feedBuffer)
	var closed atomic.Bool
	go func() {
		defer close(ch)
		for {
			var env wsEnvelope
			if err := conn.ReadJSON(&env); err != nil {
				// 读失败即断开，通道关闭触发消费方降级轮询
				return
			}
			if env.Type != "change" {
				continue
			}
			var ev models.ChangeEvent
			if err := json.Unmarshal(env.Data, &ev); err != nil {
				continue
			}
			if ev.Table != table {
				continue
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}()

	cancel := func() {
		if closed.CompareAndSwap(false, true) {
			conn.Close()
		}
	}
	return ch, cancel, nil
}
