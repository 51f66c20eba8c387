package util

import "sync"

// SignalHandler 信号处理函数
type SignalHandler func(sender any, params ...any)

// SignalDispatcher 进程内信号分发器，用于解耦业务事件与副作用
// （通知推送、变更广播等监听器通过 Connect 注册）
type SignalDispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]SignalHandler
}

var (
	sigOnce sync.Once
	sigInst *SignalDispatcher
)

// Sig 返回全局信号分发器
func Sig() *SignalDispatcher {
	sigOnce.Do(func() {
		sigInst = &SignalDispatcher{handlers: make(map[string][]SignalHandler)}
	})
	return sigInst
}

// NewSignalDispatcher 创建独立的分发器（测试用）
func NewSignalDispatcher() *SignalDispatcher {
	return &SignalDispatcher{handlers: make(map[string][]SignalHandler)}
}

// Connect 注册信号处理器
func (d *SignalDispatcher) Connect(sig string, h SignalHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[sig] = append(d.handlers[sig], h)
}

// Emit 同步触发信号，处理器按注册顺序执行
func (d *SignalDispatcher) Emit(sig string, sender any, params ...any) {
	d.mu.RLock()
	hs := make([]SignalHandler, len(d.handlers[sig]))
	copy(hs, d.handlers[sig])
	d.mu.RUnlock()
	for _, h := range hs {
		h(sender, params...)
	}
}

// Disconnect 移除某个信号的全部处理器
func (d *SignalDispatcher) Disconnect(sig string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, sig)
}
