package watch

import (
	"sync"
	"time"
)

// debouncer 把同一路径上的密集事件合并：最后一次事件之后静默 delay，
// 才触发一次回调。文件往往是边写边触发多次 Write，等它写完再处理。
//
// 回调在 time.AfterFunc 的计时器 goroutine 里触发；Watcher 只把路径塞回
// 事件循环的 channel，真正的处理仍然是单 worker 顺序的。
type debouncer struct {
	delay time.Duration
	fire  func(path string)

	mu      sync.Mutex
	pending map[string]*time.Timer
}

func newDebouncer(delay time.Duration, fire func(path string)) *debouncer {
	return &debouncer{
		delay:   delay,
		fire:    fire,
		pending: make(map[string]*time.Timer),
	}
}

// Add 让 path 在静默 delay 之后待处理；已有计时器则重置（事件合并）。
func (d *debouncer) Add(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.pending[path]; ok {
		t.Stop()
	}
	d.pending[path] = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		delete(d.pending, path)
		d.mu.Unlock()

		// 回调放在锁外触发，避免与 Add/Cancel 互相等待。
		d.fire(path)
	})
}

// Cancel 撤销 path 的待处理计时器（文件被删除/改名时调用）。
func (d *debouncer) Cancel(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.pending[path]; ok {
		t.Stop()
		delete(d.pending, path)
	}
}

// CancelAll 撤销全部待处理计时器（退出时调用，避免关闭后还有回调冒出来）。
func (d *debouncer) CancelAll() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for path, t := range d.pending {
		t.Stop()
		delete(d.pending, path)
	}
}

// pendingCount 返回待处理路径数（测试用）。
func (d *debouncer) pendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
