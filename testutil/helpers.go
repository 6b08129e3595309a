package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t testing.TB) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// ⏱️ 时钟
// =============================================================================

// ManualClock 是只在 Advance 时前进的时钟
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
	// step 每次读取后自动前进的时长
	step time.Duration
}

// NewManualClock 创建从 start 开始的时钟
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// WithStep 让每次 Now 调用之后时钟自动前进 d
func (c *ManualClock) WithStep(d time.Duration) *ManualClock {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = d
	return c
}

// Now 返回当前时间
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Advance 推进时钟
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// =============================================================================
// 🔍 断言辅助
// =============================================================================

// AssertEventuallyTrue 在 timeout 内轮询直到 cond 为真
func AssertEventuallyTrue(t testing.TB, cond func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

// MustJSON 序列化 v，失败时 panic
func MustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
