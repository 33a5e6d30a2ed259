package queue

import (
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
)

// DefaultRecorderSize 默认保留的最近事件数.
const DefaultRecorderSize = 100

// RecordedEvent 记录下的事件摘要.
type RecordedEvent struct {
	UUID       string    `json:"uuid"`
	Topic      string    `json:"topic"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// Recorder 订阅曲目事件并保留最近 N 条，供管理接口查看.
type Recorder struct {
	mu   sync.Mutex
	buf  []RecordedEvent
	next int
	full bool
}

// NewRecorder 创建容量为 size 的环形记录器.
func NewRecorder(size int) *Recorder {
	if size <= 0 {
		size = DefaultRecorderSize
	}

	return &Recorder{buf: make([]RecordedEvent, size)}
}

// Handle 实现 message.NoPublishHandlerFunc；无法解析的消息同样记录，仅缺少负载.
func (r *Recorder) Handle(msg *message.Message) error {
	ev := RecordedEvent{UUID: msg.UUID, Topic: msg.Metadata.Get("topic")}

	if env, err := ParseWatermillMessage[map[string]any](msg); err == nil {
		ev.Topic = env.Header.Topic
		ev.OccurredAt = env.Header.OccurredAt
		ev.Payload = env.Payload
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.next] = ev
	r.next = (r.next + 1) % len(r.buf)

	if r.next == 0 {
		r.full = true
	}

	return nil
}

// Recent 返回记录的事件，最新的在前.
func (r *Recorder) Recent() []RecordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.next
	if r.full {
		n = len(r.buf)
	}

	out := make([]RecordedEvent, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, r.buf[(r.next-i+len(r.buf))%len(r.buf)])
	}

	return out
}
