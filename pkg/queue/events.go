package queue

import "github.com/ThreeDotsLabs/watermill/message"

// Publisher 只需要发布能力，便于在服务层注入.
type Publisher interface {
	Publish(topic string, msgs ...*message.Message) error
}

// Publish 构造信封并发布到 topic.
func Publish[T any](pub Publisher, topic string, payload T, opts ...func(*EventHeader)) error {
	msg, err := NewWatermillMessage(topic, payload, opts...)
	if err != nil {
		return err
	}

	return pub.Publish(topic, msg)
}

// ParseTrackUploaded 将 Watermill 消息解析为强类型 Envelope.
func ParseTrackUploaded(msg *message.Message) (Message[TrackUploadedPayload], error) {
	return ParseWatermillMessage[TrackUploadedPayload](msg)
}
