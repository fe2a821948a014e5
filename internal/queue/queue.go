package queue

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/notify-engine/internal/domain"
)

// Publisher publishes notification messages to a lane queue.
type Publisher interface {
	Publish(ctx context.Context, lane Lane, msg NotificationMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg NotificationMessage) error

// Consumer consumes notification messages from a lane queue.
type Consumer interface {
	Consume(ctx context.Context, lane Lane, handler MessageHandler) error
	Close() error
}

// Lane is a logical queue partition by priority tier.
type Lane string

const (
	LaneHigh    Lane = "lane.high"
	LaneDefault Lane = "lane.default"
)

func (l Lane) String() string { return string(l) }

func (l Lane) IsValid() bool {
	return l == LaneHigh || l == LaneDefault
}

// Lanes returns all lanes, preferred lane first.
func Lanes() []Lane {
	return []Lane{LaneHigh, LaneDefault}
}

// LaneFor routes a priority to its lane. INSTANT and HIGH share the
// preferred lane, NORMAL and LOW share the default lane.
func LaneFor(priority domain.Priority) Lane {
	switch priority {
	case domain.PriorityInstant, domain.PriorityHigh:
		return LaneHigh
	default:
		return LaneDefault
	}
}

// DLQName returns the dead-letter queue name for a lane, e.g. dlq.lane.high.
func DLQName(lane Lane) string {
	return fmt.Sprintf("dlq.%s", lane)
}

const (
	// queueMaxPriority is the RabbitMQ x-max-priority value for lane queues.
	// Within a lane, INSTANT still beats HIGH and NORMAL still beats LOW.
	queueMaxPriority int32 = 4
)

// PriorityValue maps domain priority to RabbitMQ message priority.
func PriorityValue(priority domain.Priority) uint8 {
	switch priority {
	case domain.PriorityInstant:
		return 4
	case domain.PriorityHigh:
		return 3
	case domain.PriorityNormal:
		return 2
	case domain.PriorityLow:
		return 1
	default:
		return 0
	}
}
