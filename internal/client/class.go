package client

import (
	"time"

	"github.com/adred-codev/kvstore-core/internal/config"
)

// Class identifies which output-buffer-limit profile a client belongs to.
type Class int

const (
	ClassNormal Class = iota
	ClassReplica
	ClassPubSub
)

func (c Class) String() string {
	switch c {
	case ClassNormal:
		return "normal"
	case ClassReplica:
		return "replica"
	case ClassPubSub:
		return "pubsub"
	default:
		return "unknown"
	}
}

// classLimits is one class's (hard, soft, soft_seconds) triple.
type classLimits struct {
	hardBytes int64
	softBytes int64
	softSecs  time.Duration
}

// Limits maps every class to its configured output-buffer limits.
type Limits struct {
	byClass map[Class]classLimits
}

// NewLimits builds the class→limits table from configuration.
func NewLimits(cfg config.ClientConfig) Limits {
	return Limits{byClass: map[Class]classLimits{
		ClassNormal:  {hardBytes: cfg.NormalHardBytes, softBytes: cfg.NormalSoftBytes, softSecs: cfg.NormalSoftSecs},
		ClassReplica: {hardBytes: cfg.ReplicaHardBytes, softBytes: cfg.ReplicaSoftBytes, softSecs: cfg.ReplicaSoftSecs},
		ClassPubSub:  {hardBytes: cfg.PubSubHardBytes, softBytes: cfg.PubSubSoftBytes, softSecs: cfg.PubSubSoftSecs},
	}}
}

func (l Limits) limitsFor(class Class) classLimits {
	return l.byClass[class]
}
