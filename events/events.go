// events/events.go
package events

import (
	"time"
)

// 事件类型
const (
	KindCheckIn     = "check_in"
	KindRoomCreated = "room_created"
	KindRoomJoined  = "room_joined"
	KindGameStarted = "game_started"
	KindGameAction  = "game_action"
	KindSettlement  = "settlement"
	KindRoomCancel  = "room_cancelled"
	KindAchievement = "achievement_unlocked"
)

// Event 发往聊天前端的领域事件
type Event struct {
	Kind      string         `json:"kind"`
	ChannelID string         `json:"channel_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	Message   string         `json:"message,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Publisher 事件发布接口。发布是尽力而为的旁路，
// 失败不影响业务结果
type Publisher interface {
	Publish(ev Event)
}

// Multi 把一个事件扇出给多个下游
type Multi []Publisher

func (m Multi) Publish(ev Event) {
	for _, p := range m {
		p.Publish(ev)
	}
}
