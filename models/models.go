// models/models.go
package models

import (
	"encoding/json"
	"time"
)

// RoomStatus 游戏房间状态
type RoomStatus string

const (
	RoomStatusWaiting   RoomStatus = "waiting"
	RoomStatusPlaying   RoomStatus = "playing"
	RoomStatusFinished  RoomStatus = "finished"
	RoomStatusCancelled RoomStatus = "cancelled"
)

// 成就触发类型
const (
	TriggerCoins   = "coins"
	TriggerCheckIn = "check_in"
	TriggerLevel   = "level"
	TriggerGame    = "game"
)

// User 用户领域模型，余额恒等于 TotalEarned - TotalSpent
type User struct {
	UserID        string     `json:"user_id"`
	Username      string     `json:"username"`
	Coins         int64      `json:"coins"`
	TotalEarned   int64      `json:"total_earned"`
	TotalSpent    int64      `json:"total_spent"`
	CheckInCount  int        `json:"check_in_count"` // 连续签到天数
	LastCheckIn   *time.Time `json:"last_check_in"`
	TotalCheckIns int        `json:"total_check_ins"`
	Level         int        `json:"level"`
	Experience    int        `json:"experience"`
	Title         string     `json:"title"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// AddCoins 增加金币，同时累计历史总收入
func (u *User) AddCoins(amount int64) {
	u.Coins += amount
	u.TotalEarned += amount
}

// SpendCoins 花费金币，余额不足时不做任何修改并返回 false
func (u *User) SpendCoins(amount int64) bool {
	if u.Coins < amount {
		return false
	}
	u.Coins -= amount
	u.TotalSpent += amount
	return true
}

// AddExperience 增加经验值，返回是否升级。每级需要 100*level 经验，溢出部分结转
func (u *User) AddExperience(exp int) bool {
	u.Experience += exp
	leveled := false
	for u.Experience >= 100*u.Level {
		u.Experience -= 100 * u.Level
		u.Level++
		leveled = true
	}
	return leveled
}

// CanCheckIn 检查今天是否还可以签到
func (u *User) CanCheckIn(now time.Time) bool {
	if u.LastCheckIn == nil {
		return true
	}
	y1, m1, d1 := u.LastCheckIn.Date()
	y2, m2, d2 := now.Date()
	return !(y1 == y2 && m1 == m2 && d1 == d2)
}

// RoomPlayer 房间内的一个座位。座位一旦加入不再移除，
// 引擎只会把玩家标记为出局
type RoomPlayer struct {
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	JoinedAt   time.Time `json:"joined_at"`
	IsAlive    bool      `json:"is_alive"`
	ShotsFired int       `json:"shots_fired"`
}

// GameRoom 通用游戏房间模型。GameData 由对应的游戏引擎独占，
// Settings 在创建时由引擎写入后不再变化
type GameRoom struct {
	ID          string          `json:"id"`
	GameType    string          `json:"game_type"`
	ChannelID   string          `json:"channel_id"`
	CreatorID   string          `json:"creator_id"`
	CreatorName string          `json:"creator_name"`
	BetAmount   int64           `json:"bet_amount"`
	Status      RoomStatus      `json:"status"`
	MaxPlayers  int             `json:"max_players"`
	MinPlayers  int             `json:"min_players"`
	Players     []RoomPlayer    `json:"players"`
	GameData    json.RawMessage `json:"game_data"`
	Settings    json.RawMessage `json:"settings"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at"`
	FinishedAt  *time.Time      `json:"finished_at"`
}

// Seated 判断用户是否已在房间中
func (r *GameRoom) Seated(userID string) bool {
	for i := range r.Players {
		if r.Players[i].UserID == userID {
			return true
		}
	}
	return false
}

// AlivePlayers 返回仍然存活的玩家
func (r *GameRoom) AlivePlayers() []*RoomPlayer {
	var alive []*RoomPlayer
	for i := range r.Players {
		if r.Players[i].IsAlive {
			alive = append(alive, &r.Players[i])
		}
	}
	return alive
}

// Pot 当前奖池：每个座位下注一次
func (r *GameRoom) Pot() int64 {
	return r.BetAmount * int64(len(r.Players))
}

// GameRecord 游戏记录模型，结算时按座位各写一条，之后不再修改
type GameRecord struct {
	ID        int64          `json:"id"`
	UserID    string         `json:"user_id"`
	GameType  string         `json:"game_type"`
	CoinsBet  int64          `json:"coins_bet"`
	CoinsWon  int64          `json:"coins_won"`
	Result    string         `json:"result"` // win/lose/draw
	Details   map[string]any `json:"details"`
	CreatedAt time.Time      `json:"created_at"`
}

// CheckInRecord 签到记录模型
type CheckInRecord struct {
	UserID          string    `json:"user_id"`
	CheckInDate     time.Time `json:"check_in_date"`
	CoinsEarned     int64     `json:"coins_earned"`
	ConsecutiveDays int       `json:"consecutive_days"`
	BonusCoins      int64     `json:"bonus_coins"`
}

// Achievement 成就领域模型
type Achievement struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Category       string    `json:"category"`       // 分类：签到、游戏、金币、等级
	ConditionType  string    `json:"condition_type"` // 条件类型：current_coins、consecutive_days 等
	ConditionValue int64     `json:"condition_value"`
	RewardCoins    int64     `json:"reward_coins"`
	RewardTitle    string    `json:"reward_title"`
	Hidden         bool      `json:"hidden"`
	CreatedAt      time.Time `json:"created_at"`
}

// UserAchievement 用户成就关联模型
type UserAchievement struct {
	UserID        string    `json:"user_id"`
	AchievementID string    `json:"achievement_id"`
	AchievedAt    time.Time `json:"achieved_at"`
	Notified      bool      `json:"notified"`
}

// LeaderboardEntry 排行榜条目
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Score    int64  `json:"score"`
	Title    string `json:"title"`
}

// GameStats 用户单一游戏类型的聚合统计
type GameStats struct {
	TotalGames int64 `json:"total_games"`
	TotalBet   int64 `json:"total_bet"`
	TotalWon   int64 `json:"total_won"`
	NetProfit  int64 `json:"net_profit"`
	MaxWin     int64 `json:"max_win"`
	Wins       int64 `json:"wins"`
	Losses     int64 `json:"losses"`
}
