// persistence/interface.go
package persistence

import (
	"errors"

	"coinbot/models"
)

// 错误定义
var ErrRecordNotFound = errors.New("record not found")

// Store 数据库接口。所有读改写都应在 Transaction 内完成，
// 事务内拿到的 Store 与外层同构
type Store interface {
	// 用户
	GetUser(userID string) (*models.User, error)
	CreateUser(user *models.User) error
	SaveUser(user *models.User) error
	Leaderboard(limit, offset int) ([]models.LeaderboardEntry, error)
	UserRank(userID string) (int, error)

	// 游戏房间
	CreateRoom(room *models.GameRoom) error
	UpdateRoom(room *models.GameRoom) error
	GetRoom(roomID string) (*models.GameRoom, error)
	UserRooms(userID string, status models.RoomStatus) ([]*models.GameRoom, error)
	ChannelRooms(channelID, gameType string, status models.RoomStatus) ([]*models.GameRoom, error)
	DeleteRoom(roomID string) error

	// 游戏记录
	CreateGameRecord(record *models.GameRecord) error
	UserGameRecords(userID, gameType string, limit int) ([]*models.GameRecord, error)
	UserGameStats(userID, gameType string) (*models.GameStats, error)

	// 签到记录
	CreateCheckInRecord(record *models.CheckInRecord) error
	UserCheckIns(userID string, limit int) ([]*models.CheckInRecord, error)
	TotalCheckIns(userID string) (int, error)

	// 成就
	Achievements() ([]*models.Achievement, error)
	GetAchievement(id string) (*models.Achievement, error)
	UpsertAchievement(a *models.Achievement) error
	UserAchievements(userID string) ([]*models.UserAchievement, error)
	HasAchievement(userID, achievementID string) (bool, error)
	AwardAchievement(ua *models.UserAchievement) error
	UnnotifiedAchievements(userID string) ([]*models.UserAchievement, error)
	MarkAchievementNotified(userID, achievementID string) error

	Transaction(fn func(tx Store) error) error
	Close() error
}
