// persistence/gorm_postgresql.go
package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"coinbot/models"
)

// GormStore 使用GORM的PostgreSQL实现
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 创建GORM PostgreSQL数据库连接
func NewGormStore(host string, port int, user, password, dbname string) (*GormStore, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	gormLogger := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold: time.Second,
			LogLevel:      gormlogger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(
		&userRow{},
		&roomRow{},
		&gameRecordRow{},
		&checkInRow{},
		&achievementRow{},
		&userAchievementRow{},
	); err != nil {
		return nil, err
	}

	return &GormStore{db: db}, nil
}

// --- 行模型 ---

type userRow struct {
	ID            uint   `gorm:"primaryKey"`
	UserID        string `gorm:"uniqueIndex;not null"`
	Username      string `gorm:"not null"`
	Coins         int64  `gorm:"not null;default:0;index"`
	TotalEarned   int64  `gorm:"not null;default:0"`
	TotalSpent    int64  `gorm:"not null;default:0"`
	CheckInCount  int    `gorm:"not null;default:0"`
	LastCheckIn   *time.Time
	TotalCheckIns int    `gorm:"not null;default:0"`
	Level         int    `gorm:"not null;default:1"`
	Experience    int    `gorm:"not null;default:0"`
	Title         string `gorm:"not null;default:'新人'"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (userRow) TableName() string { return "users" }

type roomRow struct {
	ID          uint   `gorm:"primaryKey"`
	RoomID      string `gorm:"uniqueIndex;not null"`
	GameType    string `gorm:"not null"`
	ChannelID   string `gorm:"index;not null"`
	CreatorID   string `gorm:"index;not null"`
	CreatorName string
	BetAmount   int64
	Status      string              `gorm:"index;not null"`
	MaxPlayers  int
	MinPlayers  int
	Players     []models.RoomPlayer `gorm:"type:jsonb;serializer:json"`
	GameData    json.RawMessage     `gorm:"type:jsonb;serializer:json"`
	Settings    json.RawMessage     `gorm:"type:jsonb;serializer:json"`
	CreatedAt   time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
}

func (roomRow) TableName() string { return "game_rooms" }

type gameRecordRow struct {
	ID        int64          `gorm:"primaryKey"`
	UserID    string         `gorm:"index;not null"`
	GameType  string         `gorm:"index;not null"`
	CoinsBet  int64
	CoinsWon  int64
	Result    string         `gorm:"not null"`
	Details   map[string]any `gorm:"type:jsonb;serializer:json"`
	CreatedAt time.Time      `gorm:"index"`
}

func (gameRecordRow) TableName() string { return "game_records" }

type checkInRow struct {
	ID              uint   `gorm:"primaryKey"`
	UserID          string `gorm:"index;not null"`
	CheckInDate     time.Time
	CoinsEarned     int64
	ConsecutiveDays int
	BonusCoins      int64
}

func (checkInRow) TableName() string { return "check_in_records" }

type achievementRow struct {
	ID             string `gorm:"primaryKey"`
	Name           string `gorm:"not null"`
	Description    string
	Category       string `gorm:"index"`
	ConditionType  string
	ConditionValue int64
	RewardCoins    int64
	RewardTitle    string
	Hidden         bool
	CreatedAt      time.Time
}

func (achievementRow) TableName() string { return "achievements" }

type userAchievementRow struct {
	ID            uint   `gorm:"primaryKey"`
	UserID        string `gorm:"index:idx_user_achievement,unique;not null"`
	AchievementID string `gorm:"index:idx_user_achievement,unique;not null"`
	AchievedAt    time.Time
	Notified      bool
}

func (userAchievementRow) TableName() string { return "user_achievements" }

// --- 用户 ---

func (s *GormStore) GetUser(userID string) (*models.User, error) {
	var row userRow
	if err := s.db.Where("user_id = ?", userID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return rowToUser(&row), nil
}

func (s *GormStore) CreateUser(user *models.User) error {
	return s.db.Create(userToRow(user)).Error
}

func (s *GormStore) SaveUser(user *models.User) error {
	user.UpdatedAt = time.Now()
	row := userToRow(user)
	return s.db.Model(&userRow{}).Where("user_id = ?", user.UserID).
		Select("*").Omit("id", "created_at").Updates(row).Error
}

func (s *GormStore) Leaderboard(limit, offset int) ([]models.LeaderboardEntry, error) {
	var rows []userRow
	if err := s.db.Order("coins DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, err
	}
	entries := make([]models.LeaderboardEntry, 0, len(rows))
	for i, row := range rows {
		entries = append(entries, models.LeaderboardEntry{
			Rank:     offset + i + 1,
			UserID:   row.UserID,
			Username: row.Username,
			Score:    row.Coins,
			Title:    row.Title,
		})
	}
	return entries, nil
}

func (s *GormStore) UserRank(userID string) (int, error) {
	var rank int
	err := s.db.Raw(`
        SELECT COUNT(*) + 1 FROM users
        WHERE coins > (SELECT coins FROM users WHERE user_id = ?)`,
		userID).Scan(&rank).Error
	return rank, err
}

// --- 游戏房间 ---

func (s *GormStore) CreateRoom(room *models.GameRoom) error {
	return s.db.Create(roomToRow(room)).Error
}

func (s *GormStore) UpdateRoom(room *models.GameRoom) error {
	row := roomToRow(room)
	return s.db.Model(&roomRow{}).Where("room_id = ?", room.ID).
		Select("*").Omit("id", "created_at").Updates(row).Error
}

func (s *GormStore) GetRoom(roomID string) (*models.GameRoom, error) {
	var row roomRow
	if err := s.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("room_id = ?", roomID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return rowToRoom(&row), nil
}

func (s *GormStore) UserRooms(userID string, status models.RoomStatus) ([]*models.GameRoom, error) {
	var rows []roomRow
	q := s.db.Where("players @> ?::jsonb", playerFilter(userID))
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rowsToRooms(rows), nil
}

func (s *GormStore) ChannelRooms(channelID, gameType string, status models.RoomStatus) ([]*models.GameRoom, error) {
	q := s.db.Where("channel_id = ?", channelID)
	if gameType != "" {
		q = q.Where("game_type = ?", gameType)
	}
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	var rows []roomRow
	if err := q.Order("created_at").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rowsToRooms(rows), nil
}

func (s *GormStore) DeleteRoom(roomID string) error {
	return s.db.Where("room_id = ?", roomID).Delete(&roomRow{}).Error
}

// --- 游戏记录 ---

func (s *GormStore) CreateGameRecord(record *models.GameRecord) error {
	row := &gameRecordRow{
		UserID:    record.UserID,
		GameType:  record.GameType,
		CoinsBet:  record.CoinsBet,
		CoinsWon:  record.CoinsWon,
		Result:    record.Result,
		Details:   record.Details,
		CreatedAt: record.CreatedAt,
	}
	if err := s.db.Create(row).Error; err != nil {
		return err
	}
	record.ID = row.ID
	return nil
}

func (s *GormStore) UserGameRecords(userID, gameType string, limit int) ([]*models.GameRecord, error) {
	q := s.db.Where("user_id = ?", userID)
	if gameType != "" {
		q = q.Where("game_type = ?", gameType)
	}
	var rows []gameRecordRow
	if err := q.Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	records := make([]*models.GameRecord, 0, len(rows))
	for i := range rows {
		row := rows[i]
		records = append(records, &models.GameRecord{
			ID:        row.ID,
			UserID:    row.UserID,
			GameType:  row.GameType,
			CoinsBet:  row.CoinsBet,
			CoinsWon:  row.CoinsWon,
			Result:    row.Result,
			Details:   row.Details,
			CreatedAt: row.CreatedAt,
		})
	}
	return records, nil
}

func (s *GormStore) UserGameStats(userID, gameType string) (*models.GameStats, error) {
	var stats models.GameStats
	err := s.db.Raw(`
        SELECT
            COUNT(*) AS total_games,
            COALESCE(SUM(coins_bet), 0) AS total_bet,
            COALESCE(SUM(coins_won), 0) AS total_won,
            COALESCE(SUM(coins_won - coins_bet), 0) AS net_profit,
            COALESCE(MAX(coins_won), 0) AS max_win,
            COALESCE(SUM(CASE WHEN result = 'win' THEN 1 ELSE 0 END), 0) AS wins,
            COALESCE(SUM(CASE WHEN result = 'lose' THEN 1 ELSE 0 END), 0) AS losses
        FROM game_records
        WHERE user_id = ? AND game_type = ?`,
		userID, gameType).Scan(&stats).Error
	return &stats, err
}

// --- 签到 ---

func (s *GormStore) CreateCheckInRecord(record *models.CheckInRecord) error {
	return s.db.Create(&checkInRow{
		UserID:          record.UserID,
		CheckInDate:     record.CheckInDate,
		CoinsEarned:     record.CoinsEarned,
		ConsecutiveDays: record.ConsecutiveDays,
		BonusCoins:      record.BonusCoins,
	}).Error
}

func (s *GormStore) UserCheckIns(userID string, limit int) ([]*models.CheckInRecord, error) {
	var rows []checkInRow
	if err := s.db.Where("user_id = ?", userID).
		Order("check_in_date DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	records := make([]*models.CheckInRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, &models.CheckInRecord{
			UserID:          row.UserID,
			CheckInDate:     row.CheckInDate,
			CoinsEarned:     row.CoinsEarned,
			ConsecutiveDays: row.ConsecutiveDays,
			BonusCoins:      row.BonusCoins,
		})
	}
	return records, nil
}

func (s *GormStore) TotalCheckIns(userID string) (int, error) {
	var count int64
	err := s.db.Model(&checkInRow{}).Where("user_id = ?", userID).Count(&count).Error
	return int(count), err
}

// --- 成就 ---

func (s *GormStore) Achievements() ([]*models.Achievement, error) {
	var rows []achievementRow
	if err := s.db.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*models.Achievement, 0, len(rows))
	for i := range rows {
		out = append(out, rowToAchievement(&rows[i]))
	}
	return out, nil
}

func (s *GormStore) GetAchievement(id string) (*models.Achievement, error) {
	var row achievementRow
	if err := s.db.Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return rowToAchievement(&row), nil
}

func (s *GormStore) UpsertAchievement(a *models.Achievement) error {
	row := achievementRow{
		ID:             a.ID,
		Name:           a.Name,
		Description:    a.Description,
		Category:       a.Category,
		ConditionType:  a.ConditionType,
		ConditionValue: a.ConditionValue,
		RewardCoins:    a.RewardCoins,
		RewardTitle:    a.RewardTitle,
		Hidden:         a.Hidden,
		CreatedAt:      time.Now(),
	}
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

func (s *GormStore) UserAchievements(userID string) ([]*models.UserAchievement, error) {
	var rows []userAchievementRow
	if err := s.db.Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, err
	}
	return uaRowsToModels(rows), nil
}

func (s *GormStore) HasAchievement(userID, achievementID string) (bool, error) {
	var count int64
	err := s.db.Model(&userAchievementRow{}).
		Where("user_id = ? AND achievement_id = ?", userID, achievementID).
		Count(&count).Error
	return count > 0, err
}

func (s *GormStore) AwardAchievement(ua *models.UserAchievement) error {
	return s.db.Create(&userAchievementRow{
		UserID:        ua.UserID,
		AchievementID: ua.AchievementID,
		AchievedAt:    ua.AchievedAt,
		Notified:      ua.Notified,
	}).Error
}

func (s *GormStore) UnnotifiedAchievements(userID string) ([]*models.UserAchievement, error) {
	var rows []userAchievementRow
	if err := s.db.Where("user_id = ? AND notified = false", userID).Find(&rows).Error; err != nil {
		return nil, err
	}
	return uaRowsToModels(rows), nil
}

func (s *GormStore) MarkAchievementNotified(userID, achievementID string) error {
	return s.db.Model(&userAchievementRow{}).
		Where("user_id = ? AND achievement_id = ?", userID, achievementID).
		Update("notified", true).Error
}

// Transaction 事务支持，回调内拿到的 Store 绑定同一个事务
func (s *GormStore) Transaction(fn func(tx Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --- 转换 ---

func playerFilter(userID string) string {
	b, _ := json.Marshal([]map[string]string{{"user_id": userID}})
	return string(b)
}

func rowToUser(row *userRow) *models.User {
	return &models.User{
		UserID:        row.UserID,
		Username:      row.Username,
		Coins:         row.Coins,
		TotalEarned:   row.TotalEarned,
		TotalSpent:    row.TotalSpent,
		CheckInCount:  row.CheckInCount,
		LastCheckIn:   row.LastCheckIn,
		TotalCheckIns: row.TotalCheckIns,
		Level:         row.Level,
		Experience:    row.Experience,
		Title:         row.Title,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
}

func userToRow(user *models.User) *userRow {
	return &userRow{
		UserID:        user.UserID,
		Username:      user.Username,
		Coins:         user.Coins,
		TotalEarned:   user.TotalEarned,
		TotalSpent:    user.TotalSpent,
		CheckInCount:  user.CheckInCount,
		LastCheckIn:   user.LastCheckIn,
		TotalCheckIns: user.TotalCheckIns,
		Level:         user.Level,
		Experience:    user.Experience,
		Title:         user.Title,
		CreatedAt:     user.CreatedAt,
		UpdatedAt:     user.UpdatedAt,
	}
}

func roomToRow(room *models.GameRoom) *roomRow {
	return &roomRow{
		RoomID:      room.ID,
		GameType:    room.GameType,
		ChannelID:   room.ChannelID,
		CreatorID:   room.CreatorID,
		CreatorName: room.CreatorName,
		BetAmount:   room.BetAmount,
		Status:      string(room.Status),
		MaxPlayers:  room.MaxPlayers,
		MinPlayers:  room.MinPlayers,
		Players:     room.Players,
		GameData:    room.GameData,
		Settings:    room.Settings,
		CreatedAt:   room.CreatedAt,
		StartedAt:   room.StartedAt,
		FinishedAt:  room.FinishedAt,
	}
}

func rowToRoom(row *roomRow) *models.GameRoom {
	return &models.GameRoom{
		ID:          row.RoomID,
		GameType:    row.GameType,
		ChannelID:   row.ChannelID,
		CreatorID:   row.CreatorID,
		CreatorName: row.CreatorName,
		BetAmount:   row.BetAmount,
		Status:      models.RoomStatus(row.Status),
		MaxPlayers:  row.MaxPlayers,
		MinPlayers:  row.MinPlayers,
		Players:     row.Players,
		GameData:    row.GameData,
		Settings:    row.Settings,
		CreatedAt:   row.CreatedAt,
		StartedAt:   row.StartedAt,
		FinishedAt:  row.FinishedAt,
	}
}

func rowsToRooms(rows []roomRow) []*models.GameRoom {
	rooms := make([]*models.GameRoom, 0, len(rows))
	for i := range rows {
		rooms = append(rooms, rowToRoom(&rows[i]))
	}
	return rooms
}

func rowToAchievement(row *achievementRow) *models.Achievement {
	return &models.Achievement{
		ID:             row.ID,
		Name:           row.Name,
		Description:    row.Description,
		Category:       row.Category,
		ConditionType:  row.ConditionType,
		ConditionValue: row.ConditionValue,
		RewardCoins:    row.RewardCoins,
		RewardTitle:    row.RewardTitle,
		Hidden:         row.Hidden,
		CreatedAt:      row.CreatedAt,
	}
}

func uaRowsToModels(rows []userAchievementRow) []*models.UserAchievement {
	out := make([]*models.UserAchievement, 0, len(rows))
	for _, row := range rows {
		out = append(out, &models.UserAchievement{
			UserID:        row.UserID,
			AchievementID: row.AchievementID,
			AchievedAt:    row.AchievedAt,
			Notified:      row.Notified,
		})
	}
	return out
}
