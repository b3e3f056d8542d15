// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	// PostgreSQL 驱动
	_ "github.com/lib/pq"

	"coinbot/models"
)

const queryTimeout = 5 * time.Second

// queryer 抽象 *sql.DB 与 *sql.Tx 的公共子集
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore 原生 database/sql 实现，与 GormStore 共用同一套表结构
type PostgresStore struct {
	db *sql.DB // 事务内为 nil
	q  queryer
}

// NewPostgresStore 创建 PostgreSQL 数据库连接
func NewPostgresStore(host string, port int, user, password, dbname string) (*PostgresStore, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(db); err != nil {
		return nil, err
	}

	return &PostgresStore{db: db, q: db}, nil
}

// initTables 初始化数据库表结构
func initTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id SERIAL PRIMARY KEY,
            user_id VARCHAR(255) UNIQUE NOT NULL,
            username VARCHAR(255) NOT NULL,
            coins BIGINT NOT NULL DEFAULT 0,
            total_earned BIGINT NOT NULL DEFAULT 0,
            total_spent BIGINT NOT NULL DEFAULT 0,
            check_in_count INT NOT NULL DEFAULT 0,
            last_check_in TIMESTAMP,
            total_check_ins INT NOT NULL DEFAULT 0,
            level INT NOT NULL DEFAULT 1,
            experience INT NOT NULL DEFAULT 0,
            title VARCHAR(255) NOT NULL DEFAULT '新人',
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS game_rooms (
            id SERIAL PRIMARY KEY,
            room_id VARCHAR(255) UNIQUE NOT NULL,
            game_type VARCHAR(100) NOT NULL,
            channel_id VARCHAR(255) NOT NULL,
            creator_id VARCHAR(255) NOT NULL,
            creator_name VARCHAR(255),
            bet_amount BIGINT NOT NULL,
            status VARCHAR(50) NOT NULL,
            max_players INT NOT NULL,
            min_players INT NOT NULL,
            players JSONB NOT NULL DEFAULT '[]',
            game_data JSONB,
            settings JSONB,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            started_at TIMESTAMP,
            finished_at TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS game_records (
            id SERIAL PRIMARY KEY,
            user_id VARCHAR(255) NOT NULL,
            game_type VARCHAR(100) NOT NULL,
            coins_bet BIGINT NOT NULL DEFAULT 0,
            coins_won BIGINT NOT NULL DEFAULT 0,
            result VARCHAR(50) NOT NULL,
            details JSONB,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS check_in_records (
            id SERIAL PRIMARY KEY,
            user_id VARCHAR(255) NOT NULL,
            check_in_date TIMESTAMP NOT NULL,
            coins_earned BIGINT NOT NULL,
            consecutive_days INT NOT NULL,
            bonus_coins BIGINT NOT NULL DEFAULT 0
        )`,
		`CREATE TABLE IF NOT EXISTS achievements (
            id VARCHAR(255) PRIMARY KEY,
            name VARCHAR(255) NOT NULL,
            description TEXT,
            category VARCHAR(100),
            condition_type VARCHAR(100),
            condition_value BIGINT NOT NULL DEFAULT 0,
            reward_coins BIGINT NOT NULL DEFAULT 0,
            reward_title VARCHAR(255) DEFAULT '',
            hidden BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS user_achievements (
            id SERIAL PRIMARY KEY,
            user_id VARCHAR(255) NOT NULL,
            achievement_id VARCHAR(255) NOT NULL,
            achieved_at TIMESTAMP NOT NULL,
            notified BOOLEAN NOT NULL DEFAULT FALSE,
            UNIQUE (user_id, achievement_id)
        )`,
		`CREATE INDEX IF NOT EXISTS idx_users_coins ON users(coins DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_game_rooms_channel ON game_rooms(channel_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_game_records_user ON game_records(user_id, game_type)`,
		`CREATE INDEX IF NOT EXISTS idx_check_in_user ON check_in_records(user_id)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), queryTimeout)
}

// --- 用户 ---

const userColumns = `user_id, username, coins, total_earned, total_spent,
    check_in_count, last_check_in, total_check_ins, level, experience, title,
    created_at, updated_at`

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.UserID, &u.Username, &u.Coins, &u.TotalEarned, &u.TotalSpent,
		&u.CheckInCount, &u.LastCheckIn, &u.TotalCheckIns, &u.Level, &u.Experience,
		&u.Title, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (p *PostgresStore) GetUser(userID string) (*models.User, error) {
	ctx, cancel := opCtx()
	defer cancel()
	return scanUser(p.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID))
}

func (p *PostgresStore) CreateUser(user *models.User) error {
	ctx, cancel := opCtx()
	defer cancel()
	_, err := p.q.ExecContext(ctx, `
        INSERT INTO users (user_id, username, coins, total_earned, total_spent,
            check_in_count, last_check_in, total_check_ins, level, experience, title,
            created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		user.UserID, user.Username, user.Coins, user.TotalEarned, user.TotalSpent,
		user.CheckInCount, user.LastCheckIn, user.TotalCheckIns, user.Level,
		user.Experience, user.Title, user.CreatedAt, user.UpdatedAt)
	return err
}

func (p *PostgresStore) SaveUser(user *models.User) error {
	ctx, cancel := opCtx()
	defer cancel()
	user.UpdatedAt = time.Now()
	_, err := p.q.ExecContext(ctx, `
        UPDATE users SET username = $2, coins = $3, total_earned = $4, total_spent = $5,
            check_in_count = $6, last_check_in = $7, total_check_ins = $8,
            level = $9, experience = $10, title = $11, updated_at = $12
        WHERE user_id = $1`,
		user.UserID, user.Username, user.Coins, user.TotalEarned, user.TotalSpent,
		user.CheckInCount, user.LastCheckIn, user.TotalCheckIns, user.Level,
		user.Experience, user.Title, user.UpdatedAt)
	return err
}

func (p *PostgresStore) Leaderboard(limit, offset int) ([]models.LeaderboardEntry, error) {
	ctx, cancel := opCtx()
	defer cancel()
	rows, err := p.q.QueryContext(ctx, `
        SELECT user_id, username, coins, title FROM users
        ORDER BY coins DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.LeaderboardEntry
	rank := offset + 1
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Username, &e.Score, &e.Title); err != nil {
			return nil, err
		}
		e.Rank = rank
		rank++
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (p *PostgresStore) UserRank(userID string) (int, error) {
	ctx, cancel := opCtx()
	defer cancel()
	var rank int
	err := p.q.QueryRowContext(ctx, `
        SELECT COUNT(*) + 1 FROM users
        WHERE coins > (SELECT coins FROM users WHERE user_id = $1)`, userID).Scan(&rank)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrRecordNotFound
	}
	return rank, err
}

// --- 游戏房间 ---

const roomColumns = `room_id, game_type, channel_id, creator_id, creator_name,
    bet_amount, status, max_players, min_players, players, game_data, settings,
    created_at, started_at, finished_at`

func scanRoom(scanner interface{ Scan(...any) error }) (*models.GameRoom, error) {
	var (
		r        models.GameRoom
		status   string
		players  []byte
		gameData []byte
		settings []byte
	)
	err := scanner.Scan(&r.ID, &r.GameType, &r.ChannelID, &r.CreatorID, &r.CreatorName,
		&r.BetAmount, &status, &r.MaxPlayers, &r.MinPlayers, &players, &gameData,
		&settings, &r.CreatedAt, &r.StartedAt, &r.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Status = models.RoomStatus(status)
	if len(players) > 0 {
		if err := json.Unmarshal(players, &r.Players); err != nil {
			return nil, err
		}
	}
	r.GameData = gameData
	r.Settings = settings
	return &r, nil
}

func roomArgs(room *models.GameRoom) ([]any, error) {
	players, err := json.Marshal(room.Players)
	if err != nil {
		return nil, err
	}
	return []any{
		room.ID, room.GameType, room.ChannelID, room.CreatorID, room.CreatorName,
		room.BetAmount, string(room.Status), room.MaxPlayers, room.MinPlayers,
		players, []byte(room.GameData), []byte(room.Settings),
		room.CreatedAt, room.StartedAt, room.FinishedAt,
	}, nil
}

func (p *PostgresStore) CreateRoom(room *models.GameRoom) error {
	ctx, cancel := opCtx()
	defer cancel()
	args, err := roomArgs(room)
	if err != nil {
		return err
	}
	_, err = p.q.ExecContext(ctx, `
        INSERT INTO game_rooms (`+roomColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		args...)
	return err
}

func (p *PostgresStore) UpdateRoom(room *models.GameRoom) error {
	ctx, cancel := opCtx()
	defer cancel()
	players, err := json.Marshal(room.Players)
	if err != nil {
		return err
	}
	_, err = p.q.ExecContext(ctx, `
        UPDATE game_rooms SET status = $2, players = $3, game_data = $4,
            settings = $5, started_at = $6, finished_at = $7
        WHERE room_id = $1`,
		room.ID, string(room.Status), players, []byte(room.GameData),
		[]byte(room.Settings), room.StartedAt, room.FinishedAt)
	return err
}

func (p *PostgresStore) GetRoom(roomID string) (*models.GameRoom, error) {
	ctx, cancel := opCtx()
	defer cancel()
	return scanRoom(p.q.QueryRowContext(ctx,
		`SELECT `+roomColumns+` FROM game_rooms WHERE room_id = $1 FOR UPDATE`, roomID))
}

func (p *PostgresStore) queryRooms(query string, args ...any) ([]*models.GameRoom, error) {
	ctx, cancel := opCtx()
	defer cancel()
	rows, err := p.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []*models.GameRoom
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func (p *PostgresStore) UserRooms(userID string, status models.RoomStatus) ([]*models.GameRoom, error) {
	filter, _ := json.Marshal([]map[string]string{{"user_id": userID}})
	if status == "" {
		return p.queryRooms(`SELECT `+roomColumns+` FROM game_rooms
            WHERE players @> $1::jsonb ORDER BY created_at`, string(filter))
	}
	return p.queryRooms(`SELECT `+roomColumns+` FROM game_rooms
        WHERE players @> $1::jsonb AND status = $2 ORDER BY created_at`,
		string(filter), string(status))
}

func (p *PostgresStore) ChannelRooms(channelID, gameType string, status models.RoomStatus) ([]*models.GameRoom, error) {
	query := `SELECT ` + roomColumns + ` FROM game_rooms WHERE channel_id = $1`
	args := []any{channelID}
	if gameType != "" {
		args = append(args, gameType)
		query += fmt.Sprintf(" AND game_type = $%d", len(args))
	}
	if status != "" {
		args = append(args, string(status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at"
	return p.queryRooms(query, args...)
}

func (p *PostgresStore) DeleteRoom(roomID string) error {
	ctx, cancel := opCtx()
	defer cancel()
	_, err := p.q.ExecContext(ctx, `DELETE FROM game_rooms WHERE room_id = $1`, roomID)
	return err
}

// --- 游戏记录 ---

func (p *PostgresStore) CreateGameRecord(record *models.GameRecord) error {
	ctx, cancel := opCtx()
	defer cancel()
	details, err := json.Marshal(record.Details)
	if err != nil {
		return err
	}
	return p.q.QueryRowContext(ctx, `
        INSERT INTO game_records (user_id, game_type, coins_bet, coins_won, result, details, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		record.UserID, record.GameType, record.CoinsBet, record.CoinsWon,
		record.Result, details, record.CreatedAt).Scan(&record.ID)
}

func (p *PostgresStore) UserGameRecords(userID, gameType string, limit int) ([]*models.GameRecord, error) {
	ctx, cancel := opCtx()
	defer cancel()

	query := `SELECT id, user_id, game_type, coins_bet, coins_won, result, details, created_at
        FROM game_records WHERE user_id = $1`
	args := []any{userID}
	if gameType != "" {
		args = append(args, gameType)
		query += fmt.Sprintf(" AND game_type = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := p.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.GameRecord
	for rows.Next() {
		var (
			r       models.GameRecord
			details []byte
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.GameType, &r.CoinsBet, &r.CoinsWon,
			&r.Result, &details, &r.CreatedAt); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &r.Details); err != nil {
				return nil, err
			}
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}

func (p *PostgresStore) UserGameStats(userID, gameType string) (*models.GameStats, error) {
	ctx, cancel := opCtx()
	defer cancel()
	var stats models.GameStats
	err := p.q.QueryRowContext(ctx, `
        SELECT
            COUNT(*),
            COALESCE(SUM(coins_bet), 0),
            COALESCE(SUM(coins_won), 0),
            COALESCE(SUM(coins_won - coins_bet), 0),
            COALESCE(MAX(coins_won), 0),
            COALESCE(SUM(CASE WHEN result = 'win' THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN result = 'lose' THEN 1 ELSE 0 END), 0)
        FROM game_records WHERE user_id = $1 AND game_type = $2`,
		userID, gameType).Scan(&stats.TotalGames, &stats.TotalBet, &stats.TotalWon,
		&stats.NetProfit, &stats.MaxWin, &stats.Wins, &stats.Losses)
	return &stats, err
}

// --- 签到 ---

func (p *PostgresStore) CreateCheckInRecord(record *models.CheckInRecord) error {
	ctx, cancel := opCtx()
	defer cancel()
	_, err := p.q.ExecContext(ctx, `
        INSERT INTO check_in_records (user_id, check_in_date, coins_earned, consecutive_days, bonus_coins)
        VALUES ($1, $2, $3, $4, $5)`,
		record.UserID, record.CheckInDate, record.CoinsEarned,
		record.ConsecutiveDays, record.BonusCoins)
	return err
}

func (p *PostgresStore) UserCheckIns(userID string, limit int) ([]*models.CheckInRecord, error) {
	ctx, cancel := opCtx()
	defer cancel()
	rows, err := p.q.QueryContext(ctx, `
        SELECT user_id, check_in_date, coins_earned, consecutive_days, bonus_coins
        FROM check_in_records WHERE user_id = $1
        ORDER BY check_in_date DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.CheckInRecord
	for rows.Next() {
		var r models.CheckInRecord
		if err := rows.Scan(&r.UserID, &r.CheckInDate, &r.CoinsEarned,
			&r.ConsecutiveDays, &r.BonusCoins); err != nil {
			return nil, err
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}

func (p *PostgresStore) TotalCheckIns(userID string) (int, error) {
	ctx, cancel := opCtx()
	defer cancel()
	var count int
	err := p.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM check_in_records WHERE user_id = $1`, userID).Scan(&count)
	return count, err
}

// --- 成就 ---

const achievementColumns = `id, name, description, category, condition_type,
    condition_value, reward_coins, reward_title, hidden, created_at`

func (p *PostgresStore) Achievements() ([]*models.Achievement, error) {
	ctx, cancel := opCtx()
	defer cancel()
	rows, err := p.q.QueryContext(ctx,
		`SELECT `+achievementColumns+` FROM achievements ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Achievement
	for rows.Next() {
		var a models.Achievement
		if err := rows.Scan(&a.ID, &a.Name, &a.Description, &a.Category,
			&a.ConditionType, &a.ConditionValue, &a.RewardCoins, &a.RewardTitle,
			&a.Hidden, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (p *PostgresStore) GetAchievement(id string) (*models.Achievement, error) {
	ctx, cancel := opCtx()
	defer cancel()
	var a models.Achievement
	err := p.q.QueryRowContext(ctx,
		`SELECT `+achievementColumns+` FROM achievements WHERE id = $1`, id).
		Scan(&a.ID, &a.Name, &a.Description, &a.Category, &a.ConditionType,
			&a.ConditionValue, &a.RewardCoins, &a.RewardTitle, &a.Hidden, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (p *PostgresStore) UpsertAchievement(a *models.Achievement) error {
	ctx, cancel := opCtx()
	defer cancel()
	_, err := p.q.ExecContext(ctx, `
        INSERT INTO achievements (id, name, description, category, condition_type,
            condition_value, reward_coins, reward_title, hidden)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (id) DO NOTHING`,
		a.ID, a.Name, a.Description, a.Category, a.ConditionType,
		a.ConditionValue, a.RewardCoins, a.RewardTitle, a.Hidden)
	return err
}

func (p *PostgresStore) userAchievementQuery(query string, args ...any) ([]*models.UserAchievement, error) {
	ctx, cancel := opCtx()
	defer cancel()
	rows, err := p.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.UserAchievement
	for rows.Next() {
		var ua models.UserAchievement
		if err := rows.Scan(&ua.UserID, &ua.AchievementID, &ua.AchievedAt, &ua.Notified); err != nil {
			return nil, err
		}
		out = append(out, &ua)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UserAchievements(userID string) ([]*models.UserAchievement, error) {
	return p.userAchievementQuery(`
        SELECT user_id, achievement_id, achieved_at, notified
        FROM user_achievements WHERE user_id = $1`, userID)
}

func (p *PostgresStore) HasAchievement(userID, achievementID string) (bool, error) {
	ctx, cancel := opCtx()
	defer cancel()
	var count int
	err := p.q.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM user_achievements
        WHERE user_id = $1 AND achievement_id = $2`, userID, achievementID).Scan(&count)
	return count > 0, err
}

func (p *PostgresStore) AwardAchievement(ua *models.UserAchievement) error {
	ctx, cancel := opCtx()
	defer cancel()
	_, err := p.q.ExecContext(ctx, `
        INSERT INTO user_achievements (user_id, achievement_id, achieved_at, notified)
        VALUES ($1, $2, $3, $4)`,
		ua.UserID, ua.AchievementID, ua.AchievedAt, ua.Notified)
	return err
}

func (p *PostgresStore) UnnotifiedAchievements(userID string) ([]*models.UserAchievement, error) {
	return p.userAchievementQuery(`
        SELECT user_id, achievement_id, achieved_at, notified
        FROM user_achievements WHERE user_id = $1 AND notified = FALSE`, userID)
}

func (p *PostgresStore) MarkAchievementNotified(userID, achievementID string) error {
	ctx, cancel := opCtx()
	defer cancel()
	_, err := p.q.ExecContext(ctx, `
        UPDATE user_achievements SET notified = TRUE
        WHERE user_id = $1 AND achievement_id = $2`, userID, achievementID)
	return err
}

// Transaction 事务支持。嵌套调用直接复用外层事务
func (p *PostgresStore) Transaction(fn func(tx Store) error) error {
	if p.db == nil {
		return fn(p)
	}
	sqlTx, err := p.db.Begin()
	if err != nil {
		return err
	}
	if err := fn(&PostgresStore{q: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	return sqlTx.Commit()
}

func (p *PostgresStore) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}
