package services

import (
	"sort"
	"strings"
	"sync"

	"coinbot/models"
	"coinbot/persistence"
)

// memStore 测试用内存实现，语义与数据库适配层保持一致
type memStore struct {
	mu               sync.Mutex
	users            map[string]*models.User
	rooms            map[string]*models.GameRoom
	records          []*models.GameRecord
	checkIns         []*models.CheckInRecord
	achievements     map[string]*models.Achievement
	userAchievements []*models.UserAchievement
}

func newMemStore() *memStore {
	return &memStore{
		users:        make(map[string]*models.User),
		rooms:        make(map[string]*models.GameRoom),
		achievements: make(map[string]*models.Achievement),
	}
}

func (m *memStore) GetUser(userID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, persistence.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) CreateUser(user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *user
	m.users[user.UserID] = &cp
	return nil
}

func (m *memStore) SaveUser(user *models.User) error {
	return m.CreateUser(user)
}

func (m *memStore) Leaderboard(limit, offset int) ([]models.LeaderboardEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*models.User, 0, len(m.users))
	for _, u := range m.users {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Coins > all[j].Coins })
	var out []models.LeaderboardEntry
	for i, u := range all {
		if i < offset {
			continue
		}
		if len(out) >= limit {
			break
		}
		out = append(out, models.LeaderboardEntry{
			Rank: i + 1, UserID: u.UserID, Username: u.Username, Score: u.Coins, Title: u.Title,
		})
	}
	return out, nil
}

func (m *memStore) UserRank(userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return 0, persistence.ErrRecordNotFound
	}
	rank := 1
	for _, other := range m.users {
		if other.Coins > u.Coins {
			rank++
		}
	}
	return rank, nil
}

func (m *memStore) CreateRoom(room *models.GameRoom) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *room
	m.rooms[room.ID] = &cp
	return nil
}

func (m *memStore) UpdateRoom(room *models.GameRoom) error {
	return m.CreateRoom(room)
}

func (m *memStore) GetRoom(roomID string) (*models.GameRoom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, persistence.ErrRecordNotFound
	}
	cp := *r
	cp.Players = append([]models.RoomPlayer(nil), r.Players...)
	return &cp, nil
}

func (m *memStore) UserRooms(userID string, status models.RoomStatus) ([]*models.GameRoom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.GameRoom
	for _, r := range m.rooms {
		if r.Status != status || !r.Seated(userID) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) ChannelRooms(channelID, gameType string, status models.RoomStatus) ([]*models.GameRoom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.GameRoom
	for _, r := range m.rooms {
		if r.ChannelID != channelID || r.Status != status {
			continue
		}
		if gameType != "" && r.GameType != gameType {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) DeleteRoom(roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, roomID)
	return nil
}

func (m *memStore) CreateGameRecord(record *models.GameRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *record
	cp.ID = int64(len(m.records) + 1)
	m.records = append(m.records, &cp)
	return nil
}

func (m *memStore) UserGameRecords(userID, gameType string, limit int) ([]*models.GameRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.GameRecord
	for i := len(m.records) - 1; i >= 0; i-- {
		r := m.records[i]
		if r.UserID != userID {
			continue
		}
		if gameType != "" && r.GameType != gameType {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) UserGameStats(userID, gameType string) (*models.GameStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &models.GameStats{}
	for _, r := range m.records {
		if r.UserID != userID || r.GameType != gameType {
			continue
		}
		stats.TotalGames++
		stats.TotalBet += r.CoinsBet
		stats.TotalWon += r.CoinsWon
		if r.CoinsWon > stats.MaxWin {
			stats.MaxWin = r.CoinsWon
		}
		switch r.Result {
		case "win":
			stats.Wins++
		case "lose":
			stats.Losses++
		}
	}
	stats.NetProfit = stats.TotalWon - stats.TotalBet
	return stats, nil
}

func (m *memStore) CreateCheckInRecord(record *models.CheckInRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *record
	m.checkIns = append(m.checkIns, &cp)
	return nil
}

func (m *memStore) UserCheckIns(userID string, limit int) ([]*models.CheckInRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.CheckInRecord
	for i := len(m.checkIns) - 1; i >= 0; i-- {
		if m.checkIns[i].UserID != userID {
			continue
		}
		out = append(out, m.checkIns[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) TotalCheckIns(userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.checkIns {
		if r.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *memStore) Achievements() ([]*models.Achievement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Achievement, 0, len(m.achievements))
	for _, a := range m.achievements {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return strings.Compare(out[i].ID, out[j].ID) < 0 })
	return out, nil
}

func (m *memStore) GetAchievement(id string) (*models.Achievement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.achievements[id]
	if !ok {
		return nil, persistence.ErrRecordNotFound
	}
	return a, nil
}

func (m *memStore) UpsertAchievement(a *models.Achievement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.achievements[a.ID]; ok {
		return nil
	}
	cp := *a
	m.achievements[a.ID] = &cp
	return nil
}

func (m *memStore) UserAchievements(userID string) ([]*models.UserAchievement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.UserAchievement
	for _, ua := range m.userAchievements {
		if ua.UserID == userID {
			out = append(out, ua)
		}
	}
	return out, nil
}

func (m *memStore) HasAchievement(userID, achievementID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ua := range m.userAchievements {
		if ua.UserID == userID && ua.AchievementID == achievementID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) AwardAchievement(ua *models.UserAchievement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ua
	m.userAchievements = append(m.userAchievements, &cp)
	return nil
}

func (m *memStore) UnnotifiedAchievements(userID string) ([]*models.UserAchievement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.UserAchievement
	for _, ua := range m.userAchievements {
		if ua.UserID == userID && !ua.Notified {
			out = append(out, ua)
		}
	}
	return out, nil
}

func (m *memStore) MarkAchievementNotified(userID, achievementID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ua := range m.userAchievements {
		if ua.UserID == userID && ua.AchievementID == achievementID {
			ua.Notified = true
		}
	}
	return nil
}

// Transaction 内存实现没有回滚，直接原地执行
func (m *memStore) Transaction(fn func(tx persistence.Store) error) error {
	return fn(m)
}

func (m *memStore) Close() error { return nil }
