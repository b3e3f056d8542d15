// services/achievement_service.go
package services

import (
	"strings"
	"time"

	"coinbot/events"
	"coinbot/logger"
	"coinbot/models"
	"coinbot/persistence"
)

// AchievementService 成就服务。结算、签到等流程在变更落库后
// 调用 CheckAndAward 作为成就钩子
type AchievementService struct {
	store     persistence.Store
	users     *UserService
	publisher events.Publisher
}

func NewAchievementService(store persistence.Store, users *UserService, publisher events.Publisher) *AchievementService {
	return &AchievementService{store: store, users: users, publisher: publisher}
}

// WithStore 返回绑定到指定 Store 的副本
func (s *AchievementService) WithStore(store persistence.Store) *AchievementService {
	cp := *s
	cp.store = store
	cp.users = s.users.WithStore(store)
	return &cp
}

// InitializeDefaults 写入默认成就目录，已存在的条目保持不变
func (s *AchievementService) InitializeDefaults() error {
	for _, a := range defaultAchievements() {
		if err := s.store.UpsertAchievement(a); err != nil {
			return err
		}
	}
	return nil
}

// CheckAndAward 检查并颁发满足条件的成就，返回本次新解锁的成就
func (s *AchievementService) CheckAndAward(userID, trigger string, value any) ([]*models.Achievement, error) {
	user, err := s.store.GetUser(userID)
	if err != nil {
		return nil, err
	}
	achievements, err := s.store.Achievements()
	if err != nil {
		return nil, err
	}

	var unlocked []*models.Achievement
	for _, a := range achievements {
		owned, err := s.store.HasAchievement(userID, a.ID)
		if err != nil {
			return nil, err
		}
		if owned {
			continue
		}
		ok, err := s.conditionMet(user, a, trigger, value)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if err := s.award(user, a); err != nil {
			return nil, err
		}
		unlocked = append(unlocked, a)
	}
	return unlocked, nil
}

func (s *AchievementService) conditionMet(user *models.User, a *models.Achievement, trigger string, value any) (bool, error) {
	switch {
	case a.Category == "金币" && trigger == models.TriggerCoins:
		switch a.ConditionType {
		case "total_earned":
			return user.TotalEarned >= a.ConditionValue, nil
		case "current_coins":
			return user.Coins >= a.ConditionValue, nil
		case "single_gain":
			if gain, ok := toInt64(value); ok {
				return gain >= a.ConditionValue, nil
			}
		}

	case a.Category == "签到" && trigger == models.TriggerCheckIn:
		switch a.ConditionType {
		case "consecutive_days":
			return int64(user.CheckInCount) >= a.ConditionValue, nil
		case "total_check_ins":
			return int64(user.TotalCheckIns) >= a.ConditionValue, nil
		}

	case a.Category == "等级" && trigger == models.TriggerLevel:
		if a.ConditionType == "level" {
			return int64(user.Level) >= a.ConditionValue, nil
		}

	case a.Category == "游戏" && trigger == models.TriggerGame:
		// 游戏成就需要统计历史战绩
		payload, ok := value.(map[string]any)
		if !ok {
			return false, nil
		}
		gameEvent, _ := payload["type"].(string)
		switch a.ConditionType {
		case "roulette_win":
			if !strings.Contains(gameEvent, "roulette_win") {
				return false, nil
			}
			stats, err := s.store.UserGameStats(user.UserID, "russian_roulette")
			if err != nil {
				return false, err
			}
			return stats.Wins >= a.ConditionValue, nil
		case "roulette_survive":
			if !strings.Contains(gameEvent, "roulette_lose") {
				return false, nil
			}
			stats, err := s.store.UserGameStats(user.UserID, "russian_roulette")
			if err != nil {
				return false, err
			}
			return stats.Losses >= a.ConditionValue, nil
		}
	}
	return false, nil
}

func (s *AchievementService) award(user *models.User, a *models.Achievement) error {
	if err := s.store.AwardAchievement(&models.UserAchievement{
		UserID:        user.UserID,
		AchievementID: a.ID,
		AchievedAt:    time.Now(),
	}); err != nil {
		return err
	}
	if a.RewardCoins > 0 {
		if err := s.users.AddCoins(user.UserID, a.RewardCoins, "成就奖励："+a.Name); err != nil {
			return err
		}
	}
	if a.RewardTitle != "" {
		if err := s.users.SetTitle(user.UserID, a.RewardTitle); err != nil {
			return err
		}
	}

	logger.Log.Infow("achievement unlocked", "user_id", user.UserID, "achievement", a.ID)
	if s.publisher != nil {
		s.publisher.Publish(events.Event{
			Kind:   events.KindAchievement,
			UserID: user.UserID,
			Payload: map[string]any{
				"achievement_id": a.ID,
				"name":           a.Name,
				"reward_coins":   a.RewardCoins,
			},
			Timestamp: time.Now(),
		})
	}
	return nil
}

// AchievementProgress 单个成就的进度
type AchievementProgress struct {
	Achievement *models.Achievement `json:"achievement"`
	Completed   bool                `json:"completed"`
	Progress    int64               `json:"progress"`
}

// ProgressSummary 用户成就总览
type ProgressSummary struct {
	Total      int                              `json:"total"`
	Completed  int                              `json:"completed"`
	Categories map[string][]AchievementProgress `json:"categories"`
}

func (s *AchievementService) Progress(userID string) (*ProgressSummary, error) {
	user, err := s.store.GetUser(userID)
	if err != nil {
		return nil, err
	}
	all, err := s.store.Achievements()
	if err != nil {
		return nil, err
	}
	owned, err := s.store.UserAchievements(userID)
	if err != nil {
		return nil, err
	}
	ownedIDs := make(map[string]bool, len(owned))
	for _, ua := range owned {
		ownedIDs[ua.AchievementID] = true
	}

	summary := &ProgressSummary{
		Total:      len(all),
		Completed:  len(owned),
		Categories: make(map[string][]AchievementProgress),
	}
	for _, a := range all {
		summary.Categories[a.Category] = append(summary.Categories[a.Category], AchievementProgress{
			Achievement: a,
			Completed:   ownedIDs[a.ID],
			Progress:    currentProgress(user, a),
		})
	}
	return summary, nil
}

// Unnotified 取出尚未通知的新成就并标记为已通知
func (s *AchievementService) Unnotified(userID string) ([]*models.Achievement, error) {
	pending, err := s.store.UnnotifiedAchievements(userID)
	if err != nil {
		return nil, err
	}
	var out []*models.Achievement
	for _, ua := range pending {
		a, err := s.store.GetAchievement(ua.AchievementID)
		if err != nil {
			continue
		}
		out = append(out, a)
		if err := s.store.MarkAchievementNotified(userID, ua.AchievementID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func currentProgress(user *models.User, a *models.Achievement) int64 {
	switch a.Category {
	case "金币":
		switch a.ConditionType {
		case "total_earned":
			return user.TotalEarned
		case "current_coins":
			return user.Coins
		}
	case "签到":
		switch a.ConditionType {
		case "consecutive_days":
			return int64(user.CheckInCount)
		case "total_check_ins":
			return int64(user.TotalCheckIns)
		}
	case "等级":
		if a.ConditionType == "level" {
			return int64(user.Level)
		}
	}
	return 0
}

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

func defaultAchievements() []*models.Achievement {
	mk := func(id, name, desc, category, condType string, condValue, reward int64, title string) *models.Achievement {
		return &models.Achievement{
			ID: id, Name: name, Description: desc, Category: category,
			ConditionType: condType, ConditionValue: condValue,
			RewardCoins: reward, RewardTitle: title,
		}
	}
	return []*models.Achievement{
		// 金币类成就
		mk("first_hundred", "小富即安", "拥有100金币", "金币", "current_coins", 100, 50, "小康"),
		mk("first_thousand", "财源广进", "拥有1000金币", "金币", "current_coins", 1000, 200, "富足"),
		mk("first_ten_thousand", "财富自由", "拥有10000金币", "金币", "current_coins", 10000, 1000, "富豪"),
		mk("millionaire", "百万富翁", "拥有100万金币", "金币", "current_coins", 1000000, 50000, "百万富翁"),
		mk("earn_thousand", "积少成多", "累计获得1000金币", "金币", "total_earned", 1000, 100, ""),
		mk("earn_hundred_thousand", "财富积累", "累计获得10万金币", "金币", "total_earned", 100000, 5000, ""),
		mk("single_gain_1000", "一夜暴富", "单次获得1000金币", "金币", "single_gain", 1000, 500, ""),
		mk("earn_million", "日进斗金", "累计获得100万金币", "金币", "total_earned", 1000000, 20000, "金主"),

		// 签到类成就
		mk("check_in_7", "每日一签", "连续签到7天", "签到", "consecutive_days", 7, 300, "守时"),
		mk("check_in_30", "守约之人", "连续签到30天", "签到", "consecutive_days", 30, 1500, "守约之人"),
		mk("check_in_100", "坚持不懈", "连续签到100天", "签到", "consecutive_days", 100, 8000, "坚持不懈"),
		mk("check_in_365", "签到达人", "连续签到365天", "签到", "consecutive_days", 365, 50000, "签到达人"),
		mk("total_check_in_50", "签到爱好者", "累计签到50次", "签到", "total_check_ins", 50, 1000, ""),
		mk("total_check_in_200", "打卡专家", "累计签到200次", "签到", "total_check_ins", 200, 5000, ""),

		// 等级类成就
		mk("level_5", "初出茅庐", "达到5级", "等级", "level", 5, 200, ""),
		mk("level_10", "小有成就", "达到10级", "等级", "level", 10, 500, "小有成就"),
		mk("level_20", "经验丰富", "达到20级", "等级", "level", 20, 1500, "老手"),
		mk("level_50", "资深玩家", "达到50级", "等级", "level", 50, 10000, "资深玩家"),

		// 游戏类成就（俄罗斯轮盘）
		mk("roulette_first_win", "初战告捷", "俄罗斯轮盘首次获胜", "游戏", "roulette_win", 1, 100, ""),
		mk("roulette_win_10", "幸运之星", "俄罗斯轮盘获胜10次", "游戏", "roulette_win", 10, 500, "幸运儿"),
		mk("roulette_survivor", "死里逃生", "俄罗斯轮盘生存100次", "游戏", "roulette_survive", 100, 2000, "幸存者"),
	}
}
