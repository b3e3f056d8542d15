// services/checkin_service.go
package services

import (
	"math/rand"
	"time"

	"coinbot/events"
	"coinbot/logger"
	"coinbot/models"
	"coinbot/monitor"
	"coinbot/persistence"
)

// 签到阶梯奖励：连续天数越长基础奖励越高
type rewardTier struct {
	minDays   int
	minReward int64
	maxReward int64
}

var baseRewardTiers = []rewardTier{
	{1, 50, 200},
	{7, 80, 250},
	{14, 120, 300},
	{30, 150, 400},
	{60, 200, 500},
	{90, 250, 600},
	{180, 300, 800},
	{365, 400, 1000},
}

// 连续签到里程碑奖励，只在恰好达到当天发放一次
var consecutiveBonuses = []struct {
	days  int
	bonus int64
}{
	{7, 500},
	{14, 1000},
	{30, 3000},
	{60, 8000},
	{90, 20000},
	{180, 50000},
	{365, 100000},
}

var streakTitles = []struct {
	days  int
	title string
}{
	{365, "签到达人"},
	{180, "坚持不懈"},
	{90, "持之以恒"},
	{30, "守约之人"},
	{7, "每日一签"},
}

const checkInExperience = 10

// CheckInService 签到服务
type CheckInService struct {
	store        persistence.Store
	users        *UserService
	achievements *AchievementService
	publisher    events.Publisher
	metrics      *monitor.Metrics
	rng          *rand.Rand
	now          func() time.Time
}

func NewCheckInService(store persistence.Store, users *UserService, achievements *AchievementService, publisher events.Publisher, metrics *monitor.Metrics) *CheckInService {
	return &CheckInService{
		store:        store,
		users:        users,
		achievements: achievements,
		publisher:    publisher,
		metrics:      metrics,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		now:          time.Now,
	}
}

// CheckInResult 一次签到的结果
type CheckInResult struct {
	IsNewUser       bool                  `json:"is_new_user"`
	BaseReward      int64                 `json:"base_reward"`
	BonusReward     int64                 `json:"bonus_reward"`
	TotalReward     int64                 `json:"total_reward"`
	ConsecutiveDays int                   `json:"consecutive_days"`
	TotalCheckIns   int                   `json:"total_check_ins"`
	CurrentCoins    int64                 `json:"current_coins"`
	NewTitle        string                `json:"new_title,omitempty"`
	LeveledUp       bool                  `json:"leveled_up"`
	Achievements    []*models.Achievement `json:"achievements,omitempty"`
}

// CheckIn 用户签到。当天已签到时返回 ErrCheckedInToday
func (s *CheckInService) CheckIn(userID, username string) (*CheckInResult, error) {
	var result *CheckInResult
	err := s.store.Transaction(func(tx persistence.Store) error {
		users := s.users.WithStore(tx)
		user, isNew, err := users.GetOrCreateUser(userID, username)
		if err != nil {
			return err
		}

		now := s.now()
		if !user.CanCheckIn(now) {
			return ErrCheckedInToday
		}

		consecutive := s.consecutiveDays(user, now)
		base := s.baseReward(consecutive)
		bonus := milestoneBonus(consecutive)
		total := base + bonus

		user.LastCheckIn = &now
		user.CheckInCount = consecutive
		user.TotalCheckIns++
		user.AddCoins(total)
		leveled := user.AddExperience(checkInExperience)

		if title := streakTitle(consecutive); title != "" && user.Title != title {
			user.Title = title
			result = &CheckInResult{NewTitle: title}
		} else {
			result = &CheckInResult{}
		}

		if err := tx.SaveUser(user); err != nil {
			return err
		}
		if err := tx.CreateCheckInRecord(&models.CheckInRecord{
			UserID:          userID,
			CheckInDate:     now,
			CoinsEarned:     base,
			ConsecutiveDays: consecutive,
			BonusCoins:      bonus,
		}); err != nil {
			return err
		}

		result.IsNewUser = isNew
		result.BaseReward = base
		result.BonusReward = bonus
		result.TotalReward = total
		result.ConsecutiveDays = consecutive
		result.TotalCheckIns = user.TotalCheckIns
		result.CurrentCoins = user.Coins
		result.LeveledUp = leveled

		if s.achievements != nil {
			ach := s.achievements.WithStore(tx)
			unlocked, err := ach.CheckAndAward(userID, models.TriggerCheckIn, consecutive)
			if err != nil {
				return err
			}
			more, err := ach.CheckAndAward(userID, models.TriggerCoins, total)
			if err != nil {
				return err
			}
			unlocked = append(unlocked, more...)
			if leveled {
				more, err = ach.CheckAndAward(userID, models.TriggerLevel, user.Level)
				if err != nil {
					return err
				}
				unlocked = append(unlocked, more...)
			}
			result.Achievements = unlocked
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.CheckIns.Inc()
	}
	if s.publisher != nil {
		s.publisher.Publish(events.Event{
			Kind:   events.KindCheckIn,
			UserID: userID,
			Payload: map[string]any{
				"total_reward":     result.TotalReward,
				"consecutive_days": result.ConsecutiveDays,
			},
			Timestamp: s.now(),
		})
	}
	logger.Log.Infow("check-in", "user_id", userID,
		"consecutive_days", result.ConsecutiveDays, "reward", result.TotalReward)
	return result, nil
}

// CheckInStats 签到统计
type CheckInStats struct {
	ConsecutiveDays  int                     `json:"consecutive_days"`
	TotalCheckIns    int                     `json:"total_check_ins"`
	CanCheckIn       bool                    `json:"can_check_in"`
	TotalCoinsEarned int64                   `json:"total_coins_earned"`
	RecentRecords    []*models.CheckInRecord `json:"recent_records"`
}

func (s *CheckInService) Stats(userID string) (*CheckInStats, error) {
	user, err := s.users.getUser(userID)
	if err != nil {
		return nil, err
	}
	records, err := s.store.UserCheckIns(userID, 30)
	if err != nil {
		return nil, err
	}
	total, err := s.store.TotalCheckIns(userID)
	if err != nil {
		return nil, err
	}

	var earned int64
	for _, r := range records {
		earned += r.CoinsEarned + r.BonusCoins
	}
	recent := records
	if len(recent) > 7 {
		recent = recent[:7]
	}
	return &CheckInStats{
		ConsecutiveDays:  user.CheckInCount,
		TotalCheckIns:    total,
		CanCheckIn:       user.CanCheckIn(s.now()),
		TotalCoinsEarned: earned,
		RecentRecords:    recent,
	}, nil
}

// consecutiveDays 计算本次签到后的连续天数：
// 昨天签过则+1，今天重复不变，中断归1
func (s *CheckInService) consecutiveDays(user *models.User, now time.Time) int {
	if user.LastCheckIn == nil {
		return 1
	}
	switch daysBetween(*user.LastCheckIn, now) {
	case 1:
		return user.CheckInCount + 1
	case 0:
		logger.Log.Warnw("duplicate same-day check-in", "user_id", user.UserID)
		return user.CheckInCount
	default:
		return 1
	}
}

func (s *CheckInService) baseReward(consecutive int) int64 {
	tier := baseRewardTiers[0]
	for _, t := range baseRewardTiers {
		if consecutive >= t.minDays {
			tier = t
		}
	}
	return tier.minReward + s.rng.Int63n(tier.maxReward-tier.minReward+1)
}

func milestoneBonus(consecutive int) int64 {
	for _, m := range consecutiveBonuses {
		if consecutive == m.days {
			return m.bonus
		}
	}
	return 0
}

func streakTitle(consecutive int) string {
	for _, t := range streakTitles {
		if consecutive >= t.days {
			return t.title
		}
	}
	return ""
}

// daysBetween 按日历日计算间隔天数
func daysBetween(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, to.Location())
	return int(t.Sub(f).Hours() / 24)
}
