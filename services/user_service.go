// services/user_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"coinbot/logger"
	"coinbot/models"
	"coinbot/persistence"
)

// UserService 用户账本服务：余额、历史收支、等级与称号
type UserService struct {
	store        persistence.Store
	initialCoins int64
}

func NewUserService(store persistence.Store, initialCoins int64) *UserService {
	return &UserService{store: store, initialCoins: initialCoins}
}

// WithStore 返回绑定到指定 Store 的副本，用于在事务内复用服务逻辑
func (s *UserService) WithStore(store persistence.Store) *UserService {
	cp := *s
	cp.store = store
	return &cp
}

// GetOrCreateUser 获取用户，不存在时创建并发放初始金币。
// 第二个返回值表示是否新建
func (s *UserService) GetOrCreateUser(userID, username string) (*models.User, bool, error) {
	user, err := s.store.GetUser(userID)
	if err == nil {
		if username != "" && user.Username != username {
			user.Username = username
			if err := s.store.SaveUser(user); err != nil {
				return nil, false, err
			}
		}
		return user, false, nil
	}
	if !errors.Is(err, persistence.ErrRecordNotFound) {
		return nil, false, err
	}

	now := time.Now()
	user = &models.User{
		UserID:    userID,
		Username:  username,
		Level:     1,
		Title:     "新人",
		CreatedAt: now,
		UpdatedAt: now,
	}
	user.AddCoins(s.initialCoins)
	if err := s.store.CreateUser(user); err != nil {
		return nil, false, err
	}
	logger.Log.Infow("created user", "user_id", userID, "initial_coins", s.initialCoins)
	return user, true, nil
}

// AddCoins 给用户入账
func (s *UserService) AddCoins(userID string, amount int64, reason string) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	user, err := s.getUser(userID)
	if err != nil {
		return err
	}
	user.AddCoins(amount)
	if err := s.store.SaveUser(user); err != nil {
		return err
	}
	logger.Log.Debugw("credit", "user_id", userID, "amount", amount, "reason", reason)
	return nil
}

// SpendCoins 扣款，余额不足时返回 ErrInsufficientCoins 且不产生任何变化
func (s *UserService) SpendCoins(userID string, amount int64, reason string) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	user, err := s.getUser(userID)
	if err != nil {
		return err
	}
	if !user.SpendCoins(amount) {
		return fmt.Errorf("%w: 当前金币 %d，需要 %d", ErrInsufficientCoins, user.Coins, amount)
	}
	if err := s.store.SaveUser(user); err != nil {
		return err
	}
	logger.Log.Debugw("debit", "user_id", userID, "amount", amount, "reason", reason)
	return nil
}

// TransferCoins 转账，两侧在同一事务内要么都生效要么都不生效
func (s *UserService) TransferCoins(fromID, toID string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if fromID == toID {
		return ErrInvalidAmount
	}
	return s.store.Transaction(func(tx persistence.Store) error {
		svc := s.WithStore(tx)
		if err := svc.SpendCoins(fromID, amount, fmt.Sprintf("转账给 %s", toID)); err != nil {
			return err
		}
		return svc.AddCoins(toID, amount, fmt.Sprintf("来自 %s 的转账", fromID))
	})
}

// AddExperience 增加经验值，返回是否升级
func (s *UserService) AddExperience(userID string, exp int) (bool, error) {
	user, err := s.getUser(userID)
	if err != nil {
		return false, err
	}
	leveled := user.AddExperience(exp)
	if err := s.store.SaveUser(user); err != nil {
		return false, err
	}
	return leveled, nil
}

// SetTitle 设置用户称号
func (s *UserService) SetTitle(userID, title string) error {
	user, err := s.getUser(userID)
	if err != nil {
		return err
	}
	user.Title = title
	return s.store.SaveUser(user)
}

func (s *UserService) Leaderboard(limit, offset int) ([]models.LeaderboardEntry, error) {
	return s.store.Leaderboard(limit, offset)
}

func (s *UserService) UserRank(userID string) (int, error) {
	return s.store.UserRank(userID)
}

// UserInfo 用户信息汇总
type UserInfo struct {
	User *models.User `json:"user"`
	Rank int          `json:"rank"`
}

func (s *UserService) UserInfo(userID string) (*UserInfo, error) {
	user, err := s.getUser(userID)
	if err != nil {
		return nil, err
	}
	rank, err := s.store.UserRank(userID)
	if err != nil {
		return nil, err
	}
	return &UserInfo{User: user, Rank: rank}, nil
}

func (s *UserService) getUser(userID string) (*models.User, error) {
	user, err := s.store.GetUser(userID)
	if errors.Is(err, persistence.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}
