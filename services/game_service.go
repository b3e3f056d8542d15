// services/game_service.go
package services

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"coinbot/events"
	"coinbot/game"
	"coinbot/logger"
	"coinbot/models"
	"coinbot/monitor"
	"coinbot/persistence"
)

// GameService 房间生命周期与结算服务。
// 所有变更在事务内完成，行锁由 Store.GetRoom 提供，
// 进程内再按房间维度串行化，避免同实例并发动作互相覆盖
type GameService struct {
	store        persistence.Store
	users        *UserService
	achievements *AchievementService
	registry     *game.Registry
	publisher    events.Publisher
	metrics      *monitor.Metrics

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewGameService(
	store persistence.Store,
	users *UserService,
	achievements *AchievementService,
	registry *game.Registry,
	publisher events.Publisher,
	metrics *monitor.Metrics,
) *GameService {
	return &GameService{
		store:        store,
		users:        users,
		achievements: achievements,
		registry:     registry,
		publisher:    publisher,
		metrics:      metrics,
		locks:        make(map[string]*sync.Mutex),
	}
}

func (s *GameService) roomLock(roomID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[roomID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[roomID] = l
	}
	return l
}

func (s *GameService) publish(ev events.Event) {
	if s.publisher != nil {
		ev.Timestamp = time.Now()
		s.publisher.Publish(ev)
	}
}

// GameInfo 游戏类型描述
type GameInfo struct {
	GameType    string `json:"game_type"`
	DisplayName string `json:"display_name"`
	MinPlayers  int    `json:"min_players"`
	MaxPlayers  int    `json:"max_players"`
	MinBet      int64  `json:"min_bet"`
	MaxBet      int64  `json:"max_bet"`
	Rules       string `json:"rules"`
}

// AvailableGames 返回所有已注册的游戏类型
func (s *GameService) AvailableGames() []GameInfo {
	var out []GameInfo
	for _, e := range s.registry.List() {
		out = append(out, GameInfo{
			GameType:    e.GameType(),
			DisplayName: e.DisplayName(),
			MinPlayers:  e.MinPlayers(),
			MaxPlayers:  e.MaxPlayers(),
			MinBet:      e.MinBet(),
			MaxBet:      e.MaxBet(),
			Rules:       e.Rules(),
		})
	}
	return out
}

// CreateRoom 创建房间。创建者立即入座并扣除下注金额
func (s *GameService) CreateRoom(gameType, channelID, creatorID, creatorName string, bet int64) (*models.GameRoom, error) {
	engine, ok := s.registry.Get(gameType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGameType, gameType)
	}
	if bet < engine.MinBet() || bet > engine.MaxBet() {
		return nil, fmt.Errorf("%w: %d-%d", ErrBetOutOfRange, engine.MinBet(), engine.MaxBet())
	}

	var room *models.GameRoom
	err := s.store.Transaction(func(tx persistence.Store) error {
		if _, _, err := s.users.WithStore(tx).GetOrCreateUser(creatorID, creatorName); err != nil {
			return err
		}
		busy, err := s.userBusy(tx, creatorID)
		if err != nil {
			return err
		}
		if busy {
			return ErrAlreadyInRoom
		}
		if err := s.users.WithStore(tx).SpendCoins(creatorID, bet, "创建房间下注"); err != nil {
			return err
		}

		now := time.Now()
		room = &models.GameRoom{
			ID:          uuid.New().String()[:8],
			GameType:    gameType,
			ChannelID:   channelID,
			CreatorID:   creatorID,
			CreatorName: creatorName,
			BetAmount:   bet,
			Status:      models.RoomStatusWaiting,
			MaxPlayers:  engine.MaxPlayers(),
			MinPlayers:  engine.MinPlayers(),
			Players: []models.RoomPlayer{{
				UserID:   creatorID,
				Username: creatorName,
				JoinedAt: now,
				IsAlive:  true,
			}},
			CreatedAt: now,
		}
		if err := engine.InitRoom(room); err != nil {
			return err
		}
		return tx.CreateRoom(room)
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ActiveRooms.Inc()
		s.metrics.CoinsWagered.Add(float64(bet))
	}
	s.publish(events.Event{
		Kind:      events.KindRoomCreated,
		ChannelID: channelID,
		UserID:    creatorID,
		Message:   fmt.Sprintf("%s 创建了 %s 房间 %s，下注 %d 金币", creatorName, engine.DisplayName(), room.ID, bet),
		Payload:   map[string]any{"room_id": room.ID, "game_type": gameType, "bet": bet},
	})
	logger.Log.Infow("room created", "room_id", room.ID, "game_type", gameType, "creator", creatorID)
	return room, nil
}

// JoinRoom 加入等待中的房间并扣除下注金额
func (s *GameService) JoinRoom(roomID, userID, username string) (*models.GameRoom, error) {
	lock := s.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	var room *models.GameRoom
	err := s.store.Transaction(func(tx persistence.Store) error {
		var err error
		room, err = s.getRoom(tx, roomID)
		if err != nil {
			return err
		}
		if room.Status != models.RoomStatusWaiting {
			return fmt.Errorf("%w: %s", ErrWrongStatus, room.Status)
		}
		if room.Seated(userID) {
			return ErrAlreadySeated
		}
		if len(room.Players) >= room.MaxPlayers {
			return ErrRoomFull
		}
		if _, _, err := s.users.WithStore(tx).GetOrCreateUser(userID, username); err != nil {
			return err
		}
		busy, err := s.userBusy(tx, userID)
		if err != nil {
			return err
		}
		if busy {
			return ErrAlreadyInRoom
		}
		if err := s.users.WithStore(tx).SpendCoins(userID, room.BetAmount, "加入房间下注"); err != nil {
			return err
		}
		room.Players = append(room.Players, models.RoomPlayer{
			UserID:   userID,
			Username: username,
			JoinedAt: time.Now(),
			IsAlive:  true,
		})
		return tx.UpdateRoom(room)
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.CoinsWagered.Add(float64(room.BetAmount))
	}
	s.publish(events.Event{
		Kind:      events.KindRoomJoined,
		ChannelID: room.ChannelID,
		UserID:    userID,
		Message:   fmt.Sprintf("%s 加入了房间 %s（%d/%d）", username, room.ID, len(room.Players), room.MaxPlayers),
		Payload:   map[string]any{"room_id": room.ID, "players": len(room.Players)},
	})
	return room, nil
}

// StartRoom 由创建者开始游戏，返回开局播报
func (s *GameService) StartRoom(roomID, userID string) (*models.GameRoom, string, error) {
	lock := s.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	var (
		room    *models.GameRoom
		opening string
	)
	err := s.store.Transaction(func(tx persistence.Store) error {
		var err error
		room, err = s.getRoom(tx, roomID)
		if err != nil {
			return err
		}
		if room.Status != models.RoomStatusWaiting {
			return fmt.Errorf("%w: %s", ErrWrongStatus, room.Status)
		}
		if room.CreatorID != userID {
			return ErrNotCreator
		}
		engine, ok := s.registry.Get(room.GameType)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownGameType, room.GameType)
		}
		if !engine.CanStart(room) {
			return fmt.Errorf("%w: 至少需要 %d 人", ErrNotEnoughPlayers, room.MinPlayers)
		}
		now := time.Now()
		room.Status = models.RoomStatusPlaying
		room.StartedAt = &now
		opening, err = engine.Start(room)
		if err != nil {
			return err
		}
		return tx.UpdateRoom(room)
	})
	if err != nil {
		return nil, "", err
	}

	s.publish(events.Event{
		Kind:      events.KindGameStarted,
		ChannelID: room.ChannelID,
		UserID:    userID,
		Message:   opening,
		Payload:   map[string]any{"room_id": room.ID},
	})
	return room, opening, nil
}

// ActionOutcome 一次游戏动作的完整结果
type ActionOutcome struct {
	Room       *models.GameRoom  `json:"room"`
	Message    string            `json:"message"`
	Finished   bool              `json:"finished"`
	Settlement *SettlementResult `json:"settlement,omitempty"`
}

// ProcessAction 处理玩家动作。若动作导致终局，结算在同一事务内完成
func (s *GameService) ProcessAction(roomID, userID, action string, params map[string]any) (*ActionOutcome, error) {
	lock := s.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	var (
		outcome    ActionOutcome
		settlement *SettlementResult
		room       *models.GameRoom
	)
	err := s.store.Transaction(func(tx persistence.Store) error {
		var err error
		room, err = s.getRoom(tx, roomID)
		if err != nil {
			return err
		}
		if room.Status != models.RoomStatusPlaying {
			return fmt.Errorf("%w: %s", ErrWrongStatus, room.Status)
		}
		engine, ok := s.registry.Get(room.GameType)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownGameType, room.GameType)
		}
		res, err := engine.ProcessAction(room, userID, action, params)
		if err != nil {
			return err
		}
		outcome.Message = res.Message

		if engine.IsFinished(room) {
			settlement, err = s.settle(tx, room, engine)
			if err != nil {
				return err
			}
			outcome.Finished = true
			return nil
		}
		return tx.UpdateRoom(room)
	})
	if err != nil {
		return nil, err
	}
	outcome.Room = room
	outcome.Settlement = settlement

	s.publish(events.Event{
		Kind:      events.KindGameAction,
		ChannelID: room.ChannelID,
		UserID:    userID,
		Message:   outcome.Message,
		Payload:   map[string]any{"room_id": room.ID, "action": action},
	})
	if settlement != nil {
		if s.metrics != nil {
			s.metrics.ActiveRooms.Dec()
			s.metrics.ObserveSettlement(room.GameType, settlement.Pot, start)
		}
		s.publish(events.Event{
			Kind:      events.KindSettlement,
			ChannelID: room.ChannelID,
			Message:   settlement.Summary,
			Payload: map[string]any{
				"room_id": room.ID,
				"pot":     settlement.Pot,
				"winners": settlement.Winners,
			},
		})
	}
	return &outcome, nil
}

// CancelRoom 创建者解散等待中的房间，退还所有座位的下注
func (s *GameService) CancelRoom(roomID, userID string) error {
	lock := s.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	var room *models.GameRoom
	err := s.store.Transaction(func(tx persistence.Store) error {
		var err error
		room, err = s.getRoom(tx, roomID)
		if err != nil {
			return err
		}
		if room.Status != models.RoomStatusWaiting {
			return fmt.Errorf("%w: %s", ErrWrongStatus, room.Status)
		}
		if room.CreatorID != userID {
			return ErrNotCreator
		}
		users := s.users.WithStore(tx)
		for _, p := range room.Players {
			if err := users.AddCoins(p.UserID, room.BetAmount, "房间解散退款"); err != nil {
				return err
			}
		}
		return tx.DeleteRoom(room.ID)
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.locks, roomID)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ActiveRooms.Dec()
	}
	s.publish(events.Event{
		Kind:      events.KindRoomCancel,
		ChannelID: room.ChannelID,
		UserID:    userID,
		Message:   fmt.Sprintf("房间 %s 已解散，下注已退还", room.ID),
		Payload:   map[string]any{"room_id": room.ID},
	})
	return nil
}

// SettlementResult 一局游戏的结算结果
type SettlementResult struct {
	Pot      int64               `json:"pot"`
	Winners  []string            `json:"winners"`
	Share    int64               `json:"share"`
	Draw     bool                `json:"draw"`
	Summary  string              `json:"summary"`
	Unlocked map[string][]string `json:"unlocked,omitempty"` // 用户ID到新解锁成就名
}

// settle 终局结算，与最后一次动作同事务。
// 无人获胜按流局处理，退还每个座位的下注；
// 奖池按获胜人数整除分配，余数不派发
func (s *GameService) settle(tx persistence.Store, room *models.GameRoom, engine game.Engine) (*SettlementResult, error) {
	result, err := engine.Result(room)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	room.Status = models.RoomStatusFinished
	room.FinishedAt = &now
	if err := tx.UpdateRoom(room); err != nil {
		return nil, err
	}

	users := s.users.WithStore(tx)
	achievements := s.achievements.WithStore(tx)
	pot := room.Pot()
	winners := make(map[string]bool, len(result.Winners))
	for _, id := range result.Winners {
		winners[id] = true
	}

	settlement := &SettlementResult{
		Pot:      pot,
		Winners:  result.Winners,
		Draw:     len(result.Winners) == 0,
		Unlocked: make(map[string][]string),
	}
	if settlement.Draw {
		settlement.Summary = "本局流局，下注已退还"
	} else {
		settlement.Share = pot / int64(len(result.Winners))
		settlement.Summary = fmt.Sprintf("🏆 %s 获胜，赢得 %d 金币", joinNames(result.WinnerNames), settlement.Share)
	}

	for _, p := range room.Players {
		record := &models.GameRecord{
			UserID:   p.UserID,
			GameType: room.GameType,
			CoinsBet: room.BetAmount,
			Details: map[string]any{
				"room_id":       room.ID,
				"total_players": len(room.Players),
				"game_result":   result.Detail,
			},
			CreatedAt: now,
		}
		var leveled bool
		switch {
		case settlement.Draw:
			record.Result = "draw"
			record.CoinsWon = room.BetAmount
			if err := users.AddCoins(p.UserID, room.BetAmount, "流局退款"); err != nil {
				return nil, err
			}
		case winners[p.UserID]:
			record.Result = "win"
			record.CoinsWon = settlement.Share
			if err := users.AddCoins(p.UserID, settlement.Share, "游戏获胜"); err != nil {
				return nil, err
			}
			up, err := users.AddExperience(p.UserID, 20)
			if err != nil {
				return nil, err
			}
			leveled = up
		default:
			record.Result = "lose"
			up, err := users.AddExperience(p.UserID, 10)
			if err != nil {
				return nil, err
			}
			leveled = up
		}
		if err := tx.CreateGameRecord(record); err != nil {
			return nil, err
		}

		if !settlement.Draw {
			unlocked, err := achievements.CheckAndAward(p.UserID, models.TriggerGame, map[string]any{
				"type":  room.GameType + "_" + record.Result,
				"value": 1,
			})
			if err != nil {
				return nil, err
			}
			if winners[p.UserID] {
				more, err := achievements.CheckAndAward(p.UserID, models.TriggerCoins, settlement.Share)
				if err != nil {
					return nil, err
				}
				unlocked = append(unlocked, more...)
			}
			if leveled {
				u, err := tx.GetUser(p.UserID)
				if err != nil {
					return nil, err
				}
				more, err := achievements.CheckAndAward(p.UserID, models.TriggerLevel, u.Level)
				if err != nil {
					return nil, err
				}
				unlocked = append(unlocked, more...)
			}
			for _, a := range unlocked {
				settlement.Unlocked[p.UserID] = append(settlement.Unlocked[p.UserID], a.Name)
			}
		}
	}

	logger.Log.Infow("room settled",
		"room_id", room.ID, "pot", pot, "winners", len(result.Winners), "draw", settlement.Draw)
	return settlement, nil
}

// RoomList 返回频道内所有等待中与进行中的房间
func (s *GameService) RoomList(channelID string) ([]*models.GameRoom, error) {
	waiting, err := s.store.ChannelRooms(channelID, "", models.RoomStatusWaiting)
	if err != nil {
		return nil, err
	}
	playing, err := s.store.ChannelRooms(channelID, "", models.RoomStatusPlaying)
	if err != nil {
		return nil, err
	}
	return append(waiting, playing...), nil
}

// RoomInfo 返回房间详情与当前局面描述
func (s *GameService) RoomInfo(roomID string) (*models.GameRoom, string, error) {
	room, err := s.getRoom(s.store, roomID)
	if err != nil {
		return nil, "", err
	}
	engine, ok := s.registry.Get(room.GameType)
	if !ok {
		return room, "", nil
	}
	return room, engine.StatusText(room), nil
}

// UserStats 返回用户在某游戏类型下的聚合战绩
func (s *GameService) UserStats(userID, gameType string) (*models.GameStats, error) {
	return s.store.UserGameStats(userID, gameType)
}

// UserRecords 返回用户最近的游戏记录
func (s *GameService) UserRecords(userID, gameType string, limit int) ([]*models.GameRecord, error) {
	return s.store.UserGameRecords(userID, gameType, limit)
}

// PruneRoom 管理接口，物理删除已结束或已取消的房间
func (s *GameService) PruneRoom(roomID string) error {
	room, err := s.getRoom(s.store, roomID)
	if err != nil {
		return err
	}
	if room.Status == models.RoomStatusWaiting || room.Status == models.RoomStatusPlaying {
		return fmt.Errorf("%w: %s", ErrWrongStatus, room.Status)
	}
	s.mu.Lock()
	delete(s.locks, roomID)
	s.mu.Unlock()
	return s.store.DeleteRoom(roomID)
}

func (s *GameService) getRoom(st persistence.Store, roomID string) (*models.GameRoom, error) {
	room, err := st.GetRoom(roomID)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return room, nil
}

// userBusy 判断用户是否已在其他未结束的房间中
func (s *GameService) userBusy(st persistence.Store, userID string) (bool, error) {
	for _, status := range []models.RoomStatus{models.RoomStatusWaiting, models.RoomStatusPlaying} {
		rooms, err := st.UserRooms(userID, status)
		if err != nil {
			return false, err
		}
		if len(rooms) > 0 {
			return true, nil
		}
	}
	return false, nil
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += "、"
		}
		out += n
	}
	return out
}
