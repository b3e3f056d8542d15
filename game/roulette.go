// game/roulette.go
package game

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"coinbot/models"
)

const (
	ActionShoot = "shoot"

	rouletteType    = "russian_roulette"
	defaultChambers = 6
	defaultBullets  = 1
	maxShotsPerTurn = 3
)

// rouletteSettings 创建房间时固定，之后不再变化
type rouletteSettings struct {
	ChamberCount int `json:"chamber_count"`
	BulletsCount int `json:"bullets_count"`
}

// rouletteData 引擎私有状态
type rouletteData struct {
	BulletPosition     int `json:"bullet_position"`  // 子弹位置，开局时随机设置
	CurrentPosition    int `json:"current_position"` // 当前转轮位置，从1开始循环前进
	CurrentPlayerIndex int `json:"current_player_index"`
}

// RouletteEngine 俄罗斯轮盘游戏引擎
type RouletteEngine struct {
	rng *rand.Rand
}

func NewRouletteEngine() *RouletteEngine {
	return &RouletteEngine{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (e *RouletteEngine) GameType() string    { return rouletteType }
func (e *RouletteEngine) DisplayName() string { return "俄罗斯轮盘" }
func (e *RouletteEngine) MinPlayers() int     { return 2 }
func (e *RouletteEngine) MaxPlayers() int     { return 6 }
func (e *RouletteEngine) MinBet() int64       { return 100 }
func (e *RouletteEngine) MaxBet() int64       { return 10000 }

func (e *RouletteEngine) Rules() string {
	return fmt.Sprintf(
		"🎲 %s游戏规则 🎲\n\n"+
			"📝 基本规则:\n"+
			"• 转轮有%d个位置，其中%d个位置有子弹\n"+
			"• 玩家轮流开枪，每次可开1-%d枪\n"+
			"• 中弹的玩家出局，最后存活者获得所有金币\n"+
			"• 玩家数量: %d-%d 人\n"+
			"• 下注范围: %d-%d 金币\n\n"+
			"⚠️  注意事项:\n"+
			"• 游戏开始后无法退出\n"+
			"• 创建游戏时立即扣除金币\n"+
			"• 游戏取消会退还所有金币",
		e.DisplayName(), defaultChambers, defaultBullets, maxShotsPerTurn,
		e.MinPlayers(), e.MaxPlayers(), e.MinBet(), e.MaxBet())
}

func (e *RouletteEngine) InitRoom(room *models.GameRoom) error {
	settings, err := json.Marshal(rouletteSettings{
		ChamberCount: defaultChambers,
		BulletsCount: defaultBullets,
	})
	if err != nil {
		return err
	}
	data, err := json.Marshal(rouletteData{CurrentPosition: 1})
	if err != nil {
		return err
	}
	room.Settings = settings
	room.GameData = data
	return nil
}

func (e *RouletteEngine) CanStart(room *models.GameRoom) bool {
	return len(room.Players) >= e.MinPlayers()
}

func (e *RouletteEngine) Start(room *models.GameRoom) (string, error) {
	st, set, err := e.decode(room)
	if err != nil {
		return "", err
	}

	st.BulletPosition = e.rng.Intn(set.ChamberCount) + 1
	st.CurrentPosition = 1
	st.CurrentPlayerIndex = 0

	// 随机打乱出手顺序，开局后不再变化
	e.rng.Shuffle(len(room.Players), func(i, j int) {
		room.Players[i], room.Players[j] = room.Players[j], room.Players[i]
	})
	for i := range room.Players {
		room.Players[i].IsAlive = true
		room.Players[i].ShotsFired = 0
	}

	if err := e.encode(room, st); err != nil {
		return "", err
	}

	names := make([]string, len(room.Players))
	for i := range room.Players {
		names[i] = room.Players[i].Username
	}
	current := &room.Players[st.CurrentPlayerIndex]

	return fmt.Sprintf(
		"🔥 %s #%s 开始！\n\n参与玩家: %s\n奖池金额: %d 金币\n转轮弹仓: %d 个位置，%d 颗子弹\n\n🎯 轮到 %s 开枪！",
		e.DisplayName(), room.ID, strings.Join(names, ", "), room.Pot(),
		set.ChamberCount, set.BulletsCount, current.Username), nil
}

func (e *RouletteEngine) ProcessAction(room *models.GameRoom, userID, action string, params map[string]any) (*ActionResult, error) {
	if action != ActionShoot {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAction, action)
	}

	st, set, err := e.decode(room)
	if err != nil {
		return nil, err
	}
	if st.CurrentPlayerIndex < 0 || st.CurrentPlayerIndex >= len(room.Players) {
		return nil, fmt.Errorf("corrupt room state: player index %d", st.CurrentPlayerIndex)
	}

	current := &room.Players[st.CurrentPlayerIndex]
	if current.UserID != userID {
		return nil, fmt.Errorf("%w: 现在是 %s 的回合", ErrNotYourTurn, current.Username)
	}

	shots := intParam(params, "shots", 1)
	if shots < 1 || shots > maxShotsPerTurn {
		return nil, fmt.Errorf("%w: 每次可以开1-%d枪", ErrInvalidParameters, maxShotsPerTurn)
	}

	var lines []string
	for i := 0; i < shots; i++ {
		if pullTrigger(st, set) {
			current.IsAlive = false
			lines = append(lines, fmt.Sprintf("💥 第%d枪：%s 中弹身亡！", i+1, current.Username))
			break
		}
		lines = append(lines, fmt.Sprintf("🔫 第%d枪：空枪，%s 安全！", i+1, current.Username))
	}
	current.ShotsFired += shots

	if len(room.AlivePlayers()) <= 1 {
		if err := e.encode(room, st); err != nil {
			return nil, err
		}
		return &ActionResult{Continues: false, Message: strings.Join(lines, "\n")}, nil
	}

	// 中弹出局后回合同样交给下一个存活玩家，避免死人占住行动权
	nextPlayer(room, st)
	if err := e.encode(room, st); err != nil {
		return nil, err
	}
	next := &room.Players[st.CurrentPlayerIndex]
	lines = append(lines, fmt.Sprintf("\n轮到 %s 开枪！", next.Username))

	return &ActionResult{
		Continues: true,
		Message:   strings.Join(lines, "\n") + "\n\n" + e.StatusText(room),
	}, nil
}

func (e *RouletteEngine) IsFinished(room *models.GameRoom) bool {
	return len(room.AlivePlayers()) <= 1
}

func (e *RouletteEngine) Result(room *models.GameRoom) (*Result, error) {
	if !e.IsFinished(room) {
		return nil, ErrNotFinished
	}
	st, _, err := e.decode(room)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Detail: map[string]any{
			"total_players":   len(room.Players),
			"bullet_position": st.BulletPosition,
			"final_position":  st.CurrentPosition,
		},
	}
	for _, p := range room.AlivePlayers() {
		result.Winners = append(result.Winners, p.UserID)
		result.WinnerNames = append(result.WinnerNames, p.Username)
	}
	return result, nil
}

func (e *RouletteEngine) StatusText(room *models.GameRoom) string {
	if room.Status != models.RoomStatusPlaying {
		return "游戏未在进行中"
	}
	st, set, err := e.decode(room)
	if err != nil {
		return "游戏状态不可用"
	}
	current := &room.Players[st.CurrentPlayerIndex]

	var b strings.Builder
	fmt.Fprintf(&b, "🎲 %s #%s 进行中\n\n", e.DisplayName(), room.ID)
	fmt.Fprintf(&b, "奖池: %d 金币\n", room.Pot())
	fmt.Fprintf(&b, "转轮位置: %d/%d\n\n", st.CurrentPosition, set.ChamberCount)

	alive := room.AlivePlayers()
	fmt.Fprintf(&b, "🟢 存活玩家 (%d):\n", len(alive))
	for _, p := range alive {
		marker := "   "
		if p.UserID == current.UserID {
			marker = "👉 "
		}
		fmt.Fprintf(&b, "%s%s (开枪%d次)\n", marker, p.Username, p.ShotsFired)
	}

	var dead []*models.RoomPlayer
	for i := range room.Players {
		if !room.Players[i].IsAlive {
			dead = append(dead, &room.Players[i])
		}
	}
	if len(dead) > 0 {
		fmt.Fprintf(&b, "\n💀 阵亡玩家 (%d):\n", len(dead))
		for _, p := range dead {
			fmt.Fprintf(&b, "   %s (开枪%d次)\n", p.Username, p.ShotsFired)
		}
	}

	fmt.Fprintf(&b, "\n🎯 等待 %s 开枪", current.Username)
	return b.String()
}

// pullTrigger 执行一次扣扳机。命中返回 true，
// 未命中时转轮位置循环前进
func pullTrigger(st *rouletteData, set *rouletteSettings) bool {
	if st.CurrentPosition == st.BulletPosition {
		return true
	}
	st.CurrentPosition++
	if st.CurrentPosition > set.ChamberCount {
		st.CurrentPosition = 1
	}
	return false
}

// nextPlayer 切换到下一个存活玩家，最多绕场一圈防止状态损坏时死循环
func nextPlayer(room *models.GameRoom, st *rouletteData) {
	for attempts := 0; attempts < len(room.Players); attempts++ {
		st.CurrentPlayerIndex = (st.CurrentPlayerIndex + 1) % len(room.Players)
		if room.Players[st.CurrentPlayerIndex].IsAlive {
			return
		}
	}
}

func (e *RouletteEngine) decode(room *models.GameRoom) (*rouletteData, *rouletteSettings, error) {
	st := &rouletteData{}
	if len(room.GameData) > 0 {
		if err := json.Unmarshal(room.GameData, st); err != nil {
			return nil, nil, fmt.Errorf("decode game data: %w", err)
		}
	}
	set := &rouletteSettings{ChamberCount: defaultChambers, BulletsCount: defaultBullets}
	if len(room.Settings) > 0 {
		if err := json.Unmarshal(room.Settings, set); err != nil {
			return nil, nil, fmt.Errorf("decode settings: %w", err)
		}
	}
	return st, set, nil
}

func (e *RouletteEngine) encode(room *models.GameRoom, st *rouletteData) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	room.GameData = data
	return nil
}

// intParam 从动作参数里取整数，JSON解码后的数字是float64
func intParam(params map[string]any, key string, def int) int {
	if params == nil {
		return def
	}
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}
