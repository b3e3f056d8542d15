// game/engine.go
package game

import (
	"errors"
	"sort"

	"coinbot/models"
)

// 引擎层错误定义
var (
	ErrNotYourTurn       = errors.New("not your turn")
	ErrInvalidAction     = errors.New("invalid action")
	ErrInvalidParameters = errors.New("invalid parameters")
	ErrNotFinished       = errors.New("game not finished")
)

// ActionResult 一次游戏动作的处理结果
type ActionResult struct {
	Continues bool   `json:"continues"` // 游戏是否继续
	Message   string `json:"message"`
}

// Result 游戏终局结果
type Result struct {
	Winners     []string       `json:"winners"` // 获胜者用户ID，可能为空
	WinnerNames []string       `json:"winner_names"`
	Detail      map[string]any `json:"detail"`
}

// Engine 游戏引擎接口。房间服务只通过这个接口驱动具体玩法，
// 新增一种游戏只需要实现一个引擎并注册
type Engine interface {
	GameType() string
	DisplayName() string
	MinPlayers() int
	MaxPlayers() int
	MinBet() int64
	MaxBet() int64
	Rules() string

	// InitRoom 在房间创建时写入引擎私有的 GameData 与 Settings
	InitRoom(room *models.GameRoom) error
	// CanStart 判断当前座位数是否满足开局条件
	CanStart(room *models.GameRoom) bool
	// Start 只会在房间切换到 playing 后被调用一次
	Start(room *models.GameRoom) (string, error)
	// ProcessAction 校验回合与参数并推进游戏。校验失败时返回错误且不修改任何状态
	ProcessAction(room *models.GameRoom, userID, action string, params map[string]any) (*ActionResult, error)
	// IsFinished 终局判定，房间服务在每次动作后复查
	IsFinished(room *models.GameRoom) bool
	// Result 终局时调用一次，必须与 IsFinished 一致
	Result(room *models.GameRoom) (*Result, error)
	// StatusText 当前局面的可读描述
	StatusText(room *models.GameRoom) string
}

// Registry 游戏类型到引擎的注册表，构造时注入，之后只读
type Registry struct {
	engines map[string]Engine
}

func NewRegistry(engines ...Engine) *Registry {
	r := &Registry{engines: make(map[string]Engine)}
	for _, e := range engines {
		r.engines[e.GameType()] = e
	}
	return r
}

func (r *Registry) Get(gameType string) (Engine, bool) {
	e, ok := r.engines[gameType]
	return e, ok
}

// List 返回所有引擎，按游戏类型排序保证稳定输出
func (r *Registry) List() []Engine {
	engines := make([]Engine, 0, len(r.engines))
	for _, e := range r.engines {
		engines = append(engines, e)
	}
	sort.Slice(engines, func(i, j int) bool {
		return engines[i].GameType() < engines[j].GameType()
	})
	return engines
}
