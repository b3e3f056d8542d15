// server/server.go
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"coinbot/game"
	"coinbot/logger"
	"coinbot/persistence"
	"coinbot/services"
)

// Server HTTP 服务，对外暴露经济系统与游戏房间的 REST 接口
type Server struct {
	users        *services.UserService
	checkin      *services.CheckInService
	games        *services.GameService
	achievements *services.AchievementService
	hub          *Hub

	http *http.Server
}

func New(
	users *services.UserService,
	checkin *services.CheckInService,
	games *services.GameService,
	achievements *services.AchievementService,
	hub *Hub,
) *Server {
	return &Server{
		users:        users,
		checkin:      checkin,
		games:        games,
		achievements: achievements,
		hub:          hub,
	}
}

// Run 阻塞运行 HTTP 服务
func (s *Server) Run(addr string) error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLog())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ws", func(c *gin.Context) {
		s.hub.ServeWS(c.Writer, c.Request)
	})

	api := r.Group("/api/v1")
	{
		api.GET("/leaderboard", s.handleLeaderboard)
		api.GET("/games", s.handleGames)

		api.GET("/users/:id", s.handleUserInfo)
		api.GET("/users/:id/checkin", s.handleCheckInStats)
		api.GET("/users/:id/achievements", s.handleAchievements)
		api.GET("/users/:id/achievements/unnotified", s.handleUnnotified)
		api.GET("/users/:id/records", s.handleRecords)
		api.GET("/users/:id/stats/:game", s.handleGameStats)

		api.POST("/checkin", s.handleCheckIn)
		api.POST("/transfer", s.handleTransfer)

		api.GET("/rooms", s.handleRoomList)
		api.POST("/rooms", s.handleCreateRoom)
		api.GET("/rooms/:id", s.handleRoomInfo)
		api.POST("/rooms/:id/join", s.handleJoinRoom)
		api.POST("/rooms/:id/start", s.handleStartRoom)
		api.POST("/rooms/:id/action", s.handleAction)
		api.POST("/rooms/:id/cancel", s.handleCancelRoom)
	}

	s.http = &http.Server{Addr: addr, Handler: r}
	logger.Log.Infow("http server listening", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Log.Debugw("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"cost", time.Since(start))
	}
}

// fail 把服务层错误映射为 HTTP 状态码
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrRoomNotFound),
		errors.Is(err, persistence.ErrRecordNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrUnknownGameType),
		errors.Is(err, services.ErrBetOutOfRange),
		errors.Is(err, game.ErrInvalidAction),
		errors.Is(err, game.ErrInvalidParameters):
		status = http.StatusBadRequest
	case errors.Is(err, game.ErrNotYourTurn):
		status = http.StatusConflict
	case errors.Is(err, services.ErrInsufficientCoins),
		errors.Is(err, services.ErrCheckedInToday),
		errors.Is(err, services.ErrAlreadyInRoom),
		errors.Is(err, services.ErrAlreadySeated),
		errors.Is(err, services.ErrRoomFull),
		errors.Is(err, services.ErrWrongStatus),
		errors.Is(err, services.ErrNotCreator),
		errors.Is(err, services.ErrNotEnoughPlayers):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		logger.Log.Errorw("request failed", "path", c.Request.URL.Path, "err", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) handleLeaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	entries, err := s.users.Leaderboard(limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}

func (s *Server) handleUserInfo(c *gin.Context) {
	info, err := s.users.UserInfo(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleCheckIn(c *gin.Context) {
	var req struct {
		UserID   string `json:"user_id" binding:"required"`
		Username string `json:"username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := s.checkin.CheckIn(req.UserID, req.Username)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleCheckInStats(c *gin.Context) {
	stats, err := s.checkin.Stats(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleTransfer(c *gin.Context) {
	var req struct {
		From   string `json:"from" binding:"required"`
		To     string `json:"to" binding:"required"`
		Amount int64  `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.users.TransferCoins(req.From, req.To, req.Amount); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleGames(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"games": s.games.AvailableGames()})
}

func (s *Server) handleRoomList(c *gin.Context) {
	rooms, err := s.games.RoomList(c.Query("channel_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (s *Server) handleCreateRoom(c *gin.Context) {
	var req struct {
		GameType  string `json:"game_type" binding:"required"`
		ChannelID string `json:"channel_id" binding:"required"`
		UserID    string `json:"user_id" binding:"required"`
		Username  string `json:"username" binding:"required"`
		Bet       int64  `json:"bet" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	room, err := s.games.CreateRoom(req.GameType, req.ChannelID, req.UserID, req.Username, req.Bet)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

func (s *Server) handleRoomInfo(c *gin.Context) {
	room, status, err := s.games.RoomInfo(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room, "status_text": status})
}

func (s *Server) handleJoinRoom(c *gin.Context) {
	var req struct {
		UserID   string `json:"user_id" binding:"required"`
		Username string `json:"username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	room, err := s.games.JoinRoom(c.Param("id"), req.UserID, req.Username)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (s *Server) handleStartRoom(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	room, opening, err := s.games.StartRoom(c.Param("id"), req.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room, "message": opening})
}

func (s *Server) handleAction(c *gin.Context) {
	var req struct {
		UserID string         `json:"user_id" binding:"required"`
		Action string         `json:"action" binding:"required"`
		Params map[string]any `json:"params"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	outcome, err := s.games.ProcessAction(c.Param("id"), req.UserID, req.Action, req.Params)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (s *Server) handleCancelRoom(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.games.CancelRoom(c.Param("id"), req.UserID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleAchievements(c *gin.Context) {
	summary, err := s.achievements.Progress(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleUnnotified(c *gin.Context) {
	pending, err := s.achievements.Unnotified(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"achievements": pending})
}

func (s *Server) handleRecords(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	records, err := s.games.UserRecords(c.Param("id"), c.Query("game_type"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (s *Server) handleGameStats(c *gin.Context) {
	stats, err := s.games.UserStats(c.Param("id"), c.Param("game"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
