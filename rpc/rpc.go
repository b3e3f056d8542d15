// rpc/rpc.go
package rpc

import (
	"net"
	"net/rpc"

	"coinbot/logger"
	"coinbot/models"
	"coinbot/services"
)

// Admin 运维接口，通过 net/rpc 暴露在内网端口上
type Admin struct {
	users *services.UserService
	games *services.GameService
}

func NewAdmin(users *services.UserService, games *services.GameService) *Admin {
	return &Admin{users: users, games: games}
}

// GrantArgs 补发金币参数
type GrantArgs struct {
	UserID string
	Amount int64
	Reason string
}

// GrantCoins 人工补发金币
func (a *Admin) GrantCoins(args GrantArgs, ok *bool) error {
	if err := a.users.AddCoins(args.UserID, args.Amount, "运维补发: "+args.Reason); err != nil {
		return err
	}
	logger.Log.Infow("admin grant", "user_id", args.UserID, "amount", args.Amount, "reason", args.Reason)
	*ok = true
	return nil
}

// UserInfo 查询用户信息与排名
func (a *Admin) UserInfo(userID string, reply *services.UserInfo) error {
	info, err := a.users.UserInfo(userID)
	if err != nil {
		return err
	}
	*reply = *info
	return nil
}

// Leaderboard 查询金币排行榜前 n 名
func (a *Admin) Leaderboard(limit int, reply *[]models.LeaderboardEntry) error {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	entries, err := a.users.Leaderboard(limit, 0)
	if err != nil {
		return err
	}
	*reply = entries
	return nil
}

// PruneRoom 物理删除已结束或已取消的房间
func (a *Admin) PruneRoom(roomID string, ok *bool) error {
	if err := a.games.PruneRoom(roomID); err != nil {
		return err
	}
	*ok = true
	return nil
}

// Start 注册服务并在独立端口接受连接
func Start(addr string, admin *Admin) error {
	srv := rpc.NewServer()
	if err := srv.RegisterName("Admin", admin); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	logger.Log.Infow("rpc server listening", "addr", addr)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				logger.Log.Errorw("rpc accept failed", "err", err)
				return
			}
			go srv.ServeConn(conn)
		}
	}()
	return nil
}
