// services/errors.go
package services

import "errors"

// 业务错误定义。校验失败一律快速返回，不修改任何状态
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientCoins = errors.New("insufficient coins")
	ErrCheckedInToday    = errors.New("already checked in today")

	ErrUnknownGameType  = errors.New("unknown game type")
	ErrBetOutOfRange    = errors.New("bet out of range")
	ErrAlreadyInRoom    = errors.New("already in an active room")
	ErrRoomNotFound     = errors.New("room not found")
	ErrWrongStatus      = errors.New("wrong room status")
	ErrAlreadySeated    = errors.New("already seated in this room")
	ErrRoomFull         = errors.New("room is full")
	ErrNotCreator       = errors.New("only the creator may do this")
	ErrNotEnoughPlayers = errors.New("not enough players")
)
