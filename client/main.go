// 演示客户端，通过 REST 接口操作并可订阅事件推送
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/websocket"
)

var (
	server = flag.String("server", "http://127.0.0.1:8080", "服务地址")
	wsAddr = flag.String("ws", "ws://127.0.0.1:8080/ws", "事件推送地址")
	userID = flag.String("user", "demo", "用户ID")
	name   = flag.String("name", "演示用户", "用户名")
)

func usage() {
	fmt.Println(`用法: client [flags] <命令> [参数]
命令:
  checkin                每日签到
  info                   查看余额与排名
  games                  可用游戏列表
  rooms <channel>        房间列表
  create <channel> <bet> 创建轮盘房间
  join <room>            加入房间
  start <room>           开始游戏
  shoot <room> [次数]    开枪
  cancel <room>          解散房间
  watch <channel>        订阅事件推送`)
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	switch args[0] {
	case "checkin":
		post("/api/v1/checkin", map[string]any{"user_id": *userID, "username": *name})
	case "info":
		get("/api/v1/users/" + *userID)
	case "games":
		get("/api/v1/games")
	case "rooms":
		need(args, 2)
		get("/api/v1/rooms?channel_id=" + args[1])
	case "create":
		need(args, 3)
		bet, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			fatal("无效的下注金额: " + args[2])
		}
		post("/api/v1/rooms", map[string]any{
			"game_type": "russian_roulette", "channel_id": args[1],
			"user_id": *userID, "username": *name, "bet": bet,
		})
	case "join":
		need(args, 2)
		post("/api/v1/rooms/"+args[1]+"/join", map[string]any{"user_id": *userID, "username": *name})
	case "start":
		need(args, 2)
		post("/api/v1/rooms/"+args[1]+"/start", map[string]any{"user_id": *userID})
	case "shoot":
		need(args, 2)
		shots := 1
		if len(args) > 2 {
			shots, _ = strconv.Atoi(args[2])
		}
		post("/api/v1/rooms/"+args[1]+"/action", map[string]any{
			"user_id": *userID, "action": "shoot",
			"params": map[string]any{"shots": shots},
		})
	case "cancel":
		need(args, 2)
		post("/api/v1/rooms/"+args[1]+"/cancel", map[string]any{"user_id": *userID})
	case "watch":
		need(args, 2)
		watch(args[1])
	default:
		usage()
		os.Exit(1)
	}
}

func need(args []string, n int) {
	if len(args) < n {
		usage()
		os.Exit(1)
	}
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

func get(path string) {
	resp, err := http.Get(*server + path)
	if err != nil {
		fatal(err.Error())
	}
	dump(resp)
}

func post(path string, body map[string]any) {
	data, _ := json.Marshal(body)
	resp, err := http.Post(*server+path, "application/json", bytes.NewReader(data))
	if err != nil {
		fatal(err.Error())
	}
	dump(resp)
}

func dump(resp *http.Response) {
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(raw))
	}
	if resp.StatusCode >= 400 {
		os.Exit(1)
	}
}

// watch 订阅频道事件，收到即打印
func watch(channel string) {
	conn, _, err := websocket.DefaultDialer.Dial(*wsAddr+"?channel="+channel, nil)
	if err != nil {
		fatal("连接失败: " + err.Error())
	}
	defer conn.Close()
	fmt.Println("已订阅频道", channel)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			fatal("连接断开: " + err.Error())
		}
		fmt.Println(string(msg))
	}
}
