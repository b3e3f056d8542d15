package game

import (
	"encoding/json"
	"errors"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"coinbot/models"
)

func testEngine() *RouletteEngine {
	return &RouletteEngine{rng: rand.New(rand.NewSource(42))}
}

// playingRoom builds a room in playing status with n alive players p1..pn.
func playingRoom(t *testing.T, n, bullet, position, playerIndex int) *models.GameRoom {
	t.Helper()
	room := &models.GameRoom{
		ID:        "abc12345",
		GameType:  rouletteType,
		ChannelID: "chan1",
		CreatorID: "p1",
		BetAmount: 100,
		Status:    models.RoomStatusPlaying,
	}
	for i := 0; i < n; i++ {
		room.Players = append(room.Players, models.RoomPlayer{
			UserID:   "p" + string(rune('1'+i)),
			Username: "player" + string(rune('1'+i)),
			JoinedAt: time.Now().UTC().Round(0),
			IsAlive:  true,
		})
	}
	set, _ := json.Marshal(rouletteSettings{ChamberCount: 6, BulletsCount: 1})
	data, _ := json.Marshal(rouletteData{
		BulletPosition:     bullet,
		CurrentPosition:    position,
		CurrentPlayerIndex: playerIndex,
	})
	room.Settings = set
	room.GameData = data
	return room
}

func TestPullTrigger_DeterministicSweep(t *testing.T) {
	// 6个弹仓1颗子弹，从位置1连开6枪必然恰好命中一次，
	// 顺便覆盖转轮位置的循环推进
	for bullet := 1; bullet <= 6; bullet++ {
		st := &rouletteData{BulletPosition: bullet, CurrentPosition: 1}
		set := &rouletteSettings{ChamberCount: 6, BulletsCount: 1}

		hits := 0
		for i := 0; i < 6; i++ {
			if pullTrigger(st, set) {
				hits++
				// 命中不推进转轮，手动跳过以继续扫描
				st.CurrentPosition++
				if st.CurrentPosition > set.ChamberCount {
					st.CurrentPosition = 1
				}
			}
		}
		if hits != 1 {
			t.Errorf("bullet at %d: expected exactly 1 hit in 6 pulls, got %d", bullet, hits)
		}
		if st.CurrentPosition != 1 {
			t.Errorf("bullet at %d: expected wheel to wrap back to 1, got %d", bullet, st.CurrentPosition)
		}
	}
}

func TestRoulette_Start(t *testing.T) {
	e := testEngine()
	room := playingRoom(t, 3, 0, 1, 0)

	msg, err := e.Start(room)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if msg == "" {
		t.Error("Start should return an announcement message")
	}

	st, set, err := e.decode(room)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if st.BulletPosition < 1 || st.BulletPosition > set.ChamberCount {
		t.Errorf("bullet position %d out of range [1,%d]", st.BulletPosition, set.ChamberCount)
	}
	if st.CurrentPosition != 1 {
		t.Errorf("expected wheel to start at 1, got %d", st.CurrentPosition)
	}
	for i := range room.Players {
		if !room.Players[i].IsAlive {
			t.Errorf("player %s should be alive after start", room.Players[i].UserID)
		}
		if room.Players[i].ShotsFired != 0 {
			t.Errorf("player %s shots_fired should be 0 after start", room.Players[i].UserID)
		}
	}
}

func TestRoulette_ProcessAction_NotYourTurn(t *testing.T) {
	e := testEngine()
	room := playingRoom(t, 3, 4, 2, 0)
	before := append(json.RawMessage(nil), room.GameData...)

	_, err := e.ProcessAction(room, "p2", ActionShoot, nil)
	if err == nil {
		t.Fatal("expected an error for out-of-turn action")
	}
	if !errors.Is(err, ErrNotYourTurn) {
		t.Errorf("expected ErrNotYourTurn, got %v", err)
	}
	if !reflect.DeepEqual(room.GameData, before) {
		t.Error("out-of-turn action must not mutate chamber state")
	}
}

func TestRoulette_ProcessAction_InvalidShots(t *testing.T) {
	e := testEngine()
	room := playingRoom(t, 2, 4, 1, 0)
	before := append(json.RawMessage(nil), room.GameData...)

	for _, shots := range []int{0, 4, -1} {
		_, err := e.ProcessAction(room, "p1", ActionShoot, map[string]any{"shots": shots})
		if !errors.Is(err, ErrInvalidParameters) {
			t.Errorf("shots=%d: expected ErrInvalidParameters, got %v", shots, err)
		}
	}
	if !reflect.DeepEqual(room.GameData, before) {
		t.Error("rejected action must not mutate chamber state")
	}
}

func TestRoulette_ProcessAction_MissAdvancesTurn(t *testing.T) {
	e := testEngine()
	room := playingRoom(t, 3, 6, 1, 0)

	res, err := e.ProcessAction(room, "p1", ActionShoot, map[string]any{"shots": 2})
	if err != nil {
		t.Fatalf("ProcessAction failed: %v", err)
	}
	if !res.Continues {
		t.Error("game should continue after two misses")
	}

	st, _, _ := e.decode(room)
	if st.CurrentPosition != 3 {
		t.Errorf("expected wheel at 3 after two misses from 1, got %d", st.CurrentPosition)
	}
	if st.CurrentPlayerIndex != 1 {
		t.Errorf("expected turn to pass to player index 1, got %d", st.CurrentPlayerIndex)
	}
	if room.Players[0].ShotsFired != 2 {
		t.Errorf("expected shooter's shots_fired to be 2, got %d", room.Players[0].ShotsFired)
	}
}

func TestRoulette_ProcessAction_HitEliminates(t *testing.T) {
	e := testEngine()
	// 子弹就在当前的位置，第一枪必中
	room := playingRoom(t, 2, 1, 1, 0)

	res, err := e.ProcessAction(room, "p1", ActionShoot, map[string]any{"shots": 3})
	if err != nil {
		t.Fatalf("ProcessAction failed: %v", err)
	}
	if res.Continues {
		t.Error("game should not continue after elimination leaves one player")
	}
	if room.Players[0].IsAlive {
		t.Error("shooter should be marked dead after a hit")
	}
	if !e.IsFinished(room) {
		t.Error("game with a single survivor should be finished")
	}

	result, err := e.Result(room)
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	if len(result.Winners) != 1 || result.Winners[0] != "p2" {
		t.Errorf("expected p2 as sole winner, got %v", result.Winners)
	}
}

func TestRoulette_SequenceStopsAtHit(t *testing.T) {
	e := testEngine()
	// 子弹在2号位：第一枪空枪推进到2，第二枪命中，第三枪不再执行
	room := playingRoom(t, 3, 2, 1, 0)

	_, err := e.ProcessAction(room, "p1", ActionShoot, map[string]any{"shots": 3})
	if err != nil {
		t.Fatalf("ProcessAction failed: %v", err)
	}
	if room.Players[0].IsAlive {
		t.Error("shooter should be dead after the second shot")
	}

	st, _, _ := e.decode(room)
	if st.CurrentPosition != 2 {
		t.Errorf("wheel must stay on the bullet slot after a hit, got %d", st.CurrentPosition)
	}
}

func TestRoulette_HitPassesTurnToSurvivor(t *testing.T) {
	e := testEngine()
	// 三人局，子弹在当前的位置：p1第一枪即中弹，
	// 剩余两人继续游戏，回合必须移交给下一个存活玩家
	room := playingRoom(t, 3, 1, 1, 0)

	res, err := e.ProcessAction(room, "p1", ActionShoot, nil)
	if err != nil {
		t.Fatalf("ProcessAction failed: %v", err)
	}
	if !res.Continues {
		t.Error("game with two survivors should continue")
	}
	if e.IsFinished(room) {
		t.Error("game with two survivors should not be finished")
	}

	st, _, _ := e.decode(room)
	if st.CurrentPlayerIndex != 1 {
		t.Errorf("expected turn to pass to seat 1, got %d", st.CurrentPlayerIndex)
	}
	if _, err := e.ProcessAction(room, "p1", ActionShoot, nil); err == nil {
		t.Error("dead player must not keep the turn")
	}
}

func TestNextPlayer_SkipsDeadSeats(t *testing.T) {
	room := playingRoom(t, 4, 5, 1, 0)
	room.Players[1].IsAlive = false
	room.Players[2].IsAlive = false

	st := &rouletteData{CurrentPlayerIndex: 0}
	nextPlayer(room, st)
	if st.CurrentPlayerIndex != 3 {
		t.Errorf("expected next alive seat 3, got %d", st.CurrentPlayerIndex)
	}

	// 从最后一个座位回绕到开头
	nextPlayer(room, st)
	if st.CurrentPlayerIndex != 0 {
		t.Errorf("expected wraparound to seat 0, got %d", st.CurrentPlayerIndex)
	}
}

func TestRoom_StateRoundTrip(t *testing.T) {
	e := testEngine()
	room := playingRoom(t, 3, 4, 2, 1)
	room.Players[2].IsAlive = false
	room.Players[2].ShotsFired = 5

	raw, err := json.Marshal(room)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var restored models.GameRoom
	if err := json.Unmarshal(raw, &restored); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if !reflect.DeepEqual(room.Players, restored.Players) {
		t.Error("player list did not survive the round trip")
	}
	st1, set1, _ := e.decode(room)
	st2, set2, _ := e.decode(&restored)
	if !reflect.DeepEqual(st1, st2) || !reflect.DeepEqual(set1, set2) {
		t.Error("game data / settings did not survive the round trip")
	}
}
