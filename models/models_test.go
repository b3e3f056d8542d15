package models

import (
	"testing"
	"time"
)

func TestUserCoinsAccounting(t *testing.T) {
	u := &User{Coins: 100, TotalEarned: 100}
	u.AddCoins(50)
	if u.Coins != 150 || u.TotalEarned != 150 {
		t.Fatalf("after add: coins=%d earned=%d", u.Coins, u.TotalEarned)
	}
	if !u.SpendCoins(120) {
		t.Fatal("spend should succeed")
	}
	if u.Coins != 30 || u.TotalSpent != 120 {
		t.Fatalf("after spend: coins=%d spent=%d", u.Coins, u.TotalSpent)
	}
	if u.SpendCoins(31) {
		t.Fatal("overspend should fail")
	}
	if u.Coins != 30 || u.TotalSpent != 120 {
		t.Fatalf("failed spend mutated user: coins=%d spent=%d", u.Coins, u.TotalSpent)
	}
}

func TestAddExperienceMultiLevel(t *testing.T) {
	u := &User{Level: 1}
	// 100+200 正好连升两级
	if !u.AddExperience(300) {
		t.Fatal("expected level up")
	}
	if u.Level != 3 || u.Experience != 0 {
		t.Fatalf("level=%d exp=%d, want 3/0", u.Level, u.Experience)
	}
}

func TestCanCheckIn(t *testing.T) {
	now := time.Date(2025, 6, 2, 8, 0, 0, 0, time.Local)
	u := &User{}
	if !u.CanCheckIn(now) {
		t.Fatal("new user should be able to check in")
	}
	sameDay := now.Add(-3 * time.Hour)
	u.LastCheckIn = &sameDay
	if u.CanCheckIn(now) {
		t.Fatal("already checked in today")
	}
	yesterday := now.AddDate(0, 0, -1)
	u.LastCheckIn = &yesterday
	if !u.CanCheckIn(now) {
		t.Fatal("yesterday's check-in should not block today")
	}
}

func TestRoomHelpers(t *testing.T) {
	room := &GameRoom{
		BetAmount: 200,
		Players: []RoomPlayer{
			{UserID: "a", IsAlive: true},
			{UserID: "b", IsAlive: false},
			{UserID: "c", IsAlive: true},
		},
	}
	if !room.Seated("b") || room.Seated("d") {
		t.Fatal("Seated mismatch")
	}
	alive := room.AlivePlayers()
	if len(alive) != 2 || alive[0].UserID != "a" || alive[1].UserID != "c" {
		t.Fatalf("alive = %+v", alive)
	}
	if room.Pot() != 600 {
		t.Fatalf("pot = %d, want 600", room.Pot())
	}
}
