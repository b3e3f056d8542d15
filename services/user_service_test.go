package services

import (
	"errors"
	"os"
	"testing"

	"coinbot/logger"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

func TestGetOrCreateUser_InitialGrant(t *testing.T) {
	store := newMemStore()
	users := NewUserService(store, 1000)

	u, created, err := users.GetOrCreateUser("u1", "张三")
	if err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}
	if !created {
		t.Fatal("expected new user")
	}
	if u.Coins != 1000 {
		t.Fatalf("coins = %d, want 1000", u.Coins)
	}
	if u.TotalEarned != 1000 {
		t.Fatalf("total earned = %d, want 1000", u.TotalEarned)
	}

	again, created, err := users.GetOrCreateUser("u1", "张三")
	if err != nil {
		t.Fatalf("second GetOrCreateUser: %v", err)
	}
	if created {
		t.Fatal("user should already exist")
	}
	if again.Coins != 1000 {
		t.Fatalf("coins changed on repeat lookup: %d", again.Coins)
	}
}

func TestSpendCoins_InsufficientLeavesBalanceUntouched(t *testing.T) {
	store := newMemStore()
	users := NewUserService(store, 1000)
	users.GetOrCreateUser("u1", "张三")

	err := users.SpendCoins("u1", 5000, "测试")
	if !errors.Is(err, ErrInsufficientCoins) {
		t.Fatalf("err = %v, want ErrInsufficientCoins", err)
	}
	u, _ := store.GetUser("u1")
	if u.Coins != 1000 || u.TotalSpent != 0 {
		t.Fatalf("balance mutated on failed spend: coins=%d spent=%d", u.Coins, u.TotalSpent)
	}
}

func TestBalanceIdentity(t *testing.T) {
	store := newMemStore()
	users := NewUserService(store, 1000)
	users.GetOrCreateUser("u1", "张三")
	users.AddCoins("u1", 300, "测试加币")
	users.SpendCoins("u1", 450, "测试扣币")
	users.AddCoins("u1", 20, "测试加币")

	u, _ := store.GetUser("u1")
	if u.Coins != u.TotalEarned-u.TotalSpent {
		t.Fatalf("coins=%d earned=%d spent=%d", u.Coins, u.TotalEarned, u.TotalSpent)
	}
	if u.Coins != 870 {
		t.Fatalf("coins = %d, want 870", u.Coins)
	}
}

func TestTransferCoins(t *testing.T) {
	store := newMemStore()
	users := NewUserService(store, 1000)
	users.GetOrCreateUser("a", "甲")
	users.GetOrCreateUser("b", "乙")

	if err := users.TransferCoins("a", "b", 400); err != nil {
		t.Fatalf("TransferCoins: %v", err)
	}
	a, _ := store.GetUser("a")
	b, _ := store.GetUser("b")
	if a.Coins != 600 || b.Coins != 1400 {
		t.Fatalf("after transfer a=%d b=%d", a.Coins, b.Coins)
	}

	if err := users.TransferCoins("a", "b", 10000); !errors.Is(err, ErrInsufficientCoins) {
		t.Fatalf("err = %v, want ErrInsufficientCoins", err)
	}
	if err := users.TransferCoins("a", "a", 10); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("self transfer err = %v, want ErrInvalidAmount", err)
	}
	if err := users.TransferCoins("a", "b", 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero transfer err = %v, want ErrInvalidAmount", err)
	}
}

func TestAddExperience_LevelUpCarriesOverflow(t *testing.T) {
	store := newMemStore()
	users := NewUserService(store, 1000)
	users.GetOrCreateUser("u1", "张三")

	leveled, err := users.AddExperience("u1", 250)
	if err != nil {
		t.Fatalf("AddExperience: %v", err)
	}
	if !leveled {
		t.Fatal("expected level up")
	}
	u, _ := store.GetUser("u1")
	// 100 经验升到2级，剩150再扣200不够，停在2级
	if u.Level != 2 || u.Experience != 150 {
		t.Fatalf("level=%d exp=%d, want level=2 exp=150", u.Level, u.Experience)
	}
}

func TestLeaderboardAndRank(t *testing.T) {
	store := newMemStore()
	users := NewUserService(store, 1000)
	users.GetOrCreateUser("a", "甲")
	users.GetOrCreateUser("b", "乙")
	users.GetOrCreateUser("c", "丙")
	users.AddCoins("b", 500, "测试")
	users.AddCoins("c", 200, "测试")

	entries, err := users.Leaderboard(10, 0)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if len(entries) != 3 || entries[0].UserID != "b" || entries[1].UserID != "c" {
		t.Fatalf("unexpected order: %+v", entries)
	}
	rank, err := users.UserRank("a")
	if err != nil {
		t.Fatalf("UserRank: %v", err)
	}
	if rank != 3 {
		t.Fatalf("rank = %d, want 3", rank)
	}
}
