package services

import (
	"testing"

	"coinbot/models"
)

func newAchievementFixture(t *testing.T) (*memStore, *UserService, *AchievementService) {
	t.Helper()
	store := newMemStore()
	users := NewUserService(store, 1000)
	svc := NewAchievementService(store, users, nil)
	if err := svc.InitializeDefaults(); err != nil {
		t.Fatalf("InitializeDefaults: %v", err)
	}
	return store, users, svc
}

func TestInitializeDefaults_Idempotent(t *testing.T) {
	store, _, svc := newAchievementFixture(t)
	before, _ := store.Achievements()
	if err := svc.InitializeDefaults(); err != nil {
		t.Fatalf("second InitializeDefaults: %v", err)
	}
	after, _ := store.Achievements()
	if len(before) != len(after) {
		t.Fatalf("catalog grew from %d to %d", len(before), len(after))
	}
	if len(after) == 0 {
		t.Fatal("empty catalog")
	}
}

func TestCheckAndAward_CoinsThresholdWithReward(t *testing.T) {
	store, users, svc := newAchievementFixture(t)
	users.GetOrCreateUser("u1", "张三")

	unlocked, err := svc.CheckAndAward("u1", models.TriggerCoins, int64(0))
	if err != nil {
		t.Fatalf("CheckAndAward: %v", err)
	}
	ids := make(map[string]bool)
	for _, a := range unlocked {
		ids[a.ID] = true
	}
	// 初始1000金币满足百币、千币与累计千币三档
	if !ids["first_hundred"] || !ids["first_thousand"] || !ids["earn_thousand"] {
		t.Fatalf("unlocked = %v", ids)
	}
	if ids["first_ten_thousand"] {
		t.Fatal("first_ten_thousand should not unlock at 1000 coins")
	}

	u, _ := store.GetUser("u1")
	// 成就奖励 100+50+200 已入账
	if u.Coins != 1350 {
		t.Fatalf("coins = %d, want 1350", u.Coins)
	}
	// 称号取最后解锁的一档
	if u.Title != "富足" {
		t.Fatalf("title = %q, want 富足", u.Title)
	}
}

func TestCheckAndAward_NoDoubleAward(t *testing.T) {
	_, users, svc := newAchievementFixture(t)
	users.GetOrCreateUser("u1", "张三")

	if _, err := svc.CheckAndAward("u1", models.TriggerCoins, int64(0)); err != nil {
		t.Fatalf("first CheckAndAward: %v", err)
	}
	again, err := svc.CheckAndAward("u1", models.TriggerCoins, int64(0))
	if err != nil {
		t.Fatalf("second CheckAndAward: %v", err)
	}
	for _, a := range again {
		if a.ID == "first_hundred" || a.ID == "first_thousand" {
			t.Fatalf("achievement %s awarded twice", a.ID)
		}
	}
}

func TestCheckAndAward_RouletteWinCountsRecords(t *testing.T) {
	store, users, svc := newAchievementFixture(t)
	users.GetOrCreateUser("u1", "张三")
	store.CreateGameRecord(&models.GameRecord{
		UserID: "u1", GameType: "russian_roulette", CoinsBet: 100, CoinsWon: 300, Result: "win",
	})

	unlocked, err := svc.CheckAndAward("u1", models.TriggerGame, map[string]any{
		"type": "russian_roulette_win", "value": 1,
	})
	if err != nil {
		t.Fatalf("CheckAndAward: %v", err)
	}
	found := false
	for _, a := range unlocked {
		if a.ID == "roulette_first_win" {
			found = true
		}
	}
	if !found {
		t.Fatalf("roulette_first_win not unlocked, got %+v", unlocked)
	}
}

func TestCheckAndAward_LoseEventDoesNotUnlockWin(t *testing.T) {
	store, users, svc := newAchievementFixture(t)
	users.GetOrCreateUser("u1", "张三")
	store.CreateGameRecord(&models.GameRecord{
		UserID: "u1", GameType: "russian_roulette", CoinsBet: 100, CoinsWon: 300, Result: "win",
	})

	unlocked, err := svc.CheckAndAward("u1", models.TriggerGame, map[string]any{
		"type": "russian_roulette_lose", "value": 1,
	})
	if err != nil {
		t.Fatalf("CheckAndAward: %v", err)
	}
	for _, a := range unlocked {
		if a.ID == "roulette_first_win" {
			t.Fatal("win achievement unlocked by lose event")
		}
	}
}

func TestUnnotifiedDrain(t *testing.T) {
	store, users, svc := newAchievementFixture(t)
	users.GetOrCreateUser("u1", "张三")
	if _, err := svc.CheckAndAward("u1", models.TriggerCoins, int64(0)); err != nil {
		t.Fatalf("CheckAndAward: %v", err)
	}

	first, err := svc.Unnotified("u1")
	if err != nil {
		t.Fatalf("Unnotified: %v", err)
	}
	if len(first) == 0 {
		t.Fatal("expected pending notifications")
	}
	second, err := svc.Unnotified("u1")
	if err != nil {
		t.Fatalf("second Unnotified: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("notifications not drained: %d left", len(second))
	}
	pending, _ := store.UnnotifiedAchievements("u1")
	if len(pending) != 0 {
		t.Fatalf("store still has %d unnotified rows", len(pending))
	}
}

func TestProgressSummary(t *testing.T) {
	store, users, svc := newAchievementFixture(t)
	users.GetOrCreateUser("u1", "张三")
	svc.CheckAndAward("u1", models.TriggerCoins, int64(0))

	summary, err := svc.Progress("u1")
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	all, _ := store.Achievements()
	if summary.Total != len(all) {
		t.Fatalf("total = %d, want %d", summary.Total, len(all))
	}
	if summary.Completed == 0 {
		t.Fatal("completed = 0 after awards")
	}
	coinCat := summary.Categories["金币"]
	if len(coinCat) == 0 {
		t.Fatal("missing coin category")
	}
	for _, p := range coinCat {
		if p.Achievement.ConditionType == "current_coins" && p.Progress < 1000 {
			t.Fatalf("progress = %d for %s", p.Progress, p.Achievement.ID)
		}
	}
}
