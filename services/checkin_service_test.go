package services

import (
	"errors"
	"math/rand"
	"testing"
	"time"
)

func newCheckInFixture() (*memStore, *CheckInService) {
	store := newMemStore()
	users := NewUserService(store, 1000)
	achievements := NewAchievementService(store, users, nil)
	svc := NewCheckInService(store, users, achievements, nil, nil)
	svc.rng = rand.New(rand.NewSource(1))
	return store, svc
}

func TestCheckIn_FirstDay(t *testing.T) {
	store, svc := newCheckInFixture()
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.Local) }

	res, err := svc.CheckIn("u1", "张三")
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if res.ConsecutiveDays != 1 {
		t.Fatalf("consecutive = %d, want 1", res.ConsecutiveDays)
	}
	if res.BaseReward < 50 || res.BaseReward > 200 {
		t.Fatalf("base reward %d outside first tier", res.BaseReward)
	}
	if res.BonusReward != 0 {
		t.Fatalf("bonus = %d on day 1", res.BonusReward)
	}
	u, _ := store.GetUser("u1")
	if u.Coins != 1000+res.TotalReward {
		t.Fatalf("coins = %d, want %d", u.Coins, 1000+res.TotalReward)
	}
	if u.TotalCheckIns != 1 {
		t.Fatalf("total check-ins = %d, want 1", u.TotalCheckIns)
	}
}

func TestCheckIn_TwiceSameDay(t *testing.T) {
	_, svc := newCheckInFixture()
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.Local) }

	if _, err := svc.CheckIn("u1", "张三"); err != nil {
		t.Fatalf("first CheckIn: %v", err)
	}
	if _, err := svc.CheckIn("u1", "张三"); !errors.Is(err, ErrCheckedInToday) {
		t.Fatalf("err = %v, want ErrCheckedInToday", err)
	}
}

func TestCheckIn_StreakContinuesNextDay(t *testing.T) {
	_, svc := newCheckInFixture()
	day := time.Date(2025, 6, 1, 9, 0, 0, 0, time.Local)
	svc.now = func() time.Time { return day }
	svc.CheckIn("u1", "张三")

	day = day.AddDate(0, 0, 1)
	res, err := svc.CheckIn("u1", "张三")
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if res.ConsecutiveDays != 2 {
		t.Fatalf("consecutive = %d, want 2", res.ConsecutiveDays)
	}
}

func TestCheckIn_GapResetsStreak(t *testing.T) {
	_, svc := newCheckInFixture()
	day := time.Date(2025, 6, 1, 9, 0, 0, 0, time.Local)
	svc.now = func() time.Time { return day }
	svc.CheckIn("u1", "张三")
	day = day.AddDate(0, 0, 1)
	svc.CheckIn("u1", "张三")

	// 隔两天再签，连续天数重置
	day = day.AddDate(0, 0, 3)
	res, err := svc.CheckIn("u1", "张三")
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if res.ConsecutiveDays != 1 {
		t.Fatalf("consecutive = %d, want reset to 1", res.ConsecutiveDays)
	}
}

func TestCheckIn_MilestoneBonusOnlyOnExactDay(t *testing.T) {
	store, svc := newCheckInFixture()
	day := time.Date(2025, 6, 1, 9, 0, 0, 0, time.Local)
	svc.now = func() time.Time { return day }

	var day7 *CheckInResult
	for i := 1; i <= 8; i++ {
		res, err := svc.CheckIn("u1", "张三")
		if err != nil {
			t.Fatalf("day %d CheckIn: %v", i, err)
		}
		switch i {
		case 7:
			day7 = res
		case 8:
			if res.BonusReward != 0 {
				t.Fatalf("day 8 bonus = %d, want 0", res.BonusReward)
			}
		default:
			if res.BonusReward != 0 {
				t.Fatalf("day %d bonus = %d, want 0", i, res.BonusReward)
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	if day7.BonusReward != 500 {
		t.Fatalf("day 7 bonus = %d, want 500", day7.BonusReward)
	}
	if day7.NewTitle != "每日一签" {
		t.Fatalf("day 7 title = %q, want 每日一签", day7.NewTitle)
	}

	u, _ := store.GetUser("u1")
	if u.Title != "每日一签" {
		t.Fatalf("user title = %q", u.Title)
	}
}

func TestCheckIn_AwardsStreakAchievement(t *testing.T) {
	store, svc := newCheckInFixture()
	achievements := NewAchievementService(store, NewUserService(store, 1000), nil)
	if err := achievements.InitializeDefaults(); err != nil {
		t.Fatalf("InitializeDefaults: %v", err)
	}

	day := time.Date(2025, 6, 1, 9, 0, 0, 0, time.Local)
	svc.now = func() time.Time { return day }
	var last *CheckInResult
	for i := 1; i <= 7; i++ {
		res, err := svc.CheckIn("u1", "张三")
		if err != nil {
			t.Fatalf("day %d CheckIn: %v", i, err)
		}
		last = res
		day = day.AddDate(0, 0, 1)
	}

	found := false
	for _, a := range last.Achievements {
		if a.ID == "check_in_7" {
			found = true
		}
	}
	if !found {
		t.Fatalf("check_in_7 not unlocked, got %+v", last.Achievements)
	}
	owned, _ := store.HasAchievement("u1", "check_in_7")
	if !owned {
		t.Fatal("achievement row missing")
	}
}

func TestCheckIn_StatsReflectHistory(t *testing.T) {
	_, svc := newCheckInFixture()
	day := time.Date(2025, 6, 1, 9, 0, 0, 0, time.Local)
	svc.now = func() time.Time { return day }
	svc.CheckIn("u1", "张三")
	day = day.AddDate(0, 0, 1)
	svc.CheckIn("u1", "张三")

	stats, err := svc.Stats("u1")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.ConsecutiveDays != 2 || stats.TotalCheckIns != 2 {
		t.Fatalf("stats = %+v", stats)
	}
}
