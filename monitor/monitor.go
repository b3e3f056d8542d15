// monitor/monitor.go
package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"coinbot/logger"
)

// Metrics 游戏服务运行指标
type Metrics struct {
	ActiveRooms    prometheus.Gauge
	GamesFinished  *prometheus.CounterVec
	CoinsWagered   prometheus.Counter
	CoinsPaidOut   prometheus.Counter
	CheckIns       prometheus.Counter
	SettleDuration prometheus.Histogram

	registry *prometheus.Registry
}

func NewMetrics() *Metrics {
	m := &Metrics{
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coinbot_active_rooms",
			Help: "当前处于等待或进行中的房间数",
		}),
		GamesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coinbot_games_finished_total",
			Help: "已结算的游戏局数",
		}, []string{"game_type"}),
		CoinsWagered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coinbot_coins_wagered_total",
			Help: "累计下注金币",
		}),
		CoinsPaidOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coinbot_coins_paid_out_total",
			Help: "累计派彩金币",
		}),
		CheckIns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coinbot_check_ins_total",
			Help: "累计签到次数",
		}),
		SettleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "coinbot_settlement_duration_seconds",
			Help:    "结算耗时",
			Buckets: prometheus.DefBuckets,
		}),
		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(
		m.ActiveRooms, m.GamesFinished, m.CoinsWagered,
		m.CoinsPaidOut, m.CheckIns, m.SettleDuration,
	)
	return m
}

// ObserveSettlement 记录一次结算
func (m *Metrics) ObserveSettlement(gameType string, pot int64, start time.Time) {
	if m == nil {
		return
	}
	m.GamesFinished.WithLabelValues(gameType).Inc()
	m.CoinsPaidOut.Add(float64(pot))
	m.SettleDuration.Observe(time.Since(start).Seconds())
}

// Handler 返回 /metrics 的 HTTP 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer 在独立端口上暴露指标
func (m *Metrics) StartServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	go func() {
		logger.Log.Infow("metrics server listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Log.Errorw("metrics server stopped", "err", err)
		}
	}()
}
