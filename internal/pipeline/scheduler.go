// =============================================================================
// scheduler.go - 毎日の定時実行
// =============================================================================
//
// CRAWL_TIME（"HH:MM"、ローカル時刻）に1日1回、日報を生成します。
// 1分ごとに時刻を確認し、次回実行時刻を過ぎていれば実行します。
// ctx がキャンセルされる（SIGINT / SIGTERM）と終了します。
//
// 【次回実行時刻の例】CRAWL_TIME=07:00
//
//	起動 06:30 → 当日 07:00
//	起動 08:00 → 翌日 07:00（起動が遅れても即時実行はしない）
//
// =============================================================================
package pipeline

import (
	"context"
	"time"
)

// schedulerPollInterval は時刻確認の間隔
const schedulerPollInterval = time.Minute

// nextRun は now より後で最初に hour:minute になる時刻を返す
func nextRun(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Scheduler は1日1回ジョブを実行する
type Scheduler struct {
	hour, minute int
	interval     time.Duration
	now          func() time.Time
	job          func(ctx context.Context)
}

// NewScheduler は "HH:MM" で指定した時刻に job を実行するスケジューラを作成する
func NewScheduler(clock string, job func(ctx context.Context)) (*Scheduler, error) {
	h, m, err := parseClock(clock)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		hour:     h,
		minute:   m,
		interval: schedulerPollInterval,
		now:      time.Now,
		job:      job,
	}, nil
}

// Run は ctx がキャンセルされるまでジョブを定時実行する
func (s *Scheduler) Run(ctx context.Context) {
	next := nextRun(s.now(), s.hour, s.minute)
	infof("daily report scheduled at %02d:%02d (next run: %s)", s.hour, s.minute, next.Format("2006-01-02 15:04"))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			infof("scheduler stopped")
			return
		case <-ticker.C:
			now := s.now()
			if now.Before(next) {
				continue
			}
			s.job(ctx)
			next = nextRun(s.now(), s.hour, s.minute)
			infof("next run: %s", next.Format("2006-01-02 15:04"))
		}
	}
}
