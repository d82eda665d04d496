// =============================================================================
// main.go - Nature系列誌 日報パイプラインのエントリーポイント
// =============================================================================
//
// このプログラムは、Nature系列誌の最新論文を収集し、AIで要約して
// 日報（Markdown / HTML / JSON）を作成・メール配信するCLIツールです。
//
// =============================================================================
// 【3つの実行モード】
// =============================================================================
//
// 🟢 1回実行（-once、またはフラグ無し）
//    コマンド: ./pipeline -once
//              ./pipeline -once -date=2026-10-19
//
// 🔵 定時実行（-schedule）
//    CRAWL_TIME（デフォルト 07:00）に毎日実行。Ctrl+C で終了。
//    コマンド: ./pipeline -schedule
//
// 🟡 システムテスト（-test）
//    メール設定の検証・テストメール送信・最初の雑誌のクロール
//    コマンド: ./pipeline -test
//
// =============================================================================
// 【処理フロー】
// =============================================================================
//
//   ┌─────────────┐    ┌─────────────┐    ┌─────────────┐
//   │  1. 設定    │ -> │  2. 収集    │ -> │  3. 要約    │
//   │  読み込み   │    │  スクレイピ │    │  DeepSeek   │
//   └─────────────┘    └─────────────┘    └─────────────┘
//          │                  │                  │
//          v                  v                  v
//   .env / 環境変数      7誌の一覧ページ     記事ごとに要約・
//   CLIフラグ解析       （RSSフォールバック） キーポイント・分野
//
//   ┌─────────────┐    ┌─────────────┐
//   │  4. 出力    │ -> │  5. 配信    │
//   │  日報生成   │    │  Mail/Notion│
//   └─────────────┘    └─────────────┘
//
// =============================================================================
// 【CLIフラグ一覧】
// =============================================================================
//
//   -once            日報を1回生成して終了
//   -test            システムテスト
//   -schedule        毎日 CRAWL_TIME に実行
//   -date            対象日（YYYY-MM-DD、省略時: 今日）
//   -journals        雑誌リストのYAMLファイル
//   -outputFormat    markdown|html|json|all
//   -out             出力ディレクトリ
//   -notionClip      Notionデータベースに保存
//   -noEmail         メール送信をしない
//
// ログは標準エラー出力に出す。終了コードは成功 0 / 失敗 1。
//
// =============================================================================
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"nature-digest/internal/pipeline"
)

func main() {
	opts, err := pipeline.ParseFlags(os.Args[1:])
	if err != nil {
		log.Fatalf("invalid flags: %v", err)
	}

	// CLIの上書きを反映してから1回だけ検証する
	cfg, err := pipeline.LoadConfigWithOptions(opts)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	pipeline.SetupLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	// SIGINT / SIGTERM でキャンセル（-schedule の終了に使う）
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	system := pipeline.NewReportSystem(cfg)
	if opts.NotionClip {
		if err := system.EnableNotion(ctx); err != nil {
			log.Fatalf("Notion archive: %v", err)
		}
	}

	switch {
	case opts.Test:
		if !system.RunTest(ctx) {
			os.Exit(1)
		}
	case opts.Schedule:
		if err := system.ScheduleDaily(ctx); err != nil {
			log.Fatalf("scheduler: %v", err)
		}
	default:
		target, _ := opts.TargetDate()
		if !system.RunDailyReport(ctx, target) {
			os.Exit(1)
		}
	}
}
