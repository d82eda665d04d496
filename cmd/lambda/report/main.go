// =============================================================================
// Lambda: daily-report
// =============================================================================
//
// 日報を1回生成し、出力ファイルを保存してメール送信するLambda関数
// （EventBridge のスケジュールで毎朝起動する想定）
//
// 環境変数:
//   - DEEPSEEK_API_KEY:     要約APIキー (必須)
//   - EMAIL_USERNAME など:   メール設定 (任意、無ければ送信しない)
//   - OUTPUT_DIR:           出力先 (Lambdaでは /tmp 配下を指定)
//   - NOTION_TOKEN:         Notionアーカイブ (任意)
//   - NOTION_DATABASE_ID:   NotionデータベースID (任意)
//
// イベント:
//
//	{ "date": "2026-10-19" }   // 省略時は今日
//
// =============================================================================
package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	log "github.com/sirupsen/logrus"

	"nature-digest/internal/pipeline"
)

// Event はLambdaの入力イベント
type Event struct {
	Date string `json:"date"`
}

// Response はLambdaレスポンス
type Response struct {
	StatusCode int               `json:"statusCode"`
	Message    string            `json:"message"`
	Articles   int               `json:"articles"`
	Crawled    int               `json:"crawled"`
	EmailSent  bool              `json:"emailSent"`
	Clipped    int               `json:"clipped"`
	Files      map[string]string `json:"files,omitempty"`
}

// Handler はLambdaのメインハンドラー
func Handler(ctx context.Context, event Event) (Response, error) {
	cfg, err := pipeline.LoadConfig()
	if err != nil {
		return Response{StatusCode: 400, Message: err.Error()}, err
	}
	pipeline.SetupLogger(cfg.App.LogLevel, "json")
	log.Info("Starting daily-report Lambda...")

	var target *time.Time
	if event.Date != "" {
		t, err := time.ParseInLocation("2006-01-02", event.Date, time.Local)
		if err != nil {
			err = fmt.Errorf("%w: %q", pipeline.ErrInvalidDate, event.Date)
			return Response{StatusCode: 400, Message: err.Error()}, err
		}
		target = &t
	}

	system := pipeline.NewReportSystem(cfg)
	if cfg.Notion.Enabled() {
		if err := system.EnableNotion(ctx); err != nil {
			log.Warnf("Notion archive disabled: %v", err)
		}
	}

	result, err := system.Run(ctx, target)
	if errors.Is(err, pipeline.ErrNoArticlesForDate) {
		return Response{StatusCode: 200, Message: err.Error(), Crawled: result.Crawled}, nil
	}
	if err != nil {
		log.Errorf("Daily report failed: %v", err)
		return Response{StatusCode: 500, Message: err.Error()}, err
	}

	return Response{
		StatusCode: 200,
		Message:    fmt.Sprintf("Report generated: %s", result.Report),
		Articles:   result.Report.TotalArticles,
		Crawled:    result.Crawled,
		EmailSent:  result.EmailSent,
		Clipped:    result.Clipped,
		Files:      result.Files,
	}, nil
}

func main() {
	lambda.Start(Handler)
}
