// =============================================================================
// Lambda: selftest
// =============================================================================
//
// デプロイ後の動作確認用Lambda関数
// メール設定の検証・テストメール送信・最初の雑誌のクロールを行う
//
// 環境変数:
//   - SMTP_SERVER / SMTP_PORT:         SMTPサーバー
//   - EMAIL_USERNAME / EMAIL_PASSWORD: 送信元アカウント (必須)
//   - EMAIL_RECIPIENTS:                送信先 (必須)
//
// =============================================================================
package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/lambda"
	log "github.com/sirupsen/logrus"

	"nature-digest/internal/pipeline"
)

// Response はLambdaレスポンス
type Response struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	OK         bool   `json:"ok"`
}

// Handler はLambdaのメインハンドラー
func Handler(ctx context.Context, event interface{}) (Response, error) {
	cfg, err := pipeline.LoadConfig()
	if err != nil {
		return Response{StatusCode: 400, Message: err.Error()}, err
	}
	pipeline.SetupLogger(cfg.App.LogLevel, "json")
	log.Info("Starting selftest Lambda...")

	ok := pipeline.NewReportSystem(cfg).RunTest(ctx)
	if !ok {
		return Response{StatusCode: 500, Message: "system test failed (see logs)"}, fmt.Errorf("system test failed")
	}
	return Response{StatusCode: 200, Message: "system test passed", OK: true}, nil
}

func main() {
	lambda.Start(Handler)
}
