// =============================================================================
// summarizer.go - AI要約・キーポイント抽出・研究分野判定
// =============================================================================
//
// このファイルはOpenAI互換の Chat Completions API（デフォルトは DeepSeek）を
// 使用して、記事ごとの要約とキーポイントを生成します。
// 研究分野はAPIを使わず、タイトルと要旨のキーワードマッチングで判定します。
//
// =============================================================================
// 【処理の流れ（1記事あたり）】
// =============================================================================
//
//  1. 要旨が空 → API呼び出しをせずプレースホルダを設定
//  2. 要約を生成（temperature 0.3, max_tokens 800）
//  3. 要約を踏まえてキーポイントを抽出（temperature 0.3, max_tokens 600）
//  4. キーワードマッチングで研究分野を判定
//
// 失敗してもエラーを上に返さず、プレースホルダ文字列で埋めて次へ進む。
// リトライはしない。記事の間には固定の待機時間（ANALYZE_DELAY）を入れる。
//
// =============================================================================
// 【APIリクエスト】
// =============================================================================
//
//	POST {DEEPSEEK_BASE_URL}/chat/completions
//	Authorization: Bearer {DEEPSEEK_API_KEY}
//
//	{
//	  "model": "deepseek-chat",
//	  "messages": [{"role": "user", "content": "..."}],
//	  "temperature": 0.3,
//	  "max_tokens": 800
//	}
//
// =============================================================================
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// reListMarker は行頭の箇条書き記号（"1." "2)" "-" "*" "•"）
var reListMarker = regexp.MustCompile(`^(?:\d+[.)]|[-*•])(?:\s+|$)`)

// プレースホルダ（API失敗時に記事へ書き込む値）
const (
	SummaryFailed              = "summary generation failed"
	SummaryFailedEmptyAbstract = "summary generation failed: abstract is empty"
	SummaryFailedEmptyResponse = "summary generation failed: API returned empty content"

	KeyPointsFailed              = "key point extraction failed"
	KeyPointsFailedEmptyAbstract = "key point extraction failed: abstract is empty"
	KeyPointsFailedEmptyResponse = "key point extraction failed: API returned empty content"
)

// ErrMissingAPIKey はAPIキーが設定されていないことを表す
var ErrMissingAPIKey = errors.New("DEEPSEEK_API_KEY is required")

const maxKeyPoints = 5

// fieldKeywords は研究分野ごとのキーワード（小文字で部分一致）
//
// スライスの順序が同点時の優先順位になる。
var fieldKeywords = []struct {
	Field    ResearchField
	Keywords []string
}{
	{FieldPhotonics, []string{"photonics", "optics", "laser", "optical", "light", "photon", "quantum optics"}},
	{FieldMaterialsScience, []string{"materials", "material science", "nanomaterials", "quantum materials", "crystal"}},
	{FieldNanotechnology, []string{"nanotechnology", "nano", "nanoparticle", "quantum dot", "nanostructure"}},
	{FieldElectronics, []string{"electronics", "semiconductor", "transistor", "integrated circuit", "quantum computing"}},
	{FieldBiotechnology, []string{"biotechnology", "bio", "genetics", "crispr", "protein", "dna", "cell"}},
	{FieldQuantumPhysics, []string{"quantum", "quantum physics", "quantum mechanics", "entanglement"}},
	{FieldNeuroscience, []string{"neuroscience", "neural", "brain", "neuron", "cognitive"}},
	{FieldArtificialIntelligence, []string{"artificial intelligence", "ai", "machine learning", "deep learning"}},
	{FieldMachineLearning, []string{"machine learning", "ml", "neural network", "algorithm", "data science"}},
	{FieldChemistry, []string{"chemistry", "chemical", "molecule", "catalyst", "reaction"}},
	{FieldPhysics, []string{"physics", "physical", "mechanics", "thermodynamics"}},
	{FieldBiology, []string{"biology", "biological", "organism", "evolution", "ecology"}},
}

// =============================================================================
// Chat Completions API 構造体
// =============================================================================

// ChatMessage は messages 配列の1要素
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionResp は Chat Completions API のレスポンス
//
// 【JSON構造】
//
//	{
//	  "choices": [
//	    { "message": { "role": "assistant", "content": "..." } }
//	  ]
//	}
type chatCompletionResp struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// =============================================================================
// Summarizer
// =============================================================================

// Summarizer は記事の要約・キーポイント・研究分野を付与する
type Summarizer struct {
	cfg    AIConfig
	client *http.Client
	delay  time.Duration
	sleep  func(ctx context.Context, d time.Duration)
}

// NewSummarizer はAI設定からSummarizerを作成する
//
// delay は AnalyzeArticlesBatch で記事の間に入れる待機時間。
func NewSummarizer(cfg AIConfig, delay time.Duration) *Summarizer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Summarizer{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		delay:  delay,
		sleep:  sleepCtx,
	}
}

// ChatCompletion は Chat Completions API を1回呼び出し、応答テキストを返す
//
// maxTokens は DEEPSEEK_MAX_TOKENS を上限とする。
// 応答の前後の空白は除去する。空文字列が返ることもある（呼び出し側で判定）。
func (s *Summarizer) ChatCompletion(ctx context.Context, messages []ChatMessage, maxTokens int, temperature float64) (string, error) {
	if s.cfg.APIKey == "" {
		return "", ErrMissingAPIKey
	}

	if s.cfg.MaxTokens > 0 && maxTokens > s.cfg.MaxTokens {
		maxTokens = s.cfg.MaxTokens
	}

	reqBody := map[string]any{
		"model":       s.cfg.Model,
		"messages":    messages,
		"temperature": temperature,
		"max_tokens":  maxTokens,
	}
	b, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request failed: %w", err)
	}

	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("request creation failed: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("chat completions API error (status %d): %s", resp.StatusCode, truncateString(string(raw), 300))
	}

	var parsed chatCompletionResp
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse response failed: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("chat completions API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// GenerateSummary は論文のタイトル・著者・要旨から要約を生成する
func (s *Summarizer) GenerateSummary(ctx context.Context, title, abstract, authors string) (string, error) {
	prompt := fmt.Sprintf(`Analyze the following academic paper and write a summary.

Title: %s
Authors: %s
Abstract: %s

Write a concise and accurate summary in %s that highlights the core content, methods and main findings. The summary should:
1. Outline the research background and purpose
2. Describe the main methods and experimental design
3. Summarize the key findings and results
4. Point out the novelty and significance of the work

Use a clear structure and professional language.`, title, authors, abstract, s.language())

	return s.ChatCompletion(ctx, []ChatMessage{{Role: "user", Content: prompt}}, 800, 0.3)
}

// ExtractKeyPoints は論文から3〜5個のキーポイントを抽出する
func (s *Summarizer) ExtractKeyPoints(ctx context.Context, title, abstract, summary string) ([]string, error) {
	prompt := fmt.Sprintf(`Extract 3-5 key points from the following academic paper.

Title: %s
Abstract: %s
Generated summary: %s

Each key point should:
1. Be short and focus on the core content
2. Cover the methods, findings or applications
3. Be written in %s with professional language
4. Be ordered by importance

Return a list with one key point per line.`, title, abstract, summary, s.language())

	content, err := s.ChatCompletion(ctx, []ChatMessage{{Role: "user", Content: prompt}}, 600, 0.3)
	if err != nil {
		return nil, err
	}
	return parseKeyPoints(content), nil
}

// parseKeyPoints はAPI応答を1行1キーポイントとして分解する
//
// 先頭の番号・記号（"1." "2)" "-" "*" "•"）を1つだけ除去し、"#" で始まる見出し行は捨てる。
// 本文側の数字は残す（"1. 3D-printed lenses" → "3D-printed lenses"）。最大5件。
func parseKeyPoints(content string) []string {
	var points []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(reListMarker.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		points = append(points, line)
		if len(points) >= maxKeyPoints {
			break
		}
	}
	return points
}

// AnalyzeArticle は1記事に要約・キーポイント・研究分野を付与する
//
// API失敗時はプレースホルダを設定する（エラーは返さない）。
func (s *Summarizer) AnalyzeArticle(ctx context.Context, a Article) Article {
	infof("analyzing article: %s", truncateString(a.Title, 80))

	if strings.TrimSpace(a.Abstract) == "" {
		warnf("abstract is empty: %s", a.Title)
		a.Summary = SummaryFailedEmptyAbstract
		a.KeyPoints = []string{KeyPointsFailedEmptyAbstract}
		a.ResearchField = FieldOther
		return a
	}

	a.Summary = s.summaryOrPlaceholder(ctx, a)
	a.KeyPoints = s.keyPointsOrPlaceholder(ctx, a)
	a.ResearchField = IdentifyResearchField(a)
	return a
}

func (s *Summarizer) summaryOrPlaceholder(ctx context.Context, a Article) string {
	summary, err := s.GenerateSummary(ctx, a.Title, a.Abstract, a.AuthorsLine())
	switch {
	case err != nil:
		errorf("summary generation failed: %v | title: %s", err, a.Title)
		return SummaryFailed
	case summary == "":
		errorf("summary generation failed: API returned empty content | title: %s", a.Title)
		return SummaryFailedEmptyResponse
	}
	return summary
}

func (s *Summarizer) keyPointsOrPlaceholder(ctx context.Context, a Article) []string {
	summary := a.Summary
	if strings.HasPrefix(summary, SummaryFailed) {
		summary = ""
	}
	points, err := s.ExtractKeyPoints(ctx, a.Title, a.Abstract, summary)
	switch {
	case err != nil:
		errorf("key point extraction failed: %v | title: %s", err, a.Title)
		return []string{KeyPointsFailed}
	case len(points) == 0:
		errorf("key point extraction failed: API returned empty content | title: %s", a.Title)
		return []string{KeyPointsFailedEmptyResponse}
	}
	return points
}

// IdentifyResearchField はタイトルと要旨のキーワード一致数で研究分野を判定する
//
// 一致数が最大の分野を返す。同点の場合は分野の宣言順で先のものを、
// どの分野にも一致しない場合は Other を返す。
func IdentifyResearchField(a Article) ResearchField {
	text := strings.ToLower(a.Title + " " + a.Abstract)

	best, bestScore := FieldOther, 0
	for _, fk := range fieldKeywords {
		score := 0
		for _, kw := range fk.Keywords {
			if strings.Contains(text, kw) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = fk.Field, score
		}
	}
	return best
}

// AnalyzeArticlesBatch は記事を順番に分析する（記事の間に固定の待機）
func (s *Summarizer) AnalyzeArticlesBatch(ctx context.Context, articles []Article) []Article {
	out := make([]Article, 0, len(articles))
	for i, a := range articles {
		infof("analyzing %d/%d", i+1, len(articles))
		out = append(out, s.AnalyzeArticle(ctx, a))
		if i < len(articles)-1 {
			s.sleep(ctx, s.delay)
		}
	}
	return out
}

// GenerateFieldSummary は研究分野ごとの今日の動向を短くまとめる
//
// 該当記事が無い場合やAPI失敗時は定型文を返す。
func (s *Summarizer) GenerateFieldSummary(ctx context.Context, articles []Article, field ResearchField) string {
	var lines []string
	for _, a := range articles {
		if a.ResearchField == field {
			lines = append(lines, fmt.Sprintf("- %s (%s)", a.Title, a.Journal))
		}
	}
	if len(lines) == 0 {
		return fmt.Sprintf("No new %s articles today.", field)
	}
	fallback := fmt.Sprintf("%d new %s articles today.", len(lines), field)

	prompt := fmt.Sprintf(`Summarize today's Nature journal articles in the field of %s:
1. Summarize the main research progress in this field today
2. Highlight important technical breakthroughs or discoveries
3. Analyze research trends and directions
4. Keep it within 200 words

Articles:
%s

Write the %s summary in %s:`, field, strings.Join(lines, "\n"), field, s.language())

	messages := []ChatMessage{
		{Role: "system", Content: fmt.Sprintf("You are a research expert in %s who is good at summarizing research progress.", field)},
		{Role: "user", Content: prompt},
	}
	result, err := s.ChatCompletion(ctx, messages, 400, s.cfg.Temperature)
	if err != nil {
		errorf("field summary failed for %s: %v", field, err)
		return fallback
	}
	if result == "" {
		return fallback
	}
	return result
}

func (s *Summarizer) language() string {
	if s.cfg.Language == "" {
		return "English"
	}
	return s.cfg.Language
}
