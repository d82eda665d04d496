// =============================================================================
// types.go - データ構造定義
// =============================================================================
//
// このファイルは日報システム全体で使用するデータ構造（型）を定義します。
//
// 【このファイルで定義している型】
//   - ArticleType:   記事種別（Research Article, News, ...）
//   - ResearchField: 研究分野（キーワードマッチングで判定）
//   - Article:       1本の論文・記事
//   - CrawlResult:   1誌分のクロール結果
//   - DailyReport:   日報（記事の集合 + 集計情報）
//
// 【初心者向けポイント】
//   - `json:"フィールド名"`はJSONに変換する際のキー名を指定するタグ
//   - time.Time はJSONではRFC3339形式の文字列になる
//
// =============================================================================
package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// ArticleType - 記事種別
// -----------------------------------------------------------------------------

// ArticleType は一覧ページに表示される記事種別ラベル
type ArticleType string

const (
	ArticleTypeResearch           ArticleType = "Research Article"
	ArticleTypeNews               ArticleType = "News"
	ArticleTypeEditorial          ArticleType = "Editorial"
	ArticleTypePerspective        ArticleType = "Perspective"
	ArticleTypeReview             ArticleType = "Review"
	ArticleTypeLetter             ArticleType = "Letter"
	ArticleTypeBriefCommunication ArticleType = "Brief Communication"
	ArticleTypeOther              ArticleType = "Other"
)

// articleTypes は宣言順（ラベル照合の優先順）
var articleTypes = []ArticleType{
	ArticleTypeResearch,
	ArticleTypeNews,
	ArticleTypeEditorial,
	ArticleTypePerspective,
	ArticleTypeReview,
	ArticleTypeLetter,
	ArticleTypeBriefCommunication,
	ArticleTypeOther,
}

// ParseArticleType はラベル文字列から記事種別を判定する
//
// 大文字小文字を区別せず、ラベルに種別名が含まれていれば一致とみなす。
// どれにも一致しない場合は Research Article を返す。
//
// 使用例:
//
//	ParseArticleType("News & Views")    // ArticleTypeNews
//	ParseArticleType("Article")         // ArticleTypeResearch
func ParseArticleType(label string) ArticleType {
	lower := strings.ToLower(strings.TrimSpace(label))
	if lower == "" {
		return ArticleTypeResearch
	}
	for _, t := range articleTypes {
		if strings.Contains(lower, strings.ToLower(string(t))) {
			return t
		}
	}
	return ArticleTypeResearch
}

// -----------------------------------------------------------------------------
// ResearchField - 研究分野
// -----------------------------------------------------------------------------

// ResearchField は記事の研究分野
type ResearchField string

const (
	FieldPhotonics              ResearchField = "Photonics"
	FieldMaterialsScience       ResearchField = "Materials Science"
	FieldNanotechnology         ResearchField = "Nanotechnology"
	FieldElectronics            ResearchField = "Electronics"
	FieldBiotechnology          ResearchField = "Biotechnology"
	FieldQuantumPhysics         ResearchField = "Quantum Physics"
	FieldNeuroscience           ResearchField = "Neuroscience"
	FieldArtificialIntelligence ResearchField = "Artificial Intelligence"
	FieldMachineLearning        ResearchField = "Machine Learning"
	FieldChemistry              ResearchField = "Chemistry"
	FieldPhysics                ResearchField = "Physics"
	FieldBiology                ResearchField = "Biology"
	FieldOther                  ResearchField = "Other"
)

// ResearchFields は全分野を宣言順で返す（同点時はこの順が優先）
func ResearchFields() []ResearchField {
	return []ResearchField{
		FieldPhotonics,
		FieldMaterialsScience,
		FieldNanotechnology,
		FieldElectronics,
		FieldBiotechnology,
		FieldQuantumPhysics,
		FieldNeuroscience,
		FieldArtificialIntelligence,
		FieldMachineLearning,
		FieldChemistry,
		FieldPhysics,
		FieldBiology,
		FieldOther,
	}
}

// -----------------------------------------------------------------------------
// Article - 論文・記事
// -----------------------------------------------------------------------------
//
// 一覧ページから抽出した情報に、AI分析の結果（Summary, KeyPoints,
// ResearchField）が後から書き込まれます。
//
type Article struct {
	Title               string        `json:"title"`
	Authors             []string      `json:"authors"`
	Journal             string        `json:"journal"`
	URL                 string        `json:"url"`
	Abstract            string        `json:"abstract"`
	PublishDate         time.Time     `json:"publish_date"`
	ArticleType         ArticleType   `json:"article_type"`
	DOI                 string        `json:"doi,omitempty"`
	Keywords            []string      `json:"keywords"`
	Summary             string        `json:"summary,omitempty"`
	KeyPoints           []string      `json:"key_points"`
	ResearchField       ResearchField `json:"research_field,omitempty"`
	ContentPreview      string        `json:"content_preview,omitempty"`
	CorrespondingAuthor string        `json:"corresponding_author,omitempty"`
	AuthorAffiliations  []string      `json:"author_affiliations"`
}

// AuthorsLine は作者をカンマ区切りで返す（テンプレート・プロンプト用）
func (a Article) AuthorsLine() string {
	return strings.Join(a.Authors, ", ")
}

// MarshalJSON はnilスライスを空配列として出力する
func (a Article) MarshalJSON() ([]byte, error) {
	type alias Article
	out := alias(a)
	if out.Authors == nil {
		out.Authors = []string{}
	}
	if out.Keywords == nil {
		out.Keywords = []string{}
	}
	if out.KeyPoints == nil {
		out.KeyPoints = []string{}
	}
	if out.AuthorAffiliations == nil {
		out.AuthorAffiliations = []string{}
	}
	return json.Marshal(out)
}

// -----------------------------------------------------------------------------
// CrawlResult - 1誌分のクロール結果
// -----------------------------------------------------------------------------
//
// 失敗してもパニックやエラー返却はせず、Success=false と ErrorMessage で
// 結果を表現する（呼び出し側はログを出して次の雑誌へ進む）。
//
type CrawlResult struct {
	Journal      string    `json:"journal"`
	Articles     []Article `json:"articles"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CrawlTime    time.Time `json:"crawl_time"`
}

// -----------------------------------------------------------------------------
// DailyReport - 日報
// -----------------------------------------------------------------------------

// DailyReport は1日分の日報
//
// JournalsCovered は記事が追加された順（初出順）で雑誌名を保持する。
type DailyReport struct {
	RunID           string    `json:"run_id"`
	Date            time.Time `json:"date"`
	Title           string    `json:"title"`
	Articles        []Article `json:"articles"`
	TotalArticles   int       `json:"total_articles"`
	JournalsCovered []string  `json:"journals_covered"`

	// FieldSummaries は分野ごとの動向まとめ（生成した分野のみ）
	FieldSummaries map[ResearchField]string `json:"field_summaries,omitempty"`
}

// NewDailyReport は空の日報を作成する
func NewDailyReport(title string, date time.Time) *DailyReport {
	return &DailyReport{
		RunID:           uuid.NewString(),
		Date:            date,
		Title:           title,
		Articles:        []Article{},
		JournalsCovered: []string{},
	}
}

// AddArticle は記事を追加し、件数と雑誌一覧を更新する
func (r *DailyReport) AddArticle(a Article) {
	r.Articles = append(r.Articles, a)
	r.TotalArticles++
	for _, j := range r.JournalsCovered {
		if j == a.Journal {
			return
		}
	}
	r.JournalsCovered = append(r.JournalsCovered, a.Journal)
}

// ArticlesByJournal は指定雑誌の記事を返す
func (r *DailyReport) ArticlesByJournal(journal string) []Article {
	var out []Article
	for _, a := range r.Articles {
		if a.Journal == journal {
			out = append(out, a)
		}
	}
	return out
}

// ArticlesByField は指定分野の記事を返す
func (r *DailyReport) ArticlesByField(field ResearchField) []Article {
	var out []Article
	for _, a := range r.Articles {
		if a.ResearchField == field {
			out = append(out, a)
		}
	}
	return out
}

// FieldStat は分野ごとの記事数
type FieldStat struct {
	Field ResearchField
	Count int
}

// FieldStats は分野ごとの記事数を宣言順で返す（0件の分野は含まない）
func (r *DailyReport) FieldStats() []FieldStat {
	counts := map[ResearchField]int{}
	for _, a := range r.Articles {
		if a.ResearchField != "" {
			counts[a.ResearchField]++
		}
	}
	var out []FieldStat
	for _, f := range ResearchFields() {
		if n := counts[f]; n > 0 {
			out = append(out, FieldStat{Field: f, Count: n})
		}
	}
	return out
}

// SetFieldSummary は分野の動向まとめを設定する
func (r *DailyReport) SetFieldSummary(field ResearchField, summary string) {
	if r.FieldSummaries == nil {
		r.FieldSummaries = map[ResearchField]string{}
	}
	r.FieldSummaries[field] = summary
}

// DateLabel は "2006/01/02" 形式の日付（見出し用）
func (r *DailyReport) DateLabel() string {
	return r.Date.Format("2006/01/02")
}

// String はログ用の短い表現
func (r *DailyReport) String() string {
	return fmt.Sprintf("%s (%s, %d articles)", r.Title, r.Date.Format("2006-01-02"), r.TotalArticles)
}
