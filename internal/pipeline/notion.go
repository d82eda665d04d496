// =============================================================================
// notion.go - Notionへの記事アーカイブ
// =============================================================================
//
// 分析済みの記事をNotionデータベースに1記事1ページとして保存します。
// NOTION_TOKEN と NOTION_DATABASE_ID（または NOTION_PAGE_ID）が設定され、
// -notionClip が指定された場合のみ動作します。
//
// 【データベースのプロパティ】
//
//	Title     (title)      記事タイトル
//	URL       (url)        記事URL
//	Journal   (select)     雑誌名
//	Field     (select)     研究分野
//	Type      (select)     記事種別
//	Authors   (rich_text)  著者
//	Summary   (rich_text)  AI要約（2000文字まで）
//	DOI       (rich_text)  DOI
//	Published (date)       公開日
//
// 1記事の保存に失敗してもログを出して次の記事へ進む。
//
// =============================================================================
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/jomei/notionapi"
)

// notionTextLimit はNotionのrich_text 1要素あたりの上限文字数
const notionTextLimit = 2000

var (
	ErrNotionTokenRequired = errors.New("NOTION_TOKEN is required")
	ErrNotionDatabaseUnset = errors.New("notion database ID not set")
)

// NotionClipper は記事をNotionに保存する
type NotionClipper struct {
	client *notionapi.Client
	dbID   notionapi.DatabaseID
}

// NewNotionClipper は新しいクリッパーを作成する
//
// opts はそのまま notionapi.NewClient に渡す（例: notionapi.WithHTTPClient）。
func NewNotionClipper(cfg NotionConfig, opts ...notionapi.ClientOption) (*NotionClipper, error) {
	if cfg.Token == "" {
		return nil, ErrNotionTokenRequired
	}
	nc := &NotionClipper{client: notionapi.NewClient(notionapi.Token(cfg.Token), opts...)}
	if cfg.DatabaseID != "" {
		nc.dbID = notionapi.DatabaseID(cfg.DatabaseID)
	}
	return nc, nil
}

// DatabaseID は保存先のデータベースID
func (nc *NotionClipper) DatabaseID() string {
	return string(nc.dbID)
}

// EnsureDatabase はデータベースIDが無ければ pageID の下に作成する
//
// select プロパティの選択肢は作成時に登録する（Journal は journals から）。
func (nc *NotionClipper) EnsureDatabase(ctx context.Context, pageID string, journals []string) error {
	if nc.dbID != "" {
		return nil
	}
	if pageID == "" {
		return fmt.Errorf("%w: set NOTION_DATABASE_ID or NOTION_PAGE_ID", ErrNotionDatabaseUnset)
	}

	fieldOptions := make([]notionapi.Option, 0, len(ResearchFields()))
	for _, f := range ResearchFields() {
		fieldOptions = append(fieldOptions, notionapi.Option{Name: string(f)})
	}
	typeOptions := make([]notionapi.Option, 0, len(articleTypes))
	for _, t := range articleTypes {
		typeOptions = append(typeOptions, notionapi.Option{Name: string(t)})
	}
	journalOptions := make([]notionapi.Option, 0, len(journals))
	for _, name := range uniqStrings(journals) {
		journalOptions = append(journalOptions, notionapi.Option{Name: name})
	}

	req := &notionapi.DatabaseCreateRequest{
		Parent: notionapi.Parent{
			Type:   notionapi.ParentTypePageID,
			PageID: notionapi.PageID(pageID),
		},
		Title: []notionapi.RichText{
			{Text: &notionapi.Text{Content: "Nature Journal Articles"}},
		},
		Properties: notionapi.PropertyConfigs{
			"Title":     notionapi.TitlePropertyConfig{Type: notionapi.PropertyConfigTypeTitle},
			"URL":       notionapi.URLPropertyConfig{Type: notionapi.PropertyConfigTypeURL},
			"Journal":   notionapi.SelectPropertyConfig{Type: notionapi.PropertyConfigTypeSelect, Select: notionapi.Select{Options: journalOptions}},
			"Field":     notionapi.SelectPropertyConfig{Type: notionapi.PropertyConfigTypeSelect, Select: notionapi.Select{Options: fieldOptions}},
			"Type":      notionapi.SelectPropertyConfig{Type: notionapi.PropertyConfigTypeSelect, Select: notionapi.Select{Options: typeOptions}},
			"Authors":   notionapi.RichTextPropertyConfig{Type: notionapi.PropertyConfigTypeRichText},
			"Summary":   notionapi.RichTextPropertyConfig{Type: notionapi.PropertyConfigTypeRichText},
			"DOI":       notionapi.RichTextPropertyConfig{Type: notionapi.PropertyConfigTypeRichText},
			"Published": notionapi.DatePropertyConfig{Type: notionapi.PropertyConfigTypeDate},
		},
	}

	db, err := nc.client.Database.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to create Notion database: %w", err)
	}
	nc.dbID = notionapi.DatabaseID(db.ID)
	infof("Notion database created: %s (set NOTION_DATABASE_ID to reuse it)", db.ID)
	return nil
}

// ClipArticle は1記事をページとして保存する
func (nc *NotionClipper) ClipArticle(ctx context.Context, a Article) error {
	if nc.dbID == "" {
		return ErrNotionDatabaseUnset
	}

	published := notionapi.Date(a.PublishDate)
	properties := notionapi.Properties{
		"Title": notionapi.TitleProperty{
			Type:  notionapi.PropertyTypeTitle,
			Title: richText(a.Title),
		},
		"URL": notionapi.URLProperty{
			Type: notionapi.PropertyTypeURL,
			URL:  a.URL,
		},
		"Journal": notionapi.SelectProperty{
			Type:   notionapi.PropertyTypeSelect,
			Select: notionapi.Option{Name: a.Journal},
		},
		"Type": notionapi.SelectProperty{
			Type:   notionapi.PropertyTypeSelect,
			Select: notionapi.Option{Name: string(a.ArticleType)},
		},
		"Published": notionapi.DateProperty{
			Type: notionapi.PropertyTypeDate,
			Date: &notionapi.DateObject{Start: &published},
		},
	}
	if a.ResearchField != "" {
		properties["Field"] = notionapi.SelectProperty{
			Type:   notionapi.PropertyTypeSelect,
			Select: notionapi.Option{Name: string(a.ResearchField)},
		}
	}
	if len(a.Authors) > 0 {
		properties["Authors"] = notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(a.AuthorsLine()),
		}
	}
	if a.Summary != "" {
		properties["Summary"] = notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(a.Summary),
		}
	}
	if a.DOI != "" {
		properties["DOI"] = notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(a.DOI),
		}
	}

	_, err := nc.client.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: nc.dbID,
		},
		Properties: properties,
	})
	if err != nil {
		return fmt.Errorf("failed to clip article: %w", err)
	}
	return nil
}

// ClipArticles は記事を順番に保存し、成功件数を返す
func (nc *NotionClipper) ClipArticles(ctx context.Context, articles []Article) int {
	clipped := 0
	for _, a := range articles {
		if err := nc.ClipArticle(ctx, a); err != nil {
			warnf("Notion clip failed for %s: %v", a.URL, err)
			continue
		}
		clipped++
	}
	infof("clipped %d/%d articles to Notion", clipped, len(articles))
	return clipped
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{{Text: &notionapi.Text{Content: truncateString(s, notionTextLimit)}}}
}
