// Package importer は外部のRSS/Atomフィードからユーザーの投稿を取り込む。
package importer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/memberhub/internal/metrics"
	"github.com/hitoshi/memberhub/internal/model"
	"github.com/hitoshi/memberhub/internal/post"
	"github.com/hitoshi/memberhub/internal/security"
)

const (
	userAgent    = "memberhub-importer/1.0"
	acceptHeader = "application/rss+xml, application/atom+xml, application/xml, text/xml, text/html;q=0.8, */*;q=0.5"
)

// UserGetter は取り込み先ユーザーの存在を確認する。user.Service が実装する。
type UserGetter interface {
	Get(ctx context.Context, id string) (*model.User, error)
}

// PostCreator は取り込んだ内容から投稿を作成する。post.Service が実装する。
type PostCreator interface {
	CreateBatch(ctx context.Context, userID string, drafts []post.Draft) ([]*model.Post, error)
}

// Config は取り込みの制限値。
type Config struct {
	Timeout  time.Duration
	MaxBytes int64
	MaxItems int
}

// Importer はフィードを取得して投稿として保存する。
type Importer struct {
	users   UserGetter
	posts   PostCreator
	guard   security.URLGuard
	metrics metrics.MetricsCollector
	cfg     Config
}

// New はImporterを生成する。collector は nil を許容する。
func New(users UserGetter, posts PostCreator, guard security.URLGuard, collector metrics.MetricsCollector, cfg Config) *Importer {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Importer{
		users:   users,
		posts:   posts,
		guard:   guard,
		metrics: collector,
		cfg:     cfg,
	}
}

// Import は rawURL のフィード（またはフィードへのリンクを持つHTMLページ）を取得し、
// 先頭から最大 MaxItems 件をユーザーの投稿として作成する。
// フロー: ユーザー確認 → URL検証 → 取得 → (HTMLならフィードリンクを辿る) → パース → 投稿作成
// 投稿作成が途中で失敗した場合は、作成済みの投稿と IMPORT_INCOMPLETE を返す。
func (im *Importer) Import(ctx context.Context, userID, rawURL string) ([]*model.Post, error) {
	if _, err := im.users.Get(ctx, userID); err != nil {
		return nil, err
	}
	if err := im.guard.Check(rawURL); err != nil {
		return nil, err
	}

	client := im.guard.Client(im.cfg.Timeout)

	res, err := im.fetch(ctx, client, rawURL)
	if err != nil {
		return nil, err
	}

	feedURL := rawURL
	if !IsFeedResponse(res.contentType, res.body) {
		if !IsHTMLResponse(res.contentType) {
			return nil, model.NewFeedNotDetectedError(rawURL)
		}
		link, ok := PickFeedLink(FindFeedLinks(res.body, rawURL), rawURL)
		if !ok {
			return nil, model.NewFeedNotDetectedError(rawURL)
		}
		if err := im.guard.Check(link.URL); err != nil {
			return nil, err
		}
		feedURL = link.URL
		if res, err = im.fetch(ctx, client, feedURL); err != nil {
			return nil, err
		}
	}

	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(res.body))
	if err != nil {
		slog.Warn("feed parse failed",
			slog.String("user_id", userID),
			slog.String("feed_url", feedURL),
			slog.String("error", err.Error()),
		)
		return nil, model.NewParseFailedError()
	}

	drafts := toDrafts(parsed.Items, im.cfg.MaxItems)
	created, err := im.posts.CreateBatch(ctx, userID, drafts)
	if len(created) > 0 {
		im.metrics.RecordPostsImported(len(created))
	}
	if err != nil {
		if len(created) == 0 {
			return nil, err
		}
		ids := make([]string, len(created))
		for i, p := range created {
			ids[i] = p.ID
		}
		slog.Error("フィードからの投稿作成が途中で失敗しました",
			slog.String("user_id", userID),
			slog.String("feed_url", feedURL),
			slog.Int("posts_created", len(created)),
			slog.Int("posts_requested", len(drafts)),
			slog.String("error", err.Error()),
		)
		return created, model.NewImportIncompleteError(ids)
	}

	slog.Info("フィードから投稿を取り込みました",
		slog.String("user_id", userID),
		slog.String("feed_url", feedURL),
		slog.Int("items_total", len(parsed.Items)),
		slog.Int("posts_created", len(created)),
	)
	return created, nil
}

type fetchResult struct {
	contentType string
	body        []byte
}

func (im *Importer) fetch(ctx context.Context, client *http.Client, target string) (*fetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, model.NewInvalidURLError(err.Error())
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)

	resp, err := client.Do(req)
	if err != nil {
		return nil, model.NewFetchFailedError(err.Error())
	}
	defer resp.Body.Close()

	if status := ClassifyStatus(resp.StatusCode); status != StatusOK {
		return nil, model.NewFetchFailedError(status.Describe(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, im.cfg.MaxBytes+1))
	if err != nil {
		return nil, model.NewFetchFailedError(fmt.Sprintf("レスポンスの読み取りに失敗: %v", err))
	}
	if int64(len(body)) > im.cfg.MaxBytes {
		return nil, model.NewFetchFailedError(fmt.Sprintf("レスポンスが上限 %d バイトを超えています", im.cfg.MaxBytes))
	}
	return &fetchResult{contentType: resp.Header.Get("Content-Type"), body: body}, nil
}

// toDrafts はフィードの記事を投稿の下書きに変換する。
// タイトルが無い記事はリンクをタイトルにし、本文は Content → Description → リンクの順で採用する。
func toDrafts(items []*gofeed.Item, limit int) []post.Draft {
	drafts := make([]post.Draft, 0, min(len(items), max(limit, 0)))
	for _, item := range items {
		if len(drafts) >= limit {
			break
		}
		if item == nil {
			continue
		}

		link := item.Link
		if link == "" && (strings.HasPrefix(item.GUID, "http://") || strings.HasPrefix(item.GUID, "https://")) {
			link = item.GUID
		}

		title := strings.TrimSpace(item.Title)
		if title == "" {
			title = link
		}
		if title == "" {
			continue
		}

		content := item.Content
		if content == "" {
			content = item.Description
		}
		if content == "" && link != "" {
			content = fmt.Sprintf(`<p><a href="%s">%s</a></p>`, link, link)
		}

		drafts = append(drafts, post.Draft{Title: title, Content: content})
	}
	return drafts
}
