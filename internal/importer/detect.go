package importer

import (
	"bytes"
	"mime"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// FeedKind はフィードの形式。
type FeedKind string

const (
	FeedKindRSS  FeedKind = "rss"
	FeedKindAtom FeedKind = "atom"
)

// FeedLink はHTMLの <link rel="alternate"> から見つかったフィードへのリンク。
type FeedLink struct {
	URL   string
	Kind  FeedKind
	Title string
}

// sniffSize はXMLのルート要素を探すために読む先頭バイト数。
const sniffSize = 4096

func mediaTypeOf(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// IsFeedResponse はレスポンスがRSS/Atomフィードそのものかを判定する。
// application/rss+xml と application/atom+xml はそのまま受け入れ、
// 汎用のXML形式は本文先頭のルート要素を見て判定する。
func IsFeedResponse(contentType string, body []byte) bool {
	switch mediaTypeOf(contentType) {
	case "application/rss+xml", "application/atom+xml":
		return true
	case "application/xml", "text/xml":
		return looksLikeFeed(body)
	default:
		return false
	}
}

// IsHTMLResponse はレスポンスがHTMLかを判定する。
func IsHTMLResponse(contentType string) bool {
	mt := mediaTypeOf(contentType)
	return mt == "text/html" || mt == "application/xhtml+xml"
}

func looksLikeFeed(body []byte) bool {
	head := body
	if len(head) > sniffSize {
		head = head[:sniffSize]
	}
	s := strings.ToLower(string(head))
	switch {
	case strings.Contains(s, "<rss"), strings.Contains(s, "<rdf:rdf"):
		return true
	case strings.Contains(s, "<feed") && strings.Contains(s, "http://www.w3.org/2005/atom"):
		return true
	default:
		return false
	}
}

// FindFeedLinks はHTMLの head 要素内からフィードへのリンクを抽出する。
// 相対URLは pageURL を基準に絶対URLへ解決する。
func FindFeedLinks(htmlBody []byte, pageURL string) []FeedLink {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	var links []FeedLink
	z := html.NewTokenizer(bytes.NewReader(htmlBody))
	inHead := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			return links

		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "head" {
				return links
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch string(name) {
			case "head":
				inHead = true
				continue
			case "body":
				return links
			case "link":
			default:
				continue
			}
			if !inHead || !hasAttr {
				continue
			}
			if link, ok := readFeedLink(z, base); ok {
				links = append(links, link)
			}
		}
	}
}

func readFeedLink(z *html.Tokenizer, base *url.URL) (FeedLink, bool) {
	attrs := map[string]string{}
	for {
		key, val, more := z.TagAttr()
		attrs[strings.ToLower(string(key))] = string(val)
		if !more {
			break
		}
	}

	if !strings.EqualFold(attrs["rel"], "alternate") || attrs["href"] == "" {
		return FeedLink{}, false
	}

	var kind FeedKind
	switch strings.ToLower(attrs["type"]) {
	case "application/rss+xml":
		kind = FeedKindRSS
	case "application/atom+xml":
		kind = FeedKindAtom
	default:
		return FeedLink{}, false
	}

	ref, err := url.Parse(attrs["href"])
	if err != nil {
		return FeedLink{}, false
	}
	return FeedLink{
		URL:   base.ResolveReference(ref).String(),
		Kind:  kind,
		Title: attrs["title"],
	}, true
}

// PickFeedLink は候補から取り込み対象を1つ選ぶ。
// ページと同じホストのリンクを優先し、次にAtomを優先する。同点の場合は先に現れたものを選ぶ。
func PickFeedLink(links []FeedLink, pageURL string) (FeedLink, bool) {
	if len(links) == 0 {
		return FeedLink{}, false
	}
	pageHost := hostOf(pageURL)

	best, bestScore := 0, -1
	for i, l := range links {
		score := 0
		if hostOf(l.URL) == pageHost {
			score += 2
		}
		if l.Kind == FeedKindAtom {
			score++
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return links[best], true
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
