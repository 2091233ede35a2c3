package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/carlmjohnson/requests"
	"github.com/fiffu/postwatch/lib/models"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

const timelineDateLayout = "Jan 2, 2006 · 3:04 PM MST"

// TimelineFetcher scrapes the public HTML timeline of a Nitter-compatible
// frontend, one request per account.
type TimelineFetcher struct {
	baseURL   string
	transport http.RoundTripper
	log       *zap.Logger
}

func NewTimelineFetcher(baseURL string, transport http.RoundTripper, log *zap.Logger) *TimelineFetcher {
	return &TimelineFetcher{baseURL, transport, log}
}

// FetchLatest skips accounts whose page could not be read, since their
// absence from the batch leaves their watermark alone. Only when every
// account fails is the whole fetch reported as failed.
func (f *TimelineFetcher) FetchLatest(ctx context.Context, accounts []string, perAccountLimit int) (models.Items, error) {
	var items models.Items
	var errs []error
	for _, account := range accounts {
		got, err := f.fetchAccount(ctx, account, perAccountLimit)
		if err != nil {
			f.log.Sugar().Warnw("Failed to fetch timeline", "account", account, "err", err)
			errs = append(errs, err)
			continue
		}
		items = append(items, got...)
	}

	if len(accounts) > 0 && len(errs) == len(accounts) {
		return nil, fmt.Errorf("%w: %v", ErrFetch, errors.Join(errs...))
	}
	return items, nil
}

func (f *TimelineFetcher) fetchAccount(ctx context.Context, account string, limit int) (models.Items, error) {
	var page string
	err := requests.URL(f.baseURL + "/" + account).
		Transport(f.transport).
		ToString(&page).
		Fetch(ctx)
	if err != nil {
		return nil, err
	}

	doc, err := htmlquery.Parse(strings.NewReader(page))
	if err != nil {
		return nil, err
	}
	return ParseTimeline(doc, account, limit), nil
}

// ParseTimeline extracts up to limit items from a timeline page. Entries
// without a status link (cursors, "show more" rows) are skipped.
func ParseTimeline(doc *html.Node, account string, limit int) models.Items {
	items := models.Items{}
	for _, n := range htmlquery.Find(doc, "//div["+hasClass("timeline-item")+"]") {
		if limit > 0 && len(items) >= limit {
			break
		}
		if item, ok := parseTimelineItem(n, account); ok {
			items = append(items, item)
		}
	}
	return items
}

func parseTimelineItem(n *html.Node, account string) (models.Item, bool) {
	link := htmlquery.FindOne(n, ".//a["+hasClass("tweet-link")+"]")
	if link == nil {
		return models.Item{}, false
	}
	author, id := parseStatusPath(htmlquery.SelectAttr(link, "href"))
	if id == "" {
		return models.Item{}, false
	}

	item := models.Item{
		ID:        id,
		Account:   models.NormalizeAccount(account),
		Author:    author,
		Text:      SelectText(n, ".//div["+hasClass("tweet-content")+"]"),
		IsRetweet: htmlquery.FindOne(n, ".//div["+hasClass("retweet-header")+"]") != nil,
	}
	if name := htmlquery.FindOne(n, ".//a["+hasClass("fullname")+"]"); name != nil {
		item.AuthorName = digForText(name)
	}
	if user := htmlquery.FindOne(n, ".//a["+hasClass("username")+"]"); user != nil {
		item.Author = strings.TrimPrefix(digForText(user), "@")
	}
	item.URL = statusURL(item.Author, item.ID)

	if date := htmlquery.FindOne(n, ".//span["+hasClass("tweet-date")+"]/a"); date != nil {
		if ts, err := time.Parse(timelineDateLayout, htmlquery.SelectAttr(date, "title")); err == nil {
			item.CreatedAt = ts.UTC()
		}
	}

	if reply := htmlquery.FindOne(n, ".//div["+hasClass("replying-to")+"]/a"); reply != nil {
		item.IsReply = true
		item.InReplyToUser = strings.TrimPrefix(digForText(reply), "@")
	}

	if quote := htmlquery.FindOne(n, ".//div["+hasClass("quote")+"]"); quote != nil {
		item.IsQuote = true
		item.Quoted = parseQuote(quote)
	}

	for _, stat := range htmlquery.Find(n, ".//span["+hasClass("tweet-stat")+"]") {
		count := parseCount(digForText(stat))
		switch {
		case htmlquery.FindOne(stat, ".//span["+hasClass("icon-comment")+"]") != nil:
			item.ReplyCount = count
		case htmlquery.FindOne(stat, ".//span["+hasClass("icon-retweet")+"]") != nil:
			item.RetweetCount = count
		case htmlquery.FindOne(stat, ".//span["+hasClass("icon-quote")+"]") != nil:
			item.QuoteCount = count
		case htmlquery.FindOne(stat, ".//span["+hasClass("icon-heart")+"]") != nil:
			item.LikeCount = count
		}
	}
	return item, true
}

func parseQuote(n *html.Node) *models.QuotedItem {
	q := &models.QuotedItem{
		Text: SelectText(n, ".//div["+hasClass("quote-text")+"]"),
	}
	if link := htmlquery.FindOne(n, ".//a["+hasClass("quote-link")+"]"); link != nil {
		q.Author, q.ID = parseStatusPath(htmlquery.SelectAttr(link, "href"))
	}
	if user := htmlquery.FindOne(n, ".//a["+hasClass("username")+"]"); user != nil {
		q.Author = strings.TrimPrefix(digForText(user), "@")
	}
	q.URL = statusURL(q.Author, q.ID)
	return q
}

// parseStatusPath splits "/user/status/123#m" into its author and id.
func parseStatusPath(href string) (author, id string) {
	href, _, _ = strings.Cut(href, "#")
	parts := strings.Split(strings.Trim(href, "/"), "/")
	if len(parts) < 3 || parts[1] != "status" {
		return "", ""
	}
	return parts[0], parts[2]
}

func statusURL(author, id string) string {
	if id == "" {
		return ""
	}
	return fmt.Sprintf("https://x.com/%s/status/%s", author, id)
}

func hasClass(name string) string {
	return fmt.Sprintf("contains(concat(' ', normalize-space(@class), ' '), ' %s ')", name)
}
