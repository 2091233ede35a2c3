package models

import (
	"strings"
	"time"
)

// Item is a post fetched from the content source. Items are immutable once
// fetched; only their delivery outcome is tracked, in DeliveryRecord.
type Item struct {
	ID             string
	Account        string
	Author         string
	AuthorName     string
	Text           string
	URL            string
	CreatedAt      time.Time
	ReplyCount     int
	RetweetCount   int
	LikeCount      int
	QuoteCount     int
	IsReply        bool
	IsQuote        bool
	IsRetweet      bool
	InReplyToID    string
	InReplyToUser  string
	ConversationID string
	Quoted         *QuotedItem
}

// QuotedItem is the one level of quoted post carried along with an Item.
type QuotedItem struct {
	ID     string
	URL    string
	Text   string
	Author string
}

type Items []Item

// CompareIDs orders item ids by recency. Ids are snowflake-like values that
// grow monotonically, so decimal ids compare as numbers. Any other id sorts
// after every decimal id and lexically among its own kind. Splitting the two
// shapes keeps the order transitive on a mixed batch.
func CompareIDs(a, b string) int {
	da, db := isDigits(a), isDigits(b)
	switch {
	case da && db:
		a, b = strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
		if len(a) != len(b) {
			if len(a) < len(b) {
				return -1
			}
			return 1
		}
	case da:
		return -1
	case db:
		return 1
	}
	return strings.Compare(a, b)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
