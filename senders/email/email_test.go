package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTweetEmailFormat(t *testing.T) {
	ef := &TweetEmailFormat{
		Account:    "alice",
		Author:     "Alice",
		AuthorName: "Alice A",
		Text:       "<b>hi</b>",
		URL:        "https://x.com/Alice/status/1",
		CreatedAt:  "2024-03-01T10:00:00.000Z",
		Prompt:     "summarize",
	}

	assert.Equal(t, "Postwatch: new post from @Alice", ef.Subject())

	body := ef.Body()
	assert.Contains(t, body, "Alice A")
	assert.Contains(t, body, "&lt;b&gt;hi&lt;/b&gt;")
	assert.Contains(t, body, `href="https://x.com/Alice/status/1"`)
	assert.Contains(t, body, "summarize")
}

func TestTweetEmailFormatWithoutPrompt(t *testing.T) {
	ef := &TweetEmailFormat{Author: "bob", Text: "plain"}
	assert.NotContains(t, ef.Body(), "Instructions")
}
