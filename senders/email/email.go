package email

import (
	_ "embed"
	"fmt"
	"html/template"
	"strings"
)

var (
	//go:embed tweet.html
	tweetHTML     string
	tweetTemplate = template.Must(template.New("tweet.html").Parse(tweetHTML))
)

func mustFillTemplate(tmpl *template.Template, values any) string {
	buf := new(strings.Builder)
	err := tmpl.Execute(buf, values)
	if err != nil {
		return ""
	}
	return buf.String()
}

type TweetEmailFormat struct {
	Account    string
	Author     string
	AuthorName string
	Text       string
	URL        string
	CreatedAt  string
	Prompt     string
}

func (ef *TweetEmailFormat) Subject() string {
	return fmt.Sprintf("Postwatch: new post from @%s", ef.Author)
}

func (ef *TweetEmailFormat) Body() string {
	return mustFillTemplate(tweetTemplate, ef)
}
