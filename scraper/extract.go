package scraper

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/hnpulse/models"
)

// HN front-page DOM structure:
//
//	tr.athing#<hn_id>            story row
//	  span.rank                  "1."
//	  .titleline > a             title + href
//	tr (next sibling)
//	  td.subtext
//	    span.score               "123 points"
//	    a.hnuser                 author
//	    a (last)                 "45 comments"
//	a.morelink                   present on every page that has a successor
const (
	storyRowSelector  = "tr.athing"
	moreLinkSelector  = "a.morelink"
	commentTree       = ".comment-tree"
	commentRow        = ".comment-tree .athing.comtr"
	commentText       = ".commtext"
	selfPostURLPrefix = "item?id="
)

// skippedRow records a story row that could not be parsed, for logging.
type skippedRow struct {
	Rank   int
	Reason string
}

// parseStories parses up to limit story rows from front-page HTML, in
// document order. Rows missing their id or title are skipped, not fatal;
// missing subtext fields default to zero values (normal for job posts). A
// page whose every row fails to parse yields zero stories and a nil error —
// the caller decides whether that is fatal.
func parseStories(html string, limit int) ([]models.Story, []skippedRow, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil, fmt.Errorf("parse page HTML: %w", err)
	}

	var (
		stories []models.Story
		skipped []skippedRow
	)

	doc.Find(storyRowSelector).EachWithBreak(func(i int, row *goquery.Selection) bool {
		if i >= limit {
			return false
		}
		fallbackRank := i + 1

		story, reason := parseStoryRow(row, fallbackRank)
		if reason != "" {
			skipped = append(skipped, skippedRow{Rank: fallbackRank, Reason: reason})
			return true
		}
		stories = append(stories, story)
		return true
	})

	return stories, skipped, nil
}

// parseStoryRow parses one tr.athing row. A non-empty reason means the row
// must be skipped.
func parseStoryRow(row *goquery.Selection, fallbackRank int) (models.Story, string) {
	hnID := strings.TrimSpace(row.AttrOr("id", ""))
	if hnID == "" {
		return models.Story{}, "missing id attribute"
	}

	rank := fallbackRank
	rankText := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(row.Find("span.rank").Text()), "."))
	if n, ok := parseDigits(rankText); ok {
		rank = n
	}

	titleLink := row.Find(".titleline > a").First()
	if titleLink.Length() == 0 {
		return models.Story{}, "missing title element"
	}
	title := strings.TrimSpace(titleLink.Text())
	if title == "" {
		return models.Story{}, "empty title"
	}

	href := titleLink.AttrOr("href", "")
	url := href
	if strings.HasPrefix(href, selfPostURLPrefix) {
		// Ask HN / Show HN: the title links back to the item page itself.
		url = ""
	}

	points, author, commentsCount := parseSubtext(row)

	return models.NewStory(hnID, title, url, rank, points, author, commentsCount), ""
}

// parseSubtext extracts points, author, and comment count from the subtext
// row immediately following the story row. Every field defaults when absent —
// job posts carry no subtext at all.
func parseSubtext(row *goquery.Selection) (points int, author string, commentsCount int) {
	subtext := row.Next().Find("td.subtext")
	if subtext.Length() == 0 {
		return 0, "", 0
	}

	scoreText := strings.TrimSpace(subtext.Find("span.score").Text())
	if n, ok := parseDigits(firstToken(scoreText)); ok {
		points = n
	}

	author = strings.TrimSpace(subtext.Find("a.hnuser").First().Text())

	lastLink := subtext.Find("a").Last()
	raw := strings.TrimSpace(strings.ReplaceAll(lastLink.Text(), " ", " "))
	if n, ok := parseDigits(firstToken(raw)); ok {
		commentsCount = n
	}

	return points, author, commentsCount
}

// parseTopComment extracts the first displayed comment from item-page HTML.
// Returns ok=false when the story simply has no comments. A comment tree
// whose first entry lacks its text node is a structural break and errors.
func parseTopComment(html string) (string, bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", false, fmt.Errorf("parse item page HTML: %w", err)
	}

	if doc.Find(commentTree).Length() == 0 {
		return "", false, nil
	}

	first := doc.Find(commentRow).First()
	if first.Length() == 0 {
		// Tree rendered but holds no comments.
		return "", false, nil
	}

	text := first.Find(commentText).First()
	if text.Length() == 0 {
		return "", false, fmt.Errorf("first comment is missing its %s node — the page structure may have changed", commentText)
	}

	trimmed := strings.TrimSpace(text.Text())
	if trimmed == "" {
		return "", false, nil
	}
	return trimmed, true, nil
}

// truncateChars caps s at max characters. The cap counts runes, not bytes,
// so multibyte text keeps its full allowance and the cut never splits a rune
// into invalid UTF-8.
func truncateChars(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// firstToken returns the first whitespace-separated token of s.
func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// parseDigits converts s to an int when it is entirely ASCII digits.
func parseDigits(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}
