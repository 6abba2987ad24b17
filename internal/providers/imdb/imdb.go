// Package imdb scrapes IMDb title pages. Title metadata comes from the
// JSON-LD block every title page embeds; search goes through the suggestion
// API first and falls back to scraping the /find page.
package imdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rabbitwit/PT-Gen-Refactor/internal/domain"
	"github.com/rabbitwit/PT-Gen-Refactor/internal/format"
	"github.com/rabbitwit/PT-Gen-Refactor/internal/providers/fetch"
)

const (
	defaultBaseURL        = "https://www.imdb.com"
	defaultSuggestBaseURL = "https://v2.sg.media-imdb.com"
	maxSearchHits         = 10
)

var (
	idPattern       = regexp.MustCompile(`tt\d+`)
	durationPattern = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?`)
	findYearPattern = regexp.MustCompile(`\((\d{4})\)`)
)

type Provider struct {
	fetcher        *fetch.Client
	baseURL        string
	suggestBaseURL string
}

type Config struct {
	Fetcher        *fetch.Client
	BaseURL        string
	SuggestBaseURL string
}

func New(cfg Config) *Provider {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	suggestBaseURL := strings.TrimSpace(cfg.SuggestBaseURL)
	if suggestBaseURL == "" {
		suggestBaseURL = defaultSuggestBaseURL
	}
	return &Provider{
		fetcher:        cfg.Fetcher,
		baseURL:        strings.TrimRight(baseURL, "/"),
		suggestBaseURL: strings.TrimRight(suggestBaseURL, "/"),
	}
}

func (p *Provider) Name() string { return "imdb" }

func (p *Provider) MatchesDomain(rawURL string) bool {
	return strings.Contains(rawURL, "imdb.com")
}

func (p *Provider) ExtractID(rawURL string) (string, bool) {
	id := idPattern.FindString(rawURL)
	return id, id != ""
}

// jsonLD mirrors the schema.org Movie/TVSeries block on a title page. Fields
// that may be a single object or a list are handled by nameList.
type jsonLD struct {
	Type          string   `json:"@type"`
	Name          string   `json:"name"`
	AlternateName string   `json:"alternateName"`
	URL           string   `json:"url"`
	Image         string   `json:"image"`
	Description   string   `json:"description"`
	DatePublished string   `json:"datePublished"`
	Duration      string   `json:"duration"`
	Genre         nameList `json:"genre"`
	Actor         nameList `json:"actor"`
	Director      nameList `json:"director"`
	Creator       nameList `json:"creator"`

	AggregateRating struct {
		RatingValue float64 `json:"ratingValue"`
		RatingCount int     `json:"ratingCount"`
	} `json:"aggregateRating"`
}

// nameList absorbs JSON-LD values that arrive as a string, an object with a
// "name" key, or a list of either.
type nameList []string

func (n *nameList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*n = nameList{single}
		return nil
	}
	var object struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &object); err == nil {
		if object.Name != "" {
			*n = nameList{object.Name}
		}
		return nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	out := make(nameList, 0, len(raws))
	for _, raw := range raws {
		var item nameList
		if err := item.UnmarshalJSON(raw); err != nil {
			return err
		}
		out = append(out, item...)
	}
	*n = out
	return nil
}

func (p *Provider) Generate(ctx context.Context, id string) (domain.MediaRecord, error) {
	id = strings.TrimSpace(id)
	if !idPattern.MatchString(id) {
		return domain.MediaRecord{}, fmt.Errorf("invalid imdb identifier %q", id)
	}

	pageURL := fmt.Sprintf("%s/title/%s/", p.baseURL, id)
	body, err := p.fetcher.Get(ctx, pageURL)
	if err != nil {
		return domain.MediaRecord{}, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return domain.MediaRecord{}, fmt.Errorf("parse title page: %w", err)
	}

	raw := doc.Find(`script[type="application/ld+json"]`).First().Text()
	if strings.TrimSpace(raw) == "" {
		return domain.MediaRecord{}, fmt.Errorf("no structured data on title page for %s", id)
	}
	var ld jsonLD
	if err := json.Unmarshal([]byte(raw), &ld); err != nil {
		return domain.MediaRecord{}, fmt.Errorf("decode structured data: %w", err)
	}

	record := domain.MediaRecord{
		Success:       true,
		Link:          pageURL,
		Title:         ld.Name,
		OriginalTitle: ld.AlternateName,
		Poster:        ld.Image,
		Description:   ld.Description,
		Genres:        ld.Genre,
		Cast:          ld.Actor,
		Director:      ld.Director,
		Writer:        ld.Creator,
		IMDbID:        id,
		IMDbLink:      pageURL,
		IMDbRating:    ld.AggregateRating.RatingValue,
		IMDbVotes:     ld.AggregateRating.RatingCount,
	}
	switch ld.Type {
	case "TVSeries", "TVEpisode":
		record.Subtype = "tv"
	default:
		record.Subtype = "movie"
	}
	if ld.DatePublished != "" {
		record.Playdate = []string{ld.DatePublished}
		if len(ld.DatePublished) >= 4 {
			if year, err := strconv.Atoi(ld.DatePublished[:4]); err == nil {
				record.Year = year
			}
		}
	}
	if minutes := parseISODuration(ld.Duration); minutes > 0 {
		record.Duration = fmt.Sprintf("%d分钟", minutes)
	}
	return record, nil
}

func parseISODuration(duration string) int {
	m := durationPattern.FindStringSubmatch(duration)
	if m == nil {
		return 0
	}
	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	return hours*60 + minutes
}

func (p *Provider) Format(record domain.MediaRecord) string {
	var b format.Builder
	b.Img(record.Poster)
	b.Line("片　　名", record.Title)
	b.Line("原　　名", record.OriginalTitle)
	b.Line("类　　别", format.Join(record.Genres))
	b.Line("上映日期", format.Join(record.Playdate))
	if record.IMDbRating > 0 {
		b.Line("IMDb评分", fmt.Sprintf("%.1f/10 from %d users", record.IMDbRating, record.IMDbVotes))
	}
	b.Line("IMDb链接", record.IMDbLink)
	b.Line("片　　长", record.Duration)
	b.Line("导　　演", format.Join(record.Director))
	b.Line("编　　剧", format.Join(record.Writer))
	b.Line("主　　演", format.Join(record.Cast))
	b.Block("简　　介", record.Description)
	return b.String()
}

type suggestResponse struct {
	Data []struct {
		ID    string `json:"id"`
		Label string `json:"l"`
		Year  int    `json:"y"`
		Kind  string `json:"q"`
	} `json:"d"`
}

// Search resolves a free-text query to title candidates. The suggestion API
// is fast but occasionally unavailable, so an empty or failed response falls
// back to scraping the regular find page.
func (p *Provider) Search(ctx context.Context, query string) ([]domain.SearchSummary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty search query")
	}

	summaries, err := p.searchSuggest(ctx, query)
	if err == nil && len(summaries) > 0 {
		return summaries, nil
	}

	summaries, findErr := p.searchFindPage(ctx, query)
	if findErr != nil {
		if err != nil {
			return nil, fmt.Errorf("suggestion api: %w; find page: %v", err, findErr)
		}
		return nil, findErr
	}
	return summaries, nil
}

func (p *Provider) searchSuggest(ctx context.Context, query string) ([]domain.SearchSummary, error) {
	slug := strings.ToLower(strings.ReplaceAll(query, " ", "_"))
	first := string([]rune(slug)[0])
	reqURL := fmt.Sprintf("%s/suggestion/%s/%s.json", p.suggestBaseURL, url.PathEscape(first), url.PathEscape(slug))
	body, err := p.fetcher.Get(ctx, reqURL)
	if err != nil {
		return nil, err
	}
	var response suggestResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("decode suggestion response: %w", err)
	}

	summaries := make([]domain.SearchSummary, 0, len(response.Data))
	for _, item := range response.Data {
		if !strings.HasPrefix(item.ID, "tt") {
			continue
		}
		year := ""
		if item.Year > 0 {
			year = strconv.Itoa(item.Year)
		}
		summaries = append(summaries, domain.SearchSummary{
			Year:    year,
			Subtype: subtypeOfKind(item.Kind),
			Title:   item.Label,
			Link:    fmt.Sprintf("%s/title/%s/", defaultBaseURL, item.ID),
			ID:      item.ID,
		})
		if len(summaries) >= maxSearchHits {
			break
		}
	}
	return summaries, nil
}

func (p *Provider) searchFindPage(ctx context.Context, query string) ([]domain.SearchSummary, error) {
	reqURL := fmt.Sprintf("%s/find?s=tt&q=%s", p.baseURL, url.QueryEscape(query))
	body, err := p.fetcher.Get(ctx, reqURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse find page: %w", err)
	}

	var summaries []domain.SearchSummary
	doc.Find("td.result_text").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		anchor := row.Find("a").First()
		href, _ := anchor.Attr("href")
		id := idPattern.FindString(href)
		if id == "" {
			return true
		}
		title := strings.TrimSpace(anchor.Text())
		year := ""
		if m := findYearPattern.FindStringSubmatch(row.Text()); m != nil {
			year = m[1]
		}
		summaries = append(summaries, domain.SearchSummary{
			Year:  year,
			Title: title,
			Link:  fmt.Sprintf("%s/title/%s/", defaultBaseURL, id),
			ID:    id,
		})
		return len(summaries) < maxSearchHits
	})
	return summaries, nil
}

func subtypeOfKind(kind string) string {
	switch kind {
	case "TV series", "TV mini-series":
		return "tv"
	case "feature", "video", "TV movie":
		return "movie"
	default:
		return kind
	}
}
