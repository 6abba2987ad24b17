// Package bangumi serves anime, book and game subjects through the public
// bgm.tv v0 API. The API asks clients to identify themselves with a project
// user agent, which is configurable.
package bangumi

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rabbitwit/PT-Gen-Refactor/internal/domain"
	"github.com/rabbitwit/PT-Gen-Refactor/internal/format"
	"github.com/rabbitwit/PT-Gen-Refactor/internal/providers/fetch"
)

const defaultBaseURL = "https://api.bgm.tv"

var idPattern = regexp.MustCompile(`subject/(\d+)`)

// Subject type codes as the API defines them.
var subjectTypes = map[int]string{
	1: "book",
	2: "anime",
	3: "music",
	4: "game",
	6: "real",
}

type Provider struct {
	fetcher   *fetch.Client
	baseURL   string
	userAgent string
}

type Config struct {
	Fetcher   *fetch.Client
	BaseURL   string
	UserAgent string
}

func New(cfg Config) *Provider {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Provider{
		fetcher:   cfg.Fetcher,
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: strings.TrimSpace(cfg.UserAgent),
	}
}

func (p *Provider) Name() string { return "bangumi" }

func (p *Provider) MatchesDomain(rawURL string) bool {
	return strings.Contains(rawURL, "bgm.tv") ||
		strings.Contains(rawURL, "bangumi.tv") ||
		strings.Contains(rawURL, "chii.in")
}

func (p *Provider) ExtractID(rawURL string) (string, bool) {
	m := idPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

type subjectResponse struct {
	ID      int    `json:"id"`
	Type    int    `json:"type"`
	Name    string `json:"name"`
	NameCN  string `json:"name_cn"`
	Summary string `json:"summary"`
	Date    string `json:"date"`
	Eps     int    `json:"eps"`
	Images  struct {
		Large string `json:"large"`
	} `json:"images"`
	Rating struct {
		Score float64 `json:"score"`
		Total int     `json:"total"`
	} `json:"rating"`
	Tags []struct {
		Name string `json:"name"`
	} `json:"tags"`
	Infobox []struct {
		Key   string          `json:"key"`
		Value json.RawMessage `json:"value"`
	} `json:"infobox"`
}

func (p *Provider) Generate(ctx context.Context, id string) (domain.MediaRecord, error) {
	id = strings.TrimSpace(id)
	if _, err := strconv.Atoi(id); err != nil {
		return domain.MediaRecord{}, fmt.Errorf("invalid bangumi identifier %q", id)
	}

	opts := []fetch.RequestOption{fetch.WithHeader("Accept", "application/json")}
	if p.userAgent != "" {
		opts = append(opts, fetch.WithHeader("User-Agent", p.userAgent))
	}
	body, err := p.fetcher.Get(ctx, p.baseURL+"/v0/subjects/"+id, opts...)
	if err != nil {
		return domain.MediaRecord{}, err
	}

	var subject subjectResponse
	if err := json.Unmarshal(body, &subject); err != nil {
		return domain.MediaRecord{}, fmt.Errorf("decode subject: %w", err)
	}
	if subject.Name == "" && subject.NameCN == "" {
		return domain.MediaRecord{}, fmt.Errorf("subject %s: empty response", id)
	}

	record := domain.MediaRecord{
		Success:       true,
		Link:          "https://bgm.tv/subject/" + id,
		Title:         subject.NameCN,
		OriginalTitle: subject.Name,
		Description:   strings.TrimSpace(subject.Summary),
		Poster:        subject.Images.Large,
		Subtype:       subjectTypes[subject.Type],
		BangumiScore:  subject.Rating.Score,
		BangumiVotes:  subject.Rating.Total,
	}
	if record.Title == "" {
		record.Title = subject.Name
		record.OriginalTitle = ""
	}
	if subject.Date != "" {
		record.Playdate = []string{subject.Date}
		if len(subject.Date) >= 4 {
			if year, err := strconv.Atoi(subject.Date[:4]); err == nil {
				record.Year = year
			}
		}
	}
	if subject.Eps > 0 {
		record.Episodes = strconv.Itoa(subject.Eps)
	}
	for _, tag := range subject.Tags {
		record.Tags = append(record.Tags, tag.Name)
		if len(record.Tags) >= 10 {
			break
		}
	}
	for _, entry := range subject.Infobox {
		values := infoboxValues(entry.Value)
		switch entry.Key {
		case "导演", "監督":
			record.Director = append(record.Director, values...)
		case "脚本", "编剧", "系列构成":
			record.Writer = append(record.Writer, values...)
		case "主演", "出演", "声优":
			record.Cast = append(record.Cast, values...)
		case "别名":
			record.Aka = append(record.Aka, values...)
		case "开发", "开发商":
			record.Developer = append(record.Developer, values...)
		case "发行", "发行商":
			record.Publisher = append(record.Publisher, values...)
		case "艺术家", "作曲":
			record.Artist = append(record.Artist, values...)
		}
	}
	return record, nil
}

// infoboxValues flattens an infobox value, which is either a plain string or
// a list of {v: string} objects.
func infoboxValues(raw json.RawMessage) []string {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single = strings.TrimSpace(single); single != "" {
			return []string{single}
		}
		return nil
	}
	var items []struct {
		V string `json:"v"`
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	values := make([]string, 0, len(items))
	for _, item := range items {
		if v := strings.TrimSpace(item.V); v != "" {
			values = append(values, v)
		}
	}
	return values
}

func (p *Provider) Format(record domain.MediaRecord) string {
	var b format.Builder
	b.Img(record.Poster)
	b.Line("中文名", record.Title)
	b.Line("原　名", record.OriginalTitle)
	b.Line("别　名", format.Join(record.Aka))
	b.Line("类　型", record.Subtype)
	b.Line("放送日期", format.Join(record.Playdate))
	b.Line("话　数", record.Episodes)
	if record.BangumiScore > 0 {
		b.Line("Bangumi评分", fmt.Sprintf("%.1f/10 from %d users", record.BangumiScore, record.BangumiVotes))
	}
	b.Line("Bangumi链接", record.Link)
	b.Line("导　演", format.Join(record.Director))
	b.Line("脚　本", format.Join(record.Writer))
	b.Line("出　演", format.Join(record.Cast))
	b.Line("标　签", format.Join(record.Tags))
	b.Block("简　介", record.Description)
	return b.String()
}
