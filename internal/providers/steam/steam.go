// Package steam fetches game details from the storefront appdetails API.
// The API is unauthenticated but sits behind the store's age gate, so the
// birthtime cookie is always sent.
package steam

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

const (
	defaultBaseURL = "https://store.steampowered.com"
	// Pre-answered age gate, otherwise mature titles redirect to the check.
	ageGateCookie = "birthtime=0; mature_content=1"
)

var (
	idPattern   = regexp.MustCompile(`app/(\d+)`)
	tagPattern  = regexp.MustCompile(`<[^>]+>`)
	yearPattern = regexp.MustCompile(`\d{4}`)
)

type Provider struct {
	fetcher *fetch.Client
	baseURL string
}

type Config struct {
	Fetcher *fetch.Client
	BaseURL string
}

func New(cfg Config) *Provider {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Provider{
		fetcher: cfg.Fetcher,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (p *Provider) Name() string { return "steam" }

func (p *Provider) MatchesDomain(rawURL string) bool {
	return strings.Contains(rawURL, "store.steampowered.com") ||
		strings.Contains(rawURL, "steamcommunity.com")
}

func (p *Provider) ExtractID(rawURL string) (string, bool) {
	m := idPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

type appDetails struct {
	Success bool `json:"success"`
	Data    struct {
		Name               string   `json:"name"`
		ShortDescription   string   `json:"short_description"`
		HeaderImage        string   `json:"header_image"`
		Website            string   `json:"website"`
		Developers         []string `json:"developers"`
		Publishers         []string `json:"publishers"`
		SupportedLanguages string   `json:"supported_languages"`
		Metacritic         struct {
			Score int `json:"score"`
		} `json:"metacritic"`
		Genres []struct {
			Description string `json:"description"`
		} `json:"genres"`
		ReleaseDate struct {
			Date string `json:"date"`
		} `json:"release_date"`
	} `json:"data"`
}

func (p *Provider) Generate(ctx context.Context, id string) (domain.MediaRecord, error) {
	id = strings.TrimSpace(id)
	if _, err := strconv.Atoi(id); err != nil {
		return domain.MediaRecord{}, fmt.Errorf("invalid steam app id %q", id)
	}

	reqURL := fmt.Sprintf("%s/api/appdetails?appids=%s&l=schinese", p.baseURL, id)
	body, err := p.fetcher.Get(ctx, reqURL, fetch.WithCookie(ageGateCookie))
	if err != nil {
		return domain.MediaRecord{}, err
	}

	var envelope map[string]appDetails
	if err := json.Unmarshal(body, &envelope); err != nil {
		return domain.MediaRecord{}, fmt.Errorf("decode appdetails: %w", err)
	}
	details, ok := envelope[id]
	if !ok || !details.Success {
		return domain.MediaRecord{}, fmt.Errorf("steam app %s not found", id)
	}
	data := details.Data

	record := domain.MediaRecord{
		Success:     true,
		Subtype:     "game",
		Link:        fmt.Sprintf("%s/app/%s/", defaultBaseURL, id),
		Title:       data.Name,
		Poster:      data.HeaderImage,
		Description: stripTags(data.ShortDescription),
		Developer:   data.Developers,
		Publisher:   data.Publishers,
		Metacritic:  data.Metacritic.Score,
	}
	for _, genre := range data.Genres {
		record.Genres = append(record.Genres, genre.Description)
	}
	if data.ReleaseDate.Date != "" {
		record.Playdate = []string{data.ReleaseDate.Date}
		if m := yearPattern.FindString(data.ReleaseDate.Date); m != "" {
			record.Year, _ = strconv.Atoi(m)
		}
	}
	record.Language = parseLanguages(data.SupportedLanguages)
	return record, nil
}

// parseLanguages reduces the "supported_languages" HTML blob (language names
// with markup and asterisk footnotes) to a clean name list.
func parseLanguages(raw string) []string {
	if raw == "" {
		return nil
	}
	// The "*languages with full audio support" footnote follows a <br>.
	if idx := strings.Index(raw, "<br>"); idx >= 0 {
		raw = raw[:idx]
	}
	parts := strings.Split(stripTags(raw), ",")
	languages := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := strings.TrimSuffix(strings.TrimSpace(part), "*"); v != "" {
			languages = append(languages, v)
		}
	}
	return languages
}

func stripTags(raw string) string {
	return strings.TrimSpace(tagPattern.ReplaceAllString(raw, ""))
}

func (p *Provider) Format(record domain.MediaRecord) string {
	var b format.Builder
	b.Img(record.Poster)
	b.Line("游戏名称", record.Title)
	b.Line("类　　型", format.Join(record.Genres))
	b.Line("开 发 商", format.Join(record.Developer))
	b.Line("发 行 商", format.Join(record.Publisher))
	b.Line("发行日期", format.Join(record.Playdate))
	if record.Metacritic > 0 {
		b.Line("Metacritic", fmt.Sprintf("%d/100", record.Metacritic))
	}
	b.Line("支持语言", format.Join(record.Language))
	b.Line("商店链接", record.Link)
	b.Block("游戏简介", record.Description)
	return b.String()
}
