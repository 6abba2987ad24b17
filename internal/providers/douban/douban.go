// Package douban scrapes movie.douban.com subject pages. Douban fronts its
// pages with aggressive anti-bot checks, so generation walks a mirror list
// and carries an optional login cookie.
package douban

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rabbitwit/PT-Gen-Refactor/internal/domain"
	"github.com/rabbitwit/PT-Gen-Refactor/internal/format"
	"github.com/rabbitwit/PT-Gen-Refactor/internal/providers/fetch"
)

var (
	idPattern   = regexp.MustCompile(`subject/(\d+)`)
	yearPattern = regexp.MustCompile(`\((\d{4})\)`)
	imdbPattern = regexp.MustCompile(`tt\d+`)
)

// Phrases douban serves instead of content when it decides the client is a
// crawler or the subject is gone.
var antiBotPhrases = []string{
	"检测到有异常请求",
	"异常请求",
	"页面不存在",
}

var defaultMirrors = []string{
	"https://movie.douban.com",
	"https://m.douban.com/movie",
}

type Provider struct {
	fetcher *fetch.Client
	mirrors []string
	cookie  string
}

type Config struct {
	Fetcher *fetch.Client
	// Mirrors are tried in order until one returns a parsable page.
	Mirrors []string
	Cookie  string
}

func New(cfg Config) *Provider {
	mirrors := cfg.Mirrors
	if len(mirrors) == 0 {
		mirrors = defaultMirrors
	}
	return &Provider{
		fetcher: cfg.Fetcher,
		mirrors: mirrors,
		cookie:  cfg.Cookie,
	}
}

func (p *Provider) Name() string { return "douban" }

func (p *Provider) MatchesDomain(rawURL string) bool {
	return strings.Contains(rawURL, "douban.com")
}

func (p *Provider) ExtractID(rawURL string) (string, bool) {
	m := idPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func (p *Provider) Generate(ctx context.Context, id string) (domain.MediaRecord, error) {
	id = strings.TrimSpace(id)
	if _, err := strconv.Atoi(id); err != nil {
		return domain.MediaRecord{}, fmt.Errorf("invalid douban identifier %q", id)
	}

	var lastErr error
	for _, mirror := range p.mirrors {
		pageURL := strings.TrimRight(mirror, "/") + "/subject/" + id + "/"
		body, err := p.fetcher.Get(ctx, pageURL, fetch.WithCookie(p.cookie))
		if err != nil {
			lastErr = err
			continue
		}
		if blocked(body) {
			lastErr = fmt.Errorf("%w: %s", domain.ErrAntiBot, pageURL)
			continue
		}
		record, err := p.parseSubject(string(body), id)
		if err != nil {
			lastErr = err
			continue
		}
		return record, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no douban mirror configured")
	}
	return domain.MediaRecord{}, lastErr
}

func blocked(body []byte) bool {
	text := string(body)
	for _, phrase := range antiBotPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

func (p *Provider) parseSubject(body, id string) (domain.MediaRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return domain.MediaRecord{}, fmt.Errorf("parse subject page: %w", err)
	}

	fullTitle := strings.TrimSpace(doc.Find(`span[property="v:itemreviewed"]`).First().Text())
	if fullTitle == "" {
		return domain.MediaRecord{}, fmt.Errorf("subject %s: no title on page", id)
	}

	record := domain.MediaRecord{
		Success: true,
		Link:    "https://movie.douban.com/subject/" + id + "/",
	}

	// The reviewed title is "<chinese> <original>"; Chinese-only subjects have
	// no second part.
	parts := strings.SplitN(fullTitle, " ", 2)
	record.Title = parts[0]
	if len(parts) == 2 {
		record.OriginalTitle = strings.TrimSpace(parts[1])
	}

	if m := yearPattern.FindStringSubmatch(doc.Find("#content h1 span.year").Text()); m != nil {
		record.Year, _ = strconv.Atoi(m[1])
	}

	doc.Find(`span[property="v:genre"]`).Each(func(_ int, s *goquery.Selection) {
		record.Genres = append(record.Genres, strings.TrimSpace(s.Text()))
	})

	info := parseInfoBlock(doc.Find("#info").Text())
	record.Director = info.values("导演")
	record.Writer = info.values("编剧")
	record.Cast = info.values("主演")
	record.Region = info.values("制片国家/地区")
	record.Language = info.values("语言")
	record.Playdate = info.values("上映日期", "首播")
	record.Aka = info.values("又名")
	record.Episodes = info.value("集数")
	record.Duration = info.value("片长", "单集片长")
	if len(record.Genres) == 0 {
		record.Genres = info.values("类型")
	}
	if record.Episodes != "" {
		record.Subtype = "tv"
	} else {
		record.Subtype = "movie"
	}

	if imdbID := imdbPattern.FindString(info.value("IMDb", "IMDb链接")); imdbID != "" {
		record.IMDbID = imdbID
		record.IMDbLink = "https://www.imdb.com/title/" + imdbID + "/"
	}

	if rating := strings.TrimSpace(doc.Find(`strong[property="v:average"]`).Text()); rating != "" {
		record.DoubanRating, _ = strconv.ParseFloat(rating, 64)
	}
	if votes := strings.TrimSpace(doc.Find(`span[property="v:votes"]`).Text()); votes != "" {
		record.DoubanVotes, _ = strconv.Atoi(votes)
	}

	record.Description = cleanSummary(doc.Find(`span[property="v:summary"]`).Text())

	if poster, ok := doc.Find("#mainpic img").Attr("src"); ok {
		// Swap the thumbnail size class for the full size one.
		record.Poster = strings.Replace(poster, "s_ratio_poster", "l_ratio_poster", 1)
	}

	doc.Find("div.tags-body a").Each(func(_ int, s *goquery.Selection) {
		record.Tags = append(record.Tags, strings.TrimSpace(s.Text()))
	})

	return record, nil
}

// infoBlock is the parsed "#info" sidebar: one "label: value" entry per line,
// values " / " separated.
type infoBlock map[string]string

func parseInfoBlock(text string) infoBlock {
	block := make(infoBlock)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		label, value, ok := strings.Cut(line, ":")
		if !ok {
			label, value, ok = strings.Cut(line, "：")
			if !ok {
				continue
			}
		}
		block[strings.TrimSpace(label)] = strings.TrimSpace(value)
	}
	return block
}

func (b infoBlock) value(labels ...string) string {
	for _, label := range labels {
		if v, ok := b[label]; ok && v != "" {
			return v
		}
	}
	return ""
}

func (b infoBlock) values(labels ...string) []string {
	raw := b.value(labels...)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, "/")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := strings.TrimSpace(part); v != "" {
			values = append(values, v)
		}
	}
	return values
}

func cleanSummary(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(strings.ReplaceAll(line, "　", " "))
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}

func (p *Provider) Format(record domain.MediaRecord) string {
	var b format.Builder
	b.Img(record.Poster)
	b.Line("片　　名", record.Title)
	b.Line("原　　名", record.OriginalTitle)
	b.Line("译　　名", format.Join(record.Aka))
	b.Line("类　　别", format.Join(record.Genres))
	b.Line("产　　地", format.Join(record.Region))
	b.Line("语　　言", format.Join(record.Language))
	b.Line("上映日期", format.Join(record.Playdate))
	if record.IMDbRating > 0 {
		b.Line("IMDb评分", fmt.Sprintf("%.1f/10 from %d users", record.IMDbRating, record.IMDbVotes))
	}
	b.Line("IMDb链接", record.IMDbLink)
	if record.DoubanRating > 0 {
		b.Line("豆瓣评分", fmt.Sprintf("%.1f/10 from %d users", record.DoubanRating, record.DoubanVotes))
	}
	b.Line("豆瓣链接", record.Link)
	b.Line("集　　数", record.Episodes)
	b.Line("片　　长", record.Duration)
	b.Line("导　　演", format.Join(record.Director))
	b.Line("编　　剧", format.Join(record.Writer))
	b.Line("主　　演", format.Join(record.Cast))
	b.Line("标　　签", format.Join(record.Tags))
	b.Block("简　　介", record.Description)
	return b.String()
}
