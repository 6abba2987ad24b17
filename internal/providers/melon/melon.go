// Package melon scrapes album detail pages from the Korean music store
// melon.com.
package melon

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

const defaultBaseURL = "https://www.melon.com"

var (
	idPattern   = regexp.MustCompile(`albumId=(\d+)`)
	yearPattern = regexp.MustCompile(`(\d{4})`)
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

func (p *Provider) Name() string { return "melon" }

func (p *Provider) MatchesDomain(rawURL string) bool {
	return strings.Contains(rawURL, "melon.com")
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
		return domain.MediaRecord{}, fmt.Errorf("invalid melon album id %q", id)
	}

	pageURL := fmt.Sprintf("%s/album/detail.htm?albumId=%s", p.baseURL, id)
	body, err := p.fetcher.Get(ctx, pageURL)
	if err != nil {
		return domain.MediaRecord{}, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return domain.MediaRecord{}, fmt.Errorf("parse album page: %w", err)
	}

	record := domain.MediaRecord{
		Success: true,
		Subtype: "album",
		Link:    fmt.Sprintf("%s/album/detail.htm?albumId=%s", defaultBaseURL, id),
	}

	titleNode := doc.Find("div.song_name").First().Clone()
	titleNode.Find("span").Remove()
	record.Title = strings.TrimSpace(titleNode.Text())
	if record.Title == "" {
		return domain.MediaRecord{}, fmt.Errorf("album %s: no title on page", id)
	}

	doc.Find("div.artist a.artist_name").Each(func(_ int, s *goquery.Selection) {
		if name := strings.TrimSpace(s.Text()); name != "" {
			record.Artist = append(record.Artist, name)
		}
	})

	// The metadata list is dt/dd pairs: 발매일 (release date), 장르 (genre),
	// 발매사 (label), 기획사 (agency).
	meta := make(map[string]string)
	doc.Find("div.meta dl.list dt").Each(func(_ int, dt *goquery.Selection) {
		key := strings.TrimSpace(dt.Text())
		value := strings.TrimSpace(dt.NextFiltered("dd").Text())
		if key != "" && value != "" {
			meta[key] = value
		}
	})
	if release := meta["발매일"]; release != "" {
		record.Playdate = []string{release}
		if m := yearPattern.FindStringSubmatch(release); m != nil {
			record.Year, _ = strconv.Atoi(m[1])
		}
	}
	if genre := meta["장르"]; genre != "" {
		for _, part := range strings.Split(genre, ",") {
			if v := strings.TrimSpace(part); v != "" {
				record.Genres = append(record.Genres, v)
			}
		}
	}
	if label := meta["발매사"]; label != "" {
		record.Publisher = append(record.Publisher, label)
	}

	if poster, ok := doc.Find("div.thumb img").First().Attr("src"); ok {
		record.Poster = poster
	}

	doc.Find("table tbody tr div.wrap_song_info div.ellipsis a").Each(func(_ int, s *goquery.Selection) {
		if title := strings.TrimSpace(s.Text()); title != "" {
			record.TrackList = append(record.TrackList, title)
		}
	})

	record.Description = strings.TrimSpace(doc.Find("div.dtl_albuminfo div.cont").First().Text())
	return record, nil
}

func (p *Provider) Format(record domain.MediaRecord) string {
	var b format.Builder
	b.Img(record.Poster)
	b.Line("专辑名称", record.Title)
	b.Line("艺 术 家", format.Join(record.Artist))
	b.Line("流　　派", format.Join(record.Genres))
	b.Line("发行日期", format.Join(record.Playdate))
	b.Line("发 行 商", format.Join(record.Publisher))
	b.Line("专辑链接", record.Link)
	if len(record.TrackList) > 0 {
		b.Raw("◎曲目列表\n")
		for i, track := range record.TrackList {
			b.Raw(fmt.Sprintf("　　%02d. %s\n", i+1, track))
		}
	}
	b.Block("专辑简介", record.Description)
	return b.String()
}
