// Package tmdb implements the TMDB provider on the official REST API: detail
// lookup by "movie/<id>" or "tv/<id>" identifiers and a dual movie+tv search.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rabbitwit/PT-Gen-Refactor/internal/domain"
	"github.com/rabbitwit/PT-Gen-Refactor/internal/format"
)

const (
	defaultBaseURL       = "https://api.themoviedb.org/3"
	posterBaseURL        = "https://image.tmdb.org/t/p/original"
	siteBaseURL          = "https://www.themoviedb.org"
	defaultSearchTimeout = 8 * time.Second
	maxSearchHits        = 10
	defaultLanguage      = "zh-CN"
)

var (
	urlPattern = regexp.MustCompile(`themoviedb\.org/(movie|tv)/(\d+)`)
	sidPattern = regexp.MustCompile(`^(movie|tv)[/_](\d+)$`)
)

var ErrNoAPIKey = errors.New("tmdb api key not configured")

type Client struct {
	apiKey        string
	baseURL       string
	http          *http.Client
	searchTimeout time.Duration
}

type Config struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
	// SearchTimeout bounds the dual movie+tv search fan-out as a whole.
	SearchTimeout time.Duration
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	timeout := cfg.SearchTimeout
	if timeout <= 0 {
		timeout = defaultSearchTimeout
	}
	return &Client{
		apiKey:        strings.TrimSpace(cfg.APIKey),
		baseURL:       strings.TrimRight(baseURL, "/"),
		http:          httpClient,
		searchTimeout: timeout,
	}
}

func (c *Client) Name() string { return "tmdb" }

func (c *Client) Enabled() bool { return c.apiKey != "" }

func (c *Client) MatchesDomain(rawURL string) bool {
	return strings.Contains(rawURL, "themoviedb.org")
}

func (c *Client) ExtractID(rawURL string) (string, bool) {
	m := urlPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", false
	}
	return m[1] + "/" + m[2], true
}

// NormalizeID accepts both "movie/550" and the cache-key shape "movie_550".
// A bare numeric id defaults to a movie lookup.
func (c *Client) NormalizeID(id string) string {
	if m := sidPattern.FindStringSubmatch(strings.TrimSpace(id)); m != nil {
		return m[1] + "/" + m[2]
	}
	if _, err := strconv.Atoi(strings.TrimSpace(id)); err == nil {
		return "movie/" + strings.TrimSpace(id)
	}
	return id
}

type detailResponse struct {
	Title            string  `json:"title"`
	Name             string  `json:"name"`
	OriginalTitle    string  `json:"original_title"`
	OriginalName     string  `json:"original_name"`
	ReleaseDate      string  `json:"release_date"`
	FirstAirDate     string  `json:"first_air_date"`
	Overview         string  `json:"overview"`
	PosterPath       string  `json:"poster_path"`
	VoteAverage      float64 `json:"vote_average"`
	VoteCount        int     `json:"vote_count"`
	Runtime          int     `json:"runtime"`
	EpisodeRunTime   []int   `json:"episode_run_time"`
	NumberOfEpisodes int     `json:"number_of_episodes"`
	Genres           []struct {
		Name string `json:"name"`
	} `json:"genres"`
	ProductionCountries []struct {
		Name string `json:"name"`
	} `json:"production_countries"`
	SpokenLanguages []struct {
		Name string `json:"name"`
	} `json:"spoken_languages"`
	ExternalIDs struct {
		IMDbID string `json:"imdb_id"`
	} `json:"external_ids"`
	Credits struct {
		Cast []struct {
			Name string `json:"name"`
		} `json:"cast"`
		Crew []struct {
			Name string `json:"name"`
			Job  string `json:"job"`
		} `json:"crew"`
	} `json:"credits"`
}

func (c *Client) Generate(ctx context.Context, id string) (domain.MediaRecord, error) {
	if !c.Enabled() {
		return domain.MediaRecord{}, ErrNoAPIKey
	}
	mediaType, numericID, ok := splitID(c.NormalizeID(id))
	if !ok {
		return domain.MediaRecord{}, fmt.Errorf("invalid tmdb identifier %q", id)
	}

	params := url.Values{
		"api_key":            {c.apiKey},
		"language":           {defaultLanguage},
		"append_to_response": {"credits,external_ids"},
	}
	var detail detailResponse
	if err := c.getJSON(ctx, fmt.Sprintf("%s/%s/%s?%s", c.baseURL, mediaType, numericID, params.Encode()), &detail); err != nil {
		return domain.MediaRecord{}, err
	}

	record := domain.MediaRecord{
		Success:     true,
		Subtype:     mediaType,
		Link:        fmt.Sprintf("%s/%s/%s", siteBaseURL, mediaType, numericID),
		Description: detail.Overview,
		TMDBRating:  detail.VoteAverage,
		TMDBVotes:   detail.VoteCount,
		IMDbID:      detail.ExternalIDs.IMDbID,
	}
	record.Title = firstNonEmpty(detail.Title, detail.Name)
	record.OriginalTitle = firstNonEmpty(detail.OriginalTitle, detail.OriginalName)
	if record.IMDbID != "" {
		record.IMDbLink = "https://www.imdb.com/title/" + record.IMDbID + "/"
	}
	if detail.PosterPath != "" {
		record.Poster = posterBaseURL + detail.PosterPath
	}

	date := firstNonEmpty(detail.ReleaseDate, detail.FirstAirDate)
	if date != "" {
		record.Playdate = []string{date}
		record.Year = yearOf(date)
	}
	for _, genre := range detail.Genres {
		record.Genres = append(record.Genres, genre.Name)
	}
	for _, country := range detail.ProductionCountries {
		record.Region = append(record.Region, country.Name)
	}
	for _, language := range detail.SpokenLanguages {
		record.Language = append(record.Language, language.Name)
	}
	if detail.Runtime > 0 {
		record.Duration = fmt.Sprintf("%d分钟", detail.Runtime)
	} else if len(detail.EpisodeRunTime) > 0 && detail.EpisodeRunTime[0] > 0 {
		record.Duration = fmt.Sprintf("%d分钟", detail.EpisodeRunTime[0])
	}
	if detail.NumberOfEpisodes > 0 {
		record.Episodes = strconv.Itoa(detail.NumberOfEpisodes)
	}
	for _, crew := range detail.Credits.Crew {
		switch crew.Job {
		case "Director":
			record.Director = append(record.Director, crew.Name)
		case "Writer", "Screenplay":
			record.Writer = append(record.Writer, crew.Name)
		}
	}
	for i, cast := range detail.Credits.Cast {
		if i >= 10 {
			break
		}
		record.Cast = append(record.Cast, cast.Name)
	}
	return record, nil
}

func (c *Client) Format(record domain.MediaRecord) string {
	var b format.Builder
	b.Img(record.Poster)
	b.Line("片　　名", record.Title)
	b.Line("原　　名", record.OriginalTitle)
	b.Line("类　　别", format.Join(record.Genres))
	b.Line("产　　地", format.Join(record.Region))
	b.Line("语　　言", format.Join(record.Language))
	b.Line("上映日期", format.Join(record.Playdate))
	if record.TMDBRating > 0 {
		b.Line("TMDB评分", fmt.Sprintf("%.1f/10 from %d users", record.TMDBRating, record.TMDBVotes))
	}
	b.Line("集　　数", record.Episodes)
	b.Line("片　　长", record.Duration)
	b.Line("IMDb链接", record.IMDbLink)
	b.Line("TMDB链接", record.Link)
	b.Line("导　　演", format.Join(record.Director))
	b.Line("编　　剧", format.Join(record.Writer))
	b.Line("主　　演", format.Join(record.Cast))
	b.Block("简　　介", record.Description)
	return b.String()
}

type searchResult struct {
	ID            int     `json:"id"`
	Title         string  `json:"title"`
	Name          string  `json:"name"`
	OriginalTitle string  `json:"original_title"`
	OriginalName  string  `json:"original_name"`
	ReleaseDate   string  `json:"release_date"`
	FirstAirDate  string  `json:"first_air_date"`
	Popularity    float64 `json:"popularity"`
	mediaType     string
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

// Search fans out movie and tv searches in parallel under one shared
// timeout, merges both result sets, sorts by popularity and caps at 10.
func (c *Client) Search(ctx context.Context, query string) ([]domain.SearchSummary, error) {
	if !c.Enabled() {
		return nil, ErrNoAPIKey
	}

	searchCtx, cancel := context.WithTimeout(ctx, c.searchTimeout)
	defer cancel()

	var movies, shows []searchResult
	group, groupCtx := errgroup.WithContext(searchCtx)
	group.Go(func() error {
		results, err := c.searchOne(groupCtx, "movie", query)
		movies = results
		return err
	})
	group.Go(func() error {
		results, err := c.searchOne(groupCtx, "tv", query)
		shows = results
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	merged := append(movies, shows...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Popularity > merged[j].Popularity
	})
	if len(merged) > maxSearchHits {
		merged = merged[:maxSearchHits]
	}

	summaries := make([]domain.SearchSummary, 0, len(merged))
	for _, result := range merged {
		title := firstNonEmpty(result.Title, result.Name)
		if title == "" {
			continue
		}
		date := firstNonEmpty(result.ReleaseDate, result.FirstAirDate)
		year := ""
		if y := yearOf(date); y > 0 {
			year = strconv.Itoa(y)
		}
		id := result.mediaType + "/" + strconv.Itoa(result.ID)
		summaries = append(summaries, domain.SearchSummary{
			Year:     year,
			Subtype:  result.mediaType,
			Title:    title,
			Subtitle: firstNonEmpty(result.OriginalTitle, result.OriginalName),
			Link:     siteBaseURL + "/" + id,
			ID:       id,
		})
	}
	return summaries, nil
}

func (c *Client) searchOne(ctx context.Context, mediaType, query string) ([]searchResult, error) {
	params := url.Values{
		"api_key":  {c.apiKey},
		"language": {defaultLanguage},
		"query":    {strings.TrimSpace(query)},
	}
	var response searchResponse
	if err := c.getJSON(ctx, fmt.Sprintf("%s/search/%s?%s", c.baseURL, mediaType, params.Encode()), &response); err != nil {
		return nil, err
	}
	for i := range response.Results {
		response.Results[i].mediaType = mediaType
	}
	return response.Results, nil
}

func (c *Client) getJSON(ctx context.Context, reqURL string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("tmdb HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, dest)
}

func splitID(id string) (mediaType, numericID string, ok bool) {
	parts := strings.SplitN(id, "/", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	if parts[0] != "movie" && parts[0] != "tv" {
		return "", "", false
	}
	if _, err := strconv.Atoi(parts[1]); err != nil {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}
