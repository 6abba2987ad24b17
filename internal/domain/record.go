package domain

// MediaRecord is the normalized result of one generation: a movie, TV show,
// book, music album or game fetched from a single source. A record is either
// successful (Success=true, metadata fields populated as far as the source
// allows) or a structured failure (Success=false, Error set).
//
// Format holds the rendered bulletin-board text block. It is attached after a
// successful generation and is never written to the cache; formatting logic
// may change independently of cached raw data.
type MediaRecord struct {
	Site    string `json:"site"`
	SID     string `json:"sid"`
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Format  string `json:"format"`

	Link          string   `json:"link,omitempty"`
	Title         string   `json:"title,omitempty"`
	OriginalTitle string   `json:"original_title,omitempty"`
	TransTitle    []string `json:"trans_title,omitempty"`
	Aka           []string `json:"aka,omitempty"`
	Year          int      `json:"year,omitempty"`
	Subtype       string   `json:"subtype,omitempty"`
	Region        []string `json:"region,omitempty"`
	Genres        []string `json:"genre,omitempty"`
	Language      []string `json:"language,omitempty"`
	Playdate      []string `json:"playdate,omitempty"`
	Episodes      string   `json:"episodes,omitempty"`
	Duration      string   `json:"duration,omitempty"`
	Director      []string `json:"director,omitempty"`
	Writer        []string `json:"writer,omitempty"`
	Cast          []string `json:"cast,omitempty"`
	Poster        string   `json:"poster,omitempty"`
	Description   string   `json:"description,omitempty"`
	Tags          []string `json:"tags,omitempty"`

	IMDbID       string  `json:"imdb_id,omitempty"`
	IMDbLink     string  `json:"imdb_link,omitempty"`
	IMDbRating   float64 `json:"imdb_rating,omitempty"`
	IMDbVotes    int     `json:"imdb_votes,omitempty"`
	DoubanRating float64 `json:"douban_rating,omitempty"`
	DoubanVotes  int     `json:"douban_votes,omitempty"`
	TMDBRating   float64 `json:"tmdb_rating,omitempty"`
	TMDBVotes    int     `json:"tmdb_votes,omitempty"`
	BangumiScore float64 `json:"bangumi_rating,omitempty"`
	BangumiVotes int     `json:"bangumi_votes,omitempty"`

	// Game fields (steam).
	Developer  []string `json:"developer,omitempty"`
	Publisher  []string `json:"publisher,omitempty"`
	Metacritic int      `json:"metacritic,omitempty"`

	// Music fields (melon).
	Artist    []string `json:"artist,omitempty"`
	TrackList []string `json:"tracklist,omitempty"`
}

// Failure builds a structured failure record for a source and identifier.
func Failure(site, sid, message string) MediaRecord {
	return MediaRecord{Site: site, SID: sid, Success: false, Error: message}
}
