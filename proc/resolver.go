package proc

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/chokun100/discord-music-bot/sys"
	"github.com/kkdai/youtube/v2"
	"github.com/lrstanley/go-ytdlp"
	"github.com/ppalone/ytsearch"
)

// ErrNoResults is returned when a search query yields zero results.
var ErrNoResults = errors.New("no results found")

var (
	directURLRegex  = regexp.MustCompile(`^https?://`)
	youtubeURLRegex = regexp.MustCompile(`(?:youtube\.com|youtu\.be)/`)
)

const titleLookupTimeout = 5 * time.Second

// MediaLocator is a resolved address plus display title for one piece of
// playable media. Title may be empty when lookup failed; URL never is.
type MediaLocator struct {
	URL   string
	Title string
}

type searchHit struct {
	URL   string
	Title string
}

// Resolver turns a user-supplied token (URL or free text) into a MediaLocator.
type Resolver struct {
	searchFn func(ctx context.Context, query string) ([]searchHit, error)
	titleFn  func(ctx context.Context, url string) (string, error)
}

func NewResolver() *Resolver {
	return &Resolver{
		searchFn: searchYouTube,
		titleFn:  lookupTitle,
	}
}

// Resolve maps a token and any extra query words to a playable locator.
// Direct URLs pass through verbatim; anything else goes to search and the
// first hit wins. Title lookup for direct URLs is best effort and never
// fails the resolution.
func (r *Resolver) Resolve(ctx context.Context, token string, extra ...string) (MediaLocator, error) {
	if directURLRegex.MatchString(token) {
		sys.LogResolver(sys.MsgResolverDirectURL, token)
		loc := MediaLocator{URL: token}

		titleCtx, cancel := context.WithTimeout(ctx, titleLookupTimeout)
		defer cancel()
		title, err := r.titleFn(titleCtx, token)
		if err != nil {
			sys.LogResolver(sys.MsgResolverTitleFailed, token, err)
			return loc, nil
		}
		loc.Title = title
		return loc, nil
	}

	query := strings.TrimSpace(strings.Join(append([]string{token}, extra...), " "))
	sys.LogResolver(sys.MsgResolverSearching, query)

	hits, err := r.searchFn(ctx, query)
	if err != nil {
		return MediaLocator{}, err
	}
	if len(hits) == 0 {
		return MediaLocator{}, ErrNoResults
	}

	first := hits[0]
	sys.LogResolver(sys.MsgResolverFoundURL, first.URL, first.Title)
	return MediaLocator{URL: first.URL, Title: first.Title}, nil
}

func searchYouTube(ctx context.Context, query string) ([]searchHit, error) {
	c := ytsearch.NewClient(nil)
	res, err := c.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	hits := make([]searchHit, 0, len(res.Results))
	for _, v := range res.Results {
		if v.VideoID == "" {
			continue
		}
		hits = append(hits, searchHit{
			URL:   "https://www.youtube.com/watch?v=" + v.VideoID,
			Title: v.Title,
		})
	}
	return hits, nil
}

// lookupTitle resolves a display title for a direct URL. YouTube links go
// through the native client; anything else falls back to yt-dlp metadata.
func lookupTitle(ctx context.Context, url string) (string, error) {
	if youtubeURLRegex.MatchString(url) {
		client := youtube.Client{}
		video, err := client.GetVideoContext(ctx, url)
		if err != nil {
			return "", err
		}
		return video.Title, nil
	}

	res, err := ytdlp.New().
		Print("%(title)s").
		NoWarnings().
		IgnoreConfig().
		Run(ctx, url)
	if err != nil {
		return "", err
	}

	title := strings.TrimSpace(res.Stdout)
	if title == "" {
		return "", errors.New("empty title")
	}
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	return title, nil
}
