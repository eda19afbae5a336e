package plex

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/plexrefresh/internal/pathmap"
)

// Strategy names how a refresh target was found.
const (
	StrategyDirect  = "direct"
	StrategyEpisode = "episode"
)

// ChildrenFetcher loads the children listing of a library item.
type ChildrenFetcher interface {
	Children(ctx context.Context, ratingKey string) (*Document, error)
}

// Target is the library item chosen for the item-level refresh.
type Target struct {
	RatingKey string
	Title     string
	Strategy  string
}

// Locator resolves a remote file path to a single library item. It tries a
// direct file match first and only walks show, season and episode listings
// when that fails.
type Locator struct {
	fetcher ChildrenFetcher
	policy  TitlePolicy
	out     *Outcome
}

// NewLocator creates a locator that appends its progress to out.
func NewLocator(fetcher ChildrenFetcher, policy TitlePolicy, out *Outcome) *Locator {
	if policy.Mode == "" {
		policy.Mode = TitleMatchFuzzy
	}
	return &Locator{fetcher: fetcher, policy: policy, out: out}
}

// Locate runs the lookup chain against the library listing. The error is a
// *NotFoundError or *TransportError describing the step that stopped it.
func (l *Locator) Locate(ctx context.Context, library *Document, file string) (Target, error) {
	if video, ok := library.FindVideoByFile(file); ok {
		l.out.logf("Found %s by file path", describeVideo(video))
		return Target{RatingKey: video.RatingKey(), Title: video.Title(), Strategy: StrategyDirect}, nil
	}

	l.out.logf("Could not locate item by file path in library. Trying TV show...")

	segments := pathmap.Segments(file)
	seasonIndex := InferSeasonIndex(segments)
	showTitle := DeriveShowTitle(segments)

	if seasonIndex == SeasonUnknown {
		l.out.logf("Could not determine season from path %s", file)
		return Target{}, &NotFoundError{Step: "season index", Detail: "no season folder or episode code in " + file}
	}
	if showTitle == "" {
		l.out.logf("Could not determine show folder from path %s", file)
		return Target{}, &NotFoundError{Step: "show title", Detail: "path too short: " + file}
	}

	l.out.logf("Attempting to find TV show %s (%s match)", showTitle, l.policy.Mode)
	show, ok := library.FindShowByTitle(showTitle, l.policy)
	if !ok || show.RatingKey() == "" {
		l.out.logf("Could not find TV show %s", showTitle)
		return Target{}, &NotFoundError{Step: "show", Detail: "no show matching " + showTitle}
	}
	l.out.logf("Found TV show %s", show.Title())
	log.Debug().
		Str("show", show.Title()).
		Str("rating_key", show.RatingKey()).
		Int("season", seasonIndex).
		Msg("Matched show")

	seasons, err := l.fetcher.Children(ctx, show.RatingKey())
	if err != nil {
		l.out.logf("Could not fetch seasons for %s: %v", show.Title(), err)
		return Target{}, err
	}

	l.out.logf("Attempting to find season %d", seasonIndex)
	season, ok := seasons.FindSeasonByIndex(seasonIndex)
	if !ok || season.RatingKey() == "" {
		l.out.logf("Could not find season %d of %s", seasonIndex, show.Title())
		return Target{}, &NotFoundError{Step: "season", Detail: fmt.Sprintf("no season %d for %s", seasonIndex, show.Title())}
	}

	episodes, err := l.fetcher.Children(ctx, season.RatingKey())
	if err != nil {
		l.out.logf("Could not fetch episodes for season %d: %v", seasonIndex, err)
		return Target{}, err
	}

	l.out.logf("Attempting to find episode %s", file)
	episode, ok := episodes.FindVideoByFile(file)
	if !ok {
		l.out.logf("Could not find episode %s in season %d", file, seasonIndex)
		return Target{}, &NotFoundError{Step: "episode", Detail: "no episode with file " + file}
	}
	l.out.logf("Found %s", describeVideo(episode))

	return Target{RatingKey: episode.RatingKey(), Title: episode.Title(), Strategy: StrategyEpisode}, nil
}

// describeVideo renders "S02E05 - Title" for episodes and the title otherwise.
func describeVideo(video *Node) string {
	season, hasSeason := video.ParentIndex()
	episode, hasEpisode := video.Index()
	if video.Type() == "episode" && hasSeason && hasEpisode {
		return fmt.Sprintf("episode S%02dE%02d - %s", season, episode, video.Title())
	}
	if t := video.Type(); t != "" {
		return fmt.Sprintf("%s %s", t, video.Title())
	}
	return video.Title()
}
