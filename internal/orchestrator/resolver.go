package orchestrator

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"sourcefetch/features/source"
	"sourcefetch/internal/pipeline"
)

var ErrUnresolvableSource = errors.New("cannot derive external id from source url")

// ExternalIDResolver derives the platform-native handle a collector queries.
type ExternalIDResolver interface {
	Resolve(src *source.Source) (string, error)
}

type ResolverFunc func(src *source.Source) (string, error)

func (f ResolverFunc) Resolve(src *source.Source) (string, error) { return f(src) }

// URLResolver parses the handle out of the source URL. Platforms without a
// specific rule use the normalized URL itself.
type URLResolver struct {
	rules map[pipeline.Platform]ResolverFunc
}

func NewURLResolver() *URLResolver {
	return &URLResolver{rules: map[pipeline.Platform]ResolverFunc{
		pipeline.PlatformReddit:   pathAfter("r"),
		pipeline.PlatformYouTube:  youtubeChannel,
		pipeline.PlatformMastodon: mastodonAccount,
		pipeline.PlatformTelegram: firstSegment,
		pipeline.PlatformX:        firstSegment,
	}}
}

// Register overrides or adds a platform rule.
func (r *URLResolver) Register(p pipeline.Platform, fn ResolverFunc) {
	r.rules[p] = fn
}

func (r *URLResolver) Resolve(src *source.Source) (string, error) {
	if id := strings.TrimSpace(src.FetchConfig["external_id"]); id != "" {
		return id, nil
	}
	if rule, ok := r.rules[src.Platform]; ok {
		return rule(src)
	}
	return normalizedURL(src)
}

func parse(src *source.Source) (*url.URL, []string, error) {
	u, err := url.Parse(strings.TrimSpace(src.URL))
	if err != nil || u.Host == "" {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnresolvableSource, src.URL)
	}
	var segs []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return u, segs, nil
}

func normalizedURL(src *source.Source) (string, error) {
	u, _, err := parse(src)
	if err != nil {
		return "", err
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return u.String(), nil
}

func firstSegment(src *source.Source) (string, error) {
	_, segs, err := parse(src)
	if err != nil {
		return "", err
	}
	if len(segs) == 0 {
		return "", fmt.Errorf("%w: %q", ErrUnresolvableSource, src.URL)
	}
	return strings.TrimPrefix(segs[0], "@"), nil
}

// pathAfter returns the segment following marker, e.g. /r/golang → golang.
func pathAfter(marker string) ResolverFunc {
	return func(src *source.Source) (string, error) {
		_, segs, err := parse(src)
		if err != nil {
			return "", err
		}
		for i := 0; i < len(segs)-1; i++ {
			if segs[i] == marker {
				return segs[i+1], nil
			}
		}
		return "", fmt.Errorf("%w: %q", ErrUnresolvableSource, src.URL)
	}
}

func youtubeChannel(src *source.Source) (string, error) {
	u, segs, err := parse(src)
	if err != nil {
		return "", err
	}
	if id := u.Query().Get("channel_id"); id != "" {
		return id, nil
	}
	if len(segs) >= 2 && (segs[0] == "channel" || segs[0] == "c" || segs[0] == "user") {
		return segs[1], nil
	}
	if len(segs) >= 1 && strings.HasPrefix(segs[0], "@") {
		return segs[0], nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnresolvableSource, src.URL)
}

// mastodonAccount yields user@instance so the handle is globally unique.
func mastodonAccount(src *source.Source) (string, error) {
	u, segs, err := parse(src)
	if err != nil {
		return "", err
	}
	for _, s := range segs {
		if strings.HasPrefix(s, "@") && len(s) > 1 {
			return strings.TrimPrefix(s, "@") + "@" + strings.ToLower(u.Host), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnresolvableSource, src.URL)
}
