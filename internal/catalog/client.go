package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/pokedeck/internal/cards"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultPokeAPIURL     = "https://pokeapi.co/api/v2"
	defaultRateInterval   = 100 * time.Millisecond
	defaultRequestTimeout = 30 * time.Second
	defaultMaxRetries     = 3
	defaultInitialBackoff = time.Second
	maxBackoff            = 16 * time.Second
	creatureListLimit     = 1000
)

// Cache kinds under which catalog responses are stored.
const (
	KindTypes          = "types"
	KindCreatures      = "creatures"
	KindTrainers       = "trainers"
	KindEnergy         = "energy"
	KindCreatureDetail = "creature_detail"
)

var (
	// ErrInvalidConfig indicates an unusable client configuration.
	ErrInvalidConfig = errors.New("catalog: invalid config")
	// ErrInvalidReference indicates a creature reference that is not an absolute URL.
	ErrInvalidReference = errors.New("catalog: invalid reference")
	// ErrUnavailable indicates the catalog source could not be reached or
	// answered with an error status after all retries.
	ErrUnavailable = errors.New("catalog: unavailable")
)

// Cache stores raw catalog payloads keyed by kind and key.
type Cache interface {
	PutCatalog(ctx context.Context, kind, key string, payload []byte) error
	GetCatalog(ctx context.Context, kind, key string) (payload []byte, fetchedAt time.Time, found bool, err error)
}

// ClientConfig configures the catalog client.
type ClientConfig struct {
	PokeAPIBaseURL     string
	DeckServiceBaseURL string
	HTTPClient         *http.Client
	RateInterval       time.Duration
	MaxRetries         int
	InitialBackoff     time.Duration
	Cache              Cache
	CacheTTL           time.Duration
	Clock              func() time.Time
	Logger             *zap.Logger
}

// Client reads the public creature catalog and the trainer and energy
// catalogs published by the Deck Service. Requests are unauthenticated,
// rate limited and retried on 429 and 5xx responses.
type Client struct {
	pokeAPIURL     string
	deckServiceURL string
	httpClient     *http.Client
	rateLimiter    *rate.Limiter
	maxRetries     int
	initialBackoff time.Duration
	cache          Cache
	cacheTTL       time.Duration
	clock          func() time.Time
	logger         *zap.Logger
}

// NewClient validates the configuration and constructs a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	pokeAPIURL := strings.TrimSpace(cfg.PokeAPIBaseURL)
	if pokeAPIURL == "" {
		pokeAPIURL = defaultPokeAPIURL
	}
	if !isAbsoluteURL(pokeAPIURL) {
		return nil, fmt.Errorf("%w: pokeapi url %q is not absolute", ErrInvalidConfig, pokeAPIURL)
	}
	deckServiceURL := strings.TrimSpace(cfg.DeckServiceBaseURL)
	if !isAbsoluteURL(deckServiceURL) {
		return nil, fmt.Errorf("%w: deck service url %q is not absolute", ErrInvalidConfig, deckServiceURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	interval := cfg.RateInterval
	if interval <= 0 {
		interval = defaultRateInterval
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	} else if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}
	initialBackoff := cfg.InitialBackoff
	if initialBackoff <= 0 {
		initialBackoff = defaultInitialBackoff
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		pokeAPIURL:     strings.TrimRight(pokeAPIURL, "/"),
		deckServiceURL: strings.TrimRight(deckServiceURL, "/"),
		httpClient:     httpClient,
		rateLimiter:    rate.NewLimiter(rate.Every(interval), 1),
		maxRetries:     maxRetries,
		initialBackoff: initialBackoff,
		cache:          cfg.Cache,
		cacheTTL:       cfg.CacheTTL,
		clock:          clock,
		logger:         logger,
	}, nil
}

// ListTypes returns the creature type names used for filtering.
func (c *Client) ListTypes(ctx context.Context) ([]string, error) {
	var names []string
	err := c.cached(ctx, KindTypes, "all", &names, func() error {
		var response namedResourceList
		if err := c.doRequest(ctx, c.pokeAPIURL+"/type", &response); err != nil {
			return err
		}
		names = make([]string, 0, len(response.Results))
		for _, resource := range response.Results {
			names = append(names, resource.Name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list types: %w", err)
	}
	return names, nil
}

// ListCreatures returns the creature catalog, restricted to one type when
// typeFilter is non-empty.
func (c *Client) ListCreatures(ctx context.Context, typeFilter string) ([]cards.Card, error) {
	typeFilter = strings.ToLower(strings.TrimSpace(typeFilter))
	key := typeFilter
	if key == "" {
		key = "all"
	}

	var creatures []cards.Card
	err := c.cached(ctx, KindCreatures, key, &creatures, func() error {
		if typeFilter == "" {
			var response namedResourceList
			endpoint := c.pokeAPIURL + "/pokemon?limit=" + strconv.Itoa(creatureListLimit)
			if err := c.doRequest(ctx, endpoint, &response); err != nil {
				return err
			}
			creatures = creaturesFromResources(response.Results)
			return nil
		}
		var response typeResponse
		if err := c.doRequest(ctx, c.pokeAPIURL+"/type/"+url.PathEscape(typeFilter), &response); err != nil {
			return err
		}
		resources := make([]namedResource, 0, len(response.Pokemon))
		for _, entry := range response.Pokemon {
			resources = append(resources, entry.Pokemon)
		}
		creatures = creaturesFromResources(resources)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list creatures: %w", err)
	}
	return creatures, nil
}

// ListTrainers returns the trainer catalog.
func (c *Client) ListTrainers(ctx context.Context) ([]cards.Card, error) {
	var trainers []cards.Card
	err := c.cached(ctx, KindTrainers, "all", &trainers, func() error {
		var payloads []trainerPayload
		if err := c.doRequest(ctx, c.deckServiceURL+"/tcg/external/trainers", &payloads); err != nil {
			return err
		}
		trainers = trainersFromPayload(payloads)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list trainers: %w", err)
	}
	return trainers, nil
}

// ListEnergy returns the energy catalog.
func (c *Client) ListEnergy(ctx context.Context) ([]cards.Card, error) {
	var energy []cards.Card
	err := c.cached(ctx, KindEnergy, "all", &energy, func() error {
		var payloads []energyPayload
		if err := c.doRequest(ctx, c.deckServiceURL+"/tcg/cached/energy", &payloads); err != nil {
			return err
		}
		energy = energyFromPayload(payloads)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list energy: %w", err)
	}
	return energy, nil
}

// GetCreatureDetail resolves a creature reference into stats, types, moves
// and the first English species description. Only references to a creature
// under the configured catalog base URL are followed.
func (c *Client) GetCreatureDetail(ctx context.Context, ref string) (CreatureDetail, error) {
	ref = strings.TrimSpace(ref)
	id, ok := c.catalogResourceID(ref, "pokemon")
	if !ok {
		return CreatureDetail{}, fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	endpoint := c.pokeAPIURL + "/pokemon/" + strconv.Itoa(id) + "/"

	var detail CreatureDetail
	err := c.cached(ctx, KindCreatureDetail, strconv.Itoa(id), &detail, func() error {
		var creature creaturePayload
		if err := c.doRequest(ctx, endpoint, &creature); err != nil {
			return err
		}
		description := noDescription
		if speciesID, ok := c.catalogResourceID(creature.Species.URL, "pokemon-species"); ok {
			var species speciesPayload
			speciesEndpoint := c.pokeAPIURL + "/pokemon-species/" + strconv.Itoa(speciesID) + "/"
			if err := c.doRequest(ctx, speciesEndpoint, &species); err != nil {
				c.logger.Warn("species lookup failed",
					zap.String("creature", creature.Name),
					zap.Error(err))
			} else {
				description = species.englishFlavorText()
			}
		} else if creature.Species.URL != "" {
			c.logger.Warn("species reference outside catalog ignored",
				zap.String("creature", creature.Name),
				zap.String("species_url", creature.Species.URL))
		}
		detail = creature.toDetail(description)
		return nil
	})
	if err != nil {
		return CreatureDetail{}, fmt.Errorf("get creature detail: %w", err)
	}
	return detail, nil
}

// catalogResourceID returns the numeric id of raw when it names a resource of
// the given kind on the configured catalog host, e.g. ".../pokemon/25/".
func (c *Client) catalogResourceID(raw, resource string) (int, bool) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.User != nil || parsed.RawQuery != "" || parsed.Fragment != "" {
		return 0, false
	}
	base, err := url.Parse(c.pokeAPIURL)
	if err != nil {
		return 0, false
	}
	if !strings.EqualFold(parsed.Scheme, base.Scheme) || !strings.EqualFold(parsed.Host, base.Host) {
		return 0, false
	}
	prefix := strings.TrimRight(base.Path, "/") + "/" + resource + "/"
	if !strings.HasPrefix(parsed.Path, prefix) {
		return 0, false
	}
	id, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(parsed.Path, prefix), "/"))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// cached serves a fresh cache entry when present, otherwise calls fetch and
// stores the result. When fetch fails a stale entry is served instead.
func (c *Client) cached(ctx context.Context, kind, key string, target any, fetch func() error) error {
	var stale []byte
	if c.cache != nil {
		payload, fetchedAt, found, err := c.cache.GetCatalog(ctx, kind, key)
		switch {
		case err != nil:
			c.logger.Warn("catalog cache read failed", zap.String("kind", kind), zap.Error(err))
		case found && c.cacheTTL > 0 && c.clock().Sub(fetchedAt) < c.cacheTTL:
			if err := json.Unmarshal(payload, target); err == nil {
				return nil
			}
		case found:
			stale = payload
		}
	}

	fetchErr := fetch()
	if fetchErr != nil {
		if stale != nil {
			if err := json.Unmarshal(stale, target); err == nil {
				c.logger.Warn("serving stale catalog entry",
					zap.String("kind", kind),
					zap.String("key", key),
					zap.Error(fetchErr))
				return nil
			}
		}
		return fetchErr
	}

	if c.cache != nil {
		payload, err := json.Marshal(target)
		if err == nil {
			err = c.cache.PutCatalog(ctx, kind, key, payload)
		}
		if err != nil {
			c.logger.Warn("catalog cache write failed", zap.String("kind", kind), zap.Error(err))
		}
	}
	return nil
}

// doRequest performs a GET with rate limiting and retry logic.
func (c *Client) doRequest(ctx context.Context, endpoint string, result any) error {
	var lastErr error
	backoff := c.initialBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		request.Header.Set("Accept", "application/json")

		retryAfter := time.Duration(0)
		response, err := c.httpClient.Do(request)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrUnavailable, err)
		} else {
			retry, handled := c.handleResponse(response, result)
			if handled == nil && !retry {
				return nil
			}
			lastErr = handled
			if !retry {
				return lastErr
			}
			retryAfter = parseRetryAfter(response.Header.Get("Retry-After"))
		}

		if attempt == c.maxRetries {
			break
		}
		wait := backoff
		if retryAfter > 0 {
			wait = retryAfter
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
		backoff = min(backoff*2, maxBackoff)
	}

	c.logger.Debug("catalog request failed",
		zap.String("endpoint", endpoint),
		zap.Int("attempts", c.maxRetries+1),
		zap.Error(lastErr))
	return lastErr
}

// handleResponse decodes a successful response into result. It reports
// whether the request should be retried along with the failure, if any.
func (c *Client) handleResponse(response *http.Response, result any) (bool, error) {
	defer func() { _ = response.Body.Close() }()

	switch {
	case response.StatusCode == http.StatusOK:
		if err := json.NewDecoder(response.Body).Decode(result); err != nil {
			return false, fmt.Errorf("decode response: %w", err)
		}
		return false, nil
	case response.StatusCode == http.StatusTooManyRequests || response.StatusCode >= http.StatusInternalServerError:
		_, _ = io.Copy(io.Discard, response.Body)
		return true, fmt.Errorf("%w: status %d", ErrUnavailable, response.StatusCode)
	default:
		_, _ = io.Copy(io.Discard, response.Body)
		return false, fmt.Errorf("%w: status %d", ErrUnavailable, response.StatusCode)
	}
}

func parseRetryAfter(value string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds <= 0 {
		return 0
	}
	return min(time.Duration(seconds)*time.Second, maxBackoff)
}

func sleep(ctx context.Context, duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isAbsoluteURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}
