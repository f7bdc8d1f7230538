package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fres-sudo/neuravia/pkg/metrics"
	lru "github.com/hashicorp/golang-lru/v2"
)

// EmojiCount is how many emojis are requested per profession.
const EmojiCount = 5

const defaultEmojiCacheSize = 256

const emojiPrompt = `Generate exactly %d relevant emojis that represent the job: %q.
Respond ONLY with a JSON array of emojis. Example: ["💻","🖥️","👨‍💻","👩‍💻","🧑‍💻"]`

// Completer is the subset of Client used by the emoji generator.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// EmojiGenerator picks emojis for a patient's profession to personalise
// game assets. Answers are cached per normalised profession.
type EmojiGenerator struct {
	completer Completer
	cache     *lru.Cache[string, []string]
}

// NewEmojiGenerator builds a generator with an LRU of cacheSize entries.
func NewEmojiGenerator(c Completer, cacheSize int) *EmojiGenerator {
	if cacheSize <= 0 {
		cacheSize = defaultEmojiCacheSize
	}
	cache, err := lru.New[string, []string](cacheSize)
	if err != nil {
		// only reachable with a non-positive size
		panic(err)
	}
	return &EmojiGenerator{completer: c, cache: cache}
}

// Emojis returns up to EmojiCount emojis for profession.
func (g *EmojiGenerator) Emojis(ctx context.Context, profession string) ([]string, error) {
	key := strings.ToLower(strings.TrimSpace(profession))
	if key == "" {
		return nil, ErrMissingJobName
	}
	if cached, ok := g.cache.Get(key); ok {
		metrics.RecordCompletionCache(true)
		return append([]string(nil), cached...), nil
	}
	metrics.RecordCompletionCache(false)

	raw, err := g.completer.Complete(ctx, fmt.Sprintf(emojiPrompt, EmojiCount, strings.TrimSpace(profession)))
	if err != nil {
		return nil, err
	}
	emojis, err := ParseEmojis(raw)
	if err != nil {
		return nil, err
	}
	g.cache.Add(key, emojis)
	return append([]string(nil), emojis...), nil
}

// ParseEmojis decodes a JSON array of non-empty strings, tolerating a
// markdown code fence around it. Extra entries beyond EmojiCount are dropped.
func ParseEmojis(raw string) ([]string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	var list []string
	if err := json.Unmarshal([]byte(s), &list); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEmojis, raw)
	}
	out := make([]string, 0, EmojiCount)
	for _, e := range list {
		e = strings.TrimSpace(e)
		if e == "" {
			return nil, fmt.Errorf("%w: empty entry", ErrInvalidEmojis)
		}
		if len(out) < EmojiCount {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty array", ErrInvalidEmojis)
	}
	return out, nil
}
