// Package tokenizer loads a model's HuggingFace tokenizer and turns generated
// token ids back into text.
package tokenizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomlx/go-huggingface/tokenizers"
	"github.com/gomlx/go-huggingface/tokenizers/api"
	"github.com/gomlx/go-huggingface/tokenizers/hftokenizer"
)

// ErrNoTokenizer is returned when a model directory has no tokenizer.json
var ErrNoTokenizer = errors.New("no tokenizer.json found")

// Decoder decodes generated ids with special tokens removed
type Decoder struct {
	tok     tokenizers.Tokenizer
	special map[int]struct{}
}

// addedToken is the part of a tokenizer.json added_tokens entry we need
type addedToken struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
	Special bool   `json:"special"`
}

// Load reads tokenizer.json, and tokenizer_config.json when present, from dir
func Load(dir string) (*Decoder, error) {
	tokenizerPath := filepath.Join(dir, "tokenizer.json")
	content, err := os.ReadFile(tokenizerPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w in %s", ErrNoTokenizer, dir)
		}
		return nil, fmt.Errorf("reading tokenizer.json: %w", err)
	}

	config, err := loadConfig(filepath.Join(dir, "tokenizer_config.json"))
	if err != nil {
		return nil, err
	}

	tok, err := hftokenizer.NewFromContent(config, content)
	if err != nil {
		return nil, fmt.Errorf("loading tokenizer.json: %w", err)
	}

	special, err := specialIDs(content)
	if err != nil {
		return nil, err
	}
	return &Decoder{tok: tok, special: special}, nil
}

// Decode returns the text for ids, skipping special tokens
func (d *Decoder) Decode(ids []int) string {
	kept := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, skip := d.special[id]; skip {
			continue
		}
		kept = append(kept, id)
	}
	if len(kept) == 0 {
		return ""
	}
	return strings.TrimSpace(d.tok.Decode(kept))
}

func loadConfig(path string) (*api.Config, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading tokenizer config: %w", err)
	}
	normalized, err := normalizeConfig(raw)
	if err != nil {
		return nil, err
	}
	config, err := api.ParseConfigContent(normalized)
	if err != nil {
		return nil, fmt.Errorf("parsing tokenizer config: %w", err)
	}
	config.ConfigFile = path
	return config, nil
}

// normalizeConfig flattens {"__type":"AddedToken","content":"<s>"} special
// token entries into plain strings
func normalizeConfig(content []byte) ([]byte, error) {
	var raw map[string]any
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("parsing tokenizer config: %w", err)
	}
	for _, field := range []string{"bos_token", "eos_token", "pad_token", "unk_token", "cls_token", "sep_token", "mask_token"} {
		if v, ok := raw[field].(map[string]any); ok {
			content, _ := v["content"].(string)
			raw[field] = content
		}
	}
	return json.Marshal(raw)
}

func specialIDs(content []byte) (map[int]struct{}, error) {
	var file struct {
		AddedTokens []addedToken `json:"added_tokens"`
	}
	if err := json.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("parsing tokenizer.json: %w", err)
	}
	special := make(map[int]struct{}, len(file.AddedTokens))
	for _, t := range file.AddedTokens {
		if t.Special {
			special[t.ID] = struct{}{}
		}
	}
	return special, nil
}
