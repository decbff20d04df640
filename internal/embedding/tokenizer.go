package embedding

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	maxInputCharsPerWord = 100
	maxSequenceLength    = 256

	tokenCLS = "[CLS]"
	tokenSEP = "[SEP]"
	tokenUNK = "[UNK]"
	tokenPAD = "[PAD]"
)

// tokenizerFile mirrors just the piece of a HuggingFace fast-tokenizer
// tokenizer.json this package needs: the flat WordPiece vocabulary. Every
// other field (normalizer, pre_tokenizer, post_processor configuration)
// belongs to the embedding runtime's own internals and is left opaque.
type tokenizerFile struct {
	Model struct {
		Vocab map[string]int64 `json:"vocab"`
	} `json:"model"`
}

type tokenizer struct {
	vocab map[string]int64
}

func loadTokenizer(modelDir string) (*tokenizer, error) {
	path := filepath.Join(modelDir, "tokenizer.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("embedding: read tokenizer.json: %w", err)
	}
	var tf tokenizerFile
	if err := json.Unmarshal(raw, &tf); err != nil {
		return nil, fmt.Errorf("embedding: parse tokenizer.json: %w", err)
	}
	if len(tf.Model.Vocab) == 0 {
		return nil, fmt.Errorf("embedding: tokenizer.json has no vocabulary")
	}
	return &tokenizer{vocab: tf.Model.Vocab}, nil
}

// encode lowercases and splits text on runs of non-alphanumeric
// characters, WordPiece-tokenizes each resulting word against the
// vocabulary, and wraps the result in [CLS]/[SEP]. It returns the input
// ids, attention mask, and token type ids (always zero, single-segment)
// ready for the model.
func (t *tokenizer) encode(text string) (ids, attentionMask, tokenTypeIDs []int64) {
	words := splitWords(strings.ToLower(text))

	pieces := make([]string, 0, len(words)+2)
	pieces = append(pieces, tokenCLS)
	for _, w := range words {
		pieces = append(pieces, t.wordpiece(w)...)
		if len(pieces) >= maxSequenceLength-1 {
			break
		}
	}
	if len(pieces) > maxSequenceLength-1 {
		pieces = pieces[:maxSequenceLength-1]
	}
	pieces = append(pieces, tokenSEP)

	ids = make([]int64, len(pieces))
	attentionMask = make([]int64, len(pieces))
	tokenTypeIDs = make([]int64, len(pieces))
	unk, hasUnk := t.vocab[tokenUNK]
	for i, p := range pieces {
		id, ok := t.vocab[p]
		if !ok {
			if hasUnk {
				id = unk
			}
		}
		ids[i] = id
		attentionMask[i] = 1
	}
	return ids, attentionMask, tokenTypeIDs
}

// wordpiece greedily matches the longest vocabulary entry from the start
// of word, prefixing continuation pieces with "##", the standard
// WordPiece algorithm.
func (t *tokenizer) wordpiece(word string) []string {
	if len(word) == 0 {
		return nil
	}
	if len(word) > maxInputCharsPerWord {
		return []string{tokenUNK}
	}

	runes := []rune(word)
	var tokens []string
	start := 0
	for start < len(runes) {
		end := len(runes)
		var match string
		for end > start {
			candidate := string(runes[start:end])
			if start > 0 {
				candidate = "##" + candidate
			}
			if _, ok := t.vocab[candidate]; ok {
				match = candidate
				break
			}
			end--
		}
		if match == "" {
			return []string{tokenUNK}
		}
		tokens = append(tokens, match)
		start = end
	}
	return tokens
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r > 127
		return !isAlnum
	})
}
