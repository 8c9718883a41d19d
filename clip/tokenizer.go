package clip

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
)

// ContextLength is the fixed text sequence length of the CLIP text encoder.
const ContextLength = 77

const (
	startToken = "<|startoftext|>"
	endToken   = "<|endoftext|>"
	endOfWord  = "</w>"
)

var (
	wordPattern = regexp.MustCompile(`(?i)<\|startoftext\|>|<\|endoftext\|>|'s|'t|'re|'ve|'m|'ll|'d|[\p{L}]+|[\p{N}]|[^\s\p{L}\p{N}]+`)
	spaces      = regexp.MustCompile(`\s+`)
	byteRunes   = bytesToUnicode()
)

type pair struct {
	a, b string
}

// Tokenizer is the byte-level BPE tokenizer CLIP was trained with.
type Tokenizer struct {
	vocab map[string]int64
	ranks map[pair]int
	sot   int64
	eot   int64

	mu    sync.Mutex
	cache map[string][]string
}

func NewTokenizer(vocab map[string]int64, merges [][2]string) (*Tokenizer, error) {
	sot, ok := vocab[startToken]
	if !ok {
		return nil, fmt.Errorf("vocab is missing %s", startToken)
	}
	eot, ok := vocab[endToken]
	if !ok {
		return nil, fmt.Errorf("vocab is missing %s", endToken)
	}
	ranks := make(map[pair]int, len(merges))
	for i, m := range merges {
		ranks[pair{m[0], m[1]}] = i
	}
	return &Tokenizer{
		vocab: vocab,
		ranks: ranks,
		sot:   sot,
		eot:   eot,
		cache: map[string][]string{
			startToken: {startToken},
			endToken:   {endToken},
		},
	}, nil
}

// LoadTokenizer reads a Hugging Face style vocab.json and merges.txt pair.
func LoadTokenizer(vocabPath, mergesPath string) (*Tokenizer, error) {
	data, err := os.ReadFile(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocab: %w", err)
	}
	var vocab map[string]int64
	if err := json.Unmarshal(data, &vocab); err != nil {
		return nil, fmt.Errorf("failed to parse vocab: %w", err)
	}

	merges, err := readMerges(mergesPath)
	if err != nil {
		return nil, err
	}
	return NewTokenizer(vocab, merges)
}

func readMerges(path string) ([][2]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open merges: %w", err)
	}
	defer f.Close()

	var merges [][2]string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		a, b, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("malformed merge %q", line)
		}
		merges = append(merges, [2]string{a, b})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read merges: %w", err)
	}
	return merges, nil
}

// Encode tokenizes text and wraps it in start/end tokens, truncated to ContextLength.
func (t *Tokenizer) Encode(text string) []int64 {
	text = strings.ToLower(strings.TrimSpace(spaces.ReplaceAllString(text, " ")))

	ids := []int64{t.sot}
	for _, word := range wordPattern.FindAllString(text, -1) {
		var sb strings.Builder
		for _, b := range []byte(word) {
			sb.WriteRune(byteRunes[b])
		}
		for _, piece := range t.bpe(sb.String()) {
			id, ok := t.vocab[piece]
			if !ok {
				id = t.eot
			}
			ids = append(ids, id)
		}
	}

	if len(ids) > ContextLength-1 {
		ids = ids[:ContextLength-1]
	}
	return append(ids, t.eot)
}

// Pad returns ContextLength-long ids and attention mask for text. Padding is zero.
func (t *Tokenizer) Pad(text string) (ids, mask []int64) {
	enc := t.Encode(text)
	ids = make([]int64, ContextLength)
	mask = make([]int64, ContextLength)
	copy(ids, enc)
	for i := range enc {
		mask[i] = 1
	}
	return ids, mask
}

func (t *Tokenizer) bpe(token string) []string {
	t.mu.Lock()
	if cached, ok := t.cache[token]; ok {
		t.mu.Unlock()
		return cached
	}
	t.mu.Unlock()

	runes := []rune(token)
	word := make([]string, len(runes))
	for i, r := range runes {
		word[i] = string(r)
	}
	word[len(word)-1] += endOfWord

	for len(word) > 1 {
		best, bestRank := -1, 0
		for i := 0; i < len(word)-1; i++ {
			if r, ok := t.ranks[pair{word[i], word[i+1]}]; ok && (best < 0 || r < bestRank) {
				best, bestRank = i, r
			}
		}
		if best < 0 {
			break
		}

		first, second := word[best], word[best+1]
		merged := make([]string, 0, len(word))
		for i := 0; i < len(word); i++ {
			if i < len(word)-1 && word[i] == first && word[i+1] == second {
				merged = append(merged, first+second)
				i++
				continue
			}
			merged = append(merged, word[i])
		}
		word = merged
	}

	t.mu.Lock()
	t.cache[token] = word
	t.mu.Unlock()
	return word
}

// bytesToUnicode maps every byte to a printable rune, leaving printable latin-1 bytes as-is.
func bytesToUnicode() [256]rune {
	var table [256]rune
	printable := func(b int) bool {
		return (b >= '!' && b <= '~') || (b >= 0xA1 && b <= 0xAC) || (b >= 0xAE && b <= 0xFF)
	}
	n := 0
	for b := 0; b < 256; b++ {
		if printable(b) {
			table[b] = rune(b)
			continue
		}
		table[b] = rune(256 + n)
		n++
	}
	return table
}
