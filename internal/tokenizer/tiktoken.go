package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// cl100k_base matches OpenAI chat models and is a close-enough proxy for
// the other providers we budget for.
const encoding = "cl100k_base"

// TiktokenTokenizer counts tokens with tiktoken's cl100k_base encoding.
type TiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

func NewTiktoken() (*TiktokenTokenizer, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("get encoding %s: %w", encoding, err)
	}
	return &TiktokenTokenizer{enc: enc}, nil
}

func (t *TiktokenTokenizer) CountTokens(text string) (int, error) {
	return len(t.enc.Encode(text, nil, nil)), nil
}
