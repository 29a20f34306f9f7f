// Package tokenizer bounds prompt material to a token budget before it is sent
// to the text generator.
package tokenizer

// Tokenizer 是统一的 token 计数与截断接口
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数
	CountTokens(text string) (int, error)

	// Truncate 将文本截断到最多 maxTokens 个 token
	Truncate(text string, maxTokens int) (string, error)

	// Name 返回分词器名称
	Name() string
}

// New returns a tiktoken-backed tokenizer for encoding, falling back to the
// character estimator when the encoding cannot be loaded.
func New(encoding string) Tokenizer {
	t := NewTiktokenTokenizer(encoding)
	if err := t.init(); err != nil {
		return NewEstimatorTokenizer()
	}
	return t
}

// TruncateOrKeep truncates text with t and keeps the original on error.
func TruncateOrKeep(t Tokenizer, text string, maxTokens int) string {
	if t == nil || maxTokens <= 0 {
		return text
	}
	out, err := t.Truncate(text, maxTokens)
	if err != nil {
		return text
	}
	return out
}
