// Package text normalizes transcripts and target text before they are handed
// to the inference engine.
package text

import (
	"strings"
)

const (
	byteOrderMark  = "\ufeff"
	emDash         = "—"
	enDash         = "–"
	figureDash     = "‒"
	ellipsis       = "..."
	ellipsisChar   = "…"
	carriageReturn = "\r\n"
	lineFeed       = "\n"
)

// Preprocessor cleans up text layout without touching its wording.
type Preprocessor struct {
	// Efficient replacer for typographic punctuation.
	punctuationReplacer *strings.Replacer
}

// NewPreprocessor creates a preprocessor with its replacers built up front.
func NewPreprocessor() *Preprocessor {
	return &Preprocessor{
		punctuationReplacer: strings.NewReplacer(
			emDash, "-",
			enDash, "-",
			figureDash, "-",
			ellipsisChar, ellipsis,
		),
	}
}

// Normalize strips a leading byte order mark, folds line breaks and runs of
// whitespace (including ideographic spaces) into single spaces, and trims
// the result.
func (p *Preprocessor) Normalize(text string) string {
	if text == "" {
		return text
	}

	text = strings.TrimPrefix(text, byteOrderMark)
	text = strings.ReplaceAll(text, carriageReturn, lineFeed)

	return strings.Join(strings.Fields(text), " ")
}

// NormalizePunctuation additionally maps typographic dashes and ellipses to
// their ASCII forms.
func (p *Preprocessor) NormalizePunctuation(text string) string {
	return p.punctuationReplacer.Replace(p.Normalize(text))
}
