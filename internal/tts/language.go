package tts

// Canonical language names understood by the model.
const (
	LanguageChinese          = "Chinese"
	LanguageEnglish          = "English"
	LanguageJapanese         = "Japanese"
	LanguageCantonese        = "Cantonese"
	LanguageKorean           = "Korean"
	LanguageChineseEnglish   = "Chinese-English Mixed"
	LanguageJapaneseEnglish  = "Japanese-English Mixed"
	LanguageCantoneseEnglish = "Cantonese-English Mixed"
	LanguageKoreanEnglish    = "Korean-English Mixed"
	LanguageMultilingual     = "Multilingual Mixed"
)

// AutoLanguageCode selects mixed-language detection for the target text.
const AutoLanguageCode = "auto"

// DefaultReferenceLanguageCode is the language of the bundled reference clip.
const DefaultReferenceLanguageCode = "ja"

// referenceLanguages are the codes a reference clip may be recorded in.
// Mixed-language references are not supported by the model.
var referenceLanguages = map[string]string{
	"zh":  LanguageChinese,
	"en":  LanguageEnglish,
	"ja":  LanguageJapanese,
	"yue": LanguageCantonese,
	"ko":  LanguageKorean,
}

var mixedTargetLanguages = map[string]string{
	"zh+en":  LanguageChineseEnglish,
	"ja+en":  LanguageJapaneseEnglish,
	"yue+en": LanguageCantoneseEnglish,
	"ko+en":  LanguageKoreanEnglish,
}

// Languages resolves request language codes to canonical model names.
type Languages struct {
	reference map[string]string
	target    map[string]string
}

// NewLanguages builds the language tables. allowAuto adds the "auto" target
// code for multilingual input.
func NewLanguages(allowAuto bool) Languages {
	target := make(map[string]string, len(referenceLanguages)+len(mixedTargetLanguages)+1)

	for code, name := range referenceLanguages {
		target[code] = name
	}

	for code, name := range mixedTargetLanguages {
		target[code] = name
	}

	if allowAuto {
		target[AutoLanguageCode] = LanguageMultilingual
	}

	return Languages{reference: referenceLanguages, target: target}
}

// Target returns the canonical name for a target language code.
func (l Languages) Target(code string) (string, bool) {
	name, ok := l.target[code]

	return name, ok
}

// Reference returns the canonical name for a reference language code.
func (l Languages) Reference(code string) (string, bool) {
	name, ok := l.reference[code]

	return name, ok
}
