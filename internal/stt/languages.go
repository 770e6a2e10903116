package stt

import "strings"

// Language is a supported recognition language
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// supportedLanguages is ordered; detection candidates keep this order
var supportedLanguages = []Language{
	{"sv", "Swedish"},
	{"en", "English"},
	{"da", "Danish"},
	{"no", "Norwegian"},
	{"fi", "Finnish"},
	{"de", "German"},
	{"fr", "French"},
	{"es", "Spanish"},
	{"it", "Italian"},
	{"nl", "Dutch"},
}

// SupportedLanguages returns the supported languages in order
func SupportedLanguages() []Language {
	return append([]Language(nil), supportedLanguages...)
}

// LanguageCodes returns the supported language codes in order
func LanguageCodes() []string {
	codes := make([]string, len(supportedLanguages))
	for i, l := range supportedLanguages {
		codes[i] = l.Code
	}
	return codes
}

// LanguageNames maps every supported code to its English name
func LanguageNames() map[string]string {
	names := make(map[string]string, len(supportedLanguages))
	for _, l := range supportedLanguages {
		names[l.Code] = l.Name
	}
	return names
}

// IsSupported reports whether code is a supported language code
func IsSupported(code string) bool {
	for _, l := range supportedLanguages {
		if l.Code == code {
			return true
		}
	}
	return false
}

// NormalizeLanguage maps a code or English name to a lower-case code.
// Unknown values are returned lower-cased.
func NormalizeLanguage(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, l := range supportedLanguages {
		if s == l.Code || s == strings.ToLower(l.Name) {
			return l.Code
		}
	}
	if s == "norsk" || s == "nb" || s == "nn" {
		return "no"
	}
	return s
}

// candidateLanguages intersects requested with the supported set, keeping the
// requested order. An empty or disjoint request yields every supported language.
func candidateLanguages(requested []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range requested {
		code := NormalizeLanguage(r)
		if IsSupported(code) && !seen[code] {
			out = append(out, code)
			seen[code] = true
		}
	}
	if len(out) == 0 {
		return LanguageCodes()
	}
	return out
}
