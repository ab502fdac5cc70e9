package model

import (
	"strconv"
	"strings"

	pkgerrors "codearena/pkg/errors"
)

var languageIDs = map[string]int{
	"c++":        54,
	"cpp":        54,
	"java":       62,
	"javascript": 63,
	"js":         63,
	"python":     71,
	"c":          50,
	"go":         60,
}

// LanguageID maps a language name to its Judge0 id.
func LanguageID(name string) (int, error) {
	id, ok := languageIDs[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, pkgerrors.New(pkgerrors.LanguageNotSupported).WithMessage("language not supported: " + name)
	}
	return id, nil
}

// SupportedLanguage reports whether name maps to a Judge0 id.
func SupportedLanguage(name string) bool {
	_, err := LanguageID(name)
	return err == nil
}

func parseSeconds(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return v
}
