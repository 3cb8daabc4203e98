package domain

// Языки, которые понимает редактор. Подсветка и иконки — на фронте,
// здесь только валидация и определение языка по расширению.
var SupportedLanguages = []string{
	"javascript",
	"typescript",
	"python",
	"java",
	"c",
	"cpp",
	"csharp",
	"go",
	"rust",
	"ruby",
	"php",
	"html",
	"css",
	"json",
	"markdown",
}

var extByLanguage = map[string]string{
	"javascript": "js",
	"typescript": "ts",
	"python":     "py",
	"java":       "java",
	"c":          "c",
	"cpp":        "cpp",
	"csharp":     "cs",
	"go":         "go",
	"rust":       "rs",
	"ruby":       "rb",
	"php":        "php",
	"html":       "html",
	"css":        "css",
	"json":       "json",
	"markdown":   "md",
}

func IsSupportedLanguage(lang string) bool {
	_, ok := extByLanguage[lang]
	return ok
}

func ExtForLanguage(lang string) string {
	return extByLanguage[lang]
}

// LanguageForExt — обратное отображение; "" если расширение не знакомо.
func LanguageForExt(ext string) string {
	for lang, e := range extByLanguage {
		if e == ext {
			return lang
		}
	}
	return ""
}
