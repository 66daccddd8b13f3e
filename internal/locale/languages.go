package locale

// Language describes a selectable language and its layout direction.
type Language struct {
	Code       string
	Name       string
	NativeName string
	RTL        bool
}

// DefaultLanguage is the fallback when neither a persisted choice nor the
// device locale applies.
var DefaultLanguage = Language{Code: "en", Name: "English", NativeName: "English"}

// SupportedLanguages lists the languages the UI can render. The default
// language must be first.
var SupportedLanguages = []Language{
	DefaultLanguage,
	{Code: "zh", Name: "Chinese", NativeName: "中文"},
	{Code: "ja", Name: "Japanese", NativeName: "日本語"},
	{Code: "ru", Name: "Russian", NativeName: "Русский"},
	{Code: "ar", Name: "Arabic", NativeName: "العربية", RTL: true},
}

// ContentLanguages lists the dub and translation target languages. It is a
// superset of the UI languages: content can be dubbed into languages the UI
// does not render.
var ContentLanguages = []Language{
	DefaultLanguage,
	{Code: "zh", Name: "Chinese", NativeName: "中文"},
	{Code: "ja", Name: "Japanese", NativeName: "日本語"},
	{Code: "ru", Name: "Russian", NativeName: "Русский"},
	{Code: "ar", Name: "Arabic", NativeName: "العربية", RTL: true},
	{Code: "es", Name: "Spanish", NativeName: "Español"},
	{Code: "fr", Name: "French", NativeName: "Français"},
	{Code: "de", Name: "German", NativeName: "Deutsch"},
	{Code: "ko", Name: "Korean", NativeName: "한국어"},
	{Code: "pt", Name: "Portuguese", NativeName: "Português"},
	{Code: "hi", Name: "Hindi", NativeName: "हिन्दी"},
}

// SupportedByCode returns the UI language for code, if any.
func SupportedByCode(code string) (Language, bool) {
	return byCode(SupportedLanguages, code)
}

// ContentByCode returns the content language for code, if any.
func ContentByCode(code string) (Language, bool) {
	return byCode(ContentLanguages, code)
}

func byCode(languages []Language, code string) (Language, bool) {
	for _, lang := range languages {
		if lang.Code == code {
			return lang, true
		}
	}

	return Language{}, false
}
