// Package locale manages the device-scoped language selections.
package locale

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/dubspace/dubspace-core/internal/errors"
	"github.com/dubspace/dubspace-core/internal/i18n"
	"github.com/dubspace/dubspace-core/internal/storage"
)

// LayoutDirector applies the text direction implied by the active UI
// language. Implementations must tolerate repeated calls with the same value.
type LayoutDirector interface {
	IsRTL() bool
	SetRTL(rtl bool)
}

// Container tracks the app UI language plus the dub and translation targets.
// Selections are device-scoped and survive account switches.
type Container struct {
	store        storage.Store
	translations *i18n.Manager
	layout       LayoutDirector
	log          *slog.Logger

	mu         sync.Mutex
	app        Language
	dub        Language
	translate  Language
	translator i18n.Translator
}

// NewContainer constructs a locale container. layout may be nil when no
// layout reconciliation is needed.
func NewContainer(store storage.Store, translations *i18n.Manager, layout LayoutDirector, log *slog.Logger) *Container {
	if log == nil {
		log = slog.Default()
	}

	c := &Container{
		store:        store,
		translations: translations,
		layout:       layout,
		log:          log,
		app:          DefaultLanguage,
		dub:          DefaultLanguage,
		translate:    DefaultLanguage,
	}
	c.translator = translations.Translator(DefaultLanguage.Code)

	return c
}

// Initialize resolves the active languages. A persisted choice wins; absent
// one, the device locale is used when supported; otherwise the default
// applies. The resolved app language is persisted so later launches skip the
// device lookup.
func (c *Container) Initialize(ctx context.Context, deviceLocale string) error {
	app := c.resolveApp(ctx, deviceLocale)
	dub := c.resolveContent(ctx, storage.DubLanguageKey)
	translate := c.resolveContent(ctx, storage.TranslateLanguageKey)

	if err := c.store.Set(ctx, storage.AppLanguageKey, app.Code); err != nil {
		c.log.Error("failed to persist app language", "code", app.Code, "error", err)
		return errors.NewStorageError(err)
	}

	c.mu.Lock()
	c.app = app
	c.dub = dub
	c.translate = translate
	c.translator = c.translations.Translator(app.Code)
	c.mu.Unlock()

	c.reconcileLayout(app)
	return nil
}

// ChangeAppLanguage switches the UI language. The choice is persisted before
// it takes effect and the layout direction is reconciled when it disagrees
// with the new language.
func (c *Container) ChangeAppLanguage(ctx context.Context, code string) error {
	lang, ok := SupportedByCode(normalize(code))
	if !ok {
		return errors.NewUnsupportedLanguageError(code)
	}

	if err := c.store.Set(ctx, storage.AppLanguageKey, lang.Code); err != nil {
		c.log.Error("failed to persist app language", "code", lang.Code, "error", err)
		return errors.NewStorageError(err)
	}

	c.mu.Lock()
	c.app = lang
	c.translator = c.translations.Translator(lang.Code)
	c.mu.Unlock()

	c.reconcileLayout(lang)
	return nil
}

// ChangeDubLanguage switches the dubbing target language.
func (c *Container) ChangeDubLanguage(ctx context.Context, code string) error {
	return c.changeContent(ctx, storage.DubLanguageKey, code, func(lang Language) {
		c.dub = lang
	})
}

// ChangeTranslateLanguage switches the translation target language.
func (c *Container) ChangeTranslateLanguage(ctx context.Context, code string) error {
	return c.changeContent(ctx, storage.TranslateLanguageKey, code, func(lang Language) {
		c.translate = lang
	})
}

// AppLanguage returns the active UI language.
func (c *Container) AppLanguage() Language {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.app
}

// DubLanguage returns the active dubbing target.
func (c *Container) DubLanguage() Language {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.dub
}

// TranslateLanguage returns the active translation target.
func (c *Container) TranslateLanguage() Language {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.translate
}

// T resolves a localized string in the active UI language.
func (c *Container) T(key string) string {
	c.mu.Lock()
	translator := c.translator
	c.mu.Unlock()

	return translator.T(key)
}

func (c *Container) changeContent(ctx context.Context, key, code string, apply func(Language)) error {
	lang, ok := ContentByCode(normalize(code))
	if !ok {
		return errors.NewUnsupportedLanguageError(code)
	}

	if err := c.store.Set(ctx, key, lang.Code); err != nil {
		c.log.Error("failed to persist language", "key", key, "code", lang.Code, "error", err)
		return errors.NewStorageError(err)
	}

	c.mu.Lock()
	apply(lang)
	c.mu.Unlock()

	return nil
}

func (c *Container) resolveApp(ctx context.Context, deviceLocale string) Language {
	raw, err := c.store.Get(ctx, storage.AppLanguageKey)
	if err == nil {
		if lang, ok := SupportedByCode(normalize(raw)); ok {
			return lang
		}
	} else if !stderrors.Is(err, storage.ErrKeyNotFound) {
		c.log.Warn("failed to load app language", "error", err)
	}

	if lang, ok := SupportedByCode(normalize(deviceLocale)); ok {
		return lang
	}

	return DefaultLanguage
}

func (c *Container) resolveContent(ctx context.Context, key string) Language {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if !stderrors.Is(err, storage.ErrKeyNotFound) {
			c.log.Warn("failed to load language", "key", key, "error", err)
		}
		return DefaultLanguage
	}

	if lang, ok := ContentByCode(normalize(raw)); ok {
		return lang
	}

	return DefaultLanguage
}

// reconcileLayout flips the layout direction only when it disagrees with the
// active language, so an unchanged direction never triggers a relayout.
func (c *Container) reconcileLayout(lang Language) {
	if c.layout == nil {
		return
	}

	if c.layout.IsRTL() != lang.RTL {
		c.layout.SetRTL(lang.RTL)
	}
}

// normalize lowercases a language code and strips any region suffix, so
// "zh-Hans" and "ja_JP" resolve to their base language.
func normalize(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, sep := range []string{"-", "_"} {
		if idx := strings.Index(code, sep); idx > 0 {
			code = code[:idx]
		}
	}

	return code
}
