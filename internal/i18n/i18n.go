// Package i18n loads the embedded message catalogs and translates keys for
// a requested locale.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"
)

// BaseLocale is the source locale. Missing keys in other locales fall back
// to it.
const BaseLocale = "en"

type catalogFile struct {
	Locale    string            `yaml:"locale"`
	Namespace string            `yaml:"namespace"`
	Messages  map[string]string `yaml:"messages"`
}

//go:embed locales/*/*.yaml
var embeddedFS embed.FS

var defaultBundle = mustLoadEmbedded()

// Bundle is a set of locale catalogs.
type Bundle struct {
	builder *catalog.Builder
	tags    []language.Tag
	matcher language.Matcher
	keys    map[string]map[string]struct{}
}

// Default returns the embedded bundle.
func Default() *Bundle {
	return defaultBundle
}

// LoadFromFS loads locales/<locale>/<namespace>.yaml files from fsys.
func LoadFromFS(fsys fs.FS) (*Bundle, error) {
	paths, err := fs.Glob(fsys, "locales/*/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob locale catalogs: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no catalog files found")
	}
	sort.Strings(paths)

	b := &Bundle{
		builder: catalog.NewBuilder(catalog.Fallback(language.Make(BaseLocale))),
		keys:    make(map[string]map[string]struct{}),
	}
	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", p, err)
		}
		var file catalogFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", p, err)
		}
		if err := b.add(p, file); err != nil {
			return nil, err
		}
	}

	if _, ok := b.keys[BaseLocale]; !ok {
		return nil, fmt.Errorf("base locale %s is not defined in catalogs", BaseLocale)
	}

	locales := b.Locales()
	// The base locale goes first so the matcher falls back to it.
	sort.SliceStable(locales, func(i, j int) bool { return locales[i] == BaseLocale && locales[j] != BaseLocale })
	for _, l := range locales {
		b.tags = append(b.tags, language.Make(l))
	}
	b.matcher = language.NewMatcher(b.tags)
	return b, nil
}

func (b *Bundle) add(p string, file catalogFile) error {
	dirLocale := path.Base(path.Dir(p))
	fileNamespace := strings.TrimSuffix(path.Base(p), path.Ext(p))

	locale := strings.TrimSpace(file.Locale)
	if locale != dirLocale {
		return fmt.Errorf("catalog %s: locale %q must match path locale %q", p, locale, dirLocale)
	}
	if ns := strings.TrimSpace(file.Namespace); ns != fileNamespace {
		return fmt.Errorf("catalog %s: namespace %q must match filename namespace %q", p, ns, fileNamespace)
	}
	if len(file.Messages) == 0 {
		return fmt.Errorf("catalog %s: messages map is required", p)
	}

	tag, err := language.Parse(locale)
	if err != nil {
		return fmt.Errorf("catalog %s: parse locale tag: %w", p, err)
	}

	seen, ok := b.keys[locale]
	if !ok {
		seen = make(map[string]struct{})
		b.keys[locale] = seen
	}
	for key, msg := range file.Messages {
		key = strings.TrimSpace(key)
		if key == "" {
			return fmt.Errorf("catalog %s: message key cannot be blank", p)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("catalog %s: duplicate key %q in locale %q", p, key, locale)
		}
		seen[key] = struct{}{}
		if err := b.builder.SetString(tag, key, msg); err != nil {
			return fmt.Errorf("catalog %s: set %q: %w", p, key, err)
		}
	}
	return nil
}

// Locales returns the loaded locale identifiers, sorted.
func (b *Bundle) Locales() []string {
	out := make([]string, 0, len(b.keys))
	for l := range b.keys {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Has reports whether key is defined for locale.
func (b *Bundle) Has(locale, key string) bool {
	_, ok := b.keys[locale][key]
	return ok
}

// Translator returns a translator for the closest supported locale. Unknown
// or empty locales get the base locale.
func (b *Bundle) Translator(locale string) *Translator {
	var want []language.Tag
	if locale = strings.TrimSpace(locale); locale != "" {
		if tag, err := language.Parse(locale); err == nil {
			want = append(want, tag)
		}
	}
	return b.match(want)
}

// TranslatorForAccept picks a translator from an Accept-Language header.
func (b *Bundle) TranslatorForAccept(header string) *Translator {
	want, _, err := language.ParseAcceptLanguage(header)
	if err != nil {
		want = nil
	}
	return b.match(want)
}

func (b *Bundle) match(want []language.Tag) *Translator {
	tag := b.tags[0]
	if len(want) > 0 {
		_, idx, conf := b.matcher.Match(want...)
		if conf != language.No {
			tag = b.tags[idx]
		}
	}
	return &Translator{
		tag:     tag,
		printer: message.NewPrinter(tag, message.Catalog(b.builder)),
		base:    message.NewPrinter(b.tags[0], message.Catalog(b.builder)),
		bundle:  b,
	}
}

// Translator renders message keys in one locale.
type Translator struct {
	tag     language.Tag
	printer *message.Printer
	base    *message.Printer
	bundle  *Bundle
}

// Locale returns the resolved locale.
func (t *Translator) Locale() string {
	return t.tag.String()
}

// T translates key. A key no catalog defines is returned unchanged.
func (t *Translator) T(key string, args ...any) string {
	switch {
	case t.bundle.Has(t.Locale(), key):
		return t.printer.Sprintf(key, args...)
	case t.bundle.Has(BaseLocale, key):
		return t.base.Sprintf(key, args...)
	default:
		return key
	}
}

func mustLoadEmbedded() *Bundle {
	b, err := LoadFromFS(embeddedFS)
	if err != nil {
		panic(err)
	}
	return b
}
