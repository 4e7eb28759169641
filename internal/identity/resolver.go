package identity

// Identity is the visual identity of one participant.
type Identity struct {
	Initials string            `json:"initials"`
	Hash     int               `json:"hash"`
	Color    string            `json:"color"`
	Variants map[string]string `json:"variants"`
}

// Variant returns the variant chosen from the named catalog.
func (i Identity) Variant(catalog string) string {
	return i.Variants[catalog]
}

// ResolveColor picks a background colour for initials. An empty palette
// falls back to DefaultPalette.
func ResolveColor(initials string, palette []string) string {
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	return pick(palette, initials, Hash(initials))
}

// ResolveSetting picks a variant from catalog for initials. An empty catalog
// yields "".
func ResolveSetting(initials string, catalog []string) string {
	return pick(catalog, initials, Hash(initials))
}

// Resolver combines initials extraction with palette and catalog selection.
// The hash is computed once per resolution and shared by every catalog so a
// participant's colour and variants stay consistent with each other.
type Resolver struct {
	Hash     func(string) int
	Palette  []string
	Catalogs []Catalog
}

// NewResolver returns a Resolver over the default palette and catalogs.
func NewResolver() *Resolver {
	return &Resolver{
		Hash:     Hash,
		Palette:  DefaultPalette,
		Catalogs: DefaultCatalogs(),
	}
}

// Resolve computes the identity for displayText. paletteOverride replaces
// the resolver palette when it is non-empty.
func (r *Resolver) Resolve(displayText string, paletteOverride []string) Identity {
	return r.ResolveInitials(Initials(displayText), paletteOverride)
}

// ResolveInitials computes the identity for already extracted initials.
func (r *Resolver) ResolveInitials(initials string, paletteOverride []string) Identity {
	hashFn := r.Hash
	if hashFn == nil {
		hashFn = Hash
	}

	palette := paletteOverride
	if len(palette) == 0 {
		palette = r.Palette
	}
	if len(palette) == 0 {
		palette = DefaultPalette
	}

	h := 0
	if initials != "" {
		h = hashFn(initials)
	}

	variants := make(map[string]string, len(r.Catalogs))
	for _, c := range r.Catalogs {
		variants[c.Name] = pick(c.Variants, initials, h)
	}

	return Identity{
		Initials: initials,
		Hash:     h,
		Color:    pick(palette, initials, h),
		Variants: variants,
	}
}

var defaultResolver = NewResolver()

// Default returns the shared resolver over the default palette and catalogs.
func Default() *Resolver {
	return defaultResolver
}

// ResolveAvatarIdentity resolves displayText against the default catalogs.
func ResolveAvatarIdentity(displayText string, paletteOverride []string) Identity {
	return defaultResolver.Resolve(displayText, paletteOverride)
}
