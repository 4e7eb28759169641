package identity

// DefaultPalette is the built-in avatar background palette.
var DefaultPalette = []string{
	"#6A50D3",
	"#FF9B42",
	"#DF486F",
	"#73348C",
	"#B23683",
	"#F96E57",
	"#4380E2",
	"#2AA076",
	"#00A8B3",
}

// Catalog is an ordered set of named variants for one avatar feature.
type Catalog struct {
	Name     string
	Variants []string
}

// Catalog names
const (
	CatalogTopName         = "top"
	CatalogAccessoriesName = "accessories"
)

// CatalogTop lists hair and headwear variants.
var CatalogTop = Catalog{
	Name: CatalogTopName,
	Variants: []string{
		"NoHair", "Eyepatch", "Hat", "Hijab", "Turban",
		"WinterHat1", "WinterHat2", "WinterHat3", "WinterHat4",
		"LongHairBigHair", "LongHairBob", "LongHairBun", "LongHairCurly",
		"LongHairCurvy", "LongHairDreads", "LongHairFrida", "LongHairFro",
		"LongHairFroBand", "LongHairNotTooLong", "LongHairShavedSides",
		"LongHairMiaWallace", "LongHairStraight", "LongHairStraight2",
		"LongHairStraightStrand", "ShortHairDreads01", "ShortHairDreads02",
		"ShortHairFrizzle", "ShortHairShaggyMullet", "ShortHairShortCurly",
		"ShortHairShortFlat", "ShortHairShortRound", "ShortHairShortWaved",
		"ShortHairSides", "ShortHairTheCaesar", "ShortHairTheCaesarSidePart",
	},
}

// CatalogAccessories lists eyewear variants. The selected variant is also
// the element the accessory sway animation targets.
var CatalogAccessories = Catalog{
	Name: CatalogAccessoriesName,
	Variants: []string{
		"Blank", "Kurt", "Prescription01", "Prescription02",
		"Round", "Sunglasses", "Wayfarers",
	},
}

// DefaultCatalogs returns the catalogs every identity is resolved against.
func DefaultCatalogs() []Catalog {
	return []Catalog{CatalogTop, CatalogAccessories}
}
