// Package documents holds the fixed catalog of identity document types a
// companion can be registered with.
package documents

// Descriptor describes one supported identity document type
type Descriptor struct {
	ID            string `json:"id"`
	DisplayName   string `json:"name"`
	LocalizedName string `json:"nameZh"`
	IconToken     string `json:"icon"`
	label         string
}

// Label returns the short label used on companion cards
func (d Descriptor) Label() string {
	return d.label
}

const (
	Mainland = "mainland"
	HongKong = "hongkong"
	Macau    = "macau"
	Passport = "passport"
	Permit   = "permit"
)

var catalog = []Descriptor{
	{ID: Mainland, DisplayName: "Mainland ID Card", LocalizedName: "中国居民身份证", IconToken: "credit_card", label: "Mainland China ID"},
	{ID: HongKong, DisplayName: "Hong Kong ID Card", LocalizedName: "香港身份證", IconToken: "credit_card", label: "Hong Kong ID"},
	{ID: Macau, DisplayName: "Macau ID Card", LocalizedName: "澳門居民身份證", IconToken: "credit_card", label: "Macau ID"},
	{ID: Passport, DisplayName: "Passport", LocalizedName: "护照/護照", IconToken: "book", label: "Passport"},
	{ID: Permit, DisplayName: "HK/Macau Permit", LocalizedName: "港澳通行证", IconToken: "bookmark", label: "HK/Macau Permit"},
}

// All returns a copy of the catalog in display order
func All() []Descriptor {
	out := make([]Descriptor, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a descriptor by id
func Lookup(id string) (Descriptor, bool) {
	for _, d := range catalog {
		if d.ID == id {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Label maps a document type id to its card label. Unknown ids fall through
// to the permit label.
func Label(id string) string {
	if d, ok := Lookup(id); ok {
		return d.label
	}
	return catalog[len(catalog)-1].label
}

// Name returns the name to show for the given language: the localized name
// for Chinese, the display name otherwise.
func (d Descriptor) Name(lang string) string {
	if len(lang) >= 2 && lang[:2] == "zh" {
		return d.LocalizedName
	}
	return d.DisplayName
}
