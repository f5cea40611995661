package classify

import "regexp"

// Rules holds the keyword lists and patterns that decide whether a listing is
// a replacement part. All terms are lower case and matched as substrings.
type Rules struct {
	PartKeywords      []string
	AccessoryKeywords []string
	OtherKeywords     []string
	// StoragePattern matches full-device listings such as "256GB".
	StoragePattern *regexp.Regexp
	// StockTerms mark a listing as available.
	StockTerms []string
	// OutOfStockTerms override StockTerms; "niet op voorraad" contains "op voorraad".
	OutOfStockTerms []string
	// MarkupStockTerms are scanned in the raw markup when no indicator exists.
	MarkupStockTerms []string
}

var defaultStoragePattern = regexp.MustCompile(`(?i)\b(\d{2,4}\s?(gb|tb|g|t|gigabyte|terabyte))\b`)

// DefaultRules returns the rule set used against the parts catalog.
func DefaultRules() Rules {
	return Rules{
		PartKeywords: []string{
			"volume button", "simcard reader", "flex cable", "vibration", "bottom screws", "adhesive tape", "glass", "cover",
			"display", "screen", "lcd", "digitizer", "battery", "camera", "charging", "connector", "flex", "speaker", "microphone",
			"sensor", "frame", "housing", "tray", "antenna", "button", "cable", "dock", "earpiece", "vibrator", "motor", "adhesive",
			"lens", "back", "front", "proximity", "face id", "touch id", "home button", "volume", "power", "wifi", "bluetooth", "usb",
			"port", "buzzer", "ring", "bracket", "holder", "clip", "mount", "board", "pcb", "chip", "ic", "fpc", "module",
			"assembly", "charging port", "charging dock", "camera lens", "camera glass", "midframe", "mid frame", "battery cover",
			"back cover", "front camera", "rear camera", "mainboard", "main board", "logic board", "motherboard", "screw", "screws",
			"micro usb", "type-c", "type c", "lightning", "audio jack", "headphone", "jack", "sim card",
		},
		AccessoryKeywords: []string{
			"case", "protector", "skin", "shield", "magforce", "softskin", "gelskin", "impactskin",
			"sika", "smoothie", "magshield", "livon", "tactical",
		},
		OtherKeywords:    []string{"tool", "tools", "repair", "kit", "set", "sim tool", "sim eject"},
		StoragePattern:   defaultStoragePattern,
		StockTerms:       []string{"in stock", "op voorraad", "available"},
		OutOfStockTerms:  []string{"out of stock", "unavailable", "niet op voorraad", "sold out", "not available"},
		MarkupStockTerms: []string{"in stock", "op voorraad"},
	}
}
