package ac7

// Instrument is a patch/bank pair as written to a mixer fragment.
type Instrument struct {
	Patch   uint8
	BankMSB uint8
}

// DefaultInstruments holds the instrument used for each part (index 0 is
// part 1) when the rhythm spec leaves it unset.
var DefaultInstruments = [NumParts]Instrument{
	{Patch: 0, BankMSB: 120},  // drums
	{Patch: 0, BankMSB: 120},  // percussion
	{Patch: 33, BankMSB: 0},   // bass
	{Patch: 0, BankMSB: 0},    // chord 1
	{Patch: 25, BankMSB: 0},   // chord 2
	{Patch: 27, BankMSB: 0},   // chord 3
	{Patch: 49, BankMSB: 0},   // chord 4
	{Patch: 61, BankMSB: 0},   // chord 5
}

// Conversions lists the chord conversion tables by their encoded index.
var Conversions = [...]string{
	"Bass Basic",
	"Bass 7th",
	"Basic",
	"Var2",
	"Var3",
	"Var4",
	"7th",
	"Minor",
	"Phrase",
	"Bass Minor",
	"Penta",
	"Intro n-minor",
	"Intro m-minor",
	"Intro h-minor",
	"Intro no Change",
	"Intro dorian",
}

// Inversions lists the documented inversion settings. Empty entries are
// encodings the keyboard accepts but that have no name.
var Inversions = [8]string{
	"Off",
	"",
	"On",
	"",
	"7th",
}

// ConversionIndex returns the encoded index of a conversion table name.
func ConversionIndex(name string) (int, bool) {
	for i, c := range Conversions {
		if c == name {
			return i, true
		}
	}
	return 0, false
}

// InversionIndex returns the encoded index of an inversion name.
func InversionIndex(name string) (int, bool) {
	if name == "" {
		return 0, false
	}
	for i, s := range Inversions {
		if s == name {
			return i, true
		}
	}
	return 0, false
}

// IsIntroOrEnding reports whether an element (1-12) is an intro or ending.
func IsIntroOrEnding(element int) bool {
	switch element {
	case 1, 6, 7, 12:
		return true
	}
	return false
}

// IsDrumPart reports whether a part (1-8) is stored in the DRUM block.
func IsDrumPart(part int) bool {
	return part <= 2
}

func defaultConversion(part, element int) int {
	switch {
	case IsIntroOrEnding(element):
		return 11 // Intro n-minor
	case part == 3:
		return 0 // Bass Basic
	default:
		return 2 // Basic
	}
}

func defaultBreakPoint(part int) int {
	if part == 3 {
		return 4
	}
	return 7
}
