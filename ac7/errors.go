package ac7

import "fmt"

// MissingTimeSignatureError is returned when an element has tracks but none
// of their MIDI sources carries a time signature.
type MissingTimeSignatureError struct {
	Element int
}

func (e *MissingTimeSignatureError) Error() string {
	return fmt.Sprintf("ac7: element %d: no time signature in any source MIDI file", e.Element)
}

// InvalidTimeSignatureError is returned for signatures the format cannot
// express. Element is zero for the rhythm-wide signature.
type InvalidTimeSignatureError struct {
	Element     int
	Numerator   int
	Denominator int
}

func (e *InvalidTimeSignatureError) Error() string {
	if e.Element == 0 {
		return fmt.Sprintf("ac7: invalid time signature %d/%d", e.Numerator, e.Denominator)
	}
	return fmt.Sprintf("ac7: element %d: invalid time signature %d/%d", e.Element, e.Numerator, e.Denominator)
}

// CountMismatchError reports a violated fixed cardinality (12 elements,
// 8 parts, 96 mixer entries).
type CountMismatchError struct {
	What string
	Got  int
	Want int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("ac7: expected %d %s, got %d", e.Want, e.What, e.Got)
}

// PayloadTooLargeError is returned when an atom payload does not fit its
// one-byte length field.
type PayloadTooLargeError struct {
	Tag uint8
	Len int
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("ac7: atom %d payload is %d bytes, limit is 255", e.Tag, e.Len)
}

// ValidationError reports a rhythm spec field outside its allowed range.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ac7: %s: %s", e.Field, e.Msg)
}

// FormatError reports a malformed AC7 document found while inspecting.
type FormatError struct {
	Pos int
	Msg string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("ac7: format error at byte %d: %s", e.Pos, e.Msg)
}
