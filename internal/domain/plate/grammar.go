package plate

// Kind names a plate grammar.
type Kind string

// Known grammars.
const (
	KindNumericAlpha Kind = "numeric_alpha" // 123 ABC
	KindAlphaNumeric Kind = "alpha_numeric" // ABC 123
)

type class uint8

const (
	digit class = iota
	letter
)

// group is a run of same-class characters; groups are joined by one space.
type group struct {
	class class
	size  int
}

type grammar struct {
	kind   Kind
	groups []group
}

// length is the number of characters once separators are stripped.
func (g grammar) length() int {
	n := 0
	for _, gr := range g.groups {
		n += gr.size
	}
	return n
}

// grammars is the priority order used when a text could satisfy several
// layouts after correction: the first match wins.
var grammars = []grammar{
	{kind: KindNumericAlpha, groups: []group{{digit, 3}, {letter, 3}}},
	{kind: KindAlphaNumeric, groups: []group{{letter, 3}, {digit, 3}}},
}

// Letters OCR engines commonly return in place of digits.
var toDigit = map[byte]byte{
	'O': '0',
	'Q': '0',
	'D': '0',
	'I': '1',
	'L': '1',
	'J': '1',
	'Z': '2',
	'S': '5',
	'G': '6',
	'T': '7',
	'B': '8',
}

// Digits OCR engines commonly return in place of letters.
var toLetter = map[byte]byte{
	'0': 'O',
	'1': 'I',
	'2': 'Z',
	'4': 'A',
	'5': 'S',
	'6': 'G',
	'7': 'T',
	'8': 'B',
}

// Kinds returns the grammar kinds in priority order.
func Kinds() []Kind {
	out := make([]Kind, len(grammars))
	for i, g := range grammars {
		out[i] = g.kind
	}
	return out
}
