package dialect

import (
	"fmt"
	"strings"
)

// ColumnType is a backend-independent column type tag.
//
// The enumeration order matters: when several tags render to the same native
// syntax on a backend, the reverse lookup resolves to the tag declared first.
// Native -> portable -> native round trips are therefore lossy.
type ColumnType int

const (
	Unknown ColumnType = iota
	Double
	Integer11
	Integer30
	Char32
	Char36
	String
	String1
	String2
	String16
	String32
	String36
	String45
	String50
	String64
	String100
	String128
	String255
	String512
	String1024
	String8196
	Blob
	LongBlob
	Text
	MediumText
	LongText
	Date
	DateTime
	TinyInt1
	TinyInt4

	numColumnTypes
)

var columnTypeNames = [...]string{
	Unknown:    "Unknown",
	Double:     "Double",
	Integer11:  "Integer11",
	Integer30:  "Integer30",
	Char32:     "Char32",
	Char36:     "Char36",
	String:     "String",
	String1:    "String1",
	String2:    "String2",
	String16:   "String16",
	String32:   "String32",
	String36:   "String36",
	String45:   "String45",
	String50:   "String50",
	String64:   "String64",
	String100:  "String100",
	String128:  "String128",
	String255:  "String255",
	String512:  "String512",
	String1024: "String1024",
	String8196: "String8196",
	Blob:       "Blob",
	LongBlob:   "LongBlob",
	Text:       "Text",
	MediumText: "MediumText",
	LongText:   "LongText",
	Date:       "Date",
	DateTime:   "DateTime",
	TinyInt1:   "TinyInt1",
	TinyInt4:   "TinyInt4",
}

// ColumnTypes returns every known portable tag except Unknown, in enumeration order.
func ColumnTypes() []ColumnType {
	types := make([]ColumnType, 0, numColumnTypes-1)
	for t := Unknown + 1; t < numColumnTypes; t++ {
		types = append(types, t)
	}
	return types
}

func (t ColumnType) String() string {
	if t < 0 || t >= numColumnTypes {
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
	return columnTypeNames[t]
}

// Valid reports whether t is a known tag other than Unknown.
func (t ColumnType) Valid() bool {
	return t > Unknown && t < numColumnTypes
}

// Width is the declared character width of string-like tags, 0 otherwise.
func (t ColumnType) Width() int {
	switch t {
	case Char32, String32:
		return 32
	case Char36, String36:
		return 36
	case String1:
		return 1
	case String2:
		return 2
	case String16:
		return 16
	case String45:
		return 45
	case String50:
		return 50
	case String64:
		return 64
	case String100:
		return 100
	case String128:
		return 128
	case String255:
		return 255
	case String512:
		return 512
	case String1024:
		return 1024
	case String8196:
		return 8196
	}
	return 0
}

// ParseColumnType resolves a tag by name, case-insensitively.
func ParseColumnType(name string) (ColumnType, error) {
	for t := Unknown; t < numColumnTypes; t++ {
		if strings.EqualFold(columnTypeNames[t], strings.TrimSpace(name)) {
			return t, nil
		}
	}
	return Unknown, fmt.Errorf("unknown column type %q", name)
}

// UnmarshalText lets catalogs spell types by name.
func (t *ColumnType) UnmarshalText(text []byte) error {
	parsed, err := ParseColumnType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t ColumnType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// typeTable is one backend's mapping between portable tags and native syntax.
type typeTable struct {
	native  map[ColumnType]string
	reverse map[string]ColumnType
}

// newTypeTable builds the reverse index from native (first tag in enumeration
// order wins on collisions) and then layers the backend's extra aliases on top.
// Keys of the reverse index are lowercase.
func newTypeTable(native map[ColumnType]string, aliases map[string]ColumnType) typeTable {
	reverse := make(map[string]ColumnType, len(native)+len(aliases))
	for t := Unknown + 1; t < numColumnTypes; t++ {
		n, ok := native[t]
		if !ok {
			continue
		}
		key := strings.ToLower(n)
		if _, taken := reverse[key]; !taken {
			reverse[key] = t
		}
	}
	for k, t := range aliases {
		reverse[strings.ToLower(k)] = t
	}
	return typeTable{native: native, reverse: reverse}
}

func (tt typeTable) nativeOf(t ColumnType) string {
	return tt.native[t]
}

// typeOf expects an already normalized native string.
func (tt typeTable) typeOf(normalized string) ColumnType {
	if t, ok := tt.reverse[normalized]; ok {
		return t
	}
	return Unknown
}

// SameNativeType reports whether a and b render identically on d. Migration
// decisions compare types this way so that tags collapsed by the backend do
// not look like schema drift.
func SameNativeType(d Dialect, a, b ColumnType) bool {
	na, nb := d.NativeType(a), d.NativeType(b)
	if na == "" || nb == "" {
		return a == b
	}
	return strings.EqualFold(na, nb)
}
