package publisher

import "strconv"

// ID is either a decoded identifier value or the "no identifier" sentinel of
// one row. The zero value is the sentinel of row 0.
type ID struct {
	value string
	rowID int64
	real  bool
}

// Value returns a real identifier. An empty value yields the sentinel of
// rowID instead, so a rendered identifier is never empty.
func Value(value string, rowID int64) ID {
	if value == "" {
		return Missing(rowID)
	}
	return ID{value: value, rowID: rowID, real: true}
}

// Missing returns the sentinel for rowID.
func Missing(rowID int64) ID {
	return ID{rowID: rowID}
}

// IsMissing reports whether id is a sentinel.
func (id ID) IsMissing() bool {
	return !id.real
}

// String renders the identifier: the value itself, or the decimal row id for
// a sentinel.
func (id ID) String() string {
	if id.real {
		return id.value
	}
	return strconv.FormatInt(id.rowID, 10)
}

// Key is the comparison key used by dedup. Real values and sentinels live in
// disjoint key spaces.
func (id ID) Key() string {
	if id.real {
		return "v:" + id.value
	}
	return "s:" + strconv.FormatInt(id.rowID, 10)
}

// Restore rebuilds an ID from its rendered form. A rendered value equal to
// the row's own decimal id is read back as the sentinel.
func Restore(rendered string, rowID int64) ID {
	if rendered == "" || rendered == strconv.FormatInt(rowID, 10) {
		return Missing(rowID)
	}
	return Value(rendered, rowID)
}
