package engine

// --------------------------------------------------------------------------
// Value Kinds
// --------------------------------------------------------------------------

// Kind tags the variant stored under a key. The four kinds are mutually
// exclusive; an operation against the wrong kind fails with WrongType.
type Kind uint8

const (
	KindString Kind = iota + 1
	KindHash
	KindList
	KindSet
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindHash:
		return "hash"
	case KindList:
		return "list"
	case KindSet:
		return "set"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Value Variant
// --------------------------------------------------------------------------

// Value is the tagged variant stored under a key. Exactly one of the
// payload fields is populated, selected by Kind.
//
// Hash fields and set members enumerate in insertion order. The order is
// deterministic for the lifetime of the process; it is not a cross-run
// contract.
type Value struct {
	Kind Kind

	str  string
	hash *orderedMap
	list []string
	set  *orderedMap
}

// NewStringValue creates a string value.
func NewStringValue(s string) *Value {
	return &Value{Kind: KindString, str: s}
}

// NewHashValue creates an empty hash value.
func NewHashValue() *Value {
	return &Value{Kind: KindHash, hash: newOrderedMap()}
}

// NewListValue creates an empty list value.
func NewListValue() *Value {
	return &Value{Kind: KindList}
}

// NewSetValue creates an empty set value.
func NewSetValue() *Value {
	return &Value{Kind: KindSet, set: newOrderedMap()}
}

// --------------------------------------------------------------------------
// String Payload
// --------------------------------------------------------------------------

// Str returns the string payload.
func (v *Value) Str() string { return v.str }

// SetStr replaces the string payload.
func (v *Value) SetStr(s string) { v.str = s }

// --------------------------------------------------------------------------
// Hash Payload
// --------------------------------------------------------------------------

// HashSet sets field to value. Returns true if the field was created,
// false if an existing field was overwritten.
func (v *Value) HashSet(field, value string) bool {
	return v.hash.set(field, value)
}

// HashGet returns the value of field and whether it exists.
func (v *Value) HashGet(field string) (string, bool) {
	return v.hash.get(field)
}

// HashDel removes field. Returns true if the field existed.
func (v *Value) HashDel(field string) bool {
	return v.hash.del(field)
}

// HashLen returns the number of fields.
func (v *Value) HashLen() int { return v.hash.len() }

// HashKeys enumerates field names in insertion order.
func (v *Value) HashKeys() []string { return v.hash.keys() }

// HashVals enumerates field values in insertion order.
func (v *Value) HashVals() []string {
	keys := v.hash.keys()
	vals := make([]string, len(keys))
	for i, k := range keys {
		vals[i], _ = v.hash.get(k)
	}
	return vals
}

// HashAll enumerates alternating field,value pairs in insertion order.
func (v *Value) HashAll() []string {
	keys := v.hash.keys()
	out := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		val, _ := v.hash.get(k)
		out = append(out, k, val)
	}
	return out
}

// --------------------------------------------------------------------------
// List Payload
// --------------------------------------------------------------------------

// ListPushHead prepends an element and returns the new length.
func (v *Value) ListPushHead(elem string) int {
	v.list = append([]string{elem}, v.list...)
	return len(v.list)
}

// ListPushTail appends an element and returns the new length.
func (v *Value) ListPushTail(elem string) int {
	v.list = append(v.list, elem)
	return len(v.list)
}

// ListPopHead removes and returns the head element.
func (v *Value) ListPopHead() (string, bool) {
	if len(v.list) == 0 {
		return "", false
	}
	head := v.list[0]
	v.list = v.list[1:]
	return head, true
}

// ListPopTail removes and returns the tail element.
func (v *Value) ListPopTail() (string, bool) {
	if len(v.list) == 0 {
		return "", false
	}
	tail := v.list[len(v.list)-1]
	v.list = v.list[:len(v.list)-1]
	return tail, true
}

// ListLen returns the number of elements.
func (v *Value) ListLen() int { return len(v.list) }

// ListRange returns the elements between start and stop inclusive.
// Negative indices count from the end; out-of-range indices clamp to the
// list bounds. An inverted range yields an empty slice.
func (v *Value) ListRange(start, stop int) []string {
	total := len(v.list)
	if total == 0 {
		return nil
	}
	if start < 0 {
		start = total + start
	}
	if stop < 0 {
		stop = total + stop
	}
	if start < 0 {
		start = 0
	}
	if stop > total-1 {
		stop = total - 1
	}
	if start > stop || start > total-1 {
		return nil
	}
	out := make([]string, stop-start+1)
	copy(out, v.list[start:stop+1])
	return out
}

// --------------------------------------------------------------------------
// Set Payload
// --------------------------------------------------------------------------

// SetAdd adds member. Returns true if the member was not present before.
func (v *Value) SetAdd(member string) bool {
	return v.set.set(member, "")
}

// SetRem removes member. Returns true if the member existed.
func (v *Value) SetRem(member string) bool {
	return v.set.del(member)
}

// SetHas reports membership.
func (v *Value) SetHas(member string) bool {
	_, ok := v.set.get(member)
	return ok
}

// SetLen returns the number of members.
func (v *Value) SetLen() int { return v.set.len() }

// SetMembers enumerates members in insertion order.
func (v *Value) SetMembers() []string { return v.set.keys() }

// --------------------------------------------------------------------------
// Deep Copy
// --------------------------------------------------------------------------

// Clone returns a deep copy of the value. The engine uses it to stage
// rollback state before a logged mutation.
func (v *Value) Clone() *Value {
	if v == nil {
		return nil
	}
	out := &Value{Kind: v.Kind, str: v.str}
	if v.hash != nil {
		out.hash = v.hash.clone()
	}
	if v.set != nil {
		out.set = v.set.clone()
	}
	if v.list != nil {
		out.list = make([]string, len(v.list))
		copy(out.list, v.list)
	}
	return out
}

// --------------------------------------------------------------------------
// Insertion-Ordered Map
// --------------------------------------------------------------------------

// orderedMap is a string map that remembers first-insertion order, shared
// by the hash and set payloads. Overwriting a key keeps its position;
// deleting and re-adding moves it to the back.
type orderedMap struct {
	vals  map[string]string
	order []string
}

func newOrderedMap() *orderedMap {
	return &orderedMap{vals: make(map[string]string)}
}

func (m *orderedMap) set(key, val string) bool {
	_, exists := m.vals[key]
	m.vals[key] = val
	if !exists {
		m.order = append(m.order, key)
	}
	return !exists
}

func (m *orderedMap) get(key string) (string, bool) {
	v, ok := m.vals[key]
	return v, ok
}

func (m *orderedMap) del(key string) bool {
	if _, ok := m.vals[key]; !ok {
		return false
	}
	delete(m.vals, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true
}

func (m *orderedMap) len() int { return len(m.vals) }

func (m *orderedMap) keys() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

func (m *orderedMap) clone() *orderedMap {
	out := &orderedMap{
		vals:  make(map[string]string, len(m.vals)),
		order: make([]string, len(m.order)),
	}
	for k, v := range m.vals {
		out.vals[k] = v
	}
	copy(out.order, m.order)
	return out
}
