package dalcore

import (
	"encoding/binary"
	"hash/fnv"
	"strings"
)

// columnMapping assigns result ordinals to the properties of one model.
// ordinals and nested are parallel to desc.Properties; -1 means skip.
type columnMapping struct {
	desc     *ModelDescriptor
	ordinals []int
	nested   []*columnMapping
}

// columnClaims hands out column ordinals per lower-case name in column order.
// A name that occurs several times is claimed once per occurrence.
type columnClaims map[string][]int

func newColumnClaims(columns []string) columnClaims {
	claims := make(columnClaims, len(columns))
	for i, c := range columns {
		key := strings.ToLower(c)
		claims[key] = append(claims[key], i)
	}
	return claims
}

func (c columnClaims) claim(name string) int {
	key := strings.ToLower(name)
	queue := c[key]
	if len(queue) == 0 {
		return -1
	}
	c[key] = queue[1:]
	return queue[0]
}

// newColumnMapping resolves desc against columns. The model's own columns are
// claimed first, then each nested model in declaration order, so nested
// columns are those following the parent's.
func newColumnMapping(desc *ModelDescriptor, columns []string) *columnMapping {
	return buildColumnMapping(desc, newColumnClaims(columns))
}

func buildColumnMapping(desc *ModelDescriptor, claims columnClaims) *columnMapping {
	m := &columnMapping{
		desc:     desc,
		ordinals: make([]int, len(desc.Properties)),
		nested:   make([]*columnMapping, len(desc.Properties)),
	}
	for i, p := range desc.Properties {
		m.ordinals[i] = -1
		if p.mapsColumn() {
			m.ordinals[i] = claims.claim(p.SQLName)
		}
	}
	for i, p := range desc.Properties {
		if p.Nested != nil && !p.Ignored {
			m.nested[i] = buildColumnMapping(p.Nested, claims)
		}
	}
	return m
}

// mapped reports whether any property in the mapping tree has a column.
func (m *columnMapping) mapped() bool {
	for i, ord := range m.ordinals {
		if ord >= 0 {
			return true
		}
		if m.nested[i] != nil && m.nested[i].mapped() {
			return true
		}
	}
	return false
}

// key returns the FNV-1a hash of the ordinal tree and its entry count.
func (m *columnMapping) key() (uint64, int) {
	h := fnv.New64a()
	n := m.writeKey(h, 0)
	return h.Sum64(), n
}

func (m *columnMapping) writeKey(h interface{ Write([]byte) (int, error) }, n int) int {
	var buf [4]byte
	write := func(v int) {
		binary.LittleEndian.PutUint32(buf[:], uint32(int32(v)))
		_, _ = h.Write(buf[:])
		n++
	}
	for i, ord := range m.ordinals {
		write(ord)
		if sub := m.nested[i]; sub != nil {
			write(-2)
			n = sub.writeKey(h, n)
			write(-3)
		}
	}
	return n
}

// columnNameSet returns the lower-case names of columns.
func columnNameSet(columns []string) map[string]struct{} {
	set := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		set[strings.ToLower(c)] = struct{}{}
	}
	return set
}
