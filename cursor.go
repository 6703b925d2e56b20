package merk

// Cursor iterates over the tree nodes of a snapshot in key order.
type Cursor struct {
	it    rawIterator
	valid bool
}

func newCursor(s snapshot) *Cursor {
	return &Cursor{it: s.iterator()}
}

// SeekToFirst positions the cursor at the first node.
func (c *Cursor) SeekToFirst() bool {
	return c.check(c.it.Seek([]byte{nodePrefix}))
}

// Seek positions the cursor at the first node with a key >= key.
func (c *Cursor) Seek(key []byte) bool {
	return c.check(c.it.Seek(nodeKey(key)))
}

// Next advances the cursor.
func (c *Cursor) Next() bool {
	if !c.valid {
		return false
	}
	return c.check(c.it.Next())
}

// Valid returns true if the cursor is positioned at a node.
func (c *Cursor) Valid() bool { return c.valid }

// Key returns the key of the current node. Please note that keys are
// temporary buffers and must be copied if used beyond the next cursor move.
func (c *Cursor) Key() []byte {
	if !c.valid {
		return nil
	}
	return c.it.Key()[1:]
}

// Value returns the raw record of the current node. Please note that
// values are temporary buffers and must be copied if used beyond the next
// cursor move.
func (c *Cursor) Value() []byte {
	if !c.valid {
		return nil
	}
	return c.it.Value()
}

// Err exposes iterator errors, if any.
func (c *Cursor) Err() error { return c.it.Error() }

// Release releases the cursor.
func (c *Cursor) Release() {
	c.valid = false
	c.it.Release()
}

func (c *Cursor) check(ok bool) bool {
	if ok {
		key := c.it.Key()
		ok = len(key) > 1 && key[0] == nodePrefix
	}
	c.valid = ok
	return ok
}
