package relation

// Cursor streams select results row by row. It is forward-only and one-shot:
// re-invoke Select to restart. A caller abandoning the stream mid-iteration
// must Close it so the underlying driver cursor is released.
type Cursor struct {
	rows    Rows
	current map[string]any
	err     error
	closed  bool
}

func newCursor(rows Rows) *Cursor {
	return &Cursor{rows: rows}
}

// Next advances to the next row, reporting false at the end of the stream or
// on failure; check Err afterwards.
func (c *Cursor) Next() bool {
	if c.closed || c.err != nil {
		return false
	}
	if !c.rows.Next() {
		c.err = c.rows.Err()
		c.Close()
		return false
	}
	c.current, c.err = c.rows.Values()
	if c.err != nil {
		c.Close()
		return false
	}
	return true
}

// Row returns the current row mapping.
func (c *Cursor) Row() map[string]any { return c.current }

// Err returns the first failure encountered while streaming.
func (c *Cursor) Err() error {
	if c.err != nil {
		return &ExecutorError{Err: c.err}
	}
	return nil
}

// Close releases the underlying driver cursor. It is idempotent.
func (c *Cursor) Close() {
	if !c.closed {
		c.closed = true
		c.rows.Close()
	}
}

// All drains the cursor and closes it.
func (c *Cursor) All() ([]map[string]any, error) {
	defer c.Close()
	var out []map[string]any
	for c.Next() {
		out = append(out, c.Row())
	}
	return out, c.Err()
}
