package verification

// CodeInput models a row of single-digit cells with a cursor, as in an OTP
// entry widget. It reports completion (every cell filled) once per distinct
// occasion: after firing it stays disarmed until at least one cell is
// emptied again.
type CodeInput struct {
	cells   []rune
	cursor  int
	armed   bool
	pending bool
}

func NewCodeInput(length int) *CodeInput {
	if length <= 0 {
		length = CodeLength
	}
	return &CodeInput{cells: make([]rune, length), armed: true}
}

// Type writes d into the cell under the cursor and advances. Non-digits are
// ignored and reported as false.
func (c *CodeInput) Type(d rune) bool {
	if d < '0' || d > '9' {
		return false
	}
	c.cells[c.cursor] = d
	if c.cursor < len(c.cells)-1 {
		c.cursor++
	}
	c.update()
	return true
}

// Backspace clears the cell under the cursor, or the previous one when the
// current cell is already empty.
func (c *CodeInput) Backspace() {
	if c.cells[c.cursor] == 0 && c.cursor > 0 {
		c.cursor--
	}
	c.cells[c.cursor] = 0
	c.update()
}

func (c *CodeInput) Left() {
	if c.cursor > 0 {
		c.cursor--
	}
}

func (c *CodeInput) Right() {
	if c.cursor < len(c.cells)-1 {
		c.cursor++
	}
}

// Paste types every digit of s starting at the cursor and returns how many
// were accepted. A paste holding a whole code replaces the cells from the
// first one instead.
func (c *CodeInput) Paste(s string) int {
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits >= len(c.cells) {
		c.cursor = 0
	}
	n := 0
	for _, r := range s {
		last := c.cursor == len(c.cells)-1
		if c.Type(r) {
			n++
			if last {
				break
			}
		}
	}
	return n
}

// Clear empties every cell and re-arms completion.
func (c *CodeInput) Clear() {
	for i := range c.cells {
		c.cells[i] = 0
	}
	c.cursor = 0
	c.update()
}

// Value returns the filled digits in cell order.
func (c *CodeInput) Value() string {
	out := make([]rune, 0, len(c.cells))
	for _, r := range c.cells {
		if r != 0 {
			out = append(out, r)
		}
	}
	return string(out)
}

func (c *CodeInput) Len() int { return len(c.Value()) }

func (c *CodeInput) Cursor() int { return c.cursor }

func (c *CodeInput) Complete() bool {
	for _, r := range c.cells {
		if r == 0 {
			return false
		}
	}
	return true
}

// TakeCompletion reports a pending completion and consumes it.
func (c *CodeInput) TakeCompletion() bool {
	p := c.pending
	c.pending = false
	return p
}

func (c *CodeInput) update() {
	switch {
	case c.Complete() && c.armed:
		c.armed = false
		c.pending = true
	case !c.Complete():
		c.armed = true
		c.pending = false
	}
}
