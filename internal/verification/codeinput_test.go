package verification

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func typeAll(c *CodeInput, s string) (fired int) {
	for _, r := range s {
		c.Type(r)
		if c.TakeCompletion() {
			fired++
		}
	}
	return fired
}

func TestCodeInputTypeAdvancesAndCompletes(t *testing.T) {
	c := NewCodeInput(6)
	assert.Equal(t, 0, typeAll(c, "12345"))
	assert.Equal(t, "12345", c.Value())
	assert.Equal(t, 5, c.Cursor())
	assert.False(t, c.Complete())

	assert.Equal(t, 1, typeAll(c, "6"))
	assert.Equal(t, "123456", c.Value())
	assert.Equal(t, 5, c.Cursor(), "cursor stays on the last cell")
}

func TestCodeInputRejectsNonDigits(t *testing.T) {
	c := NewCodeInput(6)
	assert.False(t, c.Type('a'))
	assert.False(t, c.Type(' '))
	assert.Equal(t, "", c.Value())
	assert.Equal(t, 0, c.Cursor())
}

func TestCodeInputCompletionFiresOncePerOccasion(t *testing.T) {
	c := NewCodeInput(6)
	assert.Equal(t, 1, typeAll(c, "123456"))

	// overwriting the last cell keeps the code complete: no new completion
	assert.Equal(t, 0, typeAll(c, "7"))
	assert.Equal(t, "123457", c.Value())

	c.Backspace()
	assert.False(t, c.TakeCompletion())
	assert.Equal(t, "12345", c.Value())
	assert.Equal(t, 1, typeAll(c, "9"), "refilling after a deletion fires again")

	c.Clear()
	assert.Equal(t, 1, typeAll(c, "123456"), "refilling after a clear fires again")
}

func TestCodeInputBackspace(t *testing.T) {
	c := NewCodeInput(6)
	typeAll(c, "123")
	assert.Equal(t, 3, c.Cursor())

	c.Backspace() // cell 3 empty, steps back and clears cell 2
	assert.Equal(t, "12", c.Value())
	assert.Equal(t, 2, c.Cursor())

	c.Left()
	c.Backspace() // cell 1 filled, cleared in place
	assert.Equal(t, "1", c.Value())
	assert.Equal(t, 1, c.Cursor())

	c.Backspace()
	c.Backspace()
	assert.Equal(t, "", c.Value())
	assert.Equal(t, 0, c.Cursor())
}

func TestCodeInputArrowsStayInBounds(t *testing.T) {
	c := NewCodeInput(6)
	c.Left()
	assert.Equal(t, 0, c.Cursor())
	for i := 0; i < 10; i++ {
		c.Right()
	}
	assert.Equal(t, 5, c.Cursor())
}

func TestCodeInputPaste(t *testing.T) {
	c := NewCodeInput(6)
	assert.Equal(t, 6, c.Paste("12-34 56"))
	assert.Equal(t, "123456", c.Value())
	assert.True(t, c.TakeCompletion())
	assert.False(t, c.TakeCompletion())

	c.Clear()
	assert.Equal(t, 6, c.Paste("98765432"), "extra digits are dropped")
	assert.Equal(t, "987654", c.Value())

	c.Clear()
	assert.Equal(t, 0, c.Paste("abc"))
	assert.Equal(t, "", c.Value())
}

func TestCodeInputPasteWholeCodeAfterTyping(t *testing.T) {
	c := NewCodeInput(6)
	c.Type('1')
	assert.Equal(t, 6, c.Paste("123456"))
	assert.Equal(t, "123456", c.Value())
	assert.True(t, c.TakeCompletion())

	c.Clear()
	c.Type('9')
	c.Type('8')
	assert.Equal(t, 2, c.Paste("76"), "a partial paste continues at the cursor")
	assert.Equal(t, "9876", c.Value())
	assert.False(t, c.TakeCompletion())
}

func TestCodeInputDefaultLength(t *testing.T) {
	c := NewCodeInput(0)
	c.Paste("1234567")
	assert.Equal(t, CodeLength, c.Len())
}
