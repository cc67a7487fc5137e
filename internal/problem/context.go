package problem

import "fmt"

// Context carries the positional substitutions a problem's message
// template may reference (§4.1: "supporting positional expansions for
// inode/block/group/etc"). Not every field is meaningful for every
// problem; callers fill only what their template needs.
type Context struct {
	Ino      int64
	Ino2     int64 // secondary inode, e.g. old/new parent in PR_3_BAD_DOT_DOT
	Blk      int64
	BlkCount int64 // logical block index within the inode ("#%N")
	Group    int64
	Num      int64 // generic numeric substitution ("should be %N")
	IsValue  int64 // "current/is" value, paired with Num as "should be"
	Str      string
	Path     string // %p / %q path substitutions
	ModTime  string
}

// expanders maps each single-letter template code to a function
// producing its substitution text, grounded on DESIGN NOTES §9's
// "small interpreter that maps single-letter codes to context
// fields." Unknown codes are left as literal "%<c>" so a missing
// mapping is visible rather than silently eaten.
func (c *Context) expand(code byte) string {
	switch code {
	case 'i':
		return fmt.Sprintf("%d", c.Ino)
	case 'j':
		return fmt.Sprintf("%d", c.Ino2)
	case 'd':
		return fmt.Sprintf("%d", c.Ino2)
	case 'b':
		return fmt.Sprintf("%d", c.Blk)
	case 'B':
		return fmt.Sprintf("%d", c.BlkCount)
	case 'g':
		return fmt.Sprintf("%d", c.Group)
	case 'N':
		return fmt.Sprintf("%d", c.Num)
	case 'r':
		return fmt.Sprintf("%d", c.Num)
	case 'n':
		return fmt.Sprintf("%d", c.Num)
	case 'I':
		return fmt.Sprintf("%d", c.IsValue)
	case 's':
		return fmt.Sprintf("%d", c.IsValue)
	case 'Q':
		return c.Str
	case 'q', 'p', 'P':
		return c.Path
	case 'S':
		return "0"
	case 'M':
		return c.ModTime
	default:
		return "%" + string(code)
	}
}

// Expand renders a catalog message template, substituting %<c>
// sequences via Context.expand. Two-letter codes like %Is/%Il are
// treated as the second letter of a compound reference for brevity in
// this catalog (Is -> IsValue, Il -> IsValue) since this subset of the
// interpreter only needs to distinguish "current" vs "should be".
func Expand(template string, c *Context) string {
	out := make([]byte, 0, len(template)+16)
	for i := 0; i < len(template); i++ {
		if template[i] != '%' || i+1 >= len(template) {
			out = append(out, template[i])
			continue
		}

		// two-letter escapes: %Is, %Il, %IM
		if template[i+1] == 'I' && i+2 < len(template) {
			switch template[i+2] {
			case 's', 'l':
				out = append(out, []byte(fmt.Sprintf("%d", c.IsValue))...)
				i += 2
				continue
			case 'M':
				out = append(out, []byte(c.ModTime)...)
				i += 2
				continue
			}
		}

		out = append(out, []byte(c.expand(template[i+1]))...)
		i++
	}
	return string(out)
}
