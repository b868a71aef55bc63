package classmap

import (
	"bufio"
	"cmp"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
)

// Classmap is the declared order of classes and their permissions. The zero
// value knows no classes and sorts lexically.
type Classmap struct {
	classIndex map[string]int
	permIndex  map[string]map[string]int
	classes    []string
}

// Parse reads a classmap. Lines starting with `#` are comments.
func Parse(r io.Reader) (*Classmap, error) {
	c := &Classmap{
		classIndex: make(map[string]int),
		permIndex:  make(map[string]map[string]int),
	}

	var class string

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		if fields[0] == "class" && len(fields) >= 2 {
			class = fields[1]
			if _, ok := c.classIndex[class]; !ok {
				c.classIndex[class] = len(c.classes)
				c.classes = append(c.classes, class)
				c.permIndex[class] = make(map[string]int)
			}

			continue
		}

		if class == "" {
			continue
		}

		perms := c.permIndex[class]
		if _, ok := perms[fields[0]]; !ok {
			perms[fields[0]] = len(perms)
		}
	}

	err := sc.Err()
	if err != nil {
		return nil, fmt.Errorf("read classmap: %w", err)
	}

	return c, nil
}

// Load reads the classmap at path.
func Load(path string) (*Classmap, error) {
	f, err := os.Open(path) //nolint:gosec // G304: User-provided path.
	if err != nil {
		return nil, fmt.Errorf("open classmap: %w", err)
	}

	defer func() { _ = f.Close() }()

	c, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return c, nil
}

// ClassIndex returns the declared position of class. Unknown classes sort
// after every known class.
func (c *Classmap) ClassIndex(class string) int {
	if c == nil {
		return 0
	}

	if i, ok := c.classIndex[class]; ok {
		return i
	}

	return len(c.classes)
}

// PermIndex returns the declared position of perm within class. Every
// permission of an unknown class has index 0; unknown permissions of a
// known class sort after the known ones.
func (c *Classmap) PermIndex(class, perm string) int {
	if c == nil {
		return 0
	}

	perms, ok := c.permIndex[class]
	if !ok {
		return 0
	}

	if i, ok := perms[perm]; ok {
		return i
	}

	return len(perms)
}

// SortPerms sorts perms of class in declared order. Permissions with the
// same index are sorted lexically.
func (c *Classmap) SortPerms(class string, perms []string) {
	slices.SortStableFunc(perms, func(a, b string) int {
		if d := cmp.Compare(c.PermIndex(class, a), c.PermIndex(class, b)); d != 0 {
			return d
		}

		return cmp.Compare(a, b)
	})
}
