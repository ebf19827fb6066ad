package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Category registry errors.
var (
	ErrDuplicateCategory = errors.New("duplicate category")
	ErrUnknownCategory   = errors.New("unknown category")
	ErrBadCategoryLetter = errors.New("category must be a single uppercase letter")
)

var categoryLetter = regexp.MustCompile(`^[A-Z]$`)

// Category is one registered expense class: a single-letter code and a
// human description.
type Category struct {
	Letter      string
	Description string
}

// Categories is the mutable set of registered category letters. It is
// configuration, not data: the set can change over the database's
// lifetime without touching stored rows, which is why membership checks
// live here and not in the store.
type Categories struct {
	mu      sync.RWMutex
	entries map[string]string
}

// DefaultCategories returns the stock registry seeded on first run.
func DefaultCategories() *Categories {
	return &Categories{entries: map[string]string{
		"E": "Extra (voluptuary)",
		"H": "House expenses (rent...)",
		"I": "Income",
		"N": "Necessary",
		"R": "Refundable",
	}}
}

// LoadCategories reads a registry file with one `L: description` line
// per category. Blank lines and lines starting with '#' are skipped.
func LoadCategories(path string) (*Categories, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open categories file: %w", err)
	}
	defer f.Close()

	c := &Categories{entries: make(map[string]string)}
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		letter, description, ok := strings.Cut(text, ":")
		if !ok {
			return nil, fmt.Errorf("categories file line %d: missing ':' separator", line)
		}
		if err := c.Add(strings.TrimSpace(letter), strings.TrimSpace(description)); err != nil {
			return nil, fmt.Errorf("categories file line %d: %w", line, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read categories file: %w", err)
	}
	return c, nil
}

// LoadOrCreateCategories loads the registry at path, creating it with
// the default set when it does not exist yet.
func LoadOrCreateCategories(path string) (*Categories, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		c := DefaultCategories()
		if err := c.Save(path); err != nil {
			return nil, err
		}
		return c, nil
	}
	return LoadCategories(path)
}

// Add registers a new category letter. The letter must be a single
// uppercase letter and must not already be registered.
func (c *Categories) Add(letter, description string) error {
	if !categoryLetter.MatchString(letter) {
		return fmt.Errorf("%w: %q", ErrBadCategoryLetter, letter)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[letter]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateCategory, letter)
	}
	c.entries[letter] = description
	return nil
}

// Remove unregisters a category letter. Stored rows keep the letter;
// only new input is affected.
func (c *Categories) Remove(letter string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[letter]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCategory, letter)
	}
	delete(c.entries, letter)
	return nil
}

// Contains reports whether the letter is currently registered.
func (c *Categories) Contains(letter string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[letter]
	return ok
}

// List returns all registered categories sorted by letter.
func (c *Categories) List() []Category {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Category, 0, len(c.entries))
	for l, d := range c.entries {
		out = append(out, Category{Letter: l, Description: d})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Letter < out[j].Letter })
	return out
}

// Letters returns the registered letters as one sorted string, handy
// for error messages.
func (c *Categories) Letters() string {
	var b strings.Builder
	for _, cat := range c.List() {
		b.WriteString(cat.Letter)
	}
	return b.String()
}

// Save writes the registry to path in the `L: description` line format.
func (c *Categories) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create categories directory: %w", err)
		}
	}
	var b strings.Builder
	for _, cat := range c.List() {
		fmt.Fprintf(&b, "%s: %s\n", cat.Letter, cat.Description)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("write categories file: %w", err)
	}
	return nil
}
