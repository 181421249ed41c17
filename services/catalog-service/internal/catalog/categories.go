package catalog

import (
	"errors"
	"strings"
)

var (
	ErrCategoryNameRequired = errors.New("name is required")
	ErrCategoryExists       = errors.New("name already exists")
)

type Category struct {
	Name          string   `json:"name"`
	Subcategories []string `json:"subcategories"`
}

// CategoryTree maps a main category to its subcategories.
type CategoryTree []Category

func (t CategoryTree) Has(main, sub string) bool {
	for _, c := range t {
		if !strings.EqualFold(c.Name, main) {
			continue
		}
		for _, s := range c.Subcategories {
			if strings.EqualFold(s, sub) {
				return true
			}
		}
	}
	return false
}

// CleanCategoryName trims name and rejects blanks.
func CleanCategoryName(name string) (string, error) {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return "", ErrCategoryNameRequired
	}
	return name, nil
}
