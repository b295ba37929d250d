package core

import "slices"

// AllFilter selects every category or subcategory.
const AllFilter = "all"

// Taxonomy is the fixed two-level category table. It is immutable once built.
type Taxonomy struct {
	order []string
	subs  map[string][]string
}

// CategoryGroup is one main category with its subcategories, in display order.
type CategoryGroup struct {
	Name          string   `json:"name"`
	SubCategories []string `json:"subCategories"`
}

// NewTaxonomy builds a taxonomy from ordered groups. Duplicate categories keep
// the first definition.
func NewTaxonomy(groups ...CategoryGroup) Taxonomy {
	t := Taxonomy{subs: make(map[string][]string, len(groups))}
	for _, g := range groups {
		if _, ok := t.subs[g.Name]; ok {
			continue
		}
		t.order = append(t.order, g.Name)
		t.subs[g.Name] = slices.Clone(g.SubCategories)
	}
	return t
}

// DefaultTaxonomy returns the built-in categories.
func DefaultTaxonomy() Taxonomy {
	return NewTaxonomy(
		CategoryGroup{
			Name: "Despesa Fixa",
			SubCategories: []string{
				"Aluguel", "Condomínio", "Energia", "Água", "Internet",
				"Telefone", "Seguro", "Educação", "Assinaturas",
			},
		},
		CategoryGroup{
			Name: "Despesa Variável",
			SubCategories: []string{
				"Alimentação", "Mercado", "Transporte", "Lazer", "Saúde",
				"Vestuário", "Presentes", "Viagem", "Outros",
			},
		},
	)
}

// Categories returns the main categories in order.
func (t Taxonomy) Categories() []string {
	return slices.Clone(t.order)
}

// SubCategories returns the subcategories of category, or nil if unknown.
func (t Taxonomy) SubCategories(category string) []string {
	return slices.Clone(t.subs[category])
}

func (t Taxonomy) HasCategory(category string) bool {
	_, ok := t.subs[category]
	return ok
}

// Contains reports whether sub belongs to category.
func (t Taxonomy) Contains(category, sub string) bool {
	return slices.Contains(t.subs[category], sub)
}

// Groups returns the whole table in order.
func (t Taxonomy) Groups() []CategoryGroup {
	out := make([]CategoryGroup, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, CategoryGroup{Name: name, SubCategories: t.SubCategories(name)})
	}
	return out
}

// Check validates the draft's category pair against the table.
func (t Taxonomy) Check(d Draft) error {
	if !t.HasCategory(d.Category) {
		return ErrUnknownCategory
	}
	if !t.Contains(d.Category, d.SubCategory) {
		return ErrUnknownSub
	}
	return nil
}
