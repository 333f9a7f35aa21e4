// Package catalog resolves the flat item table into the display hierarchy:
// parents carrying their variants, then standalone items.
package catalog

import (
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"warunglaba/backend/internal/domain"
)

// DisplayName renders an item's listing label. A variant is always shown as
// "{parent name} - {variant name}", recomputed from the current parent name.
func DisplayName(item domain.Item, parent *domain.Item) string {
	if item.IsVariant() && parent != nil {
		return parent.Name + " - " + item.VariantName
	}
	return item.Name
}

// Group partitions items into parents with nested variants followed by
// standalone items, preserving the input order within each group. Variants
// are sorted by variant name with locale-aware collation so "10kg" and
// "5kg" order the way a person reading labels expects. An inactive or
// missing parent orphans its variants; orphans are dropped from the
// display tree rather than shown with a dangling name.
func Group(items []domain.Item) []domain.DisplayItem {
	byID := make(map[string]*domain.Item, len(items))
	variantsByParent := make(map[string][]domain.Item)
	for i := range items {
		byID[items[i].ID] = &items[i]
	}
	for _, item := range items {
		if !item.IsVariant() {
			continue
		}
		if _, exists := byID[item.ParentItemID]; !exists {
			continue
		}
		variantsByParent[item.ParentItemID] = append(variantsByParent[item.ParentItemID], item)
	}

	coll := collate.New(language.Und, collate.Numeric)
	for parentID := range variantsByParent {
		variants := variantsByParent[parentID]
		coll.Sort(sortableVariants(variants))
		variantsByParent[parentID] = variants
	}

	parents := make([]domain.DisplayItem, 0, len(items))
	standalone := make([]domain.DisplayItem, 0, len(items))
	for _, item := range items {
		if item.IsVariant() {
			continue
		}
		variants, isParent := variantsByParent[item.ID]
		if isParent {
			display := domain.DisplayItem{
				Item:         item,
				DisplayName:  item.Name,
				IsParent:     true,
				VariantCount: len(variants),
				Variants:     make([]domain.DisplayItem, 0, len(variants)),
			}
			for _, v := range variants {
				display.Variants = append(display.Variants, domain.DisplayItem{
					Item:        v,
					DisplayName: DisplayName(v, &item),
				})
			}
			parents = append(parents, display)
			continue
		}
		standalone = append(standalone, domain.DisplayItem{Item: item, DisplayName: item.Name})
	}

	return append(parents, standalone...)
}

// Parents filters to parent groupings only.
func Parents(items []domain.Item) []domain.Item {
	hasVariant := make(map[string]bool)
	for _, item := range items {
		if item.IsVariant() {
			hasVariant[item.ParentItemID] = true
		}
	}
	parents := make([]domain.Item, 0, len(hasVariant))
	for _, item := range items {
		if hasVariant[item.ID] {
			parents = append(parents, item)
		}
	}
	return parents
}

// Sellable filters to items that can actually carry stock and be sold:
// everything except parent groupings.
func Sellable(items []domain.Item) []domain.Item {
	hasVariant := make(map[string]bool)
	for _, item := range items {
		if item.IsVariant() {
			hasVariant[item.ParentItemID] = true
		}
	}
	sellable := make([]domain.Item, 0, len(items))
	for _, item := range items {
		if hasVariant[item.ID] {
			continue
		}
		sellable = append(sellable, item)
	}
	return sellable
}

// sortableVariants adapts a variant slice to collate.Sort's Lister.
type sortableVariants []domain.Item

func (s sortableVariants) Len() int           { return len(s) }
func (s sortableVariants) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
func (s sortableVariants) Bytes(i int) []byte { return []byte(s[i].VariantName) }
