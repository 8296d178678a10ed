package models

import "sort"

// PaintOrder returns element indexes in ascending zIndex order.
// Ties keep their original list order.
func PaintOrder(elements []SceneElement) []int {
	order := make([]int, len(elements))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return elements[order[a]].ZIndex < elements[order[b]].ZIndex
	})
	return order
}

// MaxZIndex returns the highest zIndex, or 0 for an empty list.
func MaxZIndex(elements []SceneElement) int {
	if len(elements) == 0 {
		return 0
	}
	max := elements[0].ZIndex
	for _, el := range elements[1:] {
		if el.ZIndex > max {
			max = el.ZIndex
		}
	}
	return max
}

// MinZIndex returns the lowest zIndex, or 0 for an empty list.
func MinZIndex(elements []SceneElement) int {
	if len(elements) == 0 {
		return 0
	}
	min := elements[0].ZIndex
	for _, el := range elements[1:] {
		if el.ZIndex < min {
			min = el.ZIndex
		}
	}
	return min
}
