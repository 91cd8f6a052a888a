// Package gallery shapes stored objects for display.
package gallery

import (
	"sort"

	"github.com/JakeFAU/awwvision/internal/scrape"
)

// Image is one gallery tile.
type Image struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Label string `json:"label"`
}

// LabelCount is a distinct label and how many images carry it.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// FromObjects converts store listings into gallery images, preserving order.
func FromObjects(objs []scrape.StoredObject) []Image {
	images := make([]Image, 0, len(objs))
	for _, obj := range objs {
		images = append(images, Image{Name: obj.Name, URL: obj.PublicURL, Label: obj.Label})
	}
	return images
}

// FilterByLabel keeps images whose label matches exactly. The result is never nil.
func FilterByLabel(images []Image, label string) []Image {
	out := []Image{}
	for _, img := range images {
		if img.Label == label {
			out = append(out, img)
		}
	}
	return out
}

// Labels returns the distinct non-empty labels sorted by name.
func Labels(images []Image) []LabelCount {
	counts := make(map[string]int)
	for _, img := range images {
		if img.Label == "" {
			continue
		}
		counts[img.Label]++
	}
	out := make([]LabelCount, 0, len(counts))
	for label, n := range counts {
		out = append(out, LabelCount{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}
