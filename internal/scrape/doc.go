// Package scrape implements the scrape-label-store pipeline: it walks a feed
// snapshot, downloads each image, skips names already present in the object
// store, labels new images and uploads the labeled ones with the label
// attached as object metadata.
//
// The package only defines capability interfaces; concrete feed, labeling and
// storage clients live in their own packages and are injected through New.
package scrape
