// Package pages walks the document catalog and page tree.
//
// Pages are views over dictionaries already loaded elsewhere: a Page
// pairs its leaf dictionary with the attribute values inherited from
// ancestor nodes, so MediaBox, CropBox, Resources and Rotate resolve the
// way a viewer would see them. Traversal guards against /Kids cycles.
package pages
