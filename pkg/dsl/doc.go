// Package dsl provides a fluent builder for dialogue graphs, as a
// programmatic alternative to the YAML files instructors author. Tests use
// it to construct fixtures, and the seed command serializes a built graph
// back to YAML.
package dsl
