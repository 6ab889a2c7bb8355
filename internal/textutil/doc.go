// Package textutil provides tokenization and term-frequency similarity
// helpers used to deduplicate near-identical analysis topics.
package textutil
