// Package normalisers provides implementations of the Normaliser interface
// for uploaded text formats. Each normaliser knows how to extract indexable
// text from files with specific extensions.
package normalisers
