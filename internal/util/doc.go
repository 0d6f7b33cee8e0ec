// Package util provides common utility functions used across the authguard
// library. These utilities handle string manipulation for logging and other
// shared operations that don't fit into domain-specific packages.
package util
