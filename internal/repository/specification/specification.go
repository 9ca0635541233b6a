// Package specification provides composable query filters for the chat
// transcript repositories. Entity-specific filters live in
// chat_specifications.go; generic ones (ordering, pagination) in
// common_specifications.go.
package specification

import "gorm.io/gorm"

// Specification is one composable query filter.
type Specification interface {
	Apply(db *gorm.DB) *gorm.DB
}
