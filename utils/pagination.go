package utils

import (
	"errors"
	"strconv"

	"gorm.io/gorm"
)

// NumResultsPerPage is the fixed page size of every paged listing.
const NumResultsPerPage = 10

// MaxPage caps page numbers so the row offset cannot overflow.
const MaxPage = 100000

// ParsePage turns a raw page parameter into a 1-based page number.
// Anything that is not a positive integer means page 1. Pages past
// MaxPage are clamped to it.
func ParsePage(raw string) int {
	page, err := strconv.Atoi(raw)
	if errors.Is(err, strconv.ErrRange) && page > 0 {
		return MaxPage
	}
	if err != nil || page < 1 {
		return 1
	}
	if page > MaxPage {
		return MaxPage
	}
	return page
}

// Paginate is a gorm scope for page N of NumResultsPerPage rows.
// Page 1 applies no offset.
func Paginate(page int) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if page < 1 {
			page = 1
		}
		if page > MaxPage {
			page = MaxPage
		}
		db = db.Limit(NumResultsPerPage)
		if page > 1 {
			db = db.Offset((page - 1) * NumResultsPerPage)
		}
		return db
	}
}
