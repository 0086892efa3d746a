package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCategory(t *testing.T) {
	assert.Equal(t, CategoryChannelDelete, ParseCategory("channel-delete"))
	assert.Equal(t, CategoryPermissionGrant, ParseCategory("dangerous-permission-grant"))
	assert.Equal(t, CategoryNone, ParseCategory("no-such-category"))
	assert.Equal(t, CategoryNone, ParseCategory(""))
}

func TestCategoryStringRoundTrip(t *testing.T) {
	for _, cat := range AllCategories() {
		assert.Equal(t, cat, ParseCategory(cat.String()))
	}
}
