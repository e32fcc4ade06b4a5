package normalize

import (
	"testing"

	"github.com/pevans/mallfed/mall"
	"github.com/stretchr/testify/assert"
)

// TestClassify verifies keyword categories, including single-rune
// keywords that must end a word.
func TestClassify(t *testing.T) {
	tests := map[string]string{
		"철원 오대쌀 10kg":    CategoryAgricultural,
		"기장 멸치 1kg":      CategorySeafood,
		"전통 청국장 세트":      CategoryProcessed,
		"사과즙 30포":        CategoryProcessed,
		"나주배 7.5kg":      CategoryFruit,
		"횡성 한우 선물세트":     CategoryMeat,
		"양구 시래기":         CategoryVegetable,
		"6년근 홍삼정":        CategoryHealth,
		"유자차 1kg":        CategoryBeverage,
		"수제 과자 모음":       CategorySpecialty,
		"무료배송 도자기 머그컵":   "",
		"Handmade Candle": "",
	}

	for title, want := range tests {
		t.Run(title, func(t *testing.T) {
			got, _ := classify(title)
			assert.Equal(t, want, got)
		})
	}
}

// TestCategorize verifies the hint, title and default fallbacks.
func TestCategorize(t *testing.T) {
	d := mall.Descriptor{DefaultCategory: "crafts"}

	cat, _ := categorize("수산물 > 건어물", "선물용 박스", d)
	assert.Equal(t, CategorySeafood, cat)

	cat, _ = categorize("기타", "철원 오대쌀", d)
	assert.Equal(t, CategoryAgricultural, cat)

	cat, _ = categorize("", "도자기 머그컵", d)
	assert.Equal(t, "crafts", cat)

	cat, _ = categorize("", "도자기 머그컵", mall.Descriptor{})
	assert.Equal(t, CategoryOther, cat)
}

// TestBuildTags verifies the tag set contents and ordering.
func TestBuildTags(t *testing.T) {
	d := mall.Descriptor{Name: "철원몰", Region: "강원", Tags: []string{"DMZ"}}

	tags := buildTags("철원 오대쌀 10kg 1등급 햅쌀", CategoryAgricultural, "쌀", d)
	assert.Equal(t, []string{"DMZ", "agricultural", "강원", "쌀", "오대쌀", "철원", "철원몰", "햅쌀"}, tags)

	tags = buildTags("도자기 머그컵", CategoryOther, "", d)
	assert.Contains(t, tags, CategoryOther, "the category tag is always present")
	assert.Contains(t, tags, "철원몰")
	assert.Contains(t, tags, "강원")
}
