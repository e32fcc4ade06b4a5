package normalize

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pevans/mallfed/mall"
)

// Catalog categories.
const (
	CategoryAgricultural = "agricultural"
	CategorySeafood      = "seafood"
	CategoryProcessed    = "processed"
	CategoryMeat         = "meat"
	CategoryFruit        = "fruit"
	CategoryVegetable    = "vegetable"
	CategoryHealth       = "health"
	CategoryBeverage     = "beverage"
	CategorySpecialty    = "specialty"
	CategoryOther        = "other"
)

type categoryRule struct {
	category string
	keywords []string
}

// categoryRules are checked in order and the first keyword hit wins.
// Single-rune keywords must end a word (쌀 in 오대쌀, not 배 in 배송);
// longer ones match anywhere in the text.
var categoryRules = []categoryRule{
	{CategoryAgricultural, []string{"쌀", "곡물", "잡곡", "현미", "찹쌀", "보리", "귀리", "콩", "팥", "들깨", "참깨", "고춧가루", "농산물"}},
	{CategorySeafood, []string{"멸치", "새우", "수산물", "수산", "굴비", "미역", "다시마", "전복", "오징어", "꽃게", "황태", "명태", "젓갈", "연어", "고등어", "해산물", "김", "게"}},
	{CategoryProcessed, []string{"청국장", "된장", "고추장", "간장", "발효", "장류", "김치", "장아찌", "조청", "식초", "즙", "엑기스", "가공"}},
	{CategoryMeat, []string{"한우", "한돈", "돼지", "소고기", "닭", "오리", "정육", "갈비", "불고기", "삼겹"}},
	{CategoryFruit, []string{"사과", "포도", "복숭아", "딸기", "감귤", "한라봉", "천혜향", "블루베리", "참외", "수박", "자두", "곶감", "과일", "배", "귤"}},
	{CategoryVegetable, []string{"시래기", "나물", "곤드레", "고사리", "버섯", "배추", "양파", "마늘", "대파", "고구마", "감자", "옥수수", "채소", "야채", "더덕", "도라지", "무"}},
	{CategoryHealth, []string{"홍삼", "인삼", "산삼", "벌꿀", "프로폴리스", "흑염소", "진액", "녹용", "건강", "꿀"}},
	{CategoryBeverage, []string{"커피", "음료", "막걸리", "와인", "전통주", "주스", "녹차", "차"}},
	{CategorySpecialty, []string{"과자", "특산품", "선물", "한과", "떡"}},
}

// classify returns the category and the keyword that decided it, or ""
// when nothing matched.
func classify(text string) (string, string) {
	lower := strings.ToLower(text)
	words := splitWords(lower)

	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if utf8.RuneCountInString(kw) == 1 {
				if slices.ContainsFunc(words, func(w string) bool { return strings.HasSuffix(w, kw) }) {
					return rule.category, kw
				}
				continue
			}
			if strings.Contains(lower, kw) {
				return rule.category, kw
			}
		}
	}
	return "", ""
}

// categorize prefers the shop's own category text, then the title, then the
// mall's default.
func categorize(hint, title string, d mall.Descriptor) (string, string) {
	if hint != "" {
		if cat, kw := classify(hint); cat != "" {
			return cat, kw
		}
	}
	if cat, kw := classify(title); cat != "" {
		return cat, kw
	}
	if d.DefaultCategory != "" {
		return d.DefaultCategory, ""
	}
	return CategoryOther, ""
}

const maxTitleTags = 5

// buildTags returns the sorted tag set: mall, region, category, the
// matched keyword, configured extras and the first few title words.
func buildTags(title, category, keyword string, d mall.Descriptor) []string {
	tags := []string{d.Name, d.Region, category, keyword}
	tags = append(tags, d.Tags...)

	n := 0
	for _, w := range splitWords(title) {
		if n == maxTitleTags {
			break
		}
		if utf8.RuneCountInString(w) < 2 || isMeasure(w) {
			continue
		}
		tags = append(tags, w)
		n++
	}

	out := tags[:0]
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// isMeasure reports words such as "10kg", "500g" or "3개" that start with a
// digit. They identify a variant, not a product.
func isMeasure(w string) bool {
	r, _ := utf8.DecodeRuneInString(w)
	return unicode.IsDigit(r)
}
