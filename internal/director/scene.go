package director

import (
	"strings"
	"unicode"
)

// SceneType is the narrative role of a scene. It drives effect selection.
type SceneType string

const (
	Hook         SceneType = "hook"
	Introduction SceneType = "introduction"
	MainPoint    SceneType = "main_point"
	Example      SceneType = "example"
	Transition   SceneType = "transition"
	Emphasis     SceneType = "emphasis"
	CTA          SceneType = "cta"
	Conclusion   SceneType = "conclusion"
	Regular      SceneType = "regular"
)

// Known reports whether t is one of the defined scene types.
func (t SceneType) Known() bool {
	_, ok := effectRules[t]
	return ok
}

// Highlighted reports whether subtitles of this scene type use the
// highlighted card.
func (t SceneType) Highlighted() bool {
	return t == Emphasis || t == CTA
}

type keywordSet struct {
	scene    SceneType
	keywords []string
}

// Checked in order, first match wins.
var scenePatterns = []keywordSet{
	{Hook, []string{
		"знаете ли вы", "представьте", "что если", "секрет",
		"никто не знает", "шокирующая правда", "удивительно",
		"did you know", "imagine", "what if", "secret",
		"nobody knows", "shocking truth", "amazing",
	}},
	{Transition, []string{
		"но", "однако", "теперь", "далее", "перейдём",
		"следующий", "также", "кроме того", "более того",
		"but", "however", "now", "next", "moving on",
		"also", "moreover", "furthermore",
	}},
	{Example, []string{
		"например", "к примеру", "допустим", "представим",
		"случай", "история", "пример",
		"for example", "for instance", "suppose", "let's say",
		"case", "story", "example",
	}},
	{Emphasis, []string{
		"важно", "ключевой", "главное", "критично",
		"необходимо", "обязательно", "помните",
		"important", "key", "main thing", "critical",
		"essential", "must", "remember",
	}},
	{CTA, []string{
		"подпишитесь", "лайк", "комментарий", "поделитесь",
		"нажмите", "оставьте", "напишите", "канал",
		"subscribe", "like button", "comment", "share",
		"click", "leave a", "channel",
	}},
	{Conclusion, []string{
		"итак", "в заключение", "подводя итог", "резюмируя",
		"в итоге", "таким образом", "следовательно",
		"in conclusion", "to sum up", "summing up",
		"in the end", "therefore", "all in all",
	}},
}

// DetectSceneType classifies the scene at index out of total. The opening
// and closing stretches of a video are always hook and conclusion, keywords
// decide the rest, and position is the fallback.
func DetectSceneType(index, total int, text string) SceneType {
	position := float64(index) / float64(max(total-1, 1))

	if position < 0.15 {
		return Hook
	}
	if position > 0.85 {
		return Conclusion
	}

	words := normalize(text)
	for _, set := range scenePatterns {
		for _, kw := range set.keywords {
			if strings.Contains(words, " "+kw+" ") {
				return set.scene
			}
		}
	}

	switch {
	case position < 0.33:
		return Introduction
	case position <= 0.66:
		return MainPoint
	}
	return Regular
}

// normalize lowercases text and reduces it to single-space separated words
// with a leading and trailing space, so keywords only match whole words.
func normalize(text string) string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	return " " + strings.Join(fields, " ") + " "
}
