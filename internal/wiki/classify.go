package wiki

import (
	"strings"

	"github.com/askbob-ai/wikidex/internal/knowledge"
)

// ClassifyPage assigns a page type from its title and categories.
// Rules are ordered by specificity; the first match wins. Category matches
// are substring checks against lowercased category names, which tolerates
// the wiki's many variations ("Slayer monsters", "Members' items", ...).
func ClassifyPage(title string, categories []string) string {
	cats := make([]string, len(categories))
	for i, c := range categories {
		cats[i] = strings.ToLower(c)
	}
	titleLower := strings.ToLower(title)

	anyCat := func(match func(string) bool) bool {
		for _, c := range cats {
			if match(c) {
				return true
			}
		}
		return false
	}
	contains := func(sub string) bool {
		return anyCat(func(c string) bool { return strings.Contains(c, sub) })
	}

	switch {
	case contains("quest"):
		return knowledge.PageTypeQuest
	case anyCat(func(c string) bool {
		return strings.Contains(c, "monster") && !strings.Contains(c, "category")
	}):
		return knowledge.PageTypeMonster
	case contains("boss"):
		return knowledge.PageTypeBoss
	case anyCat(func(c string) bool {
		return strings.Contains(c, "item") && !strings.Contains(c, "category")
	}):
		return knowledge.PageTypeItem
	case contains("equipment"), contains("weapon"), contains("armour"), contains("armor"):
		return knowledge.PageTypeEquipment
	case anyCat(func(c string) bool {
		return strings.Contains(c, "skill") && !strings.Contains(c, "guide")
	}):
		return knowledge.PageTypeSkill
	case contains("location"), contains("city"), contains("town"):
		return knowledge.PageTypeLocation
	case contains("minigame"):
		return knowledge.PageTypeMinigame
	case contains("npc"):
		return knowledge.PageTypeNPC
	case contains("spell"), contains("prayer"):
		return knowledge.PageTypeSpell
	case contains("clue"):
		return knowledge.PageTypeClue
	case strings.Contains(titleLower, "money making"):
		return knowledge.PageTypeMoneyMaking
	case contains("achievement"), contains("diary"):
		return knowledge.PageTypeAchievementDiary
	default:
		return knowledge.PageTypeGeneral
	}
}
