package xp

// DefaultLevels returns the cumulative XP needed for each level. Index is
// the level itself: level 0 starts at zero, level 1 needs 100 XP, and so on
// up to level 14.
func DefaultLevels() []int64 {
	return []int64{
		0, 100, 250, 500, 1000,
		1750, 2750, 4000, 5500, 7500,
		10000, 13000, 16500, 20500, 25000,
	}
}

var levelTitles = []string{
	"New Member",
	"Member",
	"Regular",
	"Contributor",
	"Veteran",
	"Elite",
	"Champion",
	"Legend",
	"Hero",
	"Superstar",
	"Master",
	"Grandmaster",
	"Mythic",
	"Eternal",
	"GOAT",
}

// LevelForXP returns the highest level whose threshold the XP total has
// reached. Levels must be sorted ascending with levels[0] == 0.
func LevelForXP(levels []int64, xp int64) int {
	level := 0
	for i, threshold := range levels {
		if xp < threshold {
			break
		}
		level = i
	}
	return level
}

// Title names a level for announcement messages. Levels past the end of the
// table keep the final title.
func Title(level int) string {
	if level < 0 {
		level = 0
	}
	if level >= len(levelTitles) {
		level = len(levelTitles) - 1
	}
	return levelTitles[level]
}
