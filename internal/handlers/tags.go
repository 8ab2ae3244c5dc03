package handlers

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emilythestrangee/devquery/backend/internal/models"
)

const (
	minTitleLength   = 15
	maxTitleLength   = 150
	minBodyLength    = 30
	minAnswerLength  = 30
	maxQuestionTags  = 5
	maxTagNameLength = 35
)

var (
	tagName    = regexp.MustCompile(`^[a-z0-9+#.-]+$`)
	whitespace = regexp.MustCompile(`\s+`)
)

// normalizeTags lowercases, hyphenates and dedupes tag names. The result is
// sorted so the same set always yields the same rows.
func normalizeTags(raw []string) ([]string, error) {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		name := whitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(r)), "-")
		if name == "" {
			continue
		}
		if utf8.RuneCountInString(name) > maxTagNameLength || !tagName.MatchString(name) {
			return nil, fmt.Errorf("invalid tag %q", r)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	if len(out) > maxQuestionTags {
		return nil, fmt.Errorf("at most %d tags are allowed", maxQuestionTags)
	}
	sort.Strings(out)
	return out, nil
}

func validateTitle(title string) error {
	if n := utf8.RuneCountInString(title); n < minTitleLength || n > maxTitleLength {
		return fmt.Errorf("title must be between %d and %d characters", minTitleLength, maxTitleLength)
	}
	return nil
}

func validateBody(body string) error {
	if utf8.RuneCountInString(body) < minBodyLength {
		return fmt.Errorf("body must be at least %d characters", minBodyLength)
	}
	return nil
}

func validateAnswer(content string) error {
	if utf8.RuneCountInString(content) < minAnswerLength {
		return fmt.Errorf("answer must be at least %d characters", minAnswerLength)
	}
	return nil
}

// attachTags upserts each tag, bumping its usage count, and links it to the
// question. It must run inside the question's create transaction.
func attachTags(tx *gorm.DB, questionID int, names []string) error {
	for _, name := range names {
		tag := models.Tag{Name: name, Slug: name, UsageCount: 1}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.Assignments(map[string]any{"usage_count": gorm.Expr("tags.usage_count + 1")}),
		}).Create(&tag).Error
		if err != nil {
			return fmt.Errorf("upsert tag %q: %w", name, err)
		}
		if err := tx.Create(&models.QuestionTag{QuestionID: questionID, TagID: tag.ID}).Error; err != nil {
			return fmt.Errorf("link tag %q: %w", name, err)
		}
	}
	return nil
}

func tagNames(tags []models.Tag) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, t.Name)
	}
	sort.Strings(out)
	return out
}
