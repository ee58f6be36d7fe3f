// Package rules holds the static rule table mapping platform activities to
// point values, and the ordered achievement tier definitions.
package rules

import (
	"fmt"
	"sort"

	"github.com/okian/pointsboard/internal/domain/model"
)

// Action keys understood by the default rule table.
const (
	ActionPostCreated      = "POST_CREATED"
	ActionCommentCreated   = "COMMENT_CREATED"
	ActionPostLiked        = "POST_LIKED"
	ActionCommentLiked     = "COMMENT_LIKED"
	ActionLessonCompleted  = "LESSON_COMPLETED"
	ActionCourseCompleted  = "COURSE_COMPLETED"
	ActionEventAttended    = "EVENT_ATTENDED"
	ActionDailyLogin       = "DAILY_LOGIN"
	ActionFirstPost        = "FIRST_POST"
	ActionProfileCompleted = "PROFILE_COMPLETED"
)

// onceOnly rules are awarded at most once per user and community, whichever
// path the award takes.
var onceOnly = map[string]bool{
	ActionFirstPost:        true,
	ActionProfileCompleted: true,
}

// OnceOnly reports whether key may be awarded only once per user and
// community.
func OnceOnly(key string) bool { return onceOnly[key] }

// Rule is one entry of the rule table.
type Rule struct {
	Key         string `json:"key"`
	Points      int64  `json:"points"`
	Description string `json:"description"`
}

var defaultRules = []Rule{
	{Key: ActionPostCreated, Points: 10, Description: "Created a post"},
	{Key: ActionCommentCreated, Points: 5, Description: "Commented on a post"},
	{Key: ActionPostLiked, Points: 2, Description: "Received a like on a post"},
	{Key: ActionCommentLiked, Points: 1, Description: "Received a like on a comment"},
	{Key: ActionLessonCompleted, Points: 15, Description: "Completed a lesson"},
	{Key: ActionCourseCompleted, Points: 50, Description: "Completed a course"},
	{Key: ActionEventAttended, Points: 20, Description: "Attended an event"},
	{Key: ActionDailyLogin, Points: 5, Description: "Daily login bonus"},
	{Key: ActionFirstPost, Points: 25, Description: "Published a first post"},
	{Key: ActionProfileCompleted, Points: 10, Description: "Completed profile"},
}

// Option applies a configuration option to the Table.
type Option func(*Table)

// WithPointOverrides replaces the point value of known rules. Non-positive
// values and unknown keys are ignored so the table never defines a
// non-positive award.
func WithPointOverrides(overrides map[string]int64) Option {
	return func(t *Table) {
		for key, points := range overrides {
			if points <= 0 {
				continue
			}
			if r, ok := t.rules[key]; ok {
				r.Points = points
				t.rules[key] = r
			}
		}
	}
}

// WithRule adds or replaces a rule.
func WithRule(r Rule) Option {
	return func(t *Table) {
		if r.Key != "" && r.Points > 0 {
			t.rules[r.Key] = r
		}
	}
}

// Table is the read-only rule table. It is built once at startup and shared.
type Table struct {
	rules map[string]Rule
}

// NewTable builds the default table and applies opts.
func NewTable(opts ...Option) *Table {
	t := &Table{rules: make(map[string]Rule, len(defaultRules))}
	for _, r := range defaultRules {
		t.rules[r.Key] = r
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Lookup returns the rule for key.
func (t *Table) Lookup(key string) (Rule, bool) {
	r, ok := t.rules[key]
	return r, ok
}

// MustLookup returns the rule for key or panics. Only used for keys the
// process itself depends on, like the daily login rule.
func (t *Table) MustLookup(key string) Rule {
	r, ok := t.rules[key]
	if !ok {
		panic(fmt.Sprintf("rules: missing required rule %q", key))
	}
	return r
}

// Rules lists all rules ordered by key.
func (t *Table) Rules() []Rule {
	out := make([]Rule, 0, len(t.rules))
	for _, r := range t.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// CustomReason is the reason recorded for an action with no matching rule.
func CustomReason(actionKey string) string {
	return "Custom action: " + actionKey
}

// Resolve maps an action to its point value and reason. customPoints, when
// non-nil, wins over the rule value.
func (t *Table) Resolve(actionKey string, customPoints *int64) (int64, string, error) {
	r, ok := t.rules[actionKey]
	switch {
	case ok && customPoints != nil:
		return *customPoints, r.Description, nil
	case ok:
		return r.Points, r.Description, nil
	case customPoints != nil:
		return *customPoints, CustomReason(actionKey), nil
	default:
		return 0, "", fmt.Errorf("%w: %s", model.ErrUnknownAction, actionKey)
	}
}
