package models

import "time"

// Entity kinds the pipeline routes on.
const (
	KindUser  = "user"
	KindTopic = "topic"
	KindStory = "story"
	KindReply = "reply"
	KindTag   = "tag"
	KindView  = "view"
)

// UserFields is the minimal projection the pipeline reads from a user row.
type UserFields struct {
	Hash string `db:"hash"`
	Name string `db:"name"`
	Bio  string `db:"bio"`
}

// StoryFields is the minimal projection the pipeline reads from a story row.
type StoryFields struct {
	Hash    string `db:"hash"`
	Author  string `db:"author"`
	Title   string `db:"title"`
	Content string `db:"content"`
}

// ReplyFields is the minimal projection the pipeline reads from a reply row.
type ReplyFields struct {
	Hash    string `db:"hash"`
	Author  string `db:"author"`
	Content string `db:"content"`
}

// TopicFields is the minimal projection the pipeline reads from a topic row.
type TopicFields struct {
	Hash    string `db:"hash"`
	Author  string `db:"author"`
	Name    string `db:"name"`
	Summary string `db:"summary"`
}

// View is a single recorded view of an entity. Creating one triggers a
// follow-up counter event for the viewed entity (see events.ViewCascade).
type View struct {
	Kind      string    `db:"kind"`
	Target    string    `db:"target"`
	Author    string    `db:"author"`
	User      string    `db:"viewer"`
	CreatedAt time.Time `db:"created_at"`
}

// tableForKind maps an entity kind to the table owning its counter columns.
var tableForKind = map[string]string{
	KindUser:  "users",
	KindTopic: "topics",
	KindStory: "stories",
	KindReply: "replies",
}

// counterColumns is the allow-list of counter columns per table. Counter
// mutations are always relative single-column updates, so the column name is
// the only piece of SQL that varies; it must come from this list.
var counterColumns = map[string]map[string]bool{
	"users": {
		"followers": true,
		"following": true,
		"stories":   true,
		"replies":   true,
		"views":     true,
	},
	"topics": {
		"followers":   true,
		"subscribers": true,
		"views":       true,
		"stories":     true,
	},
	"stories": {
		"views":   true,
		"likes":   true,
		"replies": true,
		"votes":   true,
	},
	"replies": {
		"views":   true,
		"likes":   true,
		"replies": true,
	},
}

// hashPrefixes types external identifiers: hashes are minted with a leading
// letter naming the entity kind (S0..., R0..., T0..., U0...).
var hashPrefixes = map[byte]string{
	'S': KindStory,
	'R': KindReply,
	'T': KindTopic,
	'U': KindUser,
}

// KindFromHash derives the entity kind from a hash's type prefix.
func KindFromHash(hash string) (string, bool) {
	if hash == "" {
		return "", false
	}
	kind, ok := hashPrefixes[hash[0]]
	return kind, ok
}

// TableForKind returns the table owning the counters of the given entity
// kind, or false for kinds without counter columns.
func TableForKind(kind string) (string, bool) {
	table, ok := tableForKind[kind]
	return table, ok
}

// IsCounterColumn reports whether column is a known counter of table.
func IsCounterColumn(table, column string) bool {
	return counterColumns[table][column]
}
