// Package store provides embedded SQLite persistence for raw Discord
// entities and staged LLM pipeline results.
package store

import "time"

// Guild is a single Discord guild scraped by one run.
type Guild struct {
	ID          string
	Name        string
	IconURL     string
	MemberCount int
}

// Channel is a text-capable channel within a Guild. LastScrapedMessageID
// is the high-watermark used to resume incremental fetches; it is a
// monotone upper bound under lexicographic string comparison.
type Channel struct {
	ID                   string
	GuildID              string
	Name                 string
	Type                 int
	ParentID             string
	Position             int
	Topic                string
	LastScrapedMessageID string
	LastScrapedAt        *time.Time
	MessageCount         int
}

// User is a Discord account, bot or human.
type User struct {
	ID            string
	Username      string
	GlobalName    string
	Discriminator string
	AvatarURL     string
	IsBot         bool
}

// Message is a single Discord message. Timestamp is never rewritten on
// upsert; content fields may be updated when an edited message is
// re-encountered.
type Message struct {
	ID              string
	ChannelID       string
	AuthorID        string
	Content         string
	CleanContent    string
	Timestamp       time.Time
	EditedTimestamp *time.Time
	MessageType     int
	ReferenceID     string
	ThreadID        string
	HasEmbeds       bool
	HasAttachments  bool
	ReactionCount   int
}

// Embed is a child row of Message, cascade-deleted with its parent.
type Embed struct {
	ID          int64
	MessageID   string
	Title       string
	Description string
	URL         string
	DataJSON    string
}

// Attachment is a child row of Message, cascade-deleted with its parent.
type Attachment struct {
	ID          string
	MessageID   string
	Filename    string
	URL         string
	ContentType string
	Size        int64
}

// Reaction is unique per (MessageID, Emoji), cascade-deleted with its
// parent message.
type Reaction struct {
	MessageID string
	Emoji     string
	Count     int
}

// Sync type and status enumerations for SyncState.
const (
	SyncTypeFull        = "full"
	SyncTypeIncremental = "incremental"
	SyncTypeChannel     = "channel"

	SyncStatusInProgress = "in_progress"
	SyncStatusCompleted  = "completed"
	SyncStatusFailed     = "failed"
)

// SyncState records one invocation of the scraper. Status transitions
// in_progress -> completed | failed and is terminal once set.
type SyncState struct {
	ID                 int64
	SyncType           string
	GuildID            string
	ChannelID          string
	StartedAt          time.Time
	CompletedAt        *time.Time
	MessagesProcessed  int
	Status             string
	ErrorMessage       string
}

// Pipeline stage names, fixed run order filter -> categorize ->
// summarize -> extract -> format.
const (
	StageFilter     = "filter"
	StageCategorize = "categorize"
	StageSummarize  = "summarize"
	StageExtract    = "extract"
	StageFormat     = "format"
)

// Entity type discriminators for AIProcessing rows.
const (
	EntityMessage       = "message"
	EntityChannel       = "channel"
	EntityDailySummary  = "daily_summary"
	EntityWeeklySummary = "weekly_summary"
)

// AIProcessing is the memoization row for one (EntityType, EntityID,
// Stage) triple. Its presence is the stage's "done" marker; the unique
// key on those three columns is the idempotence contract a write
// replaces the prior row (last-write-wins), a read short-circuits.
type AIProcessing struct {
	ID          int64
	EntityType  string
	EntityID    string
	Stage       string
	ResultJSON  string
	ModelUsed   string
	TokensIn    *int
	TokensOut   *int
	GuildID     string
	ChannelID   string
	PeriodStart string
	ProcessedAt time.Time
}

// Extract type and sentiment enumerations for MarketingExtract.
const (
	ExtractAnnouncement = "announcement"
	ExtractQuote        = "quote"
	ExtractFAQ          = "faq"
	ExtractHighlight    = "highlight"
	ExtractSocialPost   = "social_post"

	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
	SentimentMixed    = "mixed"
)

// MarketingExtract is an append-only typed marketing artifact derived
// from one source message.
type MarketingExtract struct {
	ID                  string
	SourceType          string
	SourceID            string
	ExtractType         string
	Title               string
	Content             string
	FormattedContent    string
	RelevanceScore      float64
	Sentiment           string
	Topics              []string
	RequiresPermission  bool
	PermissionGranted   bool
	CreatedAt           time.Time
}
