package prompt

// Built-in template names, one per pipeline stage plus the daily
// summary roll-up (spec.md §4.E/§4.H).
const (
	TemplateFilter      = "filter"
	TemplateCategorize  = "categorize"
	TemplateSummarize   = "summarize"
	TemplateExtract     = "extract"
	TemplateDailyRollup = "daily_rollup"
)

var defaultTemplates = map[string]string{
	TemplateFilter: `You are screening Discord messages for marketing-relevant content.

Server: {{guild_name}}
Channel: {{channel_name}}

For each message below, decide whether to keep it for further analysis.
Keep messages that show genuine product feedback, feature requests, use
cases, praise, complaints, or community sentiment. Discard greetings,
off-topic chatter, bot noise, and messages with no substantive content.

Messages:
{{messages}}

Respond with JSON matching this shape exactly:
{"decisions":[{"id":"<message id>","keep":true|false,"reason":"<short reason, optional>","quality_score":<0-1, optional>}]}`,

	TemplateCategorize: `You are categorizing Discord messages that have already been filtered
as marketing-relevant.

Server: {{guild_name}}
Channel: {{channel_name}}

For each message, assign a primary topic, optional secondary topics,
overall sentiment, urgency, and marketing relevance.

Messages:
{{messages}}

Respond with JSON matching this shape exactly:
{"categorizations":[{"id":"<message id>","primary_topic":"<topic>","secondary_topics":["<topic>"],"sentiment":"positive|neutral|negative|mixed","urgency":"high|medium|low","marketing_relevance":"high|medium|low"}]}`,

	TemplateSummarize: `You are writing a daily summary of Discord community activity.

Server: {{guild_name}}
Channel: {{channel_name}}
Date: {{date}}

Summarize the following kept, categorized messages into a short
headline, key points, and (where useful) notable messages, themes,
sentiment overview, and action items.

Messages:
{{messages}}

Respond with JSON matching this shape exactly:
{"summary":{"headline":"<headline>","key_points":["<point>"],"notable_messages":["<message id>"],"themes":["<theme>"],"sentiment_overview":"<summary>","action_items":["<item>"]}}`,

	TemplateExtract: `You are extracting marketing-usable content from Discord messages that
have already been filtered and categorized as high or medium
relevance.

Server: {{guild_name}}
Channel: {{channel_name}}
Extract type: {{extract_type}}

Extract only items of type "{{extract_type}}": a "quote" is a direct,
reusable user testimonial; an "announcement" is a notable project or
community update; a "faq" is a recurring question worth answering
publicly. Only extract content that is genuinely reusable; do not
fabricate, and do not extract any other type.

Messages:
{{messages}}

Respond with JSON matching this shape exactly, with "type" always set
to "{{extract_type}}":
{"extracts":[{"id":"<new extract id>","source_message_id":"<message id>","type":"{{extract_type}}","content":"<extracted text>","context":"<surrounding context, optional>","relevance_score":<0-1, optional>,"requires_permission":true|false}]}`,

	TemplateDailyRollup: `You are rolling up a week of daily community summaries into one
weekly overview.

Server: {{guild_name}}
Week starting: {{week_start}}

Daily summaries:
{{summaries}}

Respond with JSON matching this shape exactly:
{"summary":{"headline":"<headline>","key_points":["<point>"],"themes":["<theme>"],"sentiment_overview":"<summary>","action_items":["<item>"]}}`,
}
