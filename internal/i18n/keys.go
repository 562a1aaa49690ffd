package i18n

// Message keys. Placeholders are positional ({0}, {1}, ...) and must appear
// in ascending order, once each.
const (
	NotAuthorized      = "not_authorized"
	StartFirst         = "start_first"
	OperationCancelled = "operation_cancelled"
	TimedOut           = "timed_out"           // {0} command
	InvalidChoice      = "invalid_choice"      // {0} command
	NumberOutOfRange   = "number_out_of_range" // {0} command
	GenericError       = "generic_error"

	Welcome = "welcome" // {0} username

	AddChannelPrompt   = "add_channel_prompt"
	InviteUnsupported  = "invite_unsupported"
	InvalidChannelID   = "invalid_channel_id"
	ChannelNotFound    = "channel_not_found"
	ChannelRateLimited = "channel_rate_limited" // {0} wait
	ScanningMessages   = "scanning_messages"
	BackfillMatches    = "backfill_matches" // {0} count
	BackfillNoMatches  = "backfill_no_matches"
	JoinChannelOK      = "join_channel_success" // {0} channel
	LeaveChannelOK     = "leave_channel_success" // {0} channel
	LeaveChannelFailed = "leave_channel_failed"
	LeavePrompt        = "leave_prompt" // {0} list

	NoChannels   = "no_channels"
	YourChannels = "your_channels" // {0} list

	WatchAskProduct = "watch_ask_product"
	WatchAskPrice   = "watch_ask_price"
	WatchBadPrice   = "watch_invalid_price"
	WatchAskCat     = "watch_ask_category"
	WatchDuplicate  = "watch_already_monitoring" // {0} product
	WatchSuggest    = "watch_suggest_price"      // {0} product {1} price
	WatchActive     = "watch_active"             // {0} product {1} price info {2} category info
	WatchPriceInfo  = "watch_price_info"         // {0} price
	WatchCatInfo    = "watch_category_info"      // {0} category

	NoProducts      = "no_products"
	NoProductsShort = "no_products_short"
	YourProducts    = "your_products" // {0} list

	UnwatchPrompt = "unwatch_prompt" // {0} list
	Unwatched     = "unwatched"      // {0} product

	HistoryPrompt = "history_prompt" // {0} list
	HistoryEmpty  = "history_empty"  // {0} product
	HistoryHeader = "history_header" // {0} product {1} count

	Paused  = "paused"
	Resumed = "resumed"

	StatsHeader     = "stats_header"
	StatsProducts   = "stats_products"    // {0} count
	StatsChannels   = "stats_channels"    // {0} count
	StatsMatches    = "stats_matches"     // {0} count
	StatsTopProduct = "stats_top_product" // {0} name {1} count
	StatsTopChannel = "stats_top_channel" // {0} name {1} count
	StatsLastMatch  = "stats_last_match"  // {0} date

	CategoriesHeader = "categories_header"
	Uncategorized    = "uncategorized"

	NotifyMatch             = "notify_match"               // {0} product {1} source {2} price line {3} text {4} link line
	NotifyPriceLine         = "notify_price_line"          // {0} price {1} target
	NotifyLinkLine          = "notify_link_line"           // {0} link
	NotifyBackfillMatch     = "notify_backfill_match"      // same as NotifyMatch
	NotifyBackfillPriceLine = "notify_backfill_price_line" // {0} price {1} target

	SummaryHeader  = "summary_header"  // {0} count
	SummaryProduct = "summary_product" // {0} name {1} count
	SummaryItem    = "summary_item"    // {0} price {1} source
	SummaryMore    = "summary_more"    // {0} count
	NotAvailable   = "not_available"
)
