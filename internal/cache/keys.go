package cache

// Key prefixes for the shortener keyspace
const (
	URLPrefix       = "url:"
	HashPrefix      = "urlhash:"
	ClicksPrefix    = "clicks:"
	AnalyticsPrefix = "analytics:"
)

// MaxAnalyticsEntries bounds each staged analytics list; older entries are trimmed
const MaxAnalyticsEntries = 10000

// URLKey caches the target of a short code
func URLKey(code string) string { return URLPrefix + code }

// HashKey caches the code assigned to a normalized URL hash
func HashKey(hash string) string { return HashPrefix + hash }

// ClicksKey counts clicks not yet folded into the durable store
func ClicksKey(code string) string { return ClicksPrefix + code }

// AnalyticsKey stages click events not yet folded into the durable store
func AnalyticsKey(code string) string { return AnalyticsPrefix + code }
