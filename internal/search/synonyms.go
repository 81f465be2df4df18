package search

// FileSynonyms maps natural language terms encountered in file-management
// queries to their common equivalents in file names, tags, and document
// content. Multiple entries are OR'd together to expand query coverage,
// bridging the vocabulary gap between how a user describes what they're
// looking for and how the file or its tags actually name it.
var FileSynonyms = map[string][]string{
	// ==========================================================================
	// Document/file type terms
	// ==========================================================================
	"document":  {"doc", "file", "paper", "report"},
	"doc":       {"document", "file"},
	"report":    {"summary", "writeup", "document", "review"},
	"image":     {"photo", "picture", "pic", "screenshot", "img"},
	"photo":     {"image", "picture", "pic"},
	"picture":   {"photo", "image", "pic"},
	"screenshot": {"screen grab", "capture", "image"},
	"spreadsheet": {"sheet", "excel", "table", "csv"},
	"presentation": {"slides", "deck", "slideshow"},
	"pdf":       {"PDF", "document", "file"},
	"note":      {"notes", "memo", "jotting"},
	"invoice":   {"bill", "receipt", "statement"},
	"receipt":   {"invoice", "bill"},
	"contract":  {"agreement", "terms"},

	// ==========================================================================
	// Tag/organization terms
	// ==========================================================================
	"tag":      {"label", "category", "topic"},
	"label":    {"tag", "category"},
	"category": {"tag", "type", "group"},
	"folder":   {"directory", "dir"},
	"directory": {"folder", "dir"},
	"archive":  {"backup", "old", "stored"},

	// ==========================================================================
	// Time/recency terms
	// ==========================================================================
	"recent":   {"latest", "newest", "new"},
	"latest":   {"recent", "newest"},
	"old":      {"archived", "outdated", "previous"},
	"draft":    {"unfinished", "working", "in progress"},
	"final":    {"finished", "completed", "approved"},

	// ==========================================================================
	// Ownership/provenance terms
	// ==========================================================================
	"shared":   {"collaborative", "sent"},
	"personal": {"private", "mine"},
	"sensitive": {"confidential", "private", "restricted"},

	// ==========================================================================
	// Common actions/verbs
	// ==========================================================================
	"find":    {"search", "locate", "look for"},
	"search":  {"find", "lookup", "query"},
	"open":    {"view", "read", "access"},
	"move":    {"relocate", "transfer"},
	"rename":  {"relabel"},
	"delete":  {"remove", "trash", "discard"},
	"copy":    {"duplicate", "clone"},
	"share":   {"send", "distribute"},
	"backup":  {"archive", "save copy"},

	// ==========================================================================
	// Natural language question forms
	// ==========================================================================
	"where":   {"location", "path", "find"},
	"when":    {"date", "time", "modified"},
	"who":     {"author", "owner", "creator"},
	"about":   {"regarding", "concerning", "related to"},
}

// GetSynonyms returns all synonyms for a given term.
// Returns an empty slice if no synonyms exist.
func GetSynonyms(term string) []string {
	if synonyms, ok := FileSynonyms[term]; ok {
		return synonyms
	}
	// Try lowercase
	if synonyms, ok := FileSynonyms[toLower(term)]; ok {
		return synonyms
	}
	return nil
}

// toLower is a simple lowercase helper to avoid importing strings.
func toLower(s string) string {
	b := make([]byte, len(s))
	for i := range s {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		b[i] = c
	}
	return string(b)
}
