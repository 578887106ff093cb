package semantic

import "strings"

// stopwords are dropped when extracting key terms from a query. The list
// covers the function words that dominate chat-style questions.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"do": true, "does": true, "did": true, "can": true, "could": true,
	"will": true, "would": true, "should": true, "shall": true, "may": true,
	"i": true, "you": true, "he": true, "she": true, "it": true, "we": true,
	"they": true, "me": true, "my": true, "your": true, "our": true,
	"this": true, "that": true, "these": true, "those": true,
	"what": true, "which": true, "who": true, "when": true, "where": true,
	"why": true, "how": true, "to": true, "of": true, "in": true, "on": true,
	"at": true, "for": true, "from": true, "with": true, "about": true,
	"into": true, "please": true, "just": true, "not": true, "no": true,
	"so": true, "if": true, "then": true, "than": true, "too": true,
	"very": true, "there": true, "here": true, "up": true, "down": true,
	"out": true, "now": true, "get": true, "make": true, "like": true,
	"tell": true, "show": true, "want": true, "need": true, "help": true,
}

// ExtractKeywords reduces a query to its content words — a cheap stand-in
// for noun-phrase extraction. Words shorter than three characters and
// stopwords are dropped; the remainder is lowercased and joined with
// spaces. Returns "" when nothing survives.
func ExtractKeywords(query string) string {
	fields := strings.Fields(strings.ToLower(query))
	kept := make([]string, 0, len(fields))
	for _, w := range fields {
		w = strings.Trim(w, ".,!?;:\"'()[]{}")
		if len(w) < 3 || stopwords[w] {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}
