package pipeline

import "strings"

// taskKeywords is the fixed gate vocabulary. Deliberately coarse and
// high-recall: the filter exists only to keep obvious chatter away from the
// classifier, so when in doubt a phrase belongs on this list.
var taskKeywords = []string{
	"task",
	"todo",
	"assigned",
	"assign",
	"deadline",
	"due",
	"can you",
	"could you",
	"would you",
	"please",
	"need to",
	"needs to",
	"follow up",
	"follow-up",
	"action item",
	"asap",
	"urgent",
	"review",
	"remind",
	"by tomorrow",
	"by friday",
	"by monday",
	"by eod",
	"by end of",
}

// ShouldProcess reports whether a message is worth sending to the AI
// classifier. Pure and synchronous; empty input is never processed.
func ShouldProcess(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, kw := range taskKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
