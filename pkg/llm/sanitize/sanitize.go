// Package sanitize hardens external text before it reaches a prompt.
// Web-scraped content, third-party API fields and user free-text all
// pass through here; anything that looks like an instruction to the
// model is redacted rather than interpreted.
package sanitize

import (
	"regexp"
	"strconv"
	"strings"
)

// CompiledRule holds a pre-compiled regex with its replacement.
type CompiledRule struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// structuralRules run first: they remove markup and carriers that can
// smuggle instructions, independent of wording.
var structuralRules = []*CompiledRule{
	{
		Name:        "script_block",
		Regex:       regexp.MustCompile(`(?is)<script\b.*?</script>`),
		Replacement: "",
	},
	{
		Name:        "style_block",
		Regex:       regexp.MustCompile(`(?is)<style\b.*?</style>`),
		Replacement: "",
	},
	{
		Name:        "html_tag",
		Regex:       regexp.MustCompile(`(?s)<[^>]{1,200}>`),
		Replacement: "",
	},
	{
		Name:        "fenced_code",
		Regex:       regexp.MustCompile("(?s)```.*?```"),
		Replacement: "[CODE_REMOVED]",
	},
	{
		Name:        "url",
		Regex:       regexp.MustCompile(`(?i)\bhttps?://[^\s<>"']+`),
		Replacement: "[URL_REMOVED]",
	},
	{
		Name:        "zero_width",
		Regex:       regexp.MustCompile("[​‌‍‎‏⁠\uFEFF]"),
		Replacement: "",
	},
}

// overridePhrases are instruction-override attempts. Each compiles to a
// case-insensitive rule replacing the match with [REDACTED].
var overridePhrases = []string{
	`ignore (all |any |the )?(previous|prior|above|earlier) (instructions?|prompts?|rules?|context)`,
	`disregard (all |any |the )?(previous|prior|above|earlier) (instructions?|prompts?|rules?)`,
	`forget (all |any |the )?(previous|prior|above|earlier) (instructions?|prompts?|rules?)`,
	`forget everything`,
	`override (all |any |the )?(previous|prior|system) (instructions?|prompts?|rules?)`,
	`new instructions?:`,
	`system\s*:`,
	`assistant\s*:`,
	`\[system\]`,
	`\[/?inst\]`,
	`<\|im_start\|>`,
	`<\|im_end\|>`,
	`you are now (a|an|no longer)`,
	`act as (if you were |a |an )?`,
	`pretend (to be|you are)`,
	`roleplay as`,
	`do anything now`,
	`\bdan mode\b`,
	`jailbreak`,
	`developer mode`,
	`ignore your (guidelines|programming|training|instructions)`,
	`bypass (your |the )?(restrictions|filters|guidelines|safety)`,
	`show (me )?(your|the) (system )?prompt`,
	`reveal (your|the) (system )?(prompt|instructions)`,
	`repeat (your|the) (system )?(prompt|instructions)`,
	`print (your|the) (system )?(prompt|instructions)`,
	`what (are|were) your (original )?instructions`,
	`respond (only )?in the persona of`,
	`from now on,? you`,
	`stop being an? (ai|assistant)`,
	`your (new|real) (task|purpose|goal) is`,
	`this is (a|your) (new|higher.priority) (instruction|directive)`,
	`execute (the following|this) (code|command)`,
	`admin override`,
}

// Sanitizer applies the structural and override rule sets in order.
// Created once at startup; thread-safe, stateless aside from compiled
// rules.
type Sanitizer struct {
	rules []*CompiledRule
}

// New compiles the full rule set.
func New() *Sanitizer {
	rules := make([]*CompiledRule, 0, len(structuralRules)+len(overridePhrases))
	rules = append(rules, structuralRules...)
	for i, phrase := range overridePhrases {
		rules = append(rules, &CompiledRule{
			Name:        "override_" + strconv.Itoa(i),
			Regex:       regexp.MustCompile(`(?i)` + phrase),
			Replacement: "[REDACTED]",
		})
	}
	return &Sanitizer{rules: rules}
}

// Clean applies every rule and collapses the whitespace left behind.
func (s *Sanitizer) Clean(text string) string {
	cleaned := text
	for _, rule := range s.rules {
		cleaned = rule.Regex.ReplaceAllString(cleaned, rule.Replacement)
	}
	cleaned = collapseWhitespace.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

// Wrap sanitizes the text and fences it in explicit delimiters so the
// system prompt can mark it as data, never instructions.
func (s *Sanitizer) Wrap(text string) string {
	return "<EXTERNAL_DATA>\n" + s.Clean(text) + "\n</EXTERNAL_DATA>"
}

// RuleCount reports how many rules are active.
func (s *Sanitizer) RuleCount() int { return len(s.rules) }

var collapseWhitespace = regexp.MustCompile(`[ \t]{2,}`)
