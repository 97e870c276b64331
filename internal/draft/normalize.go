package draft

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxExclamations = 2

type rewrite struct {
	pattern *regexp.Regexp
	with    string
}

func rule(pattern, with string) rewrite {
	return rewrite{pattern: regexp.MustCompile(pattern), with: with}
}

// fillers are scripted phrases that add nothing to a reply.
var fillers = []rewrite{
	rule(`(?i)I want to assure you(?: that)?\s*`, ""),
	rule(`(?i)I understand your (?:frustration|concern)\.?\s*`, ""),
	rule(`(?i)I understand how (?:frustrating|difficult|inconvenient) this (?:can be|is|must be)\.?\s*`, ""),
	rule(`(?i)I (?:completely|totally) understand\.?\s*`, ""),
	rule(`(?i)Please (?:don't|do not) hesitate to reach out\.?\s*`, ""),
	rule(`(?i)(?:Please )?(?:don't|do not) hesitate to\s*`, ""),
	rule(`(?i)feel free to (?:reach out|contact us|reach back out)\.?\s*`, ""),
	rule(`(?i)Rest assured,?\s*`, ""),
	rule(`(?i)(?:Certainly|Absolutely|Of course|Great question)!\s*`, ""),
	rule(`(?i)I'd be happy to help(?: you with that)?\.?\s*`, ""),
	rule(`(?i)I(?:'m| am) (?:happy|here) to help\.?\s*`, ""),
	rule(`(?i)I hope (?:this|that) helps\.?\s*`, ""),
	rule(`(?i)Hope (?:this|that) helps\.?\s*`, ""),
	rule(`(?i)Is there anything else I can (?:help|assist) you with\??\s*`, ""),
	rule(`(?i)Thank you for your patience and understanding\.?\s*`, ""),
	rule(`(?i)Thank you for your understanding\.?\s*`, ""),
	rule(`(?i)Thank you for (?:contacting us|reaching out to us)\.?\s*`, ""),
	rule(`(?i)Please be advised that\s*`, ""),
	rule(`(?i)I wanted to let you know that\s*`, ""),
	rule(`(?i)It is (?:worth noting|important to note) that\s*`, ""),
}

// swaps trade stiff wording for plain wording.
var swaps = []rewrite{
	rule(`(?i)I (?:sincerely |deeply )?apologize for (?:the|any) inconvenience`, "sorry about that"),
	rule(`(?i)I (?:sincerely|deeply) apologize`, "I'm really sorry"),
	rule(`\b(?:Furthermore|Additionally|Moreover),?\s*`, "Also, "),
	rule(`\b(?:However|Nevertheless|Nonetheless),\s*`, "That said, "),
	rule(`(?i)It (?:appears|seems) that\s*`, "Looks like "),
	rule(`(?i)Please note that\s*`, "Heads up, "),
	rule(`(?i)Kindly\s+`, "Please "),
	rule(`(?i)\butiliz(?:e|ation)\b`, "use"),
	rule(`(?i)\butilizing\b`, "using"),
	rule(`(?i)\bprior to\b`, "before"),
	rule(`(?i)\bin order to\b\s*`, "to "),
	rule(`(?i)\bat your earliest convenience\b`, "when you get a chance"),
	rule(`(?i)\bregarding\b\s*`, "about "),
	rule(`(?i)\bassistance\b`, "help"),
}

// contractions keep the casing of the first letter they replace.
var contractions = []rewrite{
	rule(`\bI am\b`, "I'm"),
	rule(`\bI will\b`, "I'll"),
	rule(`\bI would\b`, "I'd"),
	rule(`(?i)\bwe are\b`, "we're"),
	rule(`(?i)\bwe will\b`, "we'll"),
	rule(`(?i)\byou are\b`, "you're"),
	rule(`(?i)\byou will\b`, "you'll"),
	rule(`(?i)\bthat is\b`, "that's"),
	rule(`(?i)\bit is\b`, "it's"),
	rule(`(?i)\bthere is\b`, "there's"),
	rule(`(?i)\bdo not\b`, "don't"),
	rule(`(?i)\bdoes not\b`, "doesn't"),
	rule(`(?i)\bdid not\b`, "didn't"),
	rule(`(?i)\bcan ?not\b`, "can't"),
	rule(`(?i)\bwill not\b`, "won't"),
	rule(`(?i)\bwould not\b`, "wouldn't"),
	rule(`(?i)\bshould not\b`, "shouldn't"),
	rule(`(?i)\bcould not\b`, "couldn't"),
	rule(`(?i)\bhas not\b`, "hasn't"),
	rule(`(?i)\bhave not\b`, "haven't"),
	rule(`(?i)\bis not\b`, "isn't"),
	rule(`(?i)\bare not\b`, "aren't"),
	rule(`(?i)\bwas not\b`, "wasn't"),
	rule(`(?i)\bwere not\b`, "weren't"),
}

var (
	semicolonPattern   = regexp.MustCompile(`;\s*`)
	emDashPattern      = regexp.MustCompile(`\s*—\s*`)
	doubleSpacePattern = regexp.MustCompile(` {2,}`)
	leadingSpace       = regexp.MustCompile(`(?m)^ +`)
	trailingSpace      = regexp.MustCompile(`(?m)[ \t]+$`)
	repeatedPeriods    = regexp.MustCompile(`\.(?:\s*\.)+`)
	periodComma        = regexp.MustCompile(`\.\s*,\s*`)
	leadingPunct       = regexp.MustCompile(`(?m)^[.,!]\s*`)
	sentenceStart      = regexp.MustCompile(`([.!?] )([a-z])`)
	lineStart          = regexp.MustCompile(`(?m)^([a-z])`)
	blankLines         = regexp.MustCompile(`\n{3,}`)
)

// Normalize makes generated reply text read like a person wrote it. It drops
// scripted filler, enforces contractions, caps exclamation marks at two,
// turns semicolons into sentence breaks and em-dashes into " - ", and cleans
// up the whitespace and capitalization those edits leave behind. The pass is
// pure and deterministic.
func Normalize(text string) string {
	if text == "" {
		return text
	}
	out := text
	for _, r := range fillers {
		out = r.pattern.ReplaceAllString(out, r.with)
	}
	for _, r := range swaps {
		out = r.pattern.ReplaceAllString(out, r.with)
	}
	for _, r := range contractions {
		with := r.with
		out = r.pattern.ReplaceAllStringFunc(out, func(match string) string {
			return matchCase(match, with)
		})
	}

	out = semicolonPattern.ReplaceAllString(out, ". ")
	out = emDashPattern.ReplaceAllString(out, " - ")
	out = capExclamations(out, maxExclamations)

	for pass := 0; pass < 2; pass++ {
		out = doubleSpacePattern.ReplaceAllString(out, " ")
		out = leadingSpace.ReplaceAllString(out, "")
		out = repeatedPeriods.ReplaceAllString(out, ".")
		out = periodComma.ReplaceAllString(out, ". ")
		out = leadingPunct.ReplaceAllString(out, "")
		out = sentenceStart.ReplaceAllStringFunc(out, upperLast)
		out = lineStart.ReplaceAllStringFunc(out, strings.ToUpper)
	}
	out = blankLines.ReplaceAllString(out, "\n\n")
	out = trailingSpace.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}

func capExclamations(text string, limit int) string {
	seen := 0
	return strings.Map(func(r rune) rune {
		if r != '!' {
			return r
		}
		seen++
		if seen > limit {
			return '.'
		}
		return r
	}, text)
}

// matchCase capitalizes replacement when match starts with an upper-case letter.
func matchCase(match, replacement string) string {
	first, _ := utf8.DecodeRuneInString(match)
	if !unicode.IsUpper(first) {
		return replacement
	}
	r, size := utf8.DecodeRuneInString(replacement)
	return string(unicode.ToUpper(r)) + replacement[size:]
}

func upperLast(match string) string {
	return match[:len(match)-1] + strings.ToUpper(match[len(match)-1:])
}
