package extract

import "regexp"

// The host page renders the same logical question in several structurally
// different, undocumented DOM shapes depending on quiz version. Every
// selector below is one tier of a best-effort fallback chain; none of them
// is authoritative on its own.
const (
	// ContentFrameSelector locates the primary content iframe on the top
	// document. Its absence means "no quiz on this page", a valid outcome.
	ContentFrameSelector = `iframe#course-player, iframe[data-testid="quiz-frame"]`

	// selQuestionBlock matches one top-level question block inside a frame.
	selQuestionBlock = "div.rc-QuizQuestion"

	// selResponseWrap is the most specific container tier: the dedicated
	// response wrapper around one gradable answer.
	selResponseWrap = `div[data-testid="AutoGradableResponse"]`

	// selGenericPart is the middle container tier: a generic form part block.
	selGenericPart = "div.rc-FormPartsQuestion"

	// selHeader is the dedicated question header element.
	selHeader = ".rc-QuestionHeader legend, legend"

	// selSubPrompt is the clarifying sub-question paragraph, appended to the
	// resolved question text when present and distinct.
	selSubPrompt = "p.rc-QuestionSubPrompt, p.sub-question"

	// selTextInput matches free-text answer inputs.
	selTextInput = `input[type="text"], input[type="number"], textarea`

	// selAnyInput matches any answer input control.
	selAnyInput = "input, textarea, select"

	// selOptionLegacy is the legacy option structure; selOptionAlt is the
	// alternate structure newer quiz versions render.
	selOptionLegacy = ".rc-Option label"
	selOptionAlt    = `div[role="radiogroup"] label, div[role="group"] label`

	// Known id prefixes on input containers; stripping them yields the
	// question identity.
	textInputIDPrefix   = "text-response-"
	optionInputIDPrefix = "option-input-"

	// attrProblemID carries the platform's problem identity on an ancestor.
	attrProblemID = "data-problem-id"
)

// contentMarkerSelectors are elements whose presence indicates the content
// frame has rendered far enough to extract from. The scraper waits for any
// of them, bounded and best-effort.
var contentMarkerSelectors = []string{
	selQuestionBlock,
	selResponseWrap,
	selGenericPart,
}

// scoringAnnotationRe matches the grading annotation the platform renders
// where a question header would otherwise be ("1.5/1.5 points graded",
// "0.0/2.0 point ungraded", ...). Such text is never a question.
var scoringAnnotationRe = regexp.MustCompile(`^\d+\.\d+\s*/\s*\d+\.\d+\s+points?\s+(?:un)?graded$`)

// enumMarkerRe strips leading enumeration markers off option labels
// ("a. ", "1) ", "(b) ", "- ", "• ", Cyrillic letters included).
var enumMarkerRe = regexp.MustCompile(`^\s*(?:\(?[a-zA-Zа-яА-Я0-9]{1,2}[.)]\s+|[-•*]\s+)`)

// boilerplatePhrases are known non-question texts encountered while walking
// the DOM for question text: platform chrome, progress markers and replays
// of the user's previous answers. Matched case-insensitively as phrases.
var boilerplatePhrases = []string{
	"select all that apply",
	"choose one answer",
	"this question has multiple parts",
	"your answer",
	"previous answer",
	"answer saved",
	"save draft",
	"question",
	"point",
	"points",
	"graded",
	"ungraded",
	"loading",
}
