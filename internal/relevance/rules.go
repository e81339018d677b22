package relevance

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"github.com/MrWong99/hearken/internal/textnorm"
)

// input is the precomputed view of one transcript that every rule reads.
type input struct {
	raw    string
	lower  string
	norm   string
	tokens []string
	ctx    Context
	prefs  Preferences
	wake   WakeWords
	cfg    Config
}

func newInput(text string, rc Context, prefs Preferences, wake WakeWords, cfg Config) *input {
	raw := strings.TrimSpace(text)
	toks := textnorm.Tokens(raw)
	return &input{
		raw:    raw,
		lower:  strings.ToLower(raw),
		norm:   strings.Join(toks, " "),
		tokens: toks,
		ctx:    rc,
		prefs:  prefs,
		wake:   wake,
		cfg:    cfg,
	}
}

type rule struct {
	name  string
	match func(in *input) (Result, bool)
}

// stage1 is evaluated in order; the first match wins.
var stage1 = []rule{
	{"empty", ruleEmpty},
	{"filler", ruleFiller},
	{"symbols", ruleSymbols},
	{"repetition", ruleRepetition},
	{"wake_word_only", ruleWakeWordOnly},
	{"meaningful", ruleMeaningful},
	{"media", ruleMedia},
	{"self_talk", ruleSelfTalk},
	{"third_party", ruleThirdParty},
	{"background", ruleBackground},
}

func verdict(action Action, category string, confidence float64, reason string) Result {
	return Result{Action: action, Category: category, Confidence: confidence, Stage: 1, Reason: reason}
}

// uncertain resolves a gated soft rule to discard or, when the user asked to
// be consulted, ask_user.
func uncertain(in *input, category string, confidence float64, reason string) Result {
	if in.prefs.AskOnUncertain {
		return verdict(ActionAskUser, category, confidence, reason)
	}
	return verdict(ActionDiscard, category, confidence, reason)
}

// ── 1. empty / too short ──────────────────────────────────────────────────────

func ruleEmpty(in *input) (Result, bool) {
	if len(in.tokens) == 0 || len([]rune(in.norm)) < in.cfg.MinChars {
		return verdict(ActionDiscard, CategoryEmpty, 0.99, "empty or too short"), true
	}
	return Result{}, false
}

// ── 2. filler words ───────────────────────────────────────────────────────────

var fillers = map[string]bool{
	// English
	"um": true, "umm": true, "uh": true, "uhh": true, "uhm": true, "hmm": true, "hm": true,
	"mm": true, "mhm": true, "er": true, "erm": true, "ah": true, "ahh": true, "eh": true,
	"oh": true, "huh": true, "meh": true,
	// French
	"euh": true, "heu": true, "hum": true, "bah": true, "ben": true, "hein": true,
	"bof": true, "pff": true, "pfff": true, "beh": true,
}

func ruleFiller(in *input) (Result, bool) {
	for _, t := range in.tokens {
		if !fillers[t] {
			return Result{}, false
		}
	}
	return verdict(ActionDiscard, CategoryFillerWords, 0.95, "only filler words"), true
}

// ── 3. symbols / digits only ──────────────────────────────────────────────────

func ruleSymbols(in *input) (Result, bool) {
	if len([]rune(in.raw)) > in.cfg.MaxSymbolChars {
		return Result{}, false
	}
	for _, r := range in.norm {
		if unicode.IsLetter(r) {
			return Result{}, false
		}
	}
	return verdict(ActionDiscard, CategorySymbols, 0.9, "only digits or symbols"), true
}

// ── 4. repetition ─────────────────────────────────────────────────────────────

func ruleRepetition(in *input) (Result, bool) {
	run := 1
	for i := 1; i < len(in.tokens); i++ {
		if in.tokens[i] == in.tokens[i-1] {
			run++
			if run >= in.cfg.RepetitionCount {
				return verdict(ActionDiscard, CategoryRepetition, 0.9,
					fmt.Sprintf("word %q repeated %d times", in.tokens[i], run)), true
			}
		} else {
			run = 1
		}
	}

	seen := 1 // this transcript
	for _, u := range in.ctx.History {
		if in.ctx.Now.Sub(u.At) > in.cfg.RepetitionWindow {
			continue
		}
		if textnorm.Normalize(u.Text) == in.norm {
			seen++
		}
	}
	if seen >= in.cfg.RepetitionCount {
		return verdict(ActionDiscard, CategoryRepetition, 0.9,
			fmt.Sprintf("same text seen %d times within %s", seen, in.cfg.RepetitionWindow)), true
	}
	return Result{}, false
}

// ── 5. wake word without a command ────────────────────────────────────────────

func ruleWakeWordOnly(in *input) (Result, bool) {
	if in.wake == nil {
		return Result{}, false
	}
	found, rest := in.wake.DetectPrefix(in.raw)
	if !found || len([]rune(textnorm.Normalize(rest))) >= in.cfg.MinChars {
		return Result{}, false
	}
	return verdict(ActionDiscard, CategoryWakeWordOnly, 0.9, "wake word without a command"), true
}

// ── 6. meaningful signal ──────────────────────────────────────────────────────

var (
	questionWords = []string{
		"what", "when", "where", "who", "whom", "whose", "why", "how", "which",
		"is", "are", "am", "can", "could", "do", "does", "did", "will", "would", "should", "shall", "may",
		"quand", "comment", "pourquoi", "qui", "quoi", "ou", "combien", "quel", "quelle", "estce",
	}
	imperativeVerbs = []string{
		"remind", "call", "text", "email", "send", "add", "set", "create", "schedule", "book",
		"cancel", "find", "search", "look", "turn", "open", "close", "show", "tell", "write",
		"note", "remember", "buy", "order", "check", "start", "stop", "save", "delete", "move",
		"rappelle", "appelle", "envoie", "ajoute", "cherche", "ouvre", "ferme", "achete",
	}
	firstPerson = []string{
		"i", "im", "ive", "ill", "id", "my", "we", "were", "our", "lets",
		"je", "jai", "mon", "ma", "mes", "nous", "notre",
	}

	reNamedEntity = regexp.MustCompile(`\s\p{Lu}\p{Ll}+`)
	reDateTime    = regexp.MustCompile(`\b(\d{1,2}(:\d{2})?\s?(am|pm|h\d{0,2})|today|tonight|tomorrow|yesterday|` +
		`monday|tuesday|wednesday|thursday|friday|saturday|sunday|` +
		`january|february|march|april|june|july|august|september|october|november|december|` +
		`noon|midnight|next (week|month|year)|this (morning|afternoon|evening|weekend)|` +
		`demain|aujourd'?hui|hier|lundi|mardi|mercredi|jeudi|vendredi|samedi|dimanche|` +
		`\d{1,2}/\d{1,2}(/\d{2,4})?)\b`)
	reQuantity = regexp.MustCompile(`\d+([.,]\d+)?\s?(kg|g|mg|km|m|cm|mm|l|ml|lbs?|oz|pounds?|miles?|` +
		`minutes?|mins?|hours?|days?|weeks?|months?|years?|dollars?|euros?|percent|%|€|\$|` +
		`grams?|kilos?|litres?|liters?|heures?|jours?|semaines?|mois|ans)`)
	reContact = regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.]+|\+?\d[\d\s().-]{7,}\d|https?://\S+|www\.\S+`)
)

func ruleMeaningful(in *input) (Result, bool) {
	signal := meaningfulSignal(in)
	if signal == "" {
		return Result{}, false
	}
	return verdict(ActionProcess, CategoryMeaningful, 0.85, "meaningful: "+signal), true
}

func meaningfulSignal(in *input) string {
	first := in.tokens[0]
	switch {
	case strings.HasSuffix(in.raw, "?") || (slices.Contains(questionWords, first) && len(in.tokens) >= 3):
		return "question"
	case slices.Contains(imperativeVerbs, first) && len(in.tokens) >= 2:
		return "imperative"
	case len(in.tokens) >= 3 && slices.ContainsFunc(in.tokens, func(t string) bool {
		return slices.Contains(firstPerson, t)
	}):
		return "first_person"
	case reNamedEntity.MatchString(in.raw):
		return "named_entity"
	case reDateTime.MatchString(in.lower):
		return "date_time"
	case reQuantity.MatchString(in.lower):
		return "quantity"
	case reContact.MatchString(in.lower):
		return "contact"
	}
	return ""
}

// ── 7. media playback ─────────────────────────────────────────────────────────

var mediaPhrases = []string{
	"thanks for watching", "thank you for watching", "like and subscribe", "dont forget to subscribe",
	"subscribe to", "previously on", "brought to you by", "sponsored by", "stay tuned",
	"coming up next", "after the break", "breaking news", "in theaters", "call now",
	"sous titres", "sous titrage", "merci davoir regarde", "abonnez vous",
}

var reAnnotation = regexp.MustCompile(`^[\[(♪].*[\])♪]$`)

func ruleMedia(in *input) (Result, bool) {
	if !in.prefs.FilterMedia {
		return Result{}, false
	}
	if reAnnotation.MatchString(in.raw) {
		return verdict(ActionDiscard, CategoryMedia, 0.9, "caption annotation"), true
	}
	for _, p := range mediaPhrases {
		if strings.Contains(in.norm, p) {
			return verdict(ActionDiscard, CategoryMedia, 0.8, "media phrasing: "+p), true
		}
	}
	return Result{}, false
}

// ── 8. trivial self-talk ──────────────────────────────────────────────────────

var selfTalkWords = map[string]bool{
	"oh": true, "ah": true, "oops": true, "whoops": true, "ugh": true, "okay": true, "ok": true,
	"alright": true, "right": true, "well": true, "so": true, "come": true, "on": true,
	"let": true, "me": true, "see": true, "no": true, "yes": true, "yeah": true, "now": true,
	"then": true, "hmm": true, "wait": true, "where": true, "was": true, "it": true,
	"voyons": true, "bon": true, "alors": true, "mince": true, "zut": true, "bref": true,
	"allez": true, "ouais": true, "non": true, "oui": true, "voila": true,
}

func ruleSelfTalk(in *input) (Result, bool) {
	if !in.prefs.FilterSelfTalk || len(in.tokens) > in.cfg.SelfTalkMaxWords {
		return Result{}, false
	}
	for _, t := range in.tokens {
		if !selfTalkWords[t] {
			return Result{}, false
		}
	}
	return uncertain(in, CategorySelfTalk, 0.75, "trivial self-talk"), true
}

// ── 9. third-party address ────────────────────────────────────────────────────

var (
	reVocative = regexp.MustCompile(`^(hey |hi )?(honey|babe|baby|sweetie|darling|mom|mum|dad|kids|guys|` +
		`buddy|dude|sir|madam|cheri|cherie|maman|papa|les enfants|mon coeur)\b`)
	reNameComma = regexp.MustCompile(`^\p{Lu}\p{Ll}+,\s`)
)

func ruleThirdParty(in *input) (Result, bool) {
	if !in.prefs.FilterThirdParty {
		return Result{}, false
	}
	if reVocative.MatchString(in.norm) || reNameComma.MatchString(in.raw) {
		return uncertain(in, CategoryThirdParty, 0.75, "addressed to someone else"), true
	}
	return Result{}, false
}

// ── 10. background speech ─────────────────────────────────────────────────────

func ruleBackground(in *input) (Result, bool) {
	if !in.prefs.FilterBackground || !in.ctx.HasSpeakerConfidence {
		return Result{}, false
	}
	if notUser := 1 - in.ctx.SpeakerConfidence; notUser > 0.7 {
		return verdict(ActionDiscard, CategoryBackground, notUser,
			fmt.Sprintf("likely background speech (%.2f not the user)", notUser)), true
	}
	return Result{}, false
}
