package language

import (
	"strings"

	"golang.org/x/text/cases"
	xlanguage "golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

type entry struct {
	code2 string   // ISO 639-1
	alt3  []string // ISO 639-2 codes, bibliographic forms included
	words []string // lowercase English names as transcription services report them
}

// Word forms the speech-to-text service emits for its most common languages.
// Codes outside this table still resolve through BCP 47 parsing.
var languages = []entry{
	{"en", []string{"eng"}, []string{"english"}},
	{"es", []string{"spa"}, []string{"spanish", "castilian"}},
	{"fr", []string{"fra", "fre"}, []string{"french"}},
	{"de", []string{"deu", "ger"}, []string{"german"}},
	{"it", []string{"ita"}, []string{"italian"}},
	{"pt", []string{"por"}, []string{"portuguese"}},
	{"ja", []string{"jpn"}, []string{"japanese"}},
	{"ko", []string{"kor"}, []string{"korean"}},
	{"zh", []string{"zho", "chi"}, []string{"chinese", "mandarin"}},
	{"ru", []string{"rus"}, []string{"russian"}},
	{"uk", []string{"ukr"}, []string{"ukrainian"}},
	{"ar", []string{"ara"}, []string{"arabic"}},
	{"hi", []string{"hin"}, []string{"hindi"}},
	{"tr", []string{"tur"}, []string{"turkish"}},
	{"vi", []string{"vie"}, []string{"vietnamese"}},
	{"id", []string{"ind"}, []string{"indonesian"}},
	{"nl", []string{"nld", "dut"}, []string{"dutch", "flemish"}},
	{"pl", []string{"pol"}, []string{"polish"}},
	{"sv", []string{"swe"}, []string{"swedish"}},
	{"da", []string{"dan"}, []string{"danish"}},
	{"no", []string{"nor"}, []string{"norwegian"}},
	{"fi", []string{"fin"}, []string{"finnish"}},
}

var byAlias map[string]string

func init() {
	byAlias = make(map[string]string, len(languages)*4)
	for _, e := range languages {
		byAlias[e.code2] = e.code2
		for _, code := range e.alt3 {
			byAlias[code] = e.code2
		}
		for _, w := range e.words {
			byAlias[w] = e.code2
		}
	}
}

// Tag resolves a code or English language name. It returns language.Und for
// empty or unrecognized input.
func Tag(value string) xlanguage.Tag {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return xlanguage.Und
	}
	if code, ok := byAlias[value]; ok {
		return xlanguage.Make(code)
	}
	tag, err := xlanguage.Parse(value)
	if err != nil {
		return xlanguage.Und
	}
	base, conf := tag.Base()
	if conf == xlanguage.No {
		return xlanguage.Und
	}
	return xlanguage.Make(base.String())
}

// Code returns the two-letter code when one exists, otherwise the base
// subtag of the resolved tag. Unrecognized input yields "".
func Code(value string) string {
	tag := Tag(value)
	if tag == xlanguage.Und {
		return ""
	}
	base, _ := tag.Base()
	return base.String()
}

var englishNames = display.English.Languages()

// DisplayName returns the English name used in prompts, e.g. "Spanish".
// Unrecognized words are title-cased; empty input yields "".
func DisplayName(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if tag := Tag(trimmed); tag != xlanguage.Und {
		if name := englishNames.Name(tag); name != "" {
			return name
		}
	}
	return cases.Title(xlanguage.English).String(strings.ToLower(trimmed))
}
