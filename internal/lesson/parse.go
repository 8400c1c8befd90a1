package lesson

import (
	"regexp"
	"strings"
)

// Question types produced by the quiz parser.
const (
	TypeMultipleChoice = "multiple_choice"
	TypeOpenEnded      = "open_ended"
)

// Question is a single parsed quiz question.
type Question struct {
	// Type is TypeMultipleChoice or TypeOpenEnded.
	Type string `json:"type"`
	// Question is the question text.
	Question string `json:"question"`
	// Options maps option letters (A-D) to their text. Nil for open-ended.
	Options map[string]string `json:"options,omitempty"`
	// Answer is the expected answer.
	Answer string `json:"correct_answer"`
}

// Quiz is the structured result of parsing model quiz output.
type Quiz struct {
	Questions []Question `json:"quiz"`
}

var (
	questionPattern = regexp.MustCompile(`(?s)QUESTION:\s*(.*?)(?:OPTIONS:|ANSWER:|$)`)
	optionsPattern  = regexp.MustCompile(`(?s)OPTIONS:\s*(.*?)(?:ANSWER:|$)`)
	answerPattern   = regexp.MustCompile(`(?s)ANSWER:\s*(.*)$`)
	optionPattern   = regexp.MustCompile(`([A-D])\)`)
)

// ParseQuiz parses the delimiter-based quiz format the quiz prompt instructs
// the model to emit. Blocks that do not parse are skipped rather than failing
// the whole quiz; models routinely emit one malformed block.
func ParseQuiz(raw string) Quiz {
	var quiz Quiz

	for _, block := range strings.Split(raw, "|||") {
		block = strings.TrimSpace(block)
		start := strings.Index(block, "QUESTION:")
		if start < 0 {
			continue
		}
		block = block[start:]

		qm := questionPattern.FindStringSubmatch(block)
		if qm == nil {
			continue
		}
		question := strings.TrimSpace(qm[1])
		if question == "" {
			continue
		}

		am := answerPattern.FindStringSubmatch(block)
		if am == nil {
			continue
		}
		answer := strings.TrimSpace(am[1])

		if strings.Contains(block, "OPTIONS:") {
			om := optionsPattern.FindStringSubmatch(block)
			if om == nil {
				continue
			}
			options := parseOptions(om[1])
			if len(options) == 0 || answer == "" {
				continue
			}
			quiz.Questions = append(quiz.Questions, Question{
				Type:     TypeMultipleChoice,
				Question: question,
				Options:  options,
				Answer:   answer,
			})
			continue
		}

		if answer == "" {
			continue
		}
		quiz.Questions = append(quiz.Questions, Question{
			Type:     TypeOpenEnded,
			Question: question,
			Answer:   answer,
		})
	}

	return quiz
}

// parseOptions extracts lettered options from an OPTIONS block. Each option
// runs from its "X)" marker to the next marker or end of block; options may
// sit on one line or span several.
func parseOptions(raw string) map[string]string {
	locs := optionPattern.FindAllStringSubmatchIndex(raw, -1)
	options := make(map[string]string)
	for i, loc := range locs {
		letter := raw[loc[2]:loc[3]]
		end := len(raw)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		text := strings.TrimSpace(raw[loc[1]:end])
		if text != "" {
			options[letter] = text
		}
	}
	return options
}
