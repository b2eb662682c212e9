package pipeline

import (
	"github.com/jonathan/study-resources/internal/extraction"
	"github.com/jonathan/study-resources/internal/types"
)

// exerciseFields describes one exercise record. Generation documents accept
// incomplete exercises (they are filtered later); the exercise provider does not.
func exerciseFields(strict bool) []extraction.Field {
	return []extraction.Field{
		{Name: "statement", Type: extraction.TypeString, Description: "The exercise statement", Required: strict},
		{Name: "answer", Type: extraction.TypeString, Description: "The expected answer", Required: strict},
		{Name: "explanation", Type: extraction.TypeString, Description: "How to reach the answer"},
		{Name: "difficulty", Type: extraction.TypeString, Description: "easy, medium or hard"},
	}
}

var (
	textField     = extraction.Field{Name: "text", Type: extraction.TypeString, Description: "The main explanatory text", Required: true}
	topicsField   = extraction.Field{Name: "topics", Type: extraction.TypeStringList, Description: "Topics a student must master"}
	exercisesList = extraction.Field{Name: "exercises", Type: extraction.TypeObjectList, Description: "Practice exercises", Items: exerciseFields(false)}
)

// OutputSchema returns the extraction schema a generation of in must satisfy.
func OutputSchema(in *types.GenerationInput) extraction.Schema {
	return generationSchema(in)
}

// generationSchema returns the output contract for one generation input.
func generationSchema(in *types.GenerationInput) extraction.Schema {
	switch in.Kind {
	case types.GenerationJustification:
		return extraction.Schema{
			Name:        "Justification",
			Description: "Explain the answer of a multiple-choice question.",
			Fields: []extraction.Field{
				textField,
				{
					Name: "option_explanations", Type: extraction.TypeObjectList, Required: true,
					Description: "One entry per answer option",
					Items: []extraction.Field{
						{Name: "id", Type: extraction.TypeString, Required: true},
						{Name: "explanation", Type: extraction.TypeString, Required: true},
					},
				},
				topicsField,
				exercisesList,
			},
			TextField:       "text",
			RecordsField:    "option_explanations",
			RecordIDField:   "id",
			RecordTextField: "explanation",
			KnownRecordIDs:  in.OptionIDs(),
		}
	case types.GenerationStudyPlan:
		return extraction.Schema{
			Name:        "StudyPlan",
			Description: "Plan study sessions for a list of topics.",
			Fields: []extraction.Field{
				textField,
				{Name: "steps", Type: extraction.TypeStringList, Description: "Ordered study steps"},
				topicsField,
				exercisesList,
			},
			TextField: "text",
		}
	default:
		return extraction.Schema{
			Name:        "Summary",
			Description: "Summarize a list of topics.",
			Fields:      []extraction.Field{textField, topicsField, exercisesList},
			TextField:   "text",
		}
	}
}

// exerciseSchema is the output contract of the exercise provider.
func exerciseSchema() extraction.Schema {
	return extraction.Schema{
		Name:        "Exercises",
		Description: "Write practice exercises.",
		Fields: []extraction.Field{
			{Name: "exercises", Type: extraction.TypeObjectList, Required: true, Items: exerciseFields(true)},
		},
	}
}

func promptKey(kind types.GenerationKind) string {
	switch kind {
	case types.GenerationJustification:
		return "justification"
	case types.GenerationStudyPlan:
		return "study-plan"
	default:
		return "summary"
	}
}
