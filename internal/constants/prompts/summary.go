package prompts

var (
	// SUMMARY_SYSTEM takes the output language name.
	SUMMARY_SYSTEM = SYS_PROMPT{
		Intent:         "Summarizer identity",
		CurrentVersion: 0.1,
		Items: map[float32]PromptDefinition{
			0.1: {
				Version: 0.1,
				Content: "You are an assistant that writes high-quality summaries in %s.",
			},
		},
	}

	// SUMMARY_REQUEST takes the length descriptor, the language name and the text.
	SUMMARY_REQUEST = SYS_PROMPT{
		Intent:         "Summary request",
		CurrentVersion: 0.1,
		Items: map[float32]PromptDefinition{
			0.1: {
				Version: 0.1,
				Content: "Below is a text to summarize.\nWrite a %s summary of the text in %s.\n" +
					"The summary should capture the most important information and keep the original tone of the text.\n\n" +
					"Text to summarize:\n%s\n",
			},
		},
	}
)
