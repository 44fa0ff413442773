package notes

import "fmt"

const summaryTemplate = `Please summarize the following transcript into two to three paragraphs:
<transcript>
%s
</transcript>

Here's a summary of the transcript in two to three paragraphs:
`

const refineTemplate = `The following piece of text is of a transcript from a lecture. The summary of the lecture is provided below:
<summary>
%s
</summary>
The text is as follows:
<text>
%s
</text>
Your task is to refine the text.
 - Correct any typo or grammar mistake.
 - Remove any unnecessary repetition, fill in any missing information, and ensure the text is logically structured.
 - Do NOT change the meaning of the text.
 - Do NOT change the Markdown formatting such as bold, italic, or code blocks.
 - Do NOT remove any image from the text.
Please output only the refined text in your response, without any additional information, such as leading XML tags or triple quotes.

Here's the refined text:
`

// SummaryPrompt asks for a short summary of the whole transcript.
func SummaryPrompt(transcript string) string {
	return fmt.Sprintf(summaryTemplate, transcript)
}

// RefinePrompt asks for a polished version of one chunk, given the summary.
func RefinePrompt(summary, chunk string) string {
	return fmt.Sprintf(refineTemplate, summary, chunk)
}
