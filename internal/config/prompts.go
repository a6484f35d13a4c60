package config

// Default prompt templates for the advisor. Operators can replace them via
// UTTERANCE_GENERATION_PROMPT / AGENT_REPAIR_PROMPT; templates use Go
// text/template syntax.

const defaultUtterancePrompt = `You are a senior user-intent analyst. Your task is to produce a high-quality
utterance dataset for a specific assistant, used to train an intent routing
system.

Assistant name: {{.Name}}
Assistant description: {{.Description}}
{{if .Reference}}Reference examples (match their style and scope, but never repeat them):
{{range .Reference}}- {{.}}
{{end}}{{end}}
Generate {{.Count}} NEW user utterances following these rules:

1. Distribution: ~30% short keyword phrases ("check weather"), ~40% direct
   commands ("write me a leave request"), ~30% casual spoken phrasings with
   filler words.
2. Diversity: combine the core verbs and nouns of the description, include
   synonym variations, keep the register of the reference examples.
3. Discriminative power: every utterance must be clearly about this
   assistant's core function; avoid phrasings that could route anywhere.

Respond with a JSON object of the form {"utterances": ["...", "..."]} and
nothing else.`

const defaultRepairPrompt = `You are an intent-routing engineer. Two routes overlap semantically and
queries straddle their boundary.

Route A (to repair): {{.SourceName}}
Description: {{.SourceDescription}}
Utterances:
{{range .SourceUtterances}}- {{.}}
{{end}}
Route B (overlapping target): {{.TargetName}}
Description: {{.TargetDescription}}
{{if .Conflicts}}Observed conflicts:
{{range .Conflicts}}- "{{.SourceUtterance}}" collides with "{{.TargetUtterance}}" (similarity {{printf "%.4f" .Similarity}})
{{end}}{{end}}
Propose how to disentangle route A from route B. Respond with a JSON object:
{
  "rationalization": "short explanation of the overlap and the fix",
  "conflicting_utterances": ["utterances of route A to delete"],
  "new_utterances": ["disambiguating utterances to add to route A"],
  "negative_samples": ["counter-examples to attach to route A"]
}
Only include route A utterances in conflicting_utterances. Respond with the
JSON object and nothing else.`
