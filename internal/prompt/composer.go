// File: internal/prompt/composer.go
package prompt

import (
	"fmt"
	"strings"

	"github.com/HOSH19/BurpSuite-CUA/api/schemas"
)

// Section headers emitted by Compose around the base body.
const (
	MasterPlanHeader       = "## MASTER PLAN (Your Strategic Guide)"
	KnowledgeContextHeader = "## RELEVANT CONTEXT FROM KNOWLEDGE BASE"
	UserInstructionHeader  = "## User Instruction"
)

// Compose assembles the system prompt for one run. The base body is picked by
// version, falling back to 1.0, and is followed by the master plan, the
// retrieved knowledge and the user instruction footer, each only when there
// is something to show. Compose is pure.
func Compose(version schemas.ModelVersion, lang schemas.Language, op schemas.OperatorType, plan *schemas.MasterPlan, items []schemas.RetrievedItem) string {
	tmpl, ok := registry[version]
	if !ok {
		tmpl = registry[schemas.ModelV1_0]
	}
	if lang != schemas.LanguageEnglish && lang != schemas.LanguageChinese {
		lang = schemas.LanguageEnglish
	}

	var sb strings.Builder
	sb.WriteString(tmpl(lang, op))
	if plan != nil && strings.TrimSpace(plan.RawText) != "" {
		sb.WriteString(masterPlanSection(plan.RawText))
	}
	if len(items) > 0 {
		sb.WriteString(knowledgeSection(items))
	}
	sb.WriteString("\n" + UserInstructionHeader + "\n")
	return sb.String()
}

// PlanningPrompt returns the system prompt for master plan generation.
func PlanningPrompt(lang schemas.Language) string {
	return planningPrompt(lang)
}

func masterPlanSection(rawPlan string) string {
	return "\n" + MasterPlanHeader + "\n" + strings.TrimSpace(rawPlan) + `

## EXECUTION STRATEGY
You must follow the master plan above while adapting to the current UI state:
1. **Progress Check**: Review the screenshot and identify which steps from the master plan have been completed
2. **Current State Analysis**: Determine the current UI state and what's visible
3. **Next Action Selection**: Execute the next logical step from the master plan
4. **Adaptation**: If the UI has changed unexpectedly, adapt while staying aligned with the master plan's objectives

## PROGRESS VERIFICATION RULES
- ✅ **Completed Steps**: Mark steps as completed only when you can visually confirm the expected outcome
- ⏳ **Current Step**: Identify which step you're currently executing
- 📋 **Remaining Steps**: Keep track of steps that still need to be completed
- 🔄 **Adaptations**: Note any deviations from the master plan and explain why
- 🎯 **CRITICAL**: Always reference the original numbered steps (1, 2, 3, etc.) from the master plan above

Start every Thought with this block before your step-by-step plan:
` + "```" + `
## PROGRESS TRACKING
✅ Completed: [Step 1, Step 2, etc. - list by step numbers from master plan]
⏳ Current: [Step X from master plan - specify exact step number and description]
📋 Remaining: [Step Y, Step Z, etc. - list remaining step numbers from master plan]
🔄 Adaptations: [Any deviations from master plan, if needed]
` + "```" + `
- **CRITICAL: Follow the master plan while adapting to current UI state.**
- **CRITICAL: Always track progress and explain any deviations from the master plan.**
`
}

func knowledgeSection(items []schemas.RetrievedItem) string {
	var sb strings.Builder
	sb.WriteString("\n" + KnowledgeContextHeader + "\n")
	for i, item := range items {
		source := item.Source
		if source == "" {
			source = "Unknown"
		}
		fmt.Fprintf(&sb, "\n**Context %d** (Relevance: %.2f, Source: %s):\n%s\n", i+1, item.Relevance, source, strings.TrimSpace(item.Text))
	}
	sb.WriteString("\nUse this context only as supporting information. The user instruction and the current screenshot take precedence.\n")
	return sb.String()
}
