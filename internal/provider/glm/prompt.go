package glm

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xianjianshenqu/health-report-analyzer/internal/extract"
)

//go:embed prompts/analyze_v1.txt
var systemPrompt string

func buildUserPrompt(content extract.Content) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Extraction method: %s\n", content.Method)
	if content.Pages > 1 {
		fmt.Fprintf(&b, "Pages: %d\n", content.Pages)
	}
	if len(content.Warnings) > 0 {
		fmt.Fprintf(&b, "Extraction warnings: %s\n", strings.Join(content.Warnings, "; "))
	}
	b.WriteString("\nReport text:\n")
	b.WriteString(content.Text)
	return b.String()
}
