package services

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// poisonValue stands in for required fields that would otherwise substitute
// as empty strings ("Hey {first_name}!" becoming "Hey !"). Finding it in
// the filled text after substitution is how blank required data gets caught
// without a separate validation pass.
const poisonValue = "ERROR!!!"

var placeholderPattern = regexp.MustCompile(`\{[A-Za-z_]+(\[\d+\])?\}`)

// poisonIfEmpty swaps the empty-string sentinel for the poison literal
// before substitution.
func poisonIfEmpty(v string) string {
	if v == "" {
		return poisonValue
	}
	return v
}

// fillTemplate substitutes named {token} placeholders plus indexed
// {experiment_prompts[i]} tokens into tmpl. An unreplaced placeholder or a
// surviving poison literal fails the fill.
func fillTemplate(tmpl string, fields map[string]string, experimentPrompts []string) (string, error) {
	pairs := make([]string, 0, 2*(len(fields)+len(experimentPrompts)))
	for token, value := range fields {
		pairs = append(pairs, "{"+token+"}", value)
	}
	for i, prompt := range experimentPrompts {
		pairs = append(pairs, fmt.Sprintf("{experiment_prompts[%d]}", i), prompt)
	}

	filled := strings.NewReplacer(pairs...).Replace(tmpl)

	if leftover := placeholderPattern.FindString(filled); leftover != "" {
		return "", fmt.Errorf("unreplaced placeholder %s", leftover)
	}
	if strings.Contains(filled, poisonValue) {
		return "", errors.New("we attempted to replace a variable with an empty string")
	}
	return filled, nil
}
